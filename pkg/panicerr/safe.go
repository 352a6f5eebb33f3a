package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Call runs fn and converts a panic into an error carrying the recovered
// value and its stack.
func Call(fn func() error) error {
	var (
		catcher panics.Catcher
		err     error
	)
	catcher.Try(func() {
		err = fn()
	})
	if r := catcher.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// SafeContext wraps fn so that a panic inside it is returned as an error.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Call(func() error { return fn(ctx) })
	}
}
