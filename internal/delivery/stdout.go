package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// WriterSender prints every chunk to w, framed by its destination. It backs
// dry runs and the stdout delivery mode.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Send(_ context.Context, destination, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if destination == "" {
		destination = "stdout"
	}
	if _, err := fmt.Fprintf(s.w, "──── %s ────\n%s\n", destination, text); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return nil
}
