package run

import "context"

type Repository interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// List returns up to limit runs, newest first. A limit of 0 means all.
	List(ctx context.Context, limit int) ([]*Run, error)
}
