package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdigest/internal/pushsubscription"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/storage"
)

const pushSubscriptionsPrefix = "push_subscriptions"

type YAMLRepository struct {
	storage storage.Storage
	// mu serialises Upsert so one endpoint never gets two records.
	mu  sync.Mutex
	now func() time.Time
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, now: time.Now}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", pushSubscriptionsPrefix, id)
}

func (r *YAMLRepository) Upsert(ctx context.Context, s *pushsubscription.Subscription) (*pushsubscription.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.FindByEndpoint(ctx, s.Endpoint)
	switch {
	case err == nil:
		existing.P256dhKey = s.P256dhKey
		existing.AuthKey = s.AuthKey
		existing.UpdatedAt = r.now()
		s = existing
	case cerr.IsCode(err, cerr.NotFound):
		if s.CreatedAt.IsZero() {
			s.CreatedAt = r.now()
		}
	default:
		return nil, err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal push subscription: %w", err))
	}
	if err := r.storage.Write(ctx, path(s.ID), data); err != nil {
		return nil, cerr.WrapStorageWriteError("push_subscription", err)
	}
	return s, nil
}

func (r *YAMLRepository) List(ctx context.Context) ([]*pushsubscription.Subscription, error) {
	paths, err := r.storage.List(ctx, pushSubscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push_subscriptions", err)
	}

	var all []*pushsubscription.Subscription
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.Warn("push subscription repository: skipping unreadable record", "path", p, "error", err)
			continue
		}
		var s pushsubscription.Subscription
		if err := yaml.Unmarshal(data, &s); err != nil {
			slog.Warn("push subscription repository: skipping malformed record", "path", p, "error", err)
			continue
		}
		all = append(all, &s)
	}
	return all, nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageDeleteError("push_subscription", err)
	}
	return nil
}

func (r *YAMLRepository) FindByEndpoint(ctx context.Context, endpoint string) (*pushsubscription.Subscription, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Endpoint == endpoint {
			return s, nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, "push subscription not found", nil)
}

func (r *YAMLRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	s, err := r.FindByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	return r.Delete(ctx, s.ID)
}
