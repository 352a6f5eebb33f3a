package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/storage"
)

const runsPrefix = "runs"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", runsPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, rn *run.Run) error {
	exists, err := r.storage.Exists(ctx, path(rn.ID))
	if err != nil {
		return cerr.WrapStorageWriteError("run", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "run already exists", nil)
	}
	data, err := yaml.Marshal(rn)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal run: %w", err))
	}
	if err := r.storage.Write(ctx, path(rn.ID), data); err != nil {
		return cerr.WrapStorageWriteError("run", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*run.Run, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("run", err)
	}
	var rn run.Run
	if err := yaml.Unmarshal(data, &rn); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal run: %w", err))
	}
	return &rn, nil
}

// List relies on run IDs being ULIDs, whose lexical order is creation order.
func (r *YAMLRepository) List(ctx context.Context, limit int) ([]*run.Run, error) {
	paths, err := r.storage.List(ctx, runsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("runs", err)
	}
	slices.Sort(paths)
	slices.Reverse(paths)

	var runs []*run.Run
	for _, p := range paths {
		if limit > 0 && len(runs) >= limit {
			break
		}
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			slog.Warn("run repository: skipping unreadable run", "path", p, "error", err)
			continue
		}
		var rn run.Run
		if err := yaml.Unmarshal(data, &rn); err != nil {
			slog.Warn("run repository: skipping malformed run", "path", p, "error", err)
			continue
		}
		runs = append(runs, &rn)
	}
	return runs, nil
}
