package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func TestYAMLRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	started := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	rn := &run.Run{
		ID:          ulid.Make().String(),
		Trigger:     run.TriggerScheduled,
		Destination: "12345",
		Status:      run.StatusSucceeded,
		StartedAt:   started,
		FinishedAt:  started.Add(3 * time.Second),
		TaskCount:   4,
		ChunkCount:  1,
		Delivered:   1,
		Chunks:      []string{"# Daily Reminder Mar 04"},
	}
	require.NoError(t, repo.Create(ctx, rn))

	got, err := repo.Get(ctx, rn.ID)
	require.NoError(t, err)
	assert.Equal(t, rn, got)
	assert.Equal(t, 3*time.Second, got.Duration())

	err = repo.Create(ctx, rn)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	base := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 3 {
		at := base.Add(time.Duration(i) * time.Hour)
		id := ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
		ids = append(ids, id)
		require.NoError(t, repo.Create(ctx, &run.Run{ID: id, StartedAt: at, Status: run.StatusFailed}))
	}

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	latest, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, ids[2], latest[0].ID)
}
