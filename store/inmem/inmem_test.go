package inmem_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/store"
	"github.com/agentcore/agentcore/store/inmem"
)

func TestCreateThenGetRoundTrips(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()

	sess, err := s.Create(ctx, "sess-1", "fix the flaky test")
	require.NoError(t, err)
	assert.Equal(t, store.SessionActive, sess.Status)

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "fix the flaky test", got.Task)
}

func TestCreateDuplicateIDFails(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	_, err := s.Create(ctx, "sess-1", "task")
	require.NoError(t, err)
	_, err = s.Create(ctx, "sess-1", "task 2")
	assert.Error(t, err)
}

func TestUpdateStatusStampsCompletedAt(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	_, err := s.Create(ctx, "sess-1", "task")
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus(ctx, "sess-1", store.SessionCompleted))
	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, store.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateStatusUnknownSessionFails(t *testing.T) {
	s := inmem.New()
	err := s.UpdateStatus(context.Background(), "missing", store.SessionFailed)
	assert.Error(t, err)
}

func TestListReturnsAllAndRespectsLimit(t *testing.T) {
	s := inmem.New()
	ctx := context.Background()
	_, err := s.Create(ctx, "sess-1", "first")
	require.NoError(t, err)
	_, err = s.Create(ctx, "sess-2", "second")
	require.NoError(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
