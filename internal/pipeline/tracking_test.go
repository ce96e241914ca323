package pipeline

import (
	"context"
	"testing"

	"go-cog-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTrackerProgress(t *testing.T) {
	rt, _ := NewRunTracker(context.Background(), "run-1")
	rt.SetStatus(model.StatusRunning)

	rt.Progress(1, 3)
	rt.Progress(3, 3)
	rt.Progress(2, 3)

	p := rt.Snapshot()
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, model.StatusRunning, p.Status)
	assert.Equal(t, 3, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.StartTime.IsZero())
}

func TestRegistryCancel(t *testing.T) {
	reg := NewRegistry()
	a, ctxA := NewRunTracker(context.Background(), "a")
	b, ctxB := NewRunTracker(context.Background(), "b")
	reg.Add(a)
	reg.Add(b)

	got, ok := reg.Get("a")
	require.True(t, ok)
	got.Cancel()
	assert.ErrorIs(t, ctxA.Err(), context.Canceled)
	assert.NoError(t, ctxB.Err())

	reg.CancelAll()
	assert.ErrorIs(t, ctxB.Err(), context.Canceled)

	reg.Remove("a")
	_, ok = reg.Get("a")
	assert.False(t, ok)
}
