package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasksAndDrainsOnStop(t *testing.T) {
	pool := NewWorkerPool(2, nil)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Dispatch(func(context.Context) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}))
	}
	pool.Stop(time.Second)
	assert.EqualValues(t, 10, ran.Load())

	assert.ErrorIs(t, pool.Dispatch(func(context.Context) {}), ErrDispatcherStopped)
}

func TestWorkerPoolCancelsTasksAfterGrace(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	cancelled := make(chan struct{})
	require.NoError(t, pool.Dispatch(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	pool.Stop(20 * time.Millisecond)
	select {
	case <-cancelled:
	default:
		t.Fatalf("task context was not cancelled after grace")
	}
}

func TestWorkerPoolSurvivesPanickingTask(t *testing.T) {
	pool := NewWorkerPool(1, nil)
	var ran atomic.Bool
	require.NoError(t, pool.Dispatch(func(context.Context) { panic("boom") }))
	require.NoError(t, pool.Dispatch(func(context.Context) { ran.Store(true) }))
	pool.Stop(time.Second)
	assert.True(t, ran.Load())
}
