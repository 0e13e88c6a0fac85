package memory

import (
	"context"
	"sync"
)

// InlineDispatcher runs the task on the calling goroutine with a detached
// context, so a claim returns with its payout already settled.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(task func(ctx context.Context)) error {
	task(context.Background())
	return nil
}

// GoDispatcher starts one goroutine per task. Wait blocks until all have returned.
type GoDispatcher struct {
	wg sync.WaitGroup
}

func (d *GoDispatcher) Dispatch(task func(ctx context.Context)) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		task(context.Background())
	}()
	return nil
}

func (d *GoDispatcher) Wait() {
	d.wg.Wait()
}
