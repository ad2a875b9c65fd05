package client

import "context"

// Task is the handle of an operation running on its own goroutine.
type Task struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func startTask(ctx context.Context, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer cancel()
		t.err = fn(ctx)
		close(t.done)
	}()
	return t
}

// Done returns a channel closed when the task finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the result of the task, or nil while it is still running.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Cancel asks the task to stop. It does not wait for it.
func (t *Task) Cancel() { t.cancel() }

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
