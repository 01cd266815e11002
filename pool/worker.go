package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/najoast/roadsim/core"
)

// Worker is one pool slot. Its endpoint keeps the same id across every
// wake/sleep cycle.
type Worker struct {
	index    int
	pool     *Pool
	endpoint *core.Endpoint
	ctrl     chan Command

	// valid while a run is in progress
	ctx    context.Context
	parent int
	runs   int
}

// ID returns the slot's endpoint id.
func (w *Worker) ID() core.ActorID {
	return w.endpoint.ID()
}

// Index returns the slot index.
func (w *Worker) Index() int {
	return w.index
}

// Endpoint returns the slot's mailbox.
func (w *Worker) Endpoint() *core.Endpoint {
	return w.endpoint
}

// Parent returns the requester that woke this worker, or UnknownParent.
func (w *Worker) Parent() int {
	return w.parent
}

// Runs returns how many times this worker has been woken.
func (w *Worker) Runs() int {
	return w.runs
}

// Context returns the context of the current run. It is cancelled when the
// pool stops or aborts.
func (w *Worker) Context() context.Context {
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

// Done is closed when the pool stops or aborts.
func (w *Worker) Done() <-chan struct{} {
	return w.Context().Done()
}

// ShouldStop reports, without blocking, whether the run must end.
func (w *Worker) ShouldStop() bool {
	select {
	case <-w.Done():
		return true
	case <-w.pool.stop:
		return true
	default:
		return false
	}
}

// Stopping reports whether the pool was asked to stop, as opposed to
// aborting on an error.
func (w *Worker) Stopping() bool {
	select {
	case <-w.pool.stop:
		return true
	default:
		return false
	}
}

// RequestStop asks the manager to end the whole run.
func (w *Worker) RequestStop() error {
	err := w.pool.RequestStop(w.Context())
	if errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Activate requests another worker on this worker's behalf.
func (w *Worker) Activate() (core.ActorID, error) {
	return w.pool.Activate(w.Context(), w.ID())
}

// loop waits for Wake, runs the pool's RunFunc and reports Sleep.
func (w *Worker) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.ctrl:
			switch cmd.Kind {
			case CmdStop:
				return nil
			case CmdWake:
				if err := w.runOnce(ctx, cmd.Data); err != nil {
					return err
				}
			default:
				w.pool.logger.Warn("unexpected worker command", "slot", w.index, "kind", cmd.Kind)
			}
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, parent int) error {
	w.ctx = ctx
	w.parent = parent
	w.runs++

	err := w.pool.run(ctx, w)

	w.ctx = nil
	w.parent = UnknownParent
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.index, err)
	}

	// fails only once the manager is gone, and then no slot is tracked
	_ = w.pool.send(ctx, Command{Kind: CmdSleep, Data: w.index})
	return nil
}
