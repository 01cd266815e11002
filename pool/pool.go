// Package pool runs a fixed budget of worker goroutines that are woken to
// host one actor run at a time and put back to sleep when it finishes.
//
// A single manager goroutine owns the slot table. Requesters ask it for a
// slot with Activate; the worker reports back with a Sleep command when its
// run function returns. Any worker may ask the manager to end the run,
// after which every slot is told to stop.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/roadsim/core"
)

// RunFunc hosts one actor on a woken worker. Returning an error aborts the pool.
type RunFunc func(ctx context.Context, w *Worker) error

// Config holds pool sizing and exhaustion behaviour.
type Config struct {
	Workers     int
	Policy      Policy
	MailboxSize int
}

// Stats is a snapshot of pool activity.
type Stats struct {
	Slots       int
	Active      int
	PeakActive  int
	Activations uint64
	Blocked     uint64
}

type slotState uint8

const (
	slotIdle slotState = iota
	slotActive
)

type slot struct {
	state  slotState
	worker *Worker
}

// Pool is the worker pool manager.
type Pool struct {
	cfg    Config
	router *core.Router
	run    RunFunc
	logger *log.Logger

	slots []*slot
	cmds  chan Command

	// stop is closed once the pool stops taking requests
	stop     chan struct{}
	stopOnce sync.Once

	// finished is closed when Run returns
	finished chan struct{}

	active      int32
	peakActive  int32
	activations uint64
	blocked     uint64
}

// New builds a pool with one endpoint per slot, registered on router.
func New(cfg Config, router *core.Router, run RunFunc, logger *log.Logger) (*Pool, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", cfg.Workers)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyQuit
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("pool run function cannot be nil")
	}
	if logger == nil {
		logger = log.Default()
	}

	p := &Pool{
		cfg:      cfg,
		router:   router,
		run:      run,
		logger:   logger.With("component", "pool"),
		slots:    make([]*slot, cfg.Workers),
		cmds:     make(chan Command, cfg.Workers),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	for i := range p.slots {
		ep := router.NewEndpoint(core.EndpointOptions{
			MailboxSize: cfg.MailboxSize,
			Name:        fmt.Sprintf("worker-%d", i),
		})
		p.slots[i] = &slot{
			state: slotIdle,
			worker: &Worker{
				index:    i,
				pool:     p,
				endpoint: ep,
				ctrl:     make(chan Command, 1),
				parent:   UnknownParent,
			},
		}
	}
	return p, nil
}

// Run starts the manager and every worker, and blocks until the pool
// stops or aborts. It returns the first error any of them produced.
func (p *Pool) Run(ctx context.Context) error {
	defer close(p.finished)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for _, s := range p.slots {
		w := s.worker
		g.Go(func() error { return w.loop(gctx) })
	}
	g.Go(func() error { return p.manage(gctx, cancel) })

	p.logger.Info("pool started", "workers", len(p.slots), "policy", p.cfg.Policy)
	err := g.Wait()
	p.broadcastStop()

	st := p.Stats()
	if err != nil {
		p.logger.Error("pool aborted", "err", err, "activations", st.Activations, "peak", st.PeakActive)
		return err
	}
	p.logger.Info("pool stopped", "activations", st.Activations, "peak", st.PeakActive, "blocked", st.Blocked)
	return nil
}

// Activate asks the manager for an idle worker on behalf of requester and
// returns the granted slot's endpoint id. The reply goes to this caller only.
func (p *Pool) Activate(ctx context.Context, requester core.ActorID) (core.ActorID, error) {
	reply := make(chan activation, 1)
	cmd := Command{Kind: CmdStartRequest, Data: int(requester), reply: reply}

	if err := p.send(ctx, cmd); err != nil {
		return core.NoActor, err
	}

	select {
	case a := <-reply:
		return a.slot, a.err
	case <-p.stop:
		select {
		case a := <-reply:
			return a.slot, a.err
		default:
			return core.NoActor, ErrStopped
		}
	case <-ctx.Done():
		return core.NoActor, ctx.Err()
	}
}

// RequestStop asks the manager to end the run.
func (p *Pool) RequestStop(ctx context.Context) error {
	return p.send(ctx, Command{Kind: CmdRunComplete, Data: UnknownParent})
}

// Shutdown stops every slot and waits for Run to return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.broadcastStop()
	select {
	case <-p.finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		Slots:       len(p.slots),
		Active:      int(atomic.LoadInt32(&p.active)),
		PeakActive:  int(atomic.LoadInt32(&p.peakActive)),
		Activations: atomic.LoadUint64(&p.activations),
		Blocked:     atomic.LoadUint64(&p.blocked),
	}
}

// Workers returns the worker of every slot, in slot order.
func (p *Pool) Workers() []*Worker {
	ws := make([]*Worker, len(p.slots))
	for i, s := range p.slots {
		ws[i] = s.worker
	}
	return ws
}

func (p *Pool) send(ctx context.Context, cmd Command) error {
	select {
	case p.cmds <- cmd:
		return nil
	case <-p.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// manage is the only goroutine touching the slot table. Leaving it
// cancels every worker.
func (p *Pool) manage(ctx context.Context, cancel context.CancelFunc) error {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case cmd := <-p.cmds:
			switch cmd.Kind {
			case CmdStartRequest:
				if err := p.handleStart(cmd); err != nil {
					return err
				}
			case CmdSleep:
				p.handleSleep(cmd.Data)
			case CmdRunComplete:
				p.logger.Info("run complete requested")
				p.broadcastStop()
				return nil
			default:
				p.logger.Warn("unexpected command", "kind", cmd.Kind)
			}
		}
	}
}

// handleStart grants the first idle slot.
func (p *Pool) handleStart(cmd Command) error {
	for _, s := range p.slots {
		if s.state != slotIdle {
			continue
		}
		select {
		case s.worker.ctrl <- Command{Kind: CmdWake, Data: cmd.Data}:
		default:
			// a stop is already queued for this worker
			cmd.reply <- activation{err: ErrStopped}
			return nil
		}
		s.state = slotActive

		atomic.AddUint64(&p.activations, 1)
		n := atomic.AddInt32(&p.active, 1)
		if n > atomic.LoadInt32(&p.peakActive) {
			atomic.StoreInt32(&p.peakActive, n)
		}
		cmd.reply <- activation{slot: s.worker.ID()}
		return nil
	}

	atomic.AddUint64(&p.blocked, 1)
	if p.cfg.Policy == PolicyIgnore {
		p.logger.Debug("activation dropped, no idle worker", "requester", cmd.Data)
		cmd.reply <- activation{err: ErrBlocked}
		return nil
	}

	err := fmt.Errorf("requester %d, %d workers busy: %w", cmd.Data, len(p.slots), ErrPoolExhausted)
	p.logger.Error("no idle worker, aborting", "requester", cmd.Data, "workers", len(p.slots))
	cmd.reply <- activation{err: err}
	return err
}

func (p *Pool) handleSleep(index int) {
	if index < 0 || index >= len(p.slots) {
		p.logger.Warn("sleep from unknown slot", "slot", index)
		return
	}
	s := p.slots[index]
	if s.state != slotActive {
		p.logger.Warn("sleep from idle slot", "slot", index)
		return
	}
	s.state = slotIdle
	atomic.AddInt32(&p.active, -1)
}

// broadcastStop tells every slot to stop and releases anything blocked
// on the pool.
func (p *Pool) broadcastStop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		for _, s := range p.slots {
			select {
			case s.worker.ctrl <- Command{Kind: CmdStop, Data: UnknownParent}:
			default:
			}
		}
	})
}
