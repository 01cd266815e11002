package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/najoast/roadsim/core"
	"github.com/najoast/roadsim/pool"
	"github.com/najoast/roadsim/protocol"
)

// SpawnFunc starts one vehicle actor.
type SpawnFunc func(ctx context.Context) error

// ControlOptions configures the control actor.
type ControlOptions struct {
	MinuteLength time.Duration
	SpawnMin     int
	SpawnMax     int
	MaxMinutes   int
	Refresh      time.Duration
	Clock        Clock

	// SummaryEvery is read on every minute boundary so it can be retuned
	// while running. Zero or negative disables periodic status lines.
	SummaryEvery *atomic.Int32
}

// ControlActor drives simulated time and owns the simulation counters.
type ControlActor struct {
	self   *core.Endpoint
	opts   ControlOptions
	spawn  SpawnFunc
	stop   func() error
	rng    *rand.Rand
	logger *log.Logger

	stats   Aggregator
	start   time.Time
	minutes int
}

// NewControlActor creates the control actor. spawn starts a vehicle and
// stop asks the pool to end the run.
func NewControlActor(self *core.Endpoint, opts ControlOptions, spawn SpawnFunc, stop func() error,
	rng *rand.Rand, logger *log.Logger) *ControlActor {
	if opts.Clock == nil {
		opts.Clock = WallClock()
	}
	if opts.Refresh <= 0 {
		opts.Refresh = 100 * time.Millisecond
	}
	if opts.SummaryEvery == nil {
		opts.SummaryEvery = new(atomic.Int32)
	}
	return &ControlActor{
		self:   self,
		opts:   opts,
		spawn:  spawn,
		stop:   stop,
		rng:    rng,
		logger: logger,
	}
}

// Run serves one report per step and advances the clock until the run
// reaches MaxMinutes or ctx is cancelled.
func (c *ControlActor) Run(ctx context.Context) error {
	c.start = c.opts.Clock.Now()
	ticker := time.NewTicker(c.opts.Refresh)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		finished, err := c.tick(ctx)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case msg := <-c.self.Chan():
			c.handle(c.self.Accept(msg))
		case <-ticker.C:
		}
	}
}

// tick runs every simulated minute that has elapsed since the last call.
func (c *ControlActor) tick(ctx context.Context) (bool, error) {
	elapsed := elapsedMinutes(c.opts.Clock.Now().Sub(c.start), c.opts.MinuteLength)
	for c.minutes < elapsed {
		c.minutes++
		if err := c.spawnBatch(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, pool.ErrStopped) {
				return true, nil
			}
			return true, err
		}

		if every := int(c.opts.SummaryEvery.Load()); every > 0 && c.minutes%every == 0 {
			c.logger.Info(c.stats.Snapshot().StatusLine(c.minutes))
		}

		if c.minutes >= c.opts.MaxMinutes {
			snap := c.stats.Snapshot()
			c.logger.Info(snap.SummaryLine(c.minutes), "active", snap.Active(), "dropped", snap.SpawnsDropped)
			return true, c.stop()
		}
	}
	return false, nil
}

func (c *ControlActor) spawnBatch(ctx context.Context) error {
	n := randRange(c.rng, c.opts.SpawnMin, c.opts.SpawnMax)
	dropped := 0
	for i := 0; i < n; i++ {
		err := c.spawn(ctx)
		switch {
		case err == nil:
		case errors.Is(err, pool.ErrBlocked):
			c.stats.DropSpawn()
			dropped++
		default:
			return err
		}
	}
	if dropped > 0 {
		c.logger.Debug("spawns dropped", "minute", c.minutes, "dropped", dropped, "requested", n)
	}
	return nil
}

func (c *ControlActor) handle(msg *core.Message) {
	p, err := protocol.Decode(msg)
	if err != nil {
		c.logger.Warn("bad control message", "from", msg.Source, "err", err)
		return
	}
	report, ok := p.(protocol.ControlReport)
	if !ok {
		c.logger.Warn("unexpected control message", "from", msg.Source, "tag", msg.Tag)
		return
	}
	if err := c.stats.Apply(report); err != nil {
		c.logger.Warn("bad control report", "from", msg.Source, "err", err)
	}
}

// Minutes returns the simulated minutes processed so far.
func (c *ControlActor) Minutes() int {
	return c.minutes
}

// Snapshot returns a copy of the counters.
func (c *ControlActor) Snapshot() Snapshot {
	return c.stats.Snapshot()
}
