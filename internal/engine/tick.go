// Package engine provides the tick-based simulation loop.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/planet-harvest/internal/config"
)

// Reasons Run returns.
const (
	StopCancelled = "cancelled"
	StopMaxTicks  = "max_ticks"
	StopDrained   = "drained"
	StopRequested = "stopped"
)

// pausePoll is how often a paused engine checks for a speed change.
const pausePoll = 100 * time.Millisecond

// Engine drives the simulation forward.
type Engine struct {
	Sim *Simulation

	Interval        time.Duration // Base tick interval at speed 1
	MaxTicks        uint64        // 0 = no limit
	ReportEvery     uint64        // 0 = no progress reports
	StopWhenDrained bool

	// Callbacks, populated during setup.
	OnTick   func(frame TickFrame)            // Every tick
	OnReport func(tick uint64)                // Every ReportEvery ticks
	OnDone   func(tick uint64, reason string) // Once, when Run returns

	mu      sync.Mutex
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	stop    chan struct{}
}

// NewEngine creates an engine for sim with the given settings.
func NewEngine(sim *Simulation, cfg config.EngineConfig) *Engine {
	return &Engine{
		Sim:             sim,
		Interval:        time.Duration(cfg.TickIntervalMs) * time.Millisecond,
		MaxTicks:        cfg.MaxTicks,
		ReportEvery:     cfg.ReportEvery,
		StopWhenDrained: cfg.StopWhenDrained,
		speed:           cfg.Speed,
		stop:            make(chan struct{}),
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the multiplier; 0 pauses.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
	slog.Info("engine speed changed", "speed", speed)
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run steps the simulation until ctx is cancelled, Stop is called, MaxTicks
// is reached or, with StopWhenDrained, every resource has been delivered.
// It returns the reason it stopped.
func (e *Engine) Run(ctx context.Context) string {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", e.Sim.CurrentTick(), "speed", e.Speed(), "max_ticks", e.MaxTicks)

	reason := e.loop(ctx)

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	tick := e.Sim.CurrentTick()
	slog.Info("simulation engine stopped", "tick", tick, "reason", reason)
	if e.OnDone != nil {
		e.OnDone(tick, reason)
	}
	return reason
}

func (e *Engine) loop(ctx context.Context) string {
	for {
		if reason, done := e.finished(ctx); done {
			return reason
		}
		speed := e.Speed()
		if speed <= 0 {
			if !e.sleep(ctx, pausePoll) {
				return e.interruptReason(ctx)
			}
			continue
		}

		start := time.Now()
		e.step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			if !e.sleep(ctx, target-elapsed) {
				return e.interruptReason(ctx)
			}
		}
	}
}

func (e *Engine) finished(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return StopCancelled, true
	case <-e.stop:
		return StopRequested, true
	default:
	}
	if e.MaxTicks > 0 && e.Sim.CurrentTick() >= e.MaxTicks {
		return StopMaxTicks, true
	}
	if e.StopWhenDrained && e.Sim.Drained() {
		return StopDrained, true
	}
	return "", false
}

func (e *Engine) interruptReason(ctx context.Context) string {
	if ctx.Err() != nil {
		return StopCancelled
	}
	return StopRequested
}

// sleep waits for d and reports false if interrupted first.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-e.stop:
		return false
	}
}

// Stop halts the simulation loop. Safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// StepOnce advances one tick outside the loop, for manual stepping while
// paused.
func (e *Engine) StepOnce() TickFrame {
	return e.step()
}

// step advances the simulation by one tick and fires callbacks.
func (e *Engine) step() TickFrame {
	frame := e.Sim.Step()
	if e.OnTick != nil {
		e.OnTick(frame)
	}
	if e.ReportEvery > 0 && frame.Tick%e.ReportEvery == 0 {
		if e.OnReport != nil {
			e.OnReport(frame.Tick)
		} else {
			e.Sim.Report(frame.Tick)
		}
	}
	return frame
}
