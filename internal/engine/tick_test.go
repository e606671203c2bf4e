package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/world"
)

func TestRunStopsAtMaxTicks(t *testing.T) {
	sim, err := NewSimulation(smallConfig(2))
	require.NoError(t, err)
	cfg := smallConfig(2).Engine
	cfg.MaxTicks = 5
	cfg.ReportEvery = 2
	cfg.StopWhenDrained = false
	eng := NewEngine(sim, cfg)

	var ticks []uint64
	reports := 0
	var doneReason string
	eng.OnTick = func(f TickFrame) { ticks = append(ticks, f.Tick) }
	eng.OnReport = func(uint64) { reports++ }
	eng.OnDone = func(_ uint64, reason string) { doneReason = reason }

	reason := eng.Run(context.Background())
	assert.Equal(t, StopMaxTicks, reason)
	assert.Equal(t, reason, doneReason)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, ticks)
	assert.Equal(t, 2, reports)
	assert.False(t, eng.Running())
}

func TestRunStopsWhenDrained(t *testing.T) {
	h := newHandBuilt(t, 5, 5, world.Pos{})
	h.resource(t, world.KindCrystal, world.Pos{X: 4, Y: 4})
	h.agent(t, agents.KindReactive, world.Pos{X: 0, Y: 4}, world.Pos{X: 4, Y: 4})
	sim := FromSetup(h.setup, h.ag)

	eng := NewEngine(sim, smallConfig(1).Engine)
	eng.MaxTicks = 100
	assert.Equal(t, StopDrained, eng.Run(context.Background()))
	assert.Equal(t, uint64(8), sim.CurrentTick())
}

func TestRunHonoursCancellation(t *testing.T) {
	sim, err := NewSimulation(smallConfig(4))
	require.NoError(t, err)
	eng := NewEngine(sim, smallConfig(4).Engine)
	eng.MaxTicks = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, StopCancelled, eng.Run(ctx))
	assert.Zero(t, sim.CurrentTick())
}

func TestPausedEngineStepsManually(t *testing.T) {
	sim, err := NewSimulation(smallConfig(6))
	require.NoError(t, err)
	eng := NewEngine(sim, smallConfig(6).Engine)
	eng.MaxTicks = 0
	eng.SetSpeed(0)

	done := make(chan string, 1)
	go func() { done <- eng.Run(context.Background()) }()

	require.Eventually(t, eng.Running, time.Second, 5*time.Millisecond)
	assert.Zero(t, sim.CurrentTick(), "a paused engine does not tick")

	f := eng.StepOnce()
	assert.Equal(t, uint64(1), f.Tick)

	eng.Stop()
	eng.Stop()
	select {
	case reason := <-done:
		assert.Equal(t, StopRequested, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, uint64(1), sim.CurrentTick())
}
