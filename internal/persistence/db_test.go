package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/planet-harvest/internal/config"
	"github.com/talgya/planet-harvest/internal/engine"
	"github.com/talgya/planet-harvest/internal/world"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTemp(t)
	cfg := config.Default()
	status := engine.Status{Seed: 9, Width: 20, Height: 20, Base: world.Pos{X: 10, Y: 10}, Agents: 8, Resources: 60, TotalUtility: 1200}

	runID, err := db.BeginRun(status, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	frame := engine.TickFrame{
		Tick:  3,
		Stats: engine.SimStats{Delivered: 1, DeliveredUtility: 50, Remaining: 59, Waiting: 1, Priority: "assist_agent"},
		Deliveries: []world.Delivery{
			{Tick: 3, ResourceID: 17, Kind: world.KindStructure, Utility: 50, Carriers: []world.AgentID{4, 6}},
		},
		Events: []engine.Event{
			{Tick: 3, Description: "agents 6 and 4 delivered structure#17", Category: "agent"},
			{Tick: 3, Description: "base received structure #17 worth 50", Category: "delivery"},
		},
	}
	require.NoError(t, db.SaveFrame(runID, frame))

	deliveries, err := db.Deliveries(runID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "structure", deliveries[0].Kind)
	assert.Equal(t, "4,6", deliveries[0].Carriers)
	assert.Equal(t, uint64(17), deliveries[0].ResourceID)

	stats, err := db.Stats(runID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "assist_agent", stats[0].Priority)
	assert.Equal(t, 50.0, stats[0].DeliveredUtility)

	events, err := db.RecentEvents(runID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "delivery", events[0].Category)

	views := []engine.AgentView{
		{ID: 4, Kind: "stateful", State: "exploring", Pos: world.Pos{X: 10, Y: 10}, Delivered: 1, UtilityEarn: 25},
		{ID: 6, Kind: "cooperative", State: "exploring", Pos: world.Pos{X: 10, Y: 10}, Delivered: 1, UtilityEarn: 25},
	}
	require.NoError(t, db.SaveAgents(runID, views))
	require.NoError(t, db.SaveAgents(runID, views), "saving agents twice replaces them")

	require.NoError(t, db.SaveMeta(runID, "seed_source", "config"))
	v, err := db.GetMeta(runID, "seed_source")
	require.NoError(t, err)
	assert.Equal(t, "config", v)

	require.NoError(t, db.FinishRun(runID, 3, engine.StopDrained))
	run, err := db.Run(runID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), run.Seed)
	assert.Equal(t, uint64(3), run.LastTick)
	require.NotNil(t, run.StopReason)
	assert.Equal(t, engine.StopDrained, *run.StopReason)
	assert.NotNil(t, run.FinishedAt)
}

func TestRunsAreKeptApart(t *testing.T) {
	db := openTemp(t)
	first, err := db.BeginRun(engine.Status{Seed: 1}, nil)
	require.NoError(t, err)
	second, err := db.BeginRun(engine.Status{Seed: 2}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, db.SaveFrame(first, engine.TickFrame{
		Tick:   1,
		Events: []engine.Event{{Tick: 1, Description: "x", Category: "agent"}},
	}))
	events, err := db.RecentEvents(second, 10)
	require.NoError(t, err)
	assert.Empty(t, events)

	runs, err := db.Runs(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetMetaMissing(t *testing.T) {
	db := openTemp(t)
	_, err := db.GetMeta("nope", "nothing")
	assert.Error(t, err)
}
