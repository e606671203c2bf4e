package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/world"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "planet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
world:
  width: 5
  height: 5
  seed: 9
  base: {x: 0, y: 0}
  crystal: 1
  metal: 0
  structure: 1
  utilities:
    structure: 80
agents:
  reactive: 1
  stateful: 0
  goal_based: 0
  cooperative: 1
engine:
  verify: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.World.Width)
	require.NotNil(t, cfg.World.Base)
	assert.Equal(t, world.Pos{}, *cfg.World.Base)
	assert.True(t, cfg.Engine.Verify)
	assert.Equal(t, Default().Engine.ReportEvery, cfg.Engine.ReportEvery, "unset keys keep defaults")

	gen := cfg.GenConfig()
	assert.Equal(t, [world.NumKinds]int{1, 0, 1}, gen.Counts)
	assert.Equal(t, 80.0, gen.UtilityFor(world.KindStructure))
	assert.Equal(t, 10.0, gen.UtilityFor(world.KindCrystal))
	assert.Equal(t, world.Pos{}, gen.BasePos())

	assert.Equal(t, [agents.NumKinds]int{1, 0, 0, 1}, cfg.AgentCounts())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"zero width":      func(c *Config) { c.World.Width = 0 },
		"base off grid":   func(c *Config) { c.World.Base = &world.Pos{X: 99, Y: 0} },
		"negative count":  func(c *Config) { c.World.Metal = -1 },
		"negative agents": func(c *Config) { c.Agents.Cooperative = -2 },
		"unknown kind":    func(c *Config) { c.World.Utilities = map[string]float64{"gold": 5} },
		"richness":        func(c *Config) { c.World.Richness = 1.5 },
		"overcrowded":     func(c *Config) { c.World.Width, c.World.Height = 3, 3 },
		"speed":           func(c *Config) { c.Engine.Speed = 5000 },
		"port":            func(c *Config) { c.API.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadReportsBadFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "world: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "world:\n  width: -3\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}
