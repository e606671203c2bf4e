// Package config loads the run configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/planet-harvest/internal/agents"
	"github.com/talgya/planet-harvest/internal/world"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full run configuration.
type Config struct {
	World   WorldConfig   `yaml:"world"`
	Agents  AgentConfig   `yaml:"agents"`
	Engine  EngineConfig  `yaml:"engine"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
}

// WorldConfig sizes the grid and the resource deposits.
type WorldConfig struct {
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	Seed   int64      `yaml:"seed"` // 0 picks a random seed
	Base   *world.Pos `yaml:"base,omitempty"`

	Crystal   int `yaml:"crystal"`
	Metal     int `yaml:"metal"`
	Structure int `yaml:"structure"`
	Mixed     int `yaml:"mixed"` // extra resources of random kind

	// Utilities overrides the stock value per kind name.
	Utilities map[string]float64 `yaml:"utilities,omitempty"`
	Richness  float64            `yaml:"richness"`
}

// AgentConfig is the population per class.
type AgentConfig struct {
	Reactive    int `yaml:"reactive"`
	Stateful    int `yaml:"stateful"`
	GoalBased   int `yaml:"goal_based"`
	Cooperative int `yaml:"cooperative"`
}

// EngineConfig controls pacing and stopping.
type EngineConfig struct {
	TickIntervalMs  int     `yaml:"tick_interval_ms"`
	Speed           float64 `yaml:"speed"`
	MaxTicks        uint64  `yaml:"max_ticks"` // 0 runs until stopped
	StopWhenDrained bool    `yaml:"stop_when_drained"`
	ReportEvery     uint64  `yaml:"report_every"`
	Verify          bool    `yaml:"verify"`
	EventBuffer     int     `yaml:"event_buffer"`
}

// StorageConfig names the optional outputs. Empty paths disable them.
type StorageConfig struct {
	DBPath   string `yaml:"db_path"`
	EventLog string `yaml:"event_log"`
}

// APIConfig configures the observation server. Port 0 disables it.
type APIConfig struct {
	Port             int `yaml:"port"`
	MaxStreamClients int `yaml:"max_stream_clients"`
	AdminPerMinute   int `yaml:"admin_per_minute"`
}

// Default returns the stock configuration: a 20×20 world with the base in
// the centre and two agents of every class.
func Default() Config {
	gen := world.DefaultGenConfig()
	return Config{
		World: WorldConfig{
			Width:     gen.Width,
			Height:    gen.Height,
			Seed:      gen.Seed,
			Crystal:   gen.Counts[world.KindCrystal],
			Metal:     gen.Counts[world.KindMetal],
			Structure: gen.Counts[world.KindStructure],
			Richness:  gen.Richness,
		},
		Agents: AgentConfig{
			Reactive:    2,
			Stateful:    2,
			GoalBased:   2,
			Cooperative: 2,
		},
		Engine: EngineConfig{
			TickIntervalMs:  200,
			Speed:           1,
			MaxTicks:        2000,
			StopWhenDrained: true,
			ReportEvery:     100,
			EventBuffer:     1000,
		},
		API: APIConfig{
			MaxStreamClients: 32,
			AdminPerMinute:   60,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and that the world can hold everything asked of it.
func (c Config) Validate() error {
	w := c.World
	if w.Width < 1 || w.Height < 1 {
		return fmt.Errorf("world size %dx%d: %w", w.Width, w.Height, ErrInvalid)
	}
	if w.Base != nil && (w.Base.X < 0 || w.Base.X >= w.Width || w.Base.Y < 0 || w.Base.Y >= w.Height) {
		return fmt.Errorf("base %s outside %dx%d: %w", w.Base, w.Width, w.Height, ErrInvalid)
	}
	for name, n := range map[string]int{
		"crystal": w.Crystal, "metal": w.Metal, "structure": w.Structure, "mixed": w.Mixed,
		"reactive": c.Agents.Reactive, "stateful": c.Agents.Stateful,
		"goal_based": c.Agents.GoalBased, "cooperative": c.Agents.Cooperative,
	} {
		if n < 0 {
			return fmt.Errorf("%s count %d: %w", name, n, ErrInvalid)
		}
	}
	for name, u := range w.Utilities {
		if _, ok := world.ParseKind(name); !ok {
			return fmt.Errorf("utility for unknown kind %q: %w", name, ErrInvalid)
		}
		if u < 0 {
			return fmt.Errorf("utility %s=%v: %w", name, u, ErrInvalid)
		}
	}
	if w.Richness < 0 || w.Richness > 1 {
		return fmt.Errorf("richness %v not in [0,1]: %w", w.Richness, ErrInvalid)
	}
	if need, free := c.Occupants(), w.Width*w.Height-1; need > free {
		return fmt.Errorf("%d resources and agents on %d free cells: %w", need, free, ErrInvalid)
	}
	if c.Engine.Speed < 0 || c.Engine.Speed > 1000 {
		return fmt.Errorf("speed %v not in [0,1000]: %w", c.Engine.Speed, ErrInvalid)
	}
	if c.Engine.TickIntervalMs < 0 {
		return fmt.Errorf("tick interval %dms: %w", c.Engine.TickIntervalMs, ErrInvalid)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("port %d: %w", c.API.Port, ErrInvalid)
	}
	return nil
}

// Occupants is the number of cells resources and agents need at setup.
func (c Config) Occupants() int {
	w, a := c.World, c.Agents
	return w.Crystal + w.Metal + w.Structure + w.Mixed +
		a.Reactive + a.Stateful + a.GoalBased + a.Cooperative
}

// GenConfig converts the world section for world.Generate.
func (c Config) GenConfig() world.GenConfig {
	w := c.World
	gen := world.GenConfig{
		Width:    w.Width,
		Height:   w.Height,
		Seed:     w.Seed,
		Mixed:    w.Mixed,
		Richness: w.Richness,
	}
	if w.Base != nil {
		p := *w.Base
		gen.Base = &p
	}
	gen.Counts[world.KindCrystal] = w.Crystal
	gen.Counts[world.KindMetal] = w.Metal
	gen.Counts[world.KindStructure] = w.Structure
	for name, u := range w.Utilities {
		if k, ok := world.ParseKind(name); ok {
			gen.Utilities[k] = u
		}
	}
	return gen
}

// AgentCounts returns the population per class in tick order.
func (c Config) AgentCounts() [agents.NumKinds]int {
	var out [agents.NumKinds]int
	out[agents.KindReactive] = c.Agents.Reactive
	out[agents.KindStateful] = c.Agents.Stateful
	out[agents.KindGoalBased] = c.Agents.GoalBased
	out[agents.KindCooperative] = c.Agents.Cooperative
	return out
}

// TickInterval is the base wall-clock time per tick at speed 1.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickIntervalMs) * time.Millisecond
}
