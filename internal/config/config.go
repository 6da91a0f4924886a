package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  Server  `yaml:"server"`
	Agent   Agent   `yaml:"agent"`
	Solver  Solver  `yaml:"solver"`
	Storage Storage `yaml:"storage"`
}

type Server struct {
	URL              string        `yaml:"url"`
	Name             string        `yaml:"name"`
	Token            string        `yaml:"token"`
	ActionsPerSecond float64       `yaml:"actions_per_second"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
	ValidateMessages bool          `yaml:"validate_messages"`
}

type Agent struct {
	// Strategy is "search" or "plan".
	Strategy         string  `yaml:"strategy"`
	ChangingRisk     float64 `yaml:"changing_risk"`
	CarriedFactor    float64 `yaml:"carried_factor"`
	SafetyMultiplier float64 `yaml:"safety_multiplier"`
	// Capacity overrides the server's carry limit when positive.
	Capacity       int           `yaml:"capacity"`
	FastPick       bool          `yaml:"fast_pick"`
	MaxMoveRetries int           `yaml:"max_move_retries"`
	MaxPathRetries int           `yaml:"max_path_retries"`
	PenaltyWindow  time.Duration `yaml:"penalty_window"`
	PatrolIdle     time.Duration `yaml:"patrol_idle"`
	CacheEntries   int           `yaml:"cache_entries"`
	Seed           int64         `yaml:"seed"`
}

// Solver points at a remote planner. An empty URL uses the built-in search.
type Solver struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Storage struct {
	DataDir string `yaml:"data_dir"`
	Journal bool   `yaml:"journal"`
	Index   bool   `yaml:"index"`
}

func Defaults() Config {
	return Config{
		Server: Server{
			URL:              "ws://localhost:8080/v1/ws",
			Name:             "parcelbot",
			ActionsPerSecond: 20,
			AckTimeout:       5 * time.Second,
			ValidateMessages: true,
		},
		Agent: Agent{
			Strategy:         "search",
			ChangingRisk:     0.8,
			CarriedFactor:    1.0,
			SafetyMultiplier: 1.5,
			FastPick:         true,
			MaxMoveRetries:   2,
			MaxPathRetries:   5,
			PenaltyWindow:    10 * time.Second,
			PatrolIdle:       500 * time.Millisecond,
			CacheEntries:     200000,
		},
		Solver: Solver{Timeout: 5 * time.Second},
		Storage: Storage{
			DataDir: "./data",
			Journal: true,
			Index:   true,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (Config, error) {
	c := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Server.Name == "" {
		return fmt.Errorf("server.name: required")
	}
	if c.Server.ActionsPerSecond < 0 {
		return fmt.Errorf("server.actions_per_second: must be >= 0")
	}
	if c.Server.AckTimeout <= 0 {
		return fmt.Errorf("server.ack_timeout: must be > 0")
	}
	switch c.Agent.Strategy {
	case "search", "plan":
	default:
		return fmt.Errorf("agent.strategy: want search or plan, got %q", c.Agent.Strategy)
	}
	if c.Agent.ChangingRisk <= 0 || c.Agent.ChangingRisk > 1 {
		return fmt.Errorf("agent.changing_risk: must be in (0,1], got %v", c.Agent.ChangingRisk)
	}
	if c.Agent.CarriedFactor <= 0 {
		return fmt.Errorf("agent.carried_factor: must be > 0")
	}
	if c.Agent.SafetyMultiplier <= 0 {
		return fmt.Errorf("agent.safety_multiplier: must be > 0")
	}
	if c.Agent.Capacity < 0 {
		return fmt.Errorf("agent.capacity: must be >= 0")
	}
	if c.Agent.MaxPathRetries < 1 {
		return fmt.Errorf("agent.max_path_retries: must be >= 1")
	}
	if c.Agent.PenaltyWindow <= 0 {
		return fmt.Errorf("agent.penalty_window: must be > 0")
	}
	if c.Agent.CacheEntries < 1 {
		return fmt.Errorf("agent.cache_entries: must be >= 1")
	}
	if c.Solver.URL != "" {
		if _, err := url.ParseRequestURI(c.Solver.URL); err != nil {
			return fmt.Errorf("solver.url: %w", err)
		}
	}
	if (c.Storage.Journal || c.Storage.Index) && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir: required when journal or index is enabled")
	}
	return nil
}
