// Package config loads the aisim configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brensch/threadai/logging"
	"github.com/brensch/threadai/sim"
	"github.com/brensch/threadai/thread"
	"github.com/brensch/threadai/trace"
)

type Config struct {
	Thread ThreadConfig   `yaml:"thread"`
	Log    logging.Config `yaml:"log"`
	Trace  trace.Config   `yaml:"trace"`
	Sim    sim.Config     `yaml:"sim"`
}

type ThreadConfig struct {
	Backend    string `yaml:"backend"`     // goroutine, pinned, nocond
	MaxThreads int    `yaml:"max_threads"` // 0 = unlimited
}

// Runtime converts the section into thread.Config.
func (c ThreadConfig) Runtime() (thread.Config, error) {
	b, err := thread.ParseBackend(c.Backend)
	if err != nil {
		return thread.Config{}, err
	}
	return thread.Config{Backend: b, MaxThreads: c.MaxThreads}, nil
}

func Default() Config {
	return Config{
		Thread: ThreadConfig{Backend: thread.BackendGoroutine.String()},
		Log:    logging.Config{Level: "info", Format: logging.FormatText},
		Trace:  trace.Config{Dir: "traces", RowsPerFlush: 4096, Buffer: 1024},
		Sim: sim.Config{
			Players:         4,
			Turns:           50,
			CitiesPerPlayer: 3,
			TilesPerCity:    8,
			ToggleChance:    0.05,
			TransferChance:  0.1,
			Seed:            1,
			TurnTimeout:     time.Second,
		},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := c.Thread.Runtime(); err != nil {
		errs = append(errs, err)
	}
	if c.Thread.MaxThreads < 0 {
		errs = append(errs, fmt.Errorf("thread.max_threads must be >= 0, got %d", c.Thread.MaxThreads))
	}
	if _, err := logging.New(nopWriter{}, c.Log); err != nil {
		errs = append(errs, err)
	}
	if c.Trace.Enabled && c.Trace.Dir == "" {
		errs = append(errs, errors.New("trace.dir is required when trace is enabled"))
	}
	if c.Sim.Players < 1 {
		errs = append(errs, fmt.Errorf("sim.players must be >= 1, got %d", c.Sim.Players))
	}
	if c.Sim.Turns < 0 {
		errs = append(errs, fmt.Errorf("sim.turns must be >= 0, got %d", c.Sim.Turns))
	}
	if c.Sim.CitiesPerPlayer < 0 {
		errs = append(errs, fmt.Errorf("sim.cities_per_player must be >= 0, got %d", c.Sim.CitiesPerPlayer))
	}
	for name, p := range map[string]float64{
		"sim.toggle_chance":   c.Sim.ToggleChance,
		"sim.transfer_chance": c.Sim.TransferChance,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %g", name, p))
		}
	}
	return errors.Join(errs...)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
