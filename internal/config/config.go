// Package config loads the engine configuration and the task list from YAML
// files. API credentials for the planning service come from the environment,
// not from config files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliang/homeground/internal/types"
)

type Config struct {
	Simulator SimulatorConfig `yaml:"simulator"`
	Actor     ActorConfig     `yaml:"actor"`
	OutputDir string          `yaml:"output_dir"`
	Retry     RetryConfig     `yaml:"retry"`
}

type SimulatorConfig struct {
	Endpoint   string `yaml:"endpoint"`
	SceneIndex int    `yaml:"scene_index"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type ActorConfig struct {
	Name        string `yaml:"name"`
	InitialRoom string `yaml:"initial_room"`
}

type RetryConfig struct {
	ConnectAttempts int `yaml:"connect_attempts"`
	ConnectWaitSec  int `yaml:"connect_wait_sec"`
}

// Timeout returns the per-call simulator timeout.
func (s SimulatorConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// ConnectWait returns the initial delay between connection attempts.
func (r RetryConfig) ConnectWait() time.Duration {
	return time.Duration(r.ConnectWaitSec) * time.Second
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Simulator: SimulatorConfig{
			Endpoint:   "http://localhost:8080",
			SceneIndex: 0,
			TimeoutSec: 30,
		},
		Actor: ActorConfig{
			Name:        "Chars/Male2",
			InitialRoom: "kitchen",
		},
		OutputDir: "output",
		Retry: RetryConfig{
			ConnectAttempts: 3,
			ConnectWaitSec:  2,
		},
	}
}

// Load reads config from path, filling unset fields from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Simulator.Endpoint) == "" {
		return fmt.Errorf("simulator endpoint is required")
	}
	if cfg.Simulator.SceneIndex < 0 {
		return fmt.Errorf("scene index must be non-negative")
	}
	if cfg.Simulator.TimeoutSec <= 0 {
		return fmt.Errorf("simulator timeout must be positive")
	}
	if strings.TrimSpace(cfg.Actor.Name) == "" {
		return fmt.Errorf("actor name is required")
	}
	if cfg.Retry.ConnectAttempts <= 0 {
		return fmt.Errorf("connect attempts must be positive")
	}
	return nil
}

// taskEntry is the YAML shape of one task in the tasks file.
type taskEntry struct {
	ID          int    `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// LoadTasks reads the task list from path. Tasks without an explicit id get
// their 1-based position in the file.
func LoadTasks(path string) ([]types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	var doc struct {
		Tasks []taskEntry `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("loading tasks: no tasks in %s", path)
	}

	tasks := make([]types.Task, 0, len(doc.Tasks))
	seen := make(map[int]bool)
	for i, t := range doc.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			return nil, fmt.Errorf("loading tasks: task %d title is required", i+1)
		}
		id := t.ID
		if id == 0 {
			id = i + 1
		}
		if seen[id] {
			return nil, fmt.Errorf("loading tasks: duplicate task id %d", id)
		}
		seen[id] = true
		desc := t.Description
		if strings.TrimSpace(desc) == "" {
			desc = t.Title
		}
		tasks = append(tasks, types.Task{ID: id, Title: t.Title, Description: desc})
	}
	return tasks, nil
}
