package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/eliang/homeground/internal/audit"
	"github.com/eliang/homeground/internal/config"
	"github.com/eliang/homeground/internal/events"
	"github.com/eliang/homeground/internal/ground"
	"github.com/eliang/homeground/internal/llm"
	"github.com/eliang/homeground/internal/pipeline"
	"github.com/eliang/homeground/internal/planner"
	"github.com/eliang/homeground/internal/repair"
	"github.com/eliang/homeground/internal/resolve"
	"github.com/eliang/homeground/internal/sim"
	"github.com/eliang/homeground/internal/tasklog"
)

var configPath string

// app is the wired engine shared by the run and batch commands.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	stopAud  context.CancelFunc
	audDone  chan struct{}
}

// buildApp loads config, wires every stage, and starts the audit sink.
func buildApp() (*app, error) {
	_ = godotenv.Load(".env")

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	stream := events.New()
	registry := tasklog.NewRegistry(filepath.Join(cfg.OutputDir, "tasks"))

	planSvc := planner.New(llm.NewTier("PLANNER"))
	grounder := ground.New(resolve.New())
	repairer := repair.New(planSvc)

	newEnv := func() sim.Environment {
		return sim.NewClient(cfg.Simulator.Endpoint, cfg.Simulator.Timeout())
	}

	pipe := pipeline.New(newEnv, planSvc, grounder, repairer, registry, stream, pipeline.Options{
		SceneIndex:  cfg.Simulator.SceneIndex,
		Actor:       cfg.Actor.Name,
		InitialRoom: cfg.Actor.InitialRoom,
		Render: sim.RenderOptions{
			FindSolution:  true,
			FrameRate:     10,
			FilePrefix:    "run",
			OutputFolder:  cfg.OutputDir,
			TimeLimitSecs: 60,
		},
		ConnectAttempts: cfg.Retry.ConnectAttempts,
		ConnectWait:     cfg.Retry.ConnectWait(),
	})

	audCtx, stopAud := context.WithCancel(context.Background())
	aud := audit.New(stream.Tap(), filepath.Join(cfg.OutputDir, "audit.jsonl"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		aud.Run(audCtx)
	}()

	return &app{cfg: cfg, pipeline: pipe, stopAud: stopAud, audDone: done}, nil
}

// close stops the audit sink, giving it a moment to drain the tap.
func (a *app) close() {
	a.stopAud()
	select {
	case <-a.audDone:
	case <-time.After(2 * time.Second):
	}
}
