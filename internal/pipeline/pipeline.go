// Package pipeline orchestrates one task end to end: connect, categorize,
// plan, ground, spawn what's missing, execute, verify. Tasks run strictly
// one after another, each against a fresh simulator connection, because the
// simulator's recording buffer does not reliably reset in place.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/eliang/homeground/internal/events"
	"github.com/eliang/homeground/internal/exec"
	"github.com/eliang/homeground/internal/ground"
	"github.com/eliang/homeground/internal/planner"
	"github.com/eliang/homeground/internal/repair"
	"github.com/eliang/homeground/internal/retry"
	"github.com/eliang/homeground/internal/scene"
	"github.com/eliang/homeground/internal/sim"
	"github.com/eliang/homeground/internal/spawn"
	"github.com/eliang/homeground/internal/tasklog"
	"github.com/eliang/homeground/internal/types"
	"github.com/eliang/homeground/internal/verify"
)

// EnvFactory opens a new, unconnected simulator client. The pipeline calls
// it once per task and closes the result before opening the next.
type EnvFactory func() sim.Environment

// Options carry the per-run knobs that are not wired services.
type Options struct {
	SceneIndex      int
	Actor           string
	InitialRoom     string
	Render          sim.RenderOptions
	ConnectAttempts int
	ConnectWait     time.Duration
}

// Pipeline wires the stages together. Construct with New; the zero value is
// not usable.
type Pipeline struct {
	newEnv   EnvFactory
	planner  *planner.Service
	grounder *ground.Grounder
	repairer *repair.Trigger
	registry *tasklog.Registry
	stream   *events.Stream
	opts     Options
}

// New assembles a Pipeline. stream and registry may be nil.
func New(newEnv EnvFactory, p *planner.Service, g *ground.Grounder, r *repair.Trigger, reg *tasklog.Registry, stream *events.Stream, opts Options) *Pipeline {
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 3
	}
	if opts.ConnectWait <= 0 {
		opts.ConnectWait = 2 * time.Second
	}
	return &Pipeline{
		newEnv:   newEnv,
		planner:  p,
		grounder: g,
		repairer: r,
		registry: reg,
		stream:   stream,
		opts:     opts,
	}
}

// RunBatch runs every task in order. A fatal task fills its result's Err
// and the batch moves on; one broken task never stops the rest.
func (p *Pipeline) RunBatch(ctx context.Context, tasks []types.Task) []types.TaskResult {
	results := make([]types.TaskResult, 0, len(tasks))
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		results = append(results, p.RunTask(ctx, task))
	}
	return results
}

// RunTask runs one task through the whole pipeline and always returns a
// result, fatal conditions included.
func (p *Pipeline) RunTask(ctx context.Context, task types.Task) types.TaskResult {
	res := types.TaskResult{TaskID: task.ID, Title: task.Title}

	var tl *tasklog.TaskLog
	if p.registry != nil {
		tl = p.registry.Open(task)
	}
	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindTaskBegin, Detail: task.Title})
	log.Printf("[PIPE] task %d: %s", task.ID, task.Title)

	env := p.newEnv()
	defer env.Close()

	out, err := p.run(ctx, task, env, tl)
	if err != nil {
		res.Err = err.Error()
		p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindFatal, Detail: res.Err})
		p.registry.Close(task.ID, "fatal")
		p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindTaskEnd, Detail: "fatal"})
		log.Printf("[PIPE] task %d FATAL: %v", task.ID, err)
		return res
	}

	res.Verification = out.Report
	res.Repaired = out.Repaired
	res.Success = verify.Satisfied(out.Report)

	status := "failed"
	if res.Success {
		status = "success"
	}
	p.registry.Close(task.ID, status)
	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindTaskEnd, Detail: status})
	return res
}

func (p *Pipeline) run(ctx context.Context, task types.Task, env sim.Environment, tl *tasklog.TaskLog) (exec.Outcome, error) {
	var out exec.Outcome

	if err := p.connect(ctx, env); err != nil {
		return out, fmt.Errorf("environment setup: %w", err)
	}

	g, err := retry.DoValue(ctx, p.opts.ConnectAttempts, p.opts.ConnectWait, func() (*types.Graph, error) {
		return env.GetSnapshot(ctx)
	})
	if err != nil {
		return out, fmt.Errorf("cannot capture initial state: %w", err)
	}

	wm := scene.Categorize(g)
	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindSceneCategorized, Count: len(wm.Names)})
	log.Printf("[PIPE] task %d: %d named entities in scene", task.ID, len(wm.Names))

	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindPlanRequested})
	plan, err := p.planner.RequestPlan(ctx, task, wm)
	if err != nil {
		return out, fmt.Errorf("planning: %w", err)
	}
	tl.WritePlan(plan)
	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindPlanAccepted, Count: len(plan)})

	seq, unresolved := p.grounder.Ground(plan, wm)
	tl.Grounded(len(seq), unresolved)
	p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindPlanGrounded, Count: len(seq)})
	if len(unresolved) > 0 {
		p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindEntityUnresolved, Count: len(unresolved)})
	}

	// Names still bound to the sentinel may be spawnable. After a spawn the
	// scene changed, so re-snapshot, re-categorize, and re-ground.
	if missing := spawn.Missing(seq); len(missing) > 0 {
		spawned, err := spawn.New(env).Spawn(ctx, missing, g)
		if err != nil {
			log.Printf("[PIPE] task %d: spawn failed, continuing with fallback ids: %v", task.ID, err)
		} else if len(spawned) > 0 {
			tl.Spawned(spawned)
			p.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindSpawned, Count: len(spawned)})

			g, err = retry.DoValue(ctx, p.opts.ConnectAttempts, p.opts.ConnectWait, func() (*types.Graph, error) {
				return env.GetSnapshot(ctx)
			})
			if err != nil {
				return out, fmt.Errorf("cannot refresh state after spawn: %w", err)
			}
			wm = scene.Categorize(g)
			seq, unresolved = p.grounder.Ground(plan, wm)
			tl.Grounded(len(seq), unresolved)
		}
	}
	tl.WriteScript(seq)

	driver := exec.New(env, p.grounder, p.repairer, p.opts.Render, p.stream)
	return driver.Run(ctx, task, seq, wm, tl)
}

// connect brings a fresh environment to a runnable state: base scene loaded
// and the actor placed. Each step retries within the connection budget.
func (p *Pipeline) connect(ctx context.Context, env sim.Environment) error {
	err := retry.Do(ctx, p.opts.ConnectAttempts, p.opts.ConnectWait, func() error {
		return env.Reset(ctx, p.opts.SceneIndex)
	})
	if err != nil {
		return fmt.Errorf("reset scene %d: %w", p.opts.SceneIndex, err)
	}
	err = retry.Do(ctx, p.opts.ConnectAttempts, p.opts.ConnectWait, func() error {
		return env.AddActor(ctx, p.opts.Actor, p.opts.InitialRoom)
	})
	if err != nil {
		return fmt.Errorf("add actor: %w", err)
	}
	return nil
}
