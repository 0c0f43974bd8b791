// Package exec drives grounded instruction sequences through the simulator
// and closes the loop on failure: classify, request one alternative plan,
// re-ground, and retry exactly once. Snapshot capture around the run feeds
// outcome verification.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eliang/homeground/internal/events"
	"github.com/eliang/homeground/internal/ground"
	"github.com/eliang/homeground/internal/repair"
	"github.com/eliang/homeground/internal/retry"
	"github.com/eliang/homeground/internal/scene"
	"github.com/eliang/homeground/internal/sim"
	"github.com/eliang/homeground/internal/tasklog"
	"github.com/eliang/homeground/internal/types"
	"github.com/eliang/homeground/internal/verify"
)

const (
	snapshotAttempts = 3
	snapshotWait     = 2 * time.Second
)

// deniedAreas lists navigation destinations the driver warns about before
// executing. Advisory only: execution proceeds and the simulator remains
// the authority on what is actually navigable.
var deniedAreas = map[string]bool{
	"livingroom": true,
}

// Outcome is the result of one driven execution, successful or repaired.
type Outcome struct {
	Report   string // verification report, "SUCCESS:..." / "PARTIAL:..." / "UNCLEAR:..."
	Repaired bool   // a repair round ran (regardless of its success)
	ExecErr  string // simulator diagnostic from the first rejected run, if any
}

// Driver executes grounded sequences against one live environment.
type Driver struct {
	env      sim.Environment
	grounder *ground.Grounder
	repairer *repair.Trigger
	opts     sim.RenderOptions
	stream   *events.Stream

	snapAttempts int
	snapWait     time.Duration
}

// New creates a Driver. stream may be nil.
func New(env sim.Environment, g *ground.Grounder, r *repair.Trigger, opts sim.RenderOptions, stream *events.Stream) *Driver {
	return &Driver{
		env:          env,
		grounder:     g,
		repairer:     r,
		opts:         opts,
		stream:       stream,
		snapAttempts: snapshotAttempts,
		snapWait:     snapshotWait,
	}
}

// Run executes seq for task. The pre- and post-execution snapshots bracket
// the run; a snapshot that cannot be captured within the retry budget is
// fatal because verification would be meaningless without it. On a rejected
// sequence the driver classifies the diagnostic, requests one alternative
// plan, re-grounds it against wm, and executes the new sequence; a second
// rejection is terminal.
func (d *Driver) Run(ctx context.Context, task types.Task, seq []types.GroundedAction, wm *scene.WorldModel, tl *tasklog.TaskLog) (Outcome, error) {
	var out Outcome

	d.warnDeniedAreas(seq)

	pre, err := retry.DoValue(ctx, d.snapAttempts, d.snapWait, func() (*types.Graph, error) {
		return d.env.GetSnapshot(ctx)
	})
	if err != nil {
		return out, fmt.Errorf("cannot capture initial state: %w", err)
	}

	d.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindExecuteBegin, Count: len(seq)})
	log.Printf("[EXEC] task %d: executing %d instructions", task.ID, len(seq))

	execErr := d.env.ApplySequence(ctx, ground.Script(seq), d.opts)
	tl.Execution(1, errText(execErr))

	var rejection *sim.ExecutionError
	if errors.As(execErr, &rejection) {
		out.ExecErr = rejection.Message
		d.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindExecuteFailed, Detail: rejection.Message})
		log.Printf("[EXEC] task %d: sequence rejected: %s", task.ID, rejection.Message)

		execErr = d.runRepaired(ctx, task, rejection.Message, wm, tl, &out)
	}
	if execErr != nil {
		return out, fmt.Errorf("execution failed: %w", execErr)
	}

	post, err := retry.DoValue(ctx, d.snapAttempts, d.snapWait, func() (*types.Graph, error) {
		return d.env.GetSnapshot(ctx)
	})
	if err != nil {
		return out, fmt.Errorf("cannot capture final state: %w", err)
	}

	out.Report = verify.Verify(task, pre, post)
	tl.Verdict(out.Report)
	d.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindVerified, Detail: out.Report})
	log.Printf("[EXEC] task %d: %s", task.ID, out.Report)
	return out, nil
}

// runRepaired performs the single repair round. Returns the error state
// after the round: nil when the repaired sequence ran clean, otherwise the
// error that stands as the task's terminal failure. An unclassified failure
// records no repair attempt; the original diagnostic stands unchanged.
func (d *Driver) runRepaired(ctx context.Context, task types.Task, diagnostic string, wm *scene.WorldModel, tl *tasklog.TaskLog, out *Outcome) error {
	c := repair.Classify(diagnostic)
	if c.Kind == types.FailUnclassified {
		log.Printf("[EXEC] task %d: no repair strategy for failure", task.ID)
		return &sim.ExecutionError{Message: diagnostic}
	}
	tl.Repair(c.Kind, c.Entity)
	d.stream.Publish(events.Event{TaskID: task.ID, Kind: events.KindRepairAttempt, Detail: string(c.Kind)})

	plan := d.repairer.Repair(ctx, c, task)
	if plan == nil {
		return &sim.ExecutionError{Message: diagnostic}
	}
	out.Repaired = true

	seq, unresolved := d.grounder.Ground(plan, wm)
	if len(seq) == 0 {
		log.Printf("[EXEC] task %d: repaired plan grounded to nothing", task.ID)
		return &sim.ExecutionError{Message: diagnostic}
	}
	if len(unresolved) > 0 {
		log.Printf("[EXEC] task %d: repaired plan left %d parameters unresolved", task.ID, len(unresolved))
	}
	tl.WritePlan(plan)
	tl.WriteScript(seq)

	log.Printf("[EXEC] task %d: retrying with repaired sequence (%d instructions)", task.ID, len(seq))
	err := d.env.ApplySequence(ctx, ground.Script(seq), d.opts)
	tl.Execution(2, errText(err))
	return err
}

// warnDeniedAreas flags navigation into areas on the advisory deny list.
func (d *Driver) warnDeniedAreas(seq []types.GroundedAction) {
	for _, g := range seq {
		if g.Verb == "WALK" && deniedAreas[strings.ToLower(g.TargetName)] {
			log.Printf("[EXEC] WARNING: plan navigates into %s, which is often restricted", g.TargetName)
		}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
