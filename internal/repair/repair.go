// Package repair classifies execution failures and requests one alternative
// plan from the planning service. Only known, textually-recognizable failure
// signatures trigger repair; everything else surfaces as a terminal failure
// with the simulator's message attached.
package repair

import (
	"context"
	"log"
	"strings"

	"github.com/eliang/homeground/internal/planner"
	"github.com/eliang/homeground/internal/types"
)

// Classification is the parsed failure: its kind and, where the message
// names one, the offending entity.
type Classification struct {
	Kind   types.FailureKind
	Entity string
}

// Classify pattern-matches the simulator's error text into the failure
// taxonomy. The zero Classification (FailUnclassified) means no repair
// strategy applies.
func Classify(errText string) Classification {
	switch {
	case strings.Contains(errText, "Unknown object"):
		parts := strings.SplitN(errText, "Unknown object", 2)
		return Classification{
			Kind:   types.FailUnknownEntity,
			Entity: strings.TrimSpace(parts[1]),
		}
	case strings.Contains(errText, "Can not select object"):
		c := Classification{Kind: types.FailUnreachableEntity}
		parts := strings.SplitN(errText, "Can not select object:", 2)
		if len(parts) > 1 {
			c.Entity = strings.TrimSpace(strings.SplitN(parts[1], ".", 2)[0])
		}
		return c
	case strings.Contains(strings.ToLower(errText), "collision"):
		return Classification{Kind: types.FailNavCollision}
	default:
		return Classification{}
	}
}

// Trigger owns the single-shot repair policy.
type Trigger struct {
	planner *planner.Service
}

// New creates a repair Trigger over the planning service.
func New(p *planner.Service) *Trigger {
	return &Trigger{planner: p}
}

// Repair requests exactly one alternative plan scoped to the classified
// failure: omit the missing entity, avoid the unreachable one, or minimize
// movement. Returns nil when no strategy applies or the service cannot
// produce a plan. Callers classify first, so the unclassified verdict is
// theirs to act on before committing a repair attempt.
func (t *Trigger) Repair(ctx context.Context, c Classification, task types.Task) []types.SymbolicAction {
	if c.Kind == types.FailUnclassified {
		return nil
	}
	log.Printf("[REPAIR] failure=%s entity=%q", c.Kind, c.Entity)

	var (
		plan []types.SymbolicAction
		err  error
	)
	switch c.Kind {
	case types.FailUnknownEntity:
		if c.Entity == "" {
			return nil
		}
		plan, err = t.planner.PlanWithoutEntity(ctx, task, c.Entity)
	case types.FailUnreachableEntity:
		plan, err = t.planner.PlanAvoidingEntity(ctx, task, c.Entity)
	case types.FailNavCollision:
		plan, err = t.planner.PlanMinimizingMovement(ctx, task)
	}
	if err != nil {
		log.Printf("[REPAIR] alternative plan request failed: %v", err)
		return nil
	}
	log.Printf("[REPAIR] alternative plan with %d actions", len(plan))
	return plan
}
