// Package ground walks an ordered symbolic plan and emits the low-level
// instruction sequence the simulator understands. Unresolvable object names
// never abort the plan: they ground to a sentinel id and are recorded, so
// execution proceeds and the simulator's own error drives failure repair.
package ground

import (
	"log"

	"github.com/eliang/homeground/internal/resolve"
	"github.com/eliang/homeground/internal/scene"
	"github.com/eliang/homeground/internal/types"
)

// verbs maps each symbolic action name to its low-level verb and the indices
// of its object-typed parameters (parameter 0 is always the agent).
type verbSpec struct {
	verb      string
	objParams []int
}

var verbs = map[string]verbSpec{
	"walk":            {"WALK", []int{2}}, // (walk agent from to): destination only
	"find-object":     {"FIND", []int{1}},
	"sit-down":        {"SIT", []int{1}},
	"switch-on":       {"SWITCHON", []int{1}},
	"switch-off":      {"SWITCHOFF", []int{1}},
	"touch-object":    {"TOUCH", []int{1}},
	"open-container":  {"OPEN", []int{1}},
	"close-container": {"CLOSE", []int{1}},
	"grab-object":     {"GRAB", []int{1}},
	"put-object-in":   {"PUTIN", []int{1, 2}},
}

// Grounder resolves symbolic plans against a world model.
type Grounder struct {
	resolver *resolve.Resolver
}

// New creates a Grounder around the given resolver.
func New(r *resolve.Resolver) *Grounder {
	return &Grounder{resolver: r}
}

// Ground converts a symbolic plan into grounded actions. Every returned
// action's entity id is either present in wm or is types.FallbackID; ids are
// never invented. Unresolved parameters are reported alongside.
func (g *Grounder) Ground(plan []types.SymbolicAction, wm *scene.WorldModel) ([]types.GroundedAction, []types.Unresolved) {
	var out []types.GroundedAction
	var unresolved []types.Unresolved

	for _, act := range plan {
		spec, ok := verbs[act.Name]
		if !ok {
			// Validation upstream rejects unknown actions; a stray one here
			// is skipped rather than fabricated into an instruction.
			log.Printf("[GROUND] skipping unknown action %q", act.Name)
			continue
		}
		if maxIdx(spec.objParams) >= len(act.Params) {
			log.Printf("[GROUND] skipping short action %s", act)
			continue
		}

		ga := types.GroundedAction{Verb: spec.verb}
		for i, pIdx := range spec.objParams {
			name := act.Params[pIdx]
			id, display := g.resolveOrFallback(act, name, wm, &unresolved)
			if i == 0 {
				ga.TargetID, ga.TargetName = id, display
			} else {
				ga.SecondID, ga.SecondName = id, display
			}
		}
		out = append(out, ga)
	}
	return out, unresolved
}

func (g *Grounder) resolveOrFallback(act types.SymbolicAction, name string, wm *scene.WorldModel, unresolved *[]types.Unresolved) (int, string) {
	res, ok := g.resolver.Resolve(name, wm)
	if !ok {
		log.Printf("[GROUND] unresolved %q in %s, substituting fallback id %d", name, act.Name, types.FallbackID)
		*unresolved = append(*unresolved, types.Unresolved{Action: act.Name, Param: name})
		return types.FallbackID, name
	}
	if res.Strategy != resolve.StrategyExact {
		log.Printf("[GROUND] resolved %q -> %q (id=%d, %s)", name, res.DisplayName, res.ID, res.Strategy)
	}
	return res.ID, res.DisplayName
}

// Script renders the grounded sequence as simulator script lines.
func Script(seq []types.GroundedAction) []string {
	lines := make([]string, len(seq))
	for i, a := range seq {
		lines[i] = a.Instruction()
	}
	return lines
}

func maxIdx(idx []int) int {
	m := 0
	for _, v := range idx {
		if v > m {
			m = v
		}
	}
	return m
}
