// Package spawn fills gaps between the plan and the scene. When grounding
// falls back to the sentinel id for a name, the manager checks a small table
// of spawnable object classes and injects the matching entities into the
// running scene so a re-grounding pass can bind them properly.
package spawn

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/eliang/homeground/internal/sim"
	"github.com/eliang/homeground/internal/types"
)

// template describes one spawnable entity class.
type template struct {
	ClassName  string
	Category   string
	Properties []string
}

// templates maps plan-side names to spawnable scene entities. Large
// appliances and rooms are deliberately absent: if those are missing the
// scene itself is misconfigured and injecting one would paper over it.
var templates = map[string]template{
	"book":      {"book", "Books", []string{"GRABBABLE", "READABLE"}},
	"groceries": {"food_apple", "Food", []string{"GRABBABLE", "EATABLE"}},
	"cereal":    {"cereal", "Food", []string{"GRABBABLE", "EATABLE"}},
	"plate":     {"plate", "Plates", []string{"GRABBABLE", "SURFACES"}},
	"glass":     {"glass", "Glasses", []string{"GRABBABLE", "RECIPIENT", "DRINKABLE"}},
	"cup":       {"mug", "Mugs", []string{"GRABBABLE", "RECIPIENT"}},
	"water":     {"waterglass", "Glasses", []string{"GRABBABLE", "DRINKABLE"}},

	"phone":         {"cellphone", "Electronics", []string{"GRABBABLE", "HAS_SWITCH"}},
	"remote":        {"remotecontrol", "Electronics", []string{"GRABBABLE"}},
	"remotecontrol": {"remotecontrol", "Electronics", []string{"GRABBABLE"}},
}

// Missing extracts the names a grounded sequence left bound to the fallback
// sentinel. Each name appears once, in first-occurrence order.
func Missing(seq []types.GroundedAction) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id int, name string) {
		if id != types.FallbackID || name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, g := range seq {
		add(g.TargetID, g.TargetName)
		add(g.SecondID, g.SecondName)
	}
	return out
}

// Manager injects spawnable entities into a live environment.
type Manager struct {
	env sim.Environment
}

// New creates a Manager over env.
func New(env sim.Environment) *Manager {
	return &Manager{env: env}
}

// Spawn injects entities for every name in missing that has a template,
// placing them on the first surface-bearing table or counter, or in the
// kitchen when no such surface exists. It returns the class names actually
// spawned. Names without templates are skipped with a warning; an injection
// failure aborts the whole batch since a partial spawn would leave the
// re-grounding pass inconsistent with the scene.
func (m *Manager) Spawn(ctx context.Context, missing []string, g *types.Graph) ([]string, error) {
	if len(missing) == 0 {
		return nil, nil
	}
	log.Printf("[SPAWN] missing objects: %s", strings.Join(missing, ", "))

	loc := placement(g)
	nextID := g.MaxID() + 1

	var nodes []types.Node
	var names []string
	for _, name := range missing {
		tpl, ok := templates[strings.ToLower(name)]
		if !ok {
			log.Printf("[SPAWN] no template for %q, skipping", name)
			continue
		}
		nodes = append(nodes, types.Node{
			ID:         nextID,
			ClassName:  tpl.ClassName,
			Category:   tpl.Category,
			Properties: append([]string(nil), tpl.Properties...),
			States:     []string{},
		})
		names = append(names, tpl.ClassName)
		if loc != nil {
			log.Printf("[SPAWN] %s (id %d) at %s", tpl.ClassName, nextID, loc.ClassName)
		} else {
			log.Printf("[SPAWN] %s (id %d), no placement surface", tpl.ClassName, nextID)
		}
		nextID++
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	expanded := &types.Graph{
		Nodes: append(append([]types.Node(nil), g.Nodes...), nodes...),
		Edges: g.Edges,
	}
	if loc != nil {
		for _, n := range nodes {
			expanded.Edges = append(expanded.Edges, types.Edge{FromID: n.ID, ToID: loc.ID, Relation: "ON"})
		}
	}

	if err := m.env.InjectEntities(ctx, expanded); err != nil {
		return nil, fmt.Errorf("spawn %d objects: %w", len(nodes), err)
	}
	return names, nil
}

// placement picks the spawn anchor: the first table or counter with a
// SURFACES property, else the first kitchen node, else nil.
func placement(g *types.Graph) *types.Node {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		cls := strings.ToLower(n.ClassName)
		if !strings.Contains(cls, "table") && !strings.Contains(cls, "counter") {
			continue
		}
		for _, p := range n.Properties {
			if p == "SURFACES" {
				return n
			}
		}
	}
	for i := range g.Nodes {
		if strings.Contains(strings.ToLower(g.Nodes[i].ClassName), "kitchen") {
			return &g.Nodes[i]
		}
	}
	return nil
}
