// Package scene turns a raw environment snapshot into a categorized,
// capability-annotated world model. Categorization is a pure function of the
// snapshot: the same graph always yields the same model.
package scene

import (
	"strings"

	"github.com/eliang/homeground/internal/capability"
	"github.com/eliang/homeground/internal/types"
)

// Kind is the coarse classification a node receives from the rule cascade.
type Kind string

const (
	KindRoom            Kind = "room"
	KindFurniture       Kind = "furniture"
	KindAppliance       Kind = "appliance"
	KindContainer       Kind = "container"
	KindInteractive     Kind = "interactive-object"
	KindNonInteractable Kind = "non_interactable"
)

// Entity is the world model's view of one canonical class name. Duplicate
// physical instances of a class collapse onto the first-seen node; AllIDs
// keeps the rest so an explicitly-addressed instance can still be selected.
type Entity struct {
	ID          int    // first-seen node id, the default addressing target
	DisplayName string // original class name, case preserved for instructions
	Name        string // normalized form, unique within the model
	Kind        Kind
	AllIDs      []int
}

// WorldModel is the categorized view of one snapshot. It is rebuilt per
// pipeline run and never mutated after Categorize returns. Iteration over
// Names follows first-seen node order, which the resolver relies on for
// deterministic tie-breaks.
type WorldModel struct {
	Names        []string // canonical names in first-seen order
	byName       map[string]*Entity
	Capabilities map[string]capability.Entry
}

// Lookup returns the entity for a canonical name.
func (w *WorldModel) Lookup(name string) (*Entity, bool) {
	e, ok := w.byName[name]
	return e, ok
}

// Partition returns all canonical names of the given kind, in model order.
func (w *WorldModel) Partition(k Kind) []string {
	var out []string
	for _, name := range w.Names {
		if w.byName[name].Kind == k {
			out = append(out, name)
		}
	}
	return out
}

// Actionable reports whether name may appear as the object of a grounded
// action: it must exist and carry at least one indexed capability.
func (w *WorldModel) Actionable(name string) bool {
	e, ok := w.byName[name]
	if !ok || e.Kind == KindNonInteractable {
		return false
	}
	_, has := w.Capabilities[name]
	return has
}

// roomWords mark a class name as a room regardless of its properties.
var roomWords = []string{"kitchen", "bedroom", "bathroom", "living", "office", "hallway"}

// Categorize builds the world model from a snapshot. Each node passes through
// an ordered rule cascade, first match wins; nodes whose class name was
// already seen collapse onto the first instance.
func Categorize(g *types.Graph) *WorldModel {
	w := &WorldModel{
		byName:       make(map[string]*Entity),
		Capabilities: capability.Index(g),
	}

	for _, n := range g.Nodes {
		name := capability.Normalize(n.ClassName)
		if prev, seen := w.byName[name]; seen {
			prev.AllIDs = append(prev.AllIDs, n.ID)
			continue
		}
		e := &Entity{
			ID:          n.ID,
			DisplayName: n.ClassName,
			Name:        name,
			Kind:        classify(name, n),
			AllIDs:      []int{n.ID},
		}
		w.byName[name] = e
		w.Names = append(w.Names, name)
	}
	return w
}

// classify runs the categorization cascade for one node.
func classify(name string, n types.Node) Kind {
	props := n.Properties
	interactable := capability.Interactable(props)

	switch {
	case containsAny(name, roomWords):
		return KindRoom
	case has(props, "SITTABLE"):
		return KindFurniture
	case n.Category == "Furniture" && interactable:
		return KindFurniture
	case has(props, "HAS_SWITCH"):
		// A switch-bearing but grabbable remote-type object is a portable
		// item, not an installed appliance.
		if has(props, "GRABBABLE") && strings.Contains(name, "remote") {
			return KindInteractive
		}
		return KindAppliance
	case n.Category == "Electronics" && interactable:
		return KindAppliance
	case n.Category == "Lamps":
		if has(props, "HAS_SWITCH") {
			return KindAppliance
		}
		return KindNonInteractable
	case strings.Contains(name, "fridge"):
		return KindContainer
	case has(props, "CAN_OPEN") || n.Category == "Doors":
		return KindInteractive
	case has(props, "GRABBABLE"):
		return KindInteractive
	case !interactable:
		return KindNonInteractable
	default:
		return KindInteractive
	}
}

func has(props []string, want string) bool {
	for _, p := range props {
		if p == want {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
