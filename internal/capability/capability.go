// Package capability is the static index mapping declarative entity
// properties to the low-level actions they enable. It is load-once,
// read-only configuration: built at process start and never mutated.
package capability

import (
	"sort"
	"strings"

	"github.com/eliang/homeground/internal/types"
)

// propertyActions maps each declarative property tag to the low-level verbs
// it enables. An entity with none of these properties cannot be the object
// of any grounded action.
var propertyActions = map[string][]string{
	"GRABBABLE":  {"FIND", "GRAB"},
	"CAN_OPEN":   {"FIND", "OPEN", "CLOSE"},
	"HAS_SWITCH": {"FIND", "SWITCHON", "SWITCHOFF", "TYPE"},
	"SITTABLE":   {"FIND", "SIT"},
	"LOOKABLE":   {"FIND", "LOOKAT"},
	"RECIPIENT":  {"FIND", "DRINK", "POUR_INTO"},
	"SURFACES":   {"FIND", "PUTBACK_ON"},
	"CONTAINERS": {"FIND", "PUTIN"},
	"READABLE":   {"FIND", "READ"},
	"DRINKABLE":  {"FIND", "DRINK"},
	"EATABLE":    {"FIND", "EAT"},
	"POURABLE":   {"FIND", "POUR"},
	"MOVABLE":    {"FIND", "MOVE", "PUSH", "PULL"},
	"HAS_PLUG":   {"FIND", "PLUGIN", "PLUGOUT"},
	"CLOTHES":    {"FIND", "PUTON", "PUTOFF"},
	"LIEABLE":    {"FIND", "LIE"},
	"CUTTABLE":   {"FIND", "CUT"},
}

// relevantStates are the binary/enum state tags carried into capability
// summaries; everything else the simulator reports is ignored.
var relevantStates = map[string]bool{
	"ON": true, "OFF": true, "OPEN": true, "CLOSED": true,
	"PLUGGED_IN": true, "PLUGGED_OUT": true, "CLEAN": true, "DIRTY": true,
}

// Interactable reports whether props contains at least one property the
// index maps to an action. Entities failing this check are excluded from
// the world model's actionable partitions.
func Interactable(props []string) bool {
	for _, p := range props {
		if _, ok := propertyActions[p]; ok {
			return true
		}
	}
	return false
}

// Entry is the capability record for one canonical entity name: the verbs it
// supports, the properties that granted them, and its current relevant states.
type Entry struct {
	Actions    []string
	Properties []string
	States     []string
}

// Supports reports whether the entry enables verb.
func (e Entry) Supports(verb string) bool {
	for _, a := range e.Actions {
		if a == verb {
			return true
		}
	}
	return false
}

// For builds the capability entry for one entity. The zero Entry (no
// actions) means the entity is not a valid object for any grounded action.
func For(props, states []string) Entry {
	var e Entry
	seen := map[string]bool{}
	for _, p := range props {
		acts, ok := propertyActions[p]
		if !ok {
			continue
		}
		e.Properties = append(e.Properties, p)
		for _, a := range acts {
			if !seen[a] {
				seen[a] = true
				e.Actions = append(e.Actions, a)
			}
		}
	}
	sort.Strings(e.Actions)
	for _, s := range states {
		if relevantStates[s] {
			e.States = append(e.States, s)
		}
	}
	return e
}

// Index builds the capability map for a whole snapshot, keyed by normalized
// class name. Duplicate class names keep the first-seen entry so the map
// stays consistent with the world model's canonical-name collapsing.
// Entities with no mapped property are omitted.
func Index(g *types.Graph) map[string]Entry {
	idx := make(map[string]Entry)
	for _, n := range g.Nodes {
		name := Normalize(n.ClassName)
		if _, dup := idx[name]; dup {
			continue
		}
		e := For(n.Properties, n.States)
		if len(e.Actions) > 0 {
			idx[name] = e
		}
	}
	return idx
}

// Normalize lower-cases a class name and replaces spaces with underscores.
// This is the canonical symbolic form used across the engine.
func Normalize(className string) string {
	return strings.ReplaceAll(strings.ToLower(className), " ", "_")
}

const summaryLimit = 50

// Summary renders the capability map as prompt text for the planning
// service, one line per entity: name(props)[states] -> actions.
// Output is sorted by name and capped so prompts stay bounded.
func Summary(idx map[string]Entry) string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > summaryLimit {
		names = names[:summaryLimit]
	}

	var sb strings.Builder
	for _, name := range names {
		e := idx[name]
		sb.WriteString(name)
		if len(e.Properties) > 0 {
			sb.WriteString("(" + strings.Join(e.Properties, ",") + ")")
		}
		if len(e.States) > 0 {
			sb.WriteString("[" + strings.Join(e.States, ",") + "]")
		}
		sb.WriteString(" -> " + strings.Join(e.Actions, ", ") + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
