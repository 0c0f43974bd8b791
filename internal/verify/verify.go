// Package verify judges goal attainment by diffing pre- and post-execution
// snapshots. Verification is a heuristic oracle, not a formal goal check:
// goal-specific predicates are selected by keyword matching on the task's
// free-text description, with a generic any-change fallback.
package verify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/eliang/homeground/internal/types"
)

// StateChange is one entity's state tags before and after execution.
type StateChange struct {
	ClassName string
	Old       []string
	New       []string
}

// Diff maps entity id to its state change, restricted to entities whose
// tags actually differ. Ephemeral: computed for one verification and
// discarded.
type Diff map[int]StateChange

// ComputeDiff compares two snapshots. Every entity whose state tags differ
// appears in the result; every entity with identical tags is excluded.
// Entities present in only one snapshot count as changed.
func ComputeDiff(pre, post *types.Graph) Diff {
	preStates := extractStates(pre)
	d := make(Diff)
	for _, n := range post.Nodes {
		old, existed := preStates[n.ID]
		if existed && equalTags(old.States, n.States) {
			continue
		}
		d[n.ID] = StateChange{ClassName: n.ClassName, Old: old.States, New: n.States}
	}
	// Entities that vanished between snapshots.
	postIDs := make(map[int]bool, len(post.Nodes))
	for _, n := range post.Nodes {
		postIDs[n.ID] = true
	}
	for id, n := range preStates {
		if !postIDs[id] {
			d[id] = StateChange{ClassName: n.ClassName, Old: n.States}
		}
	}
	return d
}

// Verify classifies the run as satisfied / partially satisfied / unclear and
// returns a human-readable report string.
func Verify(task types.Task, pre, post *types.Graph) string {
	diff := ComputeDiff(pre, post)
	desc := strings.ToLower(task.Description)

	switch {
	case strings.Contains(desc, "email") || strings.Contains(desc, "computer"):
		if postHasState(post, []string{"computer", "cpuscreen"}, "ON") {
			return fmt.Sprintf("SUCCESS: computer turned on. Changes: %d", len(diff))
		}
		return fmt.Sprintf("PARTIAL: computer not detected as ON. Changes: %d", len(diff))

	case strings.Contains(desc, "fridge"):
		if postHasState(post, []string{"fridge"}, "CLOSED") {
			return fmt.Sprintf("SUCCESS: fridge properly closed. Changes: %d", len(diff))
		}
		return fmt.Sprintf("PARTIAL: fridge state unclear. Changes: %d", len(diff))

	default:
		if len(diff) > 0 {
			return fmt.Sprintf("SUCCESS: environment changed. Changes: %d", len(diff))
		}
		return "UNCLEAR: no significant changes detected"
	}
}

// Satisfied reports whether a verification string indicates full success.
func Satisfied(report string) bool {
	return strings.HasPrefix(report, "SUCCESS")
}

// Summary renders the diff one line per changed entity, ordered by id.
func (d Diff) Summary() string {
	ids := make([]int, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var sb strings.Builder
	for _, id := range ids {
		c := d[id]
		fmt.Fprintf(&sb, "%d %s: %v -> %v\n", id, c.ClassName, c.Old, c.New)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func postHasState(g *types.Graph, classFragments []string, state string) bool {
	for _, n := range g.Nodes {
		lower := strings.ToLower(n.ClassName)
		for _, frag := range classFragments {
			if strings.Contains(lower, frag) && hasTag(n.States, state) {
				return true
			}
		}
	}
	return false
}

func extractStates(g *types.Graph) map[int]types.Node {
	out := make(map[int]types.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n
	}
	return out
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
