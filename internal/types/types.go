// Package types holds the shared data model for the grounding and execution
// engine: the raw scene graph reported by the simulator, the symbolic plan
// produced by the planning service, and the grounded instructions submitted
// back to the simulator.
package types

import "fmt"

// Node is one entity in the simulator's scene graph: an object or a room.
// IDs are assigned by the simulator and are unique within one snapshot.
type Node struct {
	ID         int      `json:"id"`
	ClassName  string   `json:"class_name"`
	Category   string   `json:"category"`
	Properties []string `json:"properties"`
	States     []string `json:"states"`
}

// Edge is a spatial relation between two nodes (INSIDE, ON, CLOSE, FACING).
type Edge struct {
	FromID   int    `json:"from_id"`
	ToID     int    `json:"to_id"`
	Relation string `json:"relation_type"`
}

// Graph is one environment snapshot. Snapshots are never mutated in place;
// each pipeline stage that needs fresh state captures a new one.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// MaxID returns the highest node id in the graph, or 0 for an empty graph.
func (g *Graph) MaxID() int {
	max := 0
	for _, n := range g.Nodes {
		if n.ID > max {
			max = n.ID
		}
	}
	return max
}

// SymbolicAction is one step of the plan returned by the planning service:
// an action name plus free-text parameters (the first is always the agent).
// Immutable once parsed.
type SymbolicAction struct {
	Name   string   `json:"name"`
	Params []string `json:"params"`
}

func (a SymbolicAction) String() string {
	s := "(" + a.Name
	for _, p := range a.Params {
		s += " " + p
	}
	return s + ")"
}

// FallbackID is the sentinel entity id substituted when a symbolic name
// cannot be resolved. Execution proceeds and the simulator's own "unknown
// object" error becomes the authoritative failure signal.
const FallbackID = 1

// GroundedAction is one low-level instruction ready for the simulator.
// Binary verbs (PUTIN) carry a second entity reference.
type GroundedAction struct {
	Verb       string `json:"verb"`
	TargetID   int    `json:"target_id"`
	TargetName string `json:"target_name"` // original display name, case preserved
	SecondID   int    `json:"second_id,omitempty"`
	SecondName string `json:"second_name,omitempty"`
}

// Instruction renders the action in the simulator's script syntax.
func (a GroundedAction) Instruction() string {
	if a.SecondName != "" {
		return fmt.Sprintf("<char0> [%s] <%s> (%d) <%s> (%d)",
			a.Verb, a.TargetName, a.TargetID, a.SecondName, a.SecondID)
	}
	return fmt.Sprintf("<char0> [%s] <%s> (%d)", a.Verb, a.TargetName, a.TargetID)
}

// Unresolved records one symbolic parameter the resolver could not ground.
type Unresolved struct {
	Action string `json:"action"`
	Param  string `json:"param"`
}

// Task is one household task to solve. Dataset loading lives outside the
// engine; only the fields the pipeline consumes appear here.
type Task struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// FailureKind classifies an execution failure from the simulator's error
// text. Only these three signatures trigger a repair attempt.
type FailureKind string

const (
	FailUnknownEntity     FailureKind = "unknown_entity"
	FailUnreachableEntity FailureKind = "unreachable_entity"
	FailNavCollision      FailureKind = "navigation_collision"
	FailUnclassified      FailureKind = ""
)

// TaskResult is the structured outcome of one pipeline run. A fatal condition
// fills Err; the batch runner continues to the next task either way.
type TaskResult struct {
	TaskID       int    `json:"task_id"`
	Title        string `json:"title"`
	Success      bool   `json:"success"`
	Verification string `json:"verification"`
	Repaired     bool   `json:"repaired"`
	Err          string `json:"error,omitempty"`
}
