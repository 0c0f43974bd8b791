package types

import "testing"

// ── GroundedAction ───────────────────────────────────────────────────────────

func TestInstruction_UnaryVerb(t *testing.T) {
	// Single-object actions render one entity reference
	a := GroundedAction{Verb: "FIND", TargetID: 30, TargetName: "tv"}
	if got := a.Instruction(); got != "<char0> [FIND] <tv> (30)" {
		t.Errorf("unexpected instruction %q", got)
	}
}

func TestInstruction_BinaryVerb(t *testing.T) {
	// PUTIN renders both entity references in order
	a := GroundedAction{Verb: "PUTIN", TargetID: 40, TargetName: "book", SecondID: 10, SecondName: "Fridge"}
	want := "<char0> [PUTIN] <book> (40) <Fridge> (10)"
	if got := a.Instruction(); got != want {
		t.Errorf("unexpected instruction %q", got)
	}
}

// ── SymbolicAction ───────────────────────────────────────────────────────────

func TestSymbolicActionString_RendersSExpression(t *testing.T) {
	// String renders the canonical (name params…) form
	a := SymbolicAction{Name: "walk", Params: []string{"agent", "kitchen", "bedroom"}}
	if got := a.String(); got != "(walk agent kitchen bedroom)" {
		t.Errorf("unexpected %q", got)
	}
}

// ── Graph ────────────────────────────────────────────────────────────────────

func TestMaxID_FindsHighestNodeID(t *testing.T) {
	// MaxID scans all nodes regardless of order
	g := &Graph{Nodes: []Node{{ID: 7}, {ID: 92}, {ID: 15}}}
	if got := g.MaxID(); got != 92 {
		t.Errorf("expected 92, got %d", got)
	}
}

func TestMaxID_ZeroForEmptyGraph(t *testing.T) {
	// An empty graph has no ids
	g := &Graph{}
	if got := g.MaxID(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
