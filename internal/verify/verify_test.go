package verify

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eliang/homeground/internal/types"
)

func graph(nodes ...types.Node) *types.Graph {
	return &types.Graph{Nodes: nodes}
}

func node(id int, class string, states ...string) types.Node {
	return types.Node{ID: id, ClassName: class, States: states}
}

// ── ComputeDiff ──────────────────────────────────────────────────────────────

func TestComputeDiff_IncludesEveryChangedEntity(t *testing.T) {
	// Entities whose state tags differ appear in the diff
	pre := graph(node(1, "tv", "OFF"), node(2, "lamp", "OFF"))
	post := graph(node(1, "tv", "ON"), node(2, "lamp", "OFF"))
	d := ComputeDiff(pre, post)
	if len(d) != 1 {
		t.Fatalf("expected 1 change, got %d", len(d))
	}
	want := StateChange{ClassName: "tv", Old: []string{"OFF"}, New: []string{"ON"}}
	if diff := cmp.Diff(want, d[1]); diff != "" {
		t.Errorf("change mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeDiff_ExcludesUnchangedEntities(t *testing.T) {
	// Identical snapshots produce an empty diff
	pre := graph(node(1, "tv", "OFF"), node(2, "lamp"))
	post := graph(node(1, "tv", "OFF"), node(2, "lamp"))
	if d := ComputeDiff(pre, post); len(d) != 0 {
		t.Errorf("expected empty diff, got %v", d)
	}
}

func TestComputeDiff_CountsAppearedEntities(t *testing.T) {
	// An entity present only in the post snapshot counts as changed
	pre := graph(node(1, "tv", "OFF"))
	post := graph(node(1, "tv", "OFF"), node(9, "book"))
	d := ComputeDiff(pre, post)
	if _, ok := d[9]; !ok {
		t.Error("expected appeared entity in diff")
	}
}

func TestComputeDiff_CountsVanishedEntities(t *testing.T) {
	// An entity present only in the pre snapshot counts as changed
	pre := graph(node(1, "tv", "OFF"), node(9, "book"))
	post := graph(node(1, "tv", "OFF"))
	d := ComputeDiff(pre, post)
	if _, ok := d[9]; !ok {
		t.Error("expected vanished entity in diff")
	}
}

// ── Verify ───────────────────────────────────────────────────────────────────

func TestVerify_ComputerGoalChecksScreenState(t *testing.T) {
	// An email task succeeds when the computer or cpuscreen is ON
	task := types.Task{Description: "Check email on the computer"}
	pre := graph(node(1, "computer", "OFF"))
	post := graph(node(1, "computer", "ON"))
	report := Verify(task, pre, post)
	if !Satisfied(report) {
		t.Errorf("expected success, got %s", report)
	}
}

func TestVerify_ComputerGoalPartialWhenStillOff(t *testing.T) {
	// The computer predicate fails even when other things changed
	task := types.Task{Description: "Send an email"}
	pre := graph(node(1, "computer", "OFF"), node(2, "lamp", "OFF"))
	post := graph(node(1, "computer", "OFF"), node(2, "lamp", "ON"))
	report := Verify(task, pre, post)
	if Satisfied(report) {
		t.Errorf("expected partial, got %s", report)
	}
	if !strings.HasPrefix(report, "PARTIAL") {
		t.Errorf("expected PARTIAL report, got %s", report)
	}
}

func TestVerify_FridgeGoalRequiresClosed(t *testing.T) {
	// A fridge task succeeds only when the fridge ends CLOSED
	task := types.Task{Description: "Get food from the fridge"}
	pre := graph(node(1, "fridge", "CLOSED"))
	post := graph(node(1, "fridge", "CLOSED"))
	if report := Verify(task, pre, post); !Satisfied(report) {
		t.Errorf("expected success, got %s", report)
	}

	open := graph(node(1, "fridge", "OPEN"))
	if report := Verify(task, pre, open); Satisfied(report) {
		t.Errorf("expected partial for open fridge, got %s", report)
	}
}

func TestVerify_GenericGoalSucceedsOnAnyChange(t *testing.T) {
	// Without a keyword predicate, any state change counts as success
	task := types.Task{Description: "Tidy the room"}
	pre := graph(node(1, "lamp", "OFF"))
	post := graph(node(1, "lamp", "ON"))
	if report := Verify(task, pre, post); !Satisfied(report) {
		t.Errorf("expected success, got %s", report)
	}
}

func TestVerify_GenericGoalUnclearWithoutChanges(t *testing.T) {
	// No changes at all yields an UNCLEAR verdict
	task := types.Task{Description: "Tidy the room"}
	pre := graph(node(1, "lamp", "OFF"))
	post := graph(node(1, "lamp", "OFF"))
	report := Verify(task, pre, post)
	if Satisfied(report) {
		t.Errorf("expected not satisfied, got %s", report)
	}
	if !strings.HasPrefix(report, "UNCLEAR") {
		t.Errorf("expected UNCLEAR report, got %s", report)
	}
}

// ── Diff.Summary ─────────────────────────────────────────────────────────────

func TestSummary_OrdersChangesByID(t *testing.T) {
	// The rendered summary lists entities in ascending id order
	d := Diff{
		9: {ClassName: "book", New: []string{"ON"}},
		1: {ClassName: "tv", Old: []string{"OFF"}, New: []string{"ON"}},
	}
	s := d.Summary()
	if strings.Index(s, "tv") > strings.Index(s, "book") {
		t.Errorf("expected tv before book:\n%s", s)
	}
}
