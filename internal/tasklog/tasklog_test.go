package tasklog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/eliang/homeground/internal/types"
)

var testTask = types.Task{ID: 7, Title: "Watch TV", Description: "turn on the tv"}

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()
	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		out = append(out, e)
	}
	return out
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestOpen_CreatesTaskDirWithBeginEvent(t *testing.T) {
	// Open creates task_<id>/ and writes task_begin first
	r := NewRegistry(t.TempDir())
	tl := r.Open(testTask)
	if tl == nil {
		t.Fatal("expected a TaskLog")
	}
	events := readEvents(t, filepath.Join(tl.Dir(), "events.jsonl"))
	if len(events) != 1 || events[0].Kind != KindTaskBegin {
		t.Fatalf("expected single task_begin, got %v", events)
	}
	if events[0].Title != "Watch TV" {
		t.Errorf("expected title in begin event, got %q", events[0].Title)
	}
}

func TestOpen_IsIdempotentPerTask(t *testing.T) {
	// Reopening the same task returns the existing log
	r := NewRegistry(t.TempDir())
	a := r.Open(testTask)
	b := r.Open(testTask)
	if a != b {
		t.Error("expected the same TaskLog pointer")
	}
}

func TestClose_WritesTaskEndWithStatus(t *testing.T) {
	// Close appends task_end carrying the status
	r := NewRegistry(t.TempDir())
	tl := r.Open(testTask)
	dir := tl.Dir()
	r.Close(testTask.ID, "success")

	events := readEvents(t, filepath.Join(dir, "events.jsonl"))
	last := events[len(events)-1]
	if last.Kind != KindTaskEnd || last.Status != "success" {
		t.Errorf("expected task_end success, got %+v", last)
	}
	if r.Get(testTask.ID) != nil {
		t.Error("expected task removed from registry")
	}
}

func TestClose_UnknownTaskIsNoOp(t *testing.T) {
	// Closing a task that never opened does nothing
	r := NewRegistry(t.TempDir())
	r.Close(99, "failed")
}

// ── TaskLog ──────────────────────────────────────────────────────────────────

func TestNilTaskLog_MethodsAreNoOps(t *testing.T) {
	// Every method tolerates a nil receiver
	var tl *TaskLog
	tl.WritePlan(nil)
	tl.WriteScript(nil)
	tl.PlanAttempt(1, 0, nil)
	tl.Grounded(0, nil)
	tl.Spawned(nil)
	tl.Execution(1, "")
	tl.Repair(types.FailNavCollision, "")
	tl.Verdict("SUCCESS")
	if tl.Dir() != "" {
		t.Error("expected empty dir on nil receiver")
	}
}

func TestWritePlan_PersistsOneActionPerLine(t *testing.T) {
	// plan.txt holds the symbolic actions, one per line
	r := NewRegistry(t.TempDir())
	tl := r.Open(testTask)
	tl.WritePlan([]types.SymbolicAction{
		{Name: "walk", Params: []string{"agent", "kitchen", "bedroom"}},
		{Name: "find-object", Params: []string{"agent", "tv"}},
	})
	data, err := os.ReadFile(filepath.Join(tl.Dir(), "plan.txt"))
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	want := "(walk agent kitchen bedroom)\n(find-object agent tv)\n"
	if string(data) != want {
		t.Errorf("plan.txt mismatch:\n%q", data)
	}
}

func TestWriteScript_PersistsInstructionLines(t *testing.T) {
	// script.txt holds rendered simulator instructions
	r := NewRegistry(t.TempDir())
	tl := r.Open(testTask)
	tl.WriteScript([]types.GroundedAction{
		{Verb: "FIND", TargetID: 30, TargetName: "tv"},
	})
	data, err := os.ReadFile(filepath.Join(tl.Dir(), "script.txt"))
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	if string(data) != "<char0> [FIND] <tv> (30)\n" {
		t.Errorf("script.txt mismatch:\n%q", data)
	}
}

func TestGrounded_RecordsUnresolvedNames(t *testing.T) {
	// The grounded event lists unresolved parameter names
	r := NewRegistry(t.TempDir())
	tl := r.Open(testTask)
	tl.Grounded(3, []types.Unresolved{{Action: "grab-object", Param: "unicorn"}})

	events := readEvents(t, filepath.Join(tl.Dir(), "events.jsonl"))
	last := events[len(events)-1]
	if last.Kind != KindGrounded || len(last.Unresolved) != 1 || last.Unresolved[0] != "unicorn" {
		t.Errorf("unexpected grounded event: %+v", last)
	}
}
