// Package tasklog persists per-task artifacts for the grounding pipeline.
//
// Each task gets its own directory under a configurable root, holding the
// symbolic plan as the planner emitted it, the grounded instruction script
// that went to the simulator, and a JSONL stream of stage events. The
// directory survives the run so a failed task can be replayed by hand.
//
// Design constraints:
//   - All TaskLog methods are nil-safe (no-op on nil receiver) so pipeline
//     stages don't need nil checks before every call.
//   - Registry is the sole owner of filesystem layout; stages never build
//     paths themselves.
package tasklog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eliang/homeground/internal/types"
)

// EventKind labels a single structured event in the task event stream.
type EventKind string

const (
	KindTaskBegin   EventKind = "task_begin"
	KindTaskEnd     EventKind = "task_end"
	KindPlanAttempt EventKind = "plan_attempt"
	KindGrounded    EventKind = "grounded"
	KindSpawned     EventKind = "spawned"
	KindExecution   EventKind = "execution"
	KindRepair      EventKind = "repair"
	KindVerdict     EventKind = "verdict"
)

// Event is one JSONL line in the task event stream.
// Fields are omitempty so each event only serialises relevant data.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp string    `json:"ts"`

	// task_begin / task_end
	TaskID  int    `json:"task_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Status  string `json:"status,omitempty"` // "success" | "failed" | "fatal"
	Elapsed int64  `json:"elapsed_ms,omitempty"`

	// plan_attempt
	Attempt     int      `json:"attempt,omitempty"`
	ActionCount int      `json:"action_count,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	// grounded
	Unresolved []string `json:"unresolved,omitempty"`

	// spawned
	Spawned []string `json:"spawned,omitempty"`

	// execution
	ExecError string `json:"exec_error,omitempty"`

	// repair
	FailureKind string `json:"failure_kind,omitempty"`
	Entity      string `json:"entity,omitempty"`

	// verdict
	Report string `json:"report,omitempty"`
}

// TaskLog is a handle for writing artifacts and events for one task.
//
// Expectations:
//   - All methods are nil-safe (no-op when called on nil *TaskLog)
//   - Concurrent writes are safe (mutex-protected)
type TaskLog struct {
	taskID  int
	dir     string
	started time.Time
	mu      sync.Mutex
	f       *os.File
}

// Registry maps task IDs to open TaskLogs and owns the directory layout:
// <root>/task_<id>/ holding plan.txt, script.txt, events.jsonl.
//
// Expectations:
//   - Open creates the task directory if absent
//   - Open writes a task_begin event as the first JSONL line
//   - Open returns the existing log without re-opening when called twice
//   - Get returns nil for unknown task IDs
//   - Close writes task_end with status and elapsed_ms before flushing
//   - Close no-ops gracefully when taskID is not registered
type Registry struct {
	root string
	mu   sync.Mutex
	logs map[int]*TaskLog
}

// NewRegistry creates a Registry rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{root: dir, logs: make(map[int]*TaskLog)}
}

// Open creates a TaskLog for the task, writes a task_begin event, and
// registers it. Returns the existing log if one is already open.
func (r *Registry) Open(task types.Task) *TaskLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tl, ok := r.logs[task.ID]; ok {
		return tl
	}

	dir := filepath.Join(r.root, fmt.Sprintf("task_%d", task.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[TASKLOG] ERROR: could not create dir %s: %v", dir, err)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[TASKLOG] ERROR: could not open event stream: %v", err)
		return nil
	}

	tl := &TaskLog{taskID: task.ID, dir: dir, started: time.Now(), f: f}
	r.logs[task.ID] = tl
	tl.write(Event{Kind: KindTaskBegin, TaskID: task.ID, Title: task.Title})
	return tl
}

// Get returns the TaskLog for taskID, or nil if not found.
// Nil is safe to pass to all TaskLog methods.
func (r *Registry) Get(taskID int) *TaskLog {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[taskID]
}

// Close writes a task_end event, closes the stream, and removes the entry
// from the registry. Safe to call on a nil *Registry or unknown taskID.
func (r *Registry) Close(taskID int, status string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	tl, ok := r.logs[taskID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.logs, taskID)
	r.mu.Unlock()

	tl.write(Event{
		Kind:    KindTaskEnd,
		TaskID:  taskID,
		Status:  status,
		Elapsed: time.Since(tl.started).Milliseconds(),
	})

	tl.mu.Lock()
	if tl.f != nil {
		_ = tl.f.Close()
		tl.f = nil
	}
	tl.mu.Unlock()
}

// WritePlan saves the symbolic plan to plan.txt, one action per line.
// On replans the file is overwritten with the latest accepted plan.
func (tl *TaskLog) WritePlan(plan []types.SymbolicAction) {
	if tl == nil {
		return
	}
	var b strings.Builder
	for _, a := range plan {
		b.WriteString(a.String())
		b.WriteByte('\n')
	}
	tl.writeFile("plan.txt", b.String())
}

// WriteScript saves the grounded instruction script to script.txt.
func (tl *TaskLog) WriteScript(seq []types.GroundedAction) {
	if tl == nil {
		return
	}
	var b strings.Builder
	for _, g := range seq {
		b.WriteString(g.Instruction())
		b.WriteByte('\n')
	}
	tl.writeFile("script.txt", b.String())
}

// PlanAttempt records one planner round with its validation errors.
func (tl *TaskLog) PlanAttempt(attempt, actionCount int, errs []string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindPlanAttempt, Attempt: attempt, ActionCount: actionCount, Errors: errs})
}

// Grounded records a grounding pass and the parameters it could not resolve.
func (tl *TaskLog) Grounded(actionCount int, unresolved []types.Unresolved) {
	if tl == nil {
		return
	}
	var names []string
	for _, u := range unresolved {
		names = append(names, u.Param)
	}
	tl.write(Event{Kind: KindGrounded, ActionCount: actionCount, Unresolved: names})
}

// Spawned records entities injected into the scene to satisfy the plan.
func (tl *TaskLog) Spawned(names []string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindSpawned, Spawned: names})
}

// Execution records one simulator run. execErr is empty on success.
func (tl *TaskLog) Execution(attempt int, execErr string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindExecution, Attempt: attempt, ExecError: execErr})
}

// Repair records a classified failure and the entity it implicates.
func (tl *TaskLog) Repair(kind types.FailureKind, entity string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindRepair, FailureKind: string(kind), Entity: entity})
}

// Verdict records the outcome verification report.
func (tl *TaskLog) Verdict(report string) {
	if tl == nil {
		return
	}
	tl.write(Event{Kind: KindVerdict, Report: report})
}

// Dir returns the task's artifact directory, or "" on nil receiver.
func (tl *TaskLog) Dir() string {
	if tl == nil {
		return ""
	}
	return tl.dir
}

// writeFile replaces a named artifact in the task directory.
func (tl *TaskLog) writeFile(name, content string) {
	if err := os.WriteFile(filepath.Join(tl.dir, name), []byte(content), 0o644); err != nil {
		log.Printf("[TASKLOG] ERROR: write %s: %v", name, err)
	}
}

// write appends one JSON line to the event stream. Adds timestamp.
func (tl *TaskLog) write(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("[TASKLOG] ERROR: marshal event: %v", err)
		return
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.f == nil {
		return
	}
	if _, err = fmt.Fprintf(tl.f, "%s\n", data); err != nil {
		log.Printf("[TASKLOG] ERROR: write event: %v", err)
	}
}
