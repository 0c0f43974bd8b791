// Package audit consumes the pipeline event tap and writes a JSONL audit
// trail, annotating events that indicate the engine is misbehaving: more
// than one repair round per task, or repeated unresolved entities within a
// single grounding pass.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eliang/homeground/internal/events"
)

// Record is one JSONL line in the audit trail.
type Record struct {
	EventID   string      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	TaskID    int         `json:"task_id"`
	Kind      events.Kind `json:"kind"`
	Detail    string      `json:"detail,omitempty"`
	Count     int         `json:"count,omitempty"`
	Anomaly   string      `json:"anomaly"` // "repair_overrun" | "grounding_drift" | "none"
}

// unresolvedThreshold flags a grounding pass that leaves this many or more
// parameters unresolved; the plan vocabulary has drifted from the scene.
const unresolvedThreshold = 3

// Auditor taps the event stream read-only and appends Records to a file.
type Auditor struct {
	tap     <-chan events.Event
	logPath string
	mu      sync.Mutex
	logFile *os.File

	repairCounts map[int]int // task id -> repair attempts observed
}

// New creates an Auditor over the given tap.
func New(tap <-chan events.Event, logPath string) *Auditor {
	return &Auditor{
		tap:          tap,
		logPath:      logPath,
		repairCounts: make(map[int]int),
	}
}

// Run blocks until ctx is cancelled, writing every tapped event.
func (a *Auditor) Run(ctx context.Context) {
	if err := os.MkdirAll(filepath.Dir(a.logPath), 0o755); err != nil {
		log.Printf("[AUDIT] ERROR: create log dir: %v", err)
		return
	}
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[AUDIT] ERROR: open log file: %v", err)
		return
	}
	a.logFile = f
	defer f.Close()

	log.Printf("[AUDIT] started; writing to %s", a.logPath)

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-a.tap:
			if !ok {
				return
			}
			a.process(e)
		}
	}
}

func (a *Auditor) process(e events.Event) {
	anomaly := "none"

	switch e.Kind {
	case events.KindTaskBegin:
		a.repairCounts[e.TaskID] = 0
	case events.KindRepairAttempt:
		a.repairCounts[e.TaskID]++
		// Single-shot repair is the contract; a second attempt means the
		// bound was violated somewhere upstream.
		if a.repairCounts[e.TaskID] > 1 {
			anomaly = "repair_overrun"
			log.Printf("[AUDIT] REPAIR OVERRUN: task %d repair attempt #%d", e.TaskID, a.repairCounts[e.TaskID])
		}
	case events.KindEntityUnresolved:
		if e.Count >= unresolvedThreshold {
			anomaly = "grounding_drift"
			log.Printf("[AUDIT] GROUNDING DRIFT: task %d left %d parameters unresolved", e.TaskID, e.Count)
		}
	}

	a.write(Record{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TaskID:    e.TaskID,
		Kind:      e.Kind,
		Detail:    e.Detail,
		Count:     e.Count,
		Anomaly:   anomaly,
	})
}

func (a *Auditor) write(r Record) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := json.Marshal(r)
	if err != nil {
		log.Printf("[AUDIT] ERROR: marshal record: %v", err)
		return
	}
	if _, err := fmt.Fprintf(a.logFile, "%s\n", data); err != nil {
		log.Printf("[AUDIT] ERROR: write record: %v", err)
	}
}
