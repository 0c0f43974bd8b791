// Package events is the observable event stream for the pipeline. Stages
// publish progress events as they run; subscribers (and the audit tap)
// receive them without ever blocking the publishing stage. Execution itself
// stays strictly sequential; the stream is observability, not coordination.
package events

import (
	"log"
	"sync"
	"time"
)

// Kind labels one pipeline stage event.
type Kind string

const (
	KindTaskBegin        Kind = "task_begin"
	KindTaskEnd          Kind = "task_end"
	KindSceneCategorized Kind = "scene_categorized"
	KindPlanRequested    Kind = "plan_requested"
	KindPlanAccepted     Kind = "plan_accepted"
	KindPlanGrounded     Kind = "plan_grounded"
	KindEntityUnresolved Kind = "entity_unresolved"
	KindSpawned          Kind = "entities_spawned"
	KindExecuteBegin     Kind = "execute_begin"
	KindExecuteFailed    Kind = "execute_failed"
	KindRepairAttempt    Kind = "repair_attempt"
	KindVerified         Kind = "verified"
	KindFatal            Kind = "fatal"
)

// Event is one pipeline occurrence.
type Event struct {
	Timestamp time.Time `json:"ts"`
	TaskID    int       `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Count     int       `json:"count,omitempty"` // actions, changes, or unresolved names, per kind
}

const (
	subscriberBufSize = 64
	tapBufSize        = 256
)

// Stream fans events out to subscribers and to a single audit tap.
type Stream struct {
	mu          sync.RWMutex
	subscribers []chan Event
	tapCh       chan Event
}

// New creates a Stream.
func New() *Stream {
	return &Stream{tapCh: make(chan Event, tapBufSize)}
}

// Publish fans out e to all subscribers and the tap. Non-blocking: a full
// channel drops the event with a warning rather than stalling the pipeline.
// No-op on a nil Stream so stages don't need nil checks.
func (s *Stream) Publish(e Event) {
	if s == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	s.mu.RLock()
	subs := s.subscribers
	s.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			log.Printf("[EVENTS] WARNING: subscriber channel full, %s event dropped", e.Kind)
		}
	}

	select {
	case s.tapCh <- e:
	default:
		log.Printf("[EVENTS] WARNING: tap channel full, %s event dropped", e.Kind)
	}
}

// Subscribe returns a new independent receive channel for all events.
func (s *Stream) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBufSize)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Tap returns the audit tap channel. Only one consumer should read it;
// repeated calls return the same channel.
func (s *Stream) Tap() <-chan Event {
	return s.tapCh
}
