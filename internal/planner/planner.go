// Package planner is the boundary with the external planning service. The
// service is an opaque oracle: it receives the task goal, the fixed action
// vocabulary, and a capability summary of the current world model, and
// returns a textual symbolic plan. This package owns prompt construction,
// plan parsing, and the validation contract: every action must be a known
// vocabulary entry with the exact expected parameter count, or the whole
// plan is rejected and a stricter retry requested.
package planner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eliang/homeground/internal/capability"
	"github.com/eliang/homeground/internal/llm"
	"github.com/eliang/homeground/internal/retry"
	"github.com/eliang/homeground/internal/scene"
	"github.com/eliang/homeground/internal/types"
)

// vocabulary is the fixed symbolic action set with expected parameter
// counts (the agent parameter included).
var vocabulary = map[string]int{
	"walk":            3,
	"find-object":     3,
	"sit-down":        2,
	"switch-on":       2,
	"switch-off":      2,
	"touch-object":    2,
	"open-container":  2,
	"close-container": 2,
	"grab-object":     2,
	"put-object-in":   3,
}

const maxAttempts = 3

// Transport retry for the planning service, the same bounded doubling-wait
// policy the simulator call sites use.
const (
	chatAttempts = 3
	chatWait     = 2 * time.Second
)

const systemPrompt = `You are a task planner for a simulated household. You receive a task, the
rooms of the scene, and the objects with their supported actions. Infer the
goal state from the task description and output the shortest action sequence
that achieves it.

VALID ACTIONS (use EXACT names and parameter counts):
1. walk ?agent ?from-location ?to-location
   Example: (walk agent kitchen bedroom)
2. find-object ?agent ?object ?room
   Example: (find-object agent computer bedroom)
3. sit-down ?agent ?furniture
   Example: (sit-down agent chair)
4. switch-on ?agent ?appliance
   Example: (switch-on agent computer)
5. switch-off ?agent ?appliance
   Example: (switch-off agent tv)
6. touch-object ?agent ?object
   Example: (touch-object agent remote_control)
7. open-container ?agent ?container
   Example: (open-container agent fridge)
8. close-container ?agent ?container
   Example: (close-container agent fridge)
9. grab-object ?agent ?object
   Example: (grab-object agent apple)
10. put-object-in ?agent ?object ?container
    Example: (put-object-in agent apple fridge)

CRITICAL RULES:
- Use EXACT action names above (e.g. "find-object" NOT "find", "switch-on" NOT "switchon")
- ONLY use switch-on/switch-off on objects listing SWITCHON/SWITCHOFF in their actions
- Objects with only TOUCH actions cannot be switched - use touch-object instead
- Always walk to a room before finding objects there
- Always find an object before interacting with it
- Find containers BEFORE opening them
- Use only listed objects; make no assumptions about unavailable ones

GOAL INFERENCE EXAMPLES:
- "Write an email" -> agent sitting at computer, computer ON
- "Put groceries in fridge" -> fridge opened, items inside, fridge closed
- "Watch TV" -> agent sitting, TV ON
- "Turn on light" -> agent in room, light ON

OUTPUT FORMAT (no prose, no markdown):
(:plan
  (action agent param1 param2)
  ...
)`

// Chatter is the transport the service speaks through; satisfied by
// *llm.Client and by test fakes.
type Chatter interface {
	Chat(ctx context.Context, system, user string) (string, llm.Usage, error)
}

// Service requests and validates symbolic plans.
type Service struct {
	chat Chatter

	chatAttempts int
	chatWait     time.Duration
}

// New creates a planning Service over the given transport.
func New(c Chatter) *Service {
	return &Service{chat: c, chatAttempts: chatAttempts, chatWait: chatWait}
}

// requestText sends one prompt, retrying transport failures with backoff.
// Malformed responses are not transport failures and are handled by the
// callers' own re-request policies.
func (s *Service) requestText(ctx context.Context, prompt string) (string, error) {
	return retry.DoValue(ctx, s.chatAttempts, s.chatWait, func() (string, error) {
		text, _, err := s.chat.Chat(ctx, systemPrompt, prompt)
		return text, err
	})
}

// RequestPlan asks the service for a plan solving task against wm. Malformed
// or vocabulary-violating plans are rejected and re-requested with the error
// summary appended, up to the attempt budget.
func (s *Service) RequestPlan(ctx context.Context, task types.Task, wm *scene.WorldModel) ([]types.SymbolicAction, error) {
	userPrompt := s.buildPrompt(task, wm)

	var lastErrs []string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		prompt := userPrompt
		if len(lastErrs) > 0 {
			prompt += "\n\nPREVIOUS ATTEMPT HAD ERRORS:\n" + strings.Join(lastErrs, "\n")
		}

		raw, err := s.requestText(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("planner: %w", err)
		}

		plan := ParsePlan(llm.StripFences(raw))
		errs := Validate(plan, wm.Capabilities)
		if len(errs) == 0 {
			log.Printf("[PLANNER] plan accepted with %d actions (attempt %d)", len(plan), attempt)
			return plan, nil
		}

		log.Printf("[PLANNER] attempt %d/%d rejected: %s", attempt, maxAttempts, strings.Join(errs, "; "))
		lastErrs = errs
	}
	return nil, fmt.Errorf("planner: no valid plan after %d attempts: %s", maxAttempts, strings.Join(lastErrs, "; "))
}

func (s *Service) buildPrompt(task types.Task, wm *scene.WorldModel) string {
	rooms := wm.Partition(scene.KindRoom)
	roomsStr := "none available"
	if len(rooms) > 0 {
		roomsStr = strings.Join(rooms, ", ")
	}
	return fmt.Sprintf(`TASK TO ACCOMPLISH:
%s - %s

ENVIRONMENT:
Available rooms: %s

AVAILABLE OBJECTS & ACTIONS:
%s

Generate the shortest plan that achieves the goal described in the task.`,
		task.Title, task.Description, roomsStr, capability.Summary(wm.Capabilities))
}

// ParsePlan extracts symbolic actions from plan text: one "(name params…)"
// form per line, skipping the "(:plan" wrapper. Lines that do not parse are
// dropped; validation decides whether what remains is acceptable.
func ParsePlan(text string) []types.SymbolicAction {
	var plan []types.SymbolicAction
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "(") || strings.HasPrefix(line, "(:plan") {
			continue
		}
		line = strings.TrimSuffix(strings.TrimPrefix(line, "("), ")")
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		plan = append(plan, types.SymbolicAction{Name: parts[0], Params: parts[1:]})
	}
	return plan
}

// Validate checks a plan against the vocabulary and the capability index.
// An empty return means the plan is acceptable; otherwise every violation is
// reported so the re-request can list them all.
func Validate(plan []types.SymbolicAction, caps map[string]capability.Entry) []string {
	if len(plan) == 0 {
		return []string{"no actions found in plan"}
	}

	var errs []string
	for i, act := range plan {
		name := strings.ToLower(act.Name)
		arity, known := vocabulary[name]
		if !known {
			errs = append(errs, fmt.Sprintf("action %d: unknown action %q", i+1, act.Name))
			continue
		}
		if len(act.Params) != arity {
			errs = append(errs, fmt.Sprintf("action %d: %q expects %d parameters, got %d",
				i+1, act.Name, arity, len(act.Params)))
			continue
		}

		// Capability gating: the object of a switch or grab must actually
		// support the verb per the index. Skipped when no index is supplied.
		if caps == nil {
			continue
		}
		switch name {
		case "switch-on", "switch-off":
			if obj := act.Params[1]; obj != "agent" && !supports(caps, obj, "SWITCHON") {
				errs = append(errs, fmt.Sprintf(
					"action %d: %q cannot be switched on/off (not a switchable appliance); use touch-object instead", i+1, obj))
			}
		case "grab-object":
			if obj := act.Params[1]; obj != "agent" && !supports(caps, obj, "GRAB") {
				errs = append(errs, fmt.Sprintf("action %d: %q is not grabbable", i+1, obj))
			}
		}
	}
	return errs
}

func supports(caps map[string]capability.Entry, name, verb string) bool {
	e, ok := caps[capability.Normalize(name)]
	return ok && e.Supports(verb)
}

// repairPlan runs one single-shot plan request for a repair prompt. A
// rejected plan is not re-requested: repair is a bounded recovery, not a
// search. Transport failures still get the shared backoff policy.
func (s *Service) repairPlan(ctx context.Context, prompt string) ([]types.SymbolicAction, error) {
	raw, err := s.requestText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner: repair request: %w", err)
	}
	plan := ParsePlan(llm.StripFences(raw))
	if errs := Validate(plan, nil); len(errs) > 0 {
		return nil, fmt.Errorf("planner: repair plan rejected: %s", strings.Join(errs, "; "))
	}
	return plan, nil
}

// PlanWithoutEntity requests a simpler plan that accomplishes the core goal
// without the named missing entity.
func (s *Service) PlanWithoutEntity(ctx context.Context, task types.Task, missing string) ([]types.SymbolicAction, error) {
	prompt := fmt.Sprintf(`The original plan failed because object %q does not exist in the scene.

Task: %s

Generate a SIMPLER plan that accomplishes the core task goal without requiring %q.
Focus on the essential actions only.`, missing, task.Description, missing)
	return s.repairPlan(ctx, prompt)
}

// PlanAvoidingEntity requests a plan that avoids direct interaction with an
// entity the agent cannot reach.
func (s *Service) PlanAvoidingEntity(ctx context.Context, task types.Task, unreachable string) ([]types.SymbolicAction, error) {
	prompt := fmt.Sprintf(`The plan failed because %q cannot be reached by the agent.

Task: %s

Generate an alternative plan that accomplishes the task WITHOUT requiring direct
interaction with %q. Focus on actions the agent can perform from accessible locations.`,
		unreachable, task.Description, unreachable)
	return s.repairPlan(ctx, prompt)
}

// PlanMinimizingMovement requests a minimal plan with the simplest possible
// navigation, used after a navigation collision.
func (s *Service) PlanMinimizingMovement(ctx context.Context, task types.Task) ([]types.SymbolicAction, error) {
	prompt := fmt.Sprintf(`The plan failed due to navigation collision issues.

Task: %s

Generate a MINIMAL plan that accomplishes the core task with the simplest possible
navigation. Prefer actions that do not require complex movement.`, task.Description)
	return s.repairPlan(ctx, prompt)
}
