// Package resolve maps free-text symbolic entity names onto concrete
// simulator ids. Plan text is LLM-generated, so names arrive with typos,
// synonyms, separator variants, and stale numeric suffixes; resolution walks
// a layered strategy chain from strict to loose and stops at the first hit.
//
// Determinism: for a fixed world model, Resolve is a pure function. Every
// strategy iterates entities in the model's first-seen order, so repeated
// calls and tie-breaks always land on the same entity.
package resolve

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/eliang/homeground/internal/scene"
)

// Strategy names which layer of the chain produced a match; kept on the
// result for diagnostics and audit logs.
type Strategy string

const (
	StrategySuffix    Strategy = "suffix"
	StrategyExact     Strategy = "exact"
	StrategyVariant   Strategy = "variant"
	StrategyAlias     Strategy = "alias"
	StrategySubstring Strategy = "substring"
	StrategyEdit      Strategy = "edit_distance"
)

// Result is a successful resolution: the concrete entity id, the original
// display name for instruction rendering, and the strategy that matched.
type Result struct {
	ID          int
	DisplayName string
	Strategy    Strategy
}

// InstancePicker selects among multiple physical instances of one class.
// The default picks the first-seen instance; tests substitute alternatives.
type InstancePicker func(e *scene.Entity) int

// FirstInstance is the default picker: the first node id seen for the class.
func FirstInstance(e *scene.Entity) int { return e.ID }

// aliasGroups is the static semantic synonym table. Groups are ordered and
// matching tries members in group order, so resolution stays deterministic.
var aliasGroups = [][]string{
	{"tv", "television", "tv_stand", "tvstand"},
	{"computer", "pc", "desktop", "laptop", "cpuscreen"},
	{"fridge", "refrigerator", "icebox"},
	{"remote", "remote_control", "tv_remote", "controller", "remotecontrol"},
	{"phone", "cellphone", "cell_phone", "telephone", "smartphone"},
	{"coffeemaker", "coffee_maker", "coffemachine", "coffee_machine"},
	{"couch", "sofa"},
	{"desk", "table", "worktable", "work_table"},
	{"bookshelf", "bookcase", "book_shelf"},
	{"cup", "mug", "glass", "drinkglass"},
	{"glass", "cup", "drinkglass", "drinking_glass"},
	{"bowl", "dish"},
	{"book", "novel", "textbook", "magazine"},
	{"lamp", "light", "ceilinglamp", "ceiling_lamp", "floorlamp", "floor_lamp"},
	{"light", "lamp", "ceilinglamp", "ceiling_lamp"},
	{"sink", "washbasin", "basin"},
	{"toothbrush", "tooth_brush"},
	{"stove", "cooker", "oven"},
	{"microwave", "micro_wave"},
	{"glasses", "eyeglasses", "spectacles"},
}

// minFuzzyLen guards the loose strategies: substring and edit-distance
// matching only consider names of at least this length, so short tokens
// cannot produce spurious matches.
const minFuzzyLen = 4

// maxEditDistance is the acceptance bound for the edit-distance strategy.
const maxEditDistance = 2

var idSuffixRe = regexp.MustCompile(`_(\d+)$`)

// Resolver resolves symbolic names against a world model.
type Resolver struct {
	pick InstancePicker
}

// New returns a Resolver with the default first-instance picker.
func New() *Resolver { return &Resolver{pick: FirstInstance} }

// WithPicker returns a Resolver using a custom instance picker.
func WithPicker(p InstancePicker) *Resolver { return &Resolver{pick: p} }

// Resolve maps a symbolic name to a concrete entity. The second return is
// false when no strategy produced a match; the caller owns the fallback
// policy (the grounder substitutes a sentinel id rather than aborting).
func (r *Resolver) Resolve(symbolic string, wm *scene.WorldModel) (Result, bool) {
	target := normalizeSymbol(symbolic)
	base, suffixID := stripIDSuffix(target)

	// 1. Explicit instance suffix: "bedroom_74" addresses instance 74 of
	// "bedroom" when that instance exists, otherwise the base class.
	if base != target {
		if e, ok := wm.Lookup(base); ok {
			id := r.pick(e)
			if suffixID > 0 && hasID(e, suffixID) {
				id = suffixID
			}
			return Result{ID: id, DisplayName: e.DisplayName, Strategy: StrategySuffix}, true
		}
	}

	// 2. Exact normalized match.
	if e, ok := wm.Lookup(target); ok {
		return Result{ID: r.pick(e), DisplayName: e.DisplayName, Strategy: StrategyExact}, true
	}

	// 3. Separator variants of the target and its base form.
	for _, v := range variants(target, base) {
		if e, ok := wm.Lookup(v); ok {
			return Result{ID: r.pick(e), DisplayName: e.DisplayName, Strategy: StrategyVariant}, true
		}
	}

	// 4. Semantic aliases, tried in both directions via group membership.
	for _, group := range aliasGroups {
		if !contains(group, base) {
			continue
		}
		for _, synonym := range group {
			if e, ok := wm.Lookup(synonym); ok {
				return Result{ID: r.pick(e), DisplayName: e.DisplayName, Strategy: StrategyAlias}, true
			}
		}
	}

	// 5. Substring containment, either direction, length-guarded.
	if len(base) >= minFuzzyLen {
		for _, name := range wm.Names {
			if len(name) < minFuzzyLen {
				continue
			}
			if strings.Contains(name, base) || strings.Contains(base, name) {
				e, _ := wm.Lookup(name)
				return Result{ID: r.pick(e), DisplayName: e.DisplayName, Strategy: StrategySubstring}, true
			}
		}
	}

	// 6. Edit distance over all candidates; closest wins, first-seen order
	// breaks ties (strict < keeps the earlier candidate).
	if len(base) >= minFuzzyLen {
		best := ""
		bestDist := maxEditDistance + 1
		for _, name := range wm.Names {
			if len(name) < minFuzzyLen {
				continue
			}
			if d := levenshtein(base, name); d < bestDist {
				bestDist = d
				best = name
			}
		}
		if best != "" {
			e, _ := wm.Lookup(best)
			return Result{ID: r.pick(e), DisplayName: e.DisplayName, Strategy: StrategyEdit}, true
		}
	}

	return Result{}, false
}

// normalizeSymbol folds a plan parameter into canonical form: lower case,
// hyphens and spaces as underscores.
func normalizeSymbol(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// stripIDSuffix removes a trailing "_<digits>" and returns the base form and
// the numeric suffix (0 when absent).
func stripIDSuffix(s string) (base string, id int) {
	m := idSuffixRe.FindStringSubmatch(s)
	if m == nil {
		return s, 0
	}
	id, _ = strconv.Atoi(m[1])
	return strings.TrimSuffix(s, m[0]), id
}

// variants lists the separator permutations tried by strategy 3: separators
// stripped, then underscores swapped for hyphens (world names keep hyphens
// from the simulator's class names). Order matters: forms of the full target
// come before base forms.
func variants(target, base string) []string {
	out := []string{
		strings.ReplaceAll(target, "_", ""),
		strings.ReplaceAll(target, "_", "-"),
	}
	if base != target {
		out = append(out,
			strings.ReplaceAll(base, "_", ""),
			strings.ReplaceAll(base, "_", "-"))
	}
	return out
}

func hasID(e *scene.Entity, id int) bool {
	for _, v := range e.AllIDs {
		if v == id {
			return true
		}
	}
	return false
}

func contains(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// levenshtein computes edit distance with the classic two-row DP.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 0; i < len(a); i++ {
		curr[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}
			curr[j+1] = min3(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
