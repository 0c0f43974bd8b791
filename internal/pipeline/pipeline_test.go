package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eliang/homeground/internal/events"
	"github.com/eliang/homeground/internal/ground"
	"github.com/eliang/homeground/internal/llm"
	"github.com/eliang/homeground/internal/planner"
	"github.com/eliang/homeground/internal/repair"
	"github.com/eliang/homeground/internal/resolve"
	"github.com/eliang/homeground/internal/sim"
	"github.com/eliang/homeground/internal/tasklog"
	"github.com/eliang/homeground/internal/types"
)

// fakeEnv is one scripted simulator connection. snapshotErrs fails the
// matching GetSnapshot call; calls past the slice succeed.
type fakeEnv struct {
	graph        *types.Graph
	resetErr     error
	applyErr     error
	snapshotErrs []error
	snapshots    int
	resets       int
	actors       int
	injections   int
	executions   int
	closed       bool
}

func (f *fakeEnv) GetSnapshot(ctx context.Context) (*types.Graph, error) {
	i := f.snapshots
	f.snapshots++
	if i < len(f.snapshotErrs) && f.snapshotErrs[i] != nil {
		return nil, f.snapshotErrs[i]
	}
	return f.graph, nil
}

func (f *fakeEnv) ApplySequence(ctx context.Context, script []string, opts sim.RenderOptions) error {
	f.executions++
	return f.applyErr
}

func (f *fakeEnv) InjectEntities(ctx context.Context, g *types.Graph) error {
	f.injections++
	f.graph = g
	return nil
}

func (f *fakeEnv) Reset(ctx context.Context, sceneIndex int) error {
	f.resets++
	return f.resetErr
}

func (f *fakeEnv) AddActor(ctx context.Context, actor, initialRoom string) error {
	f.actors++
	return nil
}

func (f *fakeEnv) Close() error {
	f.closed = true
	return nil
}

type fakeChat struct {
	response string
	calls    int
}

func (f *fakeChat) Chat(ctx context.Context, system, user string) (string, llm.Usage, error) {
	f.calls++
	return f.response, llm.Usage{}, nil
}

func testGraph() *types.Graph {
	return &types.Graph{Nodes: []types.Node{
		{ID: 2, ClassName: "kitchen", Category: "Rooms"},
		{ID: 15, ClassName: "kitchentable", Category: "Furniture", Properties: []string{"SURFACES"}},
		{ID: 30, ClassName: "tv", Category: "Electronics", Properties: []string{"HAS_SWITCH"}, States: []string{"OFF"}},
	}}
}

func newPipeline(t *testing.T, env *fakeEnv, chat *fakeChat) *Pipeline {
	t.Helper()
	svc := planner.New(chat)
	grounder := ground.New(resolve.New())
	reg := tasklog.NewRegistry(t.TempDir())
	return New(func() sim.Environment { return env }, svc, grounder, repair.New(svc), reg, events.New(), Options{
		SceneIndex:      0,
		Actor:           "Chars/Male2",
		InitialRoom:     "kitchen",
		ConnectAttempts: 2,
		ConnectWait:     time.Millisecond,
	})
}

var testTask = types.Task{ID: 1, Title: "Watch TV", Description: "Turn on the tv"}

// ── RunTask ──────────────────────────────────────────────────────────────────

func TestRunTask_HappyPathSucceeds(t *testing.T) {
	// Plan, ground, execute, verify; the connection closes afterwards
	env := &fakeEnv{graph: testGraph()}
	chat := &fakeChat{response: "(switch-on agent tv)"}
	res := newPipeline(t, env, chat).RunTask(context.Background(), testTask)
	if res.Err != "" {
		t.Fatalf("unexpected fatal: %s", res.Err)
	}
	if env.resets != 1 || env.actors != 1 {
		t.Errorf("expected one reset and one actor placement, got %d/%d", env.resets, env.actors)
	}
	if env.executions != 1 {
		t.Errorf("expected 1 execution, got %d", env.executions)
	}
	if !env.closed {
		t.Error("expected the connection closed")
	}
	if res.Verification == "" {
		t.Error("expected a verification report")
	}
}

func TestRunTask_SetupFailureIsFatalNotPanic(t *testing.T) {
	// A scene that will not reset produces a fatal result
	env := &fakeEnv{graph: testGraph(), resetErr: errors.New("sim down")}
	chat := &fakeChat{response: "(switch-on agent tv)"}
	res := newPipeline(t, env, chat).RunTask(context.Background(), testTask)
	if res.Err == "" {
		t.Fatal("expected fatal result")
	}
	if res.Success {
		t.Error("fatal result must not report success")
	}
	if env.executions != 0 {
		t.Error("expected no execution after setup failure")
	}
	if !env.closed {
		t.Error("expected the connection closed even on fatal")
	}
}

func TestRunTask_SpawnsMissingObjectAndRegrounds(t *testing.T) {
	// A plan naming an absent spawnable object triggers injection and a
	// second grounding pass against the expanded scene
	env := &fakeEnv{graph: testGraph()}
	chat := &fakeChat{response: "(find-object agent book kitchen)"}
	res := newPipeline(t, env, chat).RunTask(context.Background(), testTask)
	if res.Err != "" {
		t.Fatalf("unexpected fatal: %s", res.Err)
	}
	if env.injections != 1 {
		t.Errorf("expected 1 injection, got %d", env.injections)
	}
	if env.executions != 1 {
		t.Errorf("expected 1 execution, got %d", env.executions)
	}
}

func TestRunTask_PostSpawnSnapshotFailureIsRetried(t *testing.T) {
	// The re-snapshot after injection goes through the same retry policy
	// as every other capture; one transient failure does not end the task
	env := &fakeEnv{
		graph:        testGraph(),
		snapshotErrs: []error{nil, errors.New("graph busy")},
	}
	chat := &fakeChat{response: "(find-object agent book kitchen)"}
	res := newPipeline(t, env, chat).RunTask(context.Background(), testTask)
	if res.Err != "" {
		t.Fatalf("unexpected fatal: %s", res.Err)
	}
	if env.injections != 1 {
		t.Errorf("expected 1 injection, got %d", env.injections)
	}
	if env.executions != 1 {
		t.Errorf("expected 1 execution, got %d", env.executions)
	}
}

// ── RunBatch ─────────────────────────────────────────────────────────────────

func TestRunBatch_ContinuesPastFatalTasks(t *testing.T) {
	// One broken task never stops the rest of the batch
	first := true
	envs := []*fakeEnv{
		{graph: testGraph(), resetErr: errors.New("sim down")},
		{graph: testGraph()},
	}
	factory := func() sim.Environment {
		if first {
			first = false
			return envs[0]
		}
		return envs[1]
	}
	chat := &fakeChat{response: "(switch-on agent tv)"}
	svc := planner.New(chat)
	p := New(factory, svc, ground.New(resolve.New()), repair.New(svc), tasklog.NewRegistry(t.TempDir()), nil, Options{
		Actor:           "Chars/Male2",
		InitialRoom:     "kitchen",
		ConnectAttempts: 1,
		ConnectWait:     time.Millisecond,
	})

	tasks := []types.Task{
		{ID: 1, Title: "Broken", Description: "broken"},
		{ID: 2, Title: "Watch TV", Description: "Turn on the tv"},
	}
	results := p.RunBatch(context.Background(), tasks)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err == "" {
		t.Error("expected first task fatal")
	}
	if results[1].Err != "" {
		t.Errorf("expected second task to run, got fatal: %s", results[1].Err)
	}
	if !envs[0].closed || !envs[1].closed {
		t.Error("expected both connections closed")
	}
}
