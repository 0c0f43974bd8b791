package sim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eliang/homeground/internal/types"
)

// newTestServer answers every RPC through handler, keyed by action name.
func newTestServer(t *testing.T, handler func(action string, params json.RawMessage) rpcResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string          `json:"action"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(handler(req.Action, req.Params))
	}))
}

// ── GetSnapshot ──────────────────────────────────────────────────────────────

func TestGetSnapshot_ReturnsParsedGraph(t *testing.T) {
	// A successful environment_graph call yields the parsed graph
	srv := newTestServer(t, func(action string, _ json.RawMessage) rpcResponse {
		if action != "environment_graph" {
			t.Errorf("unexpected action %s", action)
		}
		return rpcResponse{OK: true, Graph: &types.Graph{Nodes: []types.Node{
			{ID: 30, ClassName: "tv"},
		}}}
	})
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	g, err := c.GetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Nodes) != 1 || g.Nodes[0].ClassName != "tv" {
		t.Errorf("unexpected graph: %+v", g)
	}
}

func TestGetSnapshot_ErrorsWithoutGraph(t *testing.T) {
	// ok:true with no graph is still an error
	srv := newTestServer(t, func(string, json.RawMessage) rpcResponse {
		return rpcResponse{OK: true}
	})
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).GetSnapshot(context.Background()); err == nil {
		t.Error("expected error for missing graph")
	}
}

// ── ApplySequence ────────────────────────────────────────────────────────────

func TestApplySequence_SendsScriptAndSucceeds(t *testing.T) {
	// The whole script goes out in a single render_script call
	var gotScript []string
	srv := newTestServer(t, func(action string, params json.RawMessage) rpcResponse {
		if action != "render_script" {
			t.Errorf("unexpected action %s", action)
		}
		var p struct {
			Script []string `json:"script"`
		}
		_ = json.Unmarshal(params, &p)
		gotScript = p.Script
		return rpcResponse{OK: true}
	})
	defer srv.Close()

	script := []string{"<char0> [FIND] <tv> (30)", "<char0> [SWITCHON] <tv> (30)"}
	err := NewClient(srv.URL, time.Second).ApplySequence(context.Background(), script, RenderOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotScript) != 2 {
		t.Errorf("expected full script transmitted, got %v", gotScript)
	}
}

func TestApplySequence_RejectionBecomesExecutionError(t *testing.T) {
	// ok:false maps to *ExecutionError carrying the diagnostic verbatim
	srv := newTestServer(t, func(string, json.RawMessage) rpcResponse {
		return rpcResponse{OK: false, Message: "Unknown object unicorn"}
	})
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).ApplySequence(context.Background(), []string{"x"}, RenderOptions{})
	var rejection *ExecutionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected *ExecutionError, got %v", err)
	}
	if rejection.Message != "Unknown object unicorn" {
		t.Errorf("diagnostic altered: %q", rejection.Message)
	}
}

func TestApplySequence_TransportErrorIsNotExecutionError(t *testing.T) {
	// A dead endpoint yields a plain error, not a rejection
	err := NewClient("http://127.0.0.1:1", 200*time.Millisecond).
		ApplySequence(context.Background(), []string{"x"}, RenderOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	var rejection *ExecutionError
	if errors.As(err, &rejection) {
		t.Error("transport failure must not classify as execution rejection")
	}
}

// ── Reset / AddActor ─────────────────────────────────────────────────────────

func TestReset_SendsSceneIndex(t *testing.T) {
	// Reset carries the scene index in its params
	var gotScene = -1
	srv := newTestServer(t, func(action string, params json.RawMessage) rpcResponse {
		if action == "reset" {
			var p struct {
				Scene int `json:"scene"`
			}
			_ = json.Unmarshal(params, &p)
			gotScene = p.Scene
		}
		return rpcResponse{OK: true}
	})
	defer srv.Close()

	if err := NewClient(srv.URL, time.Second).Reset(context.Background(), 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotScene != 4 {
		t.Errorf("expected scene 4, got %d", gotScene)
	}
}

func TestAddActor_RejectionIsPlainError(t *testing.T) {
	// add_character failures are plain errors with the message attached
	srv := newTestServer(t, func(string, json.RawMessage) rpcResponse {
		return rpcResponse{OK: false, Message: "room not found"}
	})
	defer srv.Close()

	err := NewClient(srv.URL, time.Second).AddActor(context.Background(), "Chars/Male2", "atrium")
	if err == nil {
		t.Fatal("expected error")
	}
	var rejection *ExecutionError
	if errors.As(err, &rejection) {
		t.Error("setup failure must not classify as execution rejection")
	}
}
