// Package sim is the boundary with the simulated household environment. The
// simulator is a black box behind an HTTP RPC endpoint; this package owns
// the wire protocol and nothing else. Transient transport failures surface
// as plain errors so callers can wrap calls in the shared retry policy.
package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eliang/homeground/internal/types"
)

// RenderOptions configure one ApplySequence call. The sequence executes as a
// single atomic submission; the simulator reports overall success or a
// message referencing the failing step.
type RenderOptions struct {
	Recording      bool   `json:"recording"`
	FindSolution   bool   `json:"find_solution"`
	FrameRate      int    `json:"frame_rate"`
	FilePrefix     string `json:"file_name_prefix"`
	OutputFolder   string `json:"output_folder"`
	TimeLimitSecs  int    `json:"processing_time_limit"`
	ImageSynthesis bool   `json:"image_synthesis"`
}

// Environment is the black-box simulator contract the engine executes
// against. Exactly one live connection exists per task; the pipeline closes
// it before opening the next, because the simulator's recording buffer does
// not reliably reset in place.
type Environment interface {
	GetSnapshot(ctx context.Context) (*types.Graph, error)
	ApplySequence(ctx context.Context, script []string, opts RenderOptions) error
	InjectEntities(ctx context.Context, g *types.Graph) error
	Reset(ctx context.Context, sceneIndex int) error
	AddActor(ctx context.Context, actor, initialRoom string) error
	Close() error
}

// ExecutionError is a rejected instruction sequence. Message carries the
// simulator's diagnostic verbatim; the failure classifier pattern-matches it.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "execution rejected: " + e.Message
}

// Client is the HTTP implementation of Environment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient connects to a simulator RPC endpoint. timeout bounds each
// individual call; there is no cancellation of a call once submitted.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
}

type rpcResponse struct {
	OK      bool         `json:"ok"`
	Message string       `json:"message,omitempty"`
	Graph   *types.Graph `json:"graph,omitempty"`
}

func (c *Client) call(ctx context.Context, action string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{Action: action, Params: params})
	if err != nil {
		return nil, fmt.Errorf("sim: marshal %s request: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sim: create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sim: %s: %w", action, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sim: read %s response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sim: %s: HTTP %d: %s", action, resp.StatusCode, respBody)
	}

	var out rpcResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("sim: unmarshal %s response: %w", action, err)
	}
	return &out, nil
}

// GetSnapshot returns the current entity graph.
func (c *Client) GetSnapshot(ctx context.Context) (*types.Graph, error) {
	resp, err := c.call(ctx, "environment_graph", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK || resp.Graph == nil {
		return nil, fmt.Errorf("sim: snapshot unavailable: %s", resp.Message)
	}
	return resp.Graph, nil
}

// ApplySequence submits the whole script in one call. A false response maps
// to *ExecutionError carrying the simulator's diagnostic.
func (c *Client) ApplySequence(ctx context.Context, script []string, opts RenderOptions) error {
	resp, err := c.call(ctx, "render_script", struct {
		Script []string `json:"script"`
		RenderOptions
	}{script, opts})
	if err != nil {
		return err
	}
	if !resp.OK {
		return &ExecutionError{Message: resp.Message}
	}
	return nil
}

// InjectEntities adds new entities to the running scene.
func (c *Client) InjectEntities(ctx context.Context, g *types.Graph) error {
	resp, err := c.call(ctx, "expand_scene", g)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("sim: expand_scene rejected: %s", resp.Message)
	}
	return nil
}

// Reset loads the indexed base scene, discarding prior state.
func (c *Client) Reset(ctx context.Context, sceneIndex int) error {
	resp, err := c.call(ctx, "reset", struct {
		Scene int `json:"scene"`
	}{sceneIndex})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("sim: reset rejected: %s", resp.Message)
	}
	return nil
}

// AddActor places the agent character in the scene.
func (c *Client) AddActor(ctx context.Context, actor, initialRoom string) error {
	resp, err := c.call(ctx, "add_character", struct {
		Actor string `json:"actor"`
		Room  string `json:"initial_room"`
	}{actor, initialRoom})
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("sim: add_character rejected: %s", resp.Message)
	}
	return nil
}

// Close tears down the connection. Best effort: the terminate call uses a
// short deadline and transport errors are ignored, since the simulator may
// already be gone.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = c.call(ctx, "terminate", nil)
	c.httpClient.CloseIdleConnections()
	return nil
}
