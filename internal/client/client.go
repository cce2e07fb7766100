// Package client talks to the scripting bridge running inside the planning
// application. Calls are JSON request/response pairs over one WebSocket and
// are strictly serialized.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

// Subprotocol is negotiated during the WebSocket handshake.
const Subprotocol = "autoplan-bridge.v1"


// Error codes sent by the bridge.
const (
	CodeNotFound = "not_found"
	CodeInvalid  = "invalid_request"
	CodeInternal = "internal"
)

var _ planning.Application = (*Client)(nil)

// BridgeError is an error reported by the bridge for one call.
type BridgeError struct {
	Method  string `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Method, e.Message, e.Code)
}

// Unwrap maps not_found onto planning.ErrNotFound.
func (e *BridgeError) Unwrap() error {
	if e.Code == CodeNotFound {
		return planning.ErrNotFound
	}
	return nil
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *BridgeError    `json:"error,omitempty"`
}

// Info describes the application behind the bridge.
type Info struct {
	Application string `json:"application"`
	Version     string `json:"version"`
	User        string `json:"user,omitempty"`
}

// Client implements planning.Application over the bridge.
type Client struct {
	endpoint string
	timeout  time.Duration
	dialer   websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	current map[models.Kind]string
}

// New creates a client for endpoint. http(s) URLs are rewritten to ws(s).
// A positive timeout bounds each call whose context has no deadline; zero waits
// for the reply however long it takes. The connection is opened on the first call.
func New(endpoint string, timeout time.Duration) *Client {
	endpoint = strings.Replace(endpoint, "http://", "ws://", 1)
	endpoint = strings.Replace(endpoint, "https://", "wss://", 1)
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{Subprotocol},
		},
		current: map[models.Kind]string{},
	}
}

// Close closes the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	clear(c.current)
	return err
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("parse bridge endpoint: %w", err)
	}
	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("bridge connect: %w", err)
	}
	c.conn = conn
	slog.Debug("bridge connected", "endpoint", c.endpoint)
	return nil
}

// call sends one request and waits for the response with the same id.
// Transport failures drop the connection; the next call reconnects.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	conn := c.conn

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline && c.timeout > 0 {
		deadline, hasDeadline = time.Now().Add(c.timeout), true
	}
	// The zero time clears a deadline left over from an earlier call.
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// Unblock the read when ctx is canceled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	id := uuid.New().String()
	if err := conn.WriteJSON(request{ID: id, Method: method, Params: params}); err != nil {
		_ = c.dropLocked()
		return fmt.Errorf("%s: send: %w", method, err)
	}

	start := time.Now()
	for {
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			_ = c.dropLocked()
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", method, ctx.Err())
			}
			if hasDeadline && !time.Now().Before(deadline) {
				return fmt.Errorf("%s: %w", method, context.DeadlineExceeded)
			}
			return fmt.Errorf("%s: read: %w", method, err)
		}
		if resp.ID != id {
			slog.Debug("ignoring bridge message", "id", resp.ID, "waiting_for", id)
			continue
		}

		slog.Debug("bridge call", "method", method, "duration", time.Since(start))
		if resp.Error != nil {
			resp.Error.Method = method
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 && string(resp.Result) != "null" {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

// Info returns what the bridge is connected to.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.call(ctx, "info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// =============================================================================
// ENTITIES
// =============================================================================

func (c *Client) QueryPatients(ctx context.Context, filter planning.PatientFilter) ([]planning.PatientInfo, error) {
	var out []planning.PatientInfo
	if err := c.call(ctx, "query_patients", filter, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadPatient opens the patient, which also makes it current.
func (c *Client) LoadPatient(ctx context.Context, info planning.PatientInfo) (models.Handle, error) {
	var h models.Handle
	if err := c.call(ctx, "load_patient", map[string]any{"ref": info.Ref}, &h); err != nil {
		return models.Handle{}, err
	}
	c.markCurrent(h)
	return h, nil
}

func (c *Client) Case(ctx context.Context, patient models.Handle, name string) (models.Handle, error) {
	var h models.Handle
	err := c.call(ctx, "get_case", map[string]any{"patient": patient, "name": name}, &h)
	return h, err
}

func (c *Client) QueryExaminations(ctx context.Context, patient, caseHandle models.Handle, name string) ([]models.Handle, error) {
	var out []models.Handle
	err := c.call(ctx, "query_examinations", map[string]any{"patient": patient, "case": caseHandle, "name": name}, &out)
	return out, err
}

func (c *Client) QueryPlans(ctx context.Context, caseHandle models.Handle, name string) ([]models.Handle, error) {
	var out []models.Handle
	err := c.call(ctx, "query_plans", map[string]any{"case": caseHandle, "name": name}, &out)
	return out, err
}

func (c *Client) AddPlan(ctx context.Context, caseHandle models.Handle, spec planning.PlanSpec) error {
	return c.call(ctx, "add_plan", map[string]any{"case": caseHandle, "spec": spec}, nil)
}

func (c *Client) Plan(ctx context.Context, caseHandle models.Handle, name string) (models.Handle, error) {
	var h models.Handle
	err := c.call(ctx, "get_plan", map[string]any{"case": caseHandle, "name": name}, &h)
	return h, err
}

// =============================================================================
// SESSION
// =============================================================================

// selectionOrder lists kinds from outermost to innermost. Selecting one kind
// invalidates every kind after it.
var selectionOrder = []models.Kind{
	models.KindPatient, models.KindCase, models.KindPlan, models.KindBeamSet,
}

// SetCurrent selects h in the application. Selecting the handle that is
// already current is skipped.
func (c *Client) SetCurrent(ctx context.Context, h models.Handle) error {
	c.mu.Lock()
	same := c.current[h.Kind] == h.ID && h.ID != ""
	c.mu.Unlock()
	if same {
		return nil
	}
	if err := c.call(ctx, "set_current", map[string]any{"handle": h}, nil); err != nil {
		return err
	}
	c.markCurrent(h)
	return nil
}

func (c *Client) markCurrent(h models.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inner := false
	for _, k := range selectionOrder {
		if inner {
			delete(c.current, k)
		}
		if k == h.Kind {
			inner = true
		}
	}
	c.current[h.Kind] = h.ID
}

func (c *Client) SavePatient(ctx context.Context, patient models.Handle) error {
	return c.call(ctx, "save_patient", map[string]any{"patient": patient}, nil)
}

// =============================================================================
// BEAMSETS AND PLACEMENT
// =============================================================================

func (c *Client) QueryBeamSetNames(ctx context.Context, plan models.Handle, prefix string) ([]string, error) {
	var out []string
	err := c.call(ctx, "query_beamset_names", map[string]any{"plan": plan, "prefix": prefix}, &out)
	return out, err
}

func (c *Client) CreateBeamSet(ctx context.Context, pc models.PatientContext, def models.BeamSetDefinition) (models.Handle, error) {
	var h models.Handle
	err := c.call(ctx, "create_beamset", map[string]any{
		"patient":    pc.Patient,
		"case":       pc.Case,
		"exam":       pc.Exam,
		"plan":       pc.Plan,
		"definition": def,
	}, &h)
	return h, err
}

func (c *Client) Isocenter(ctx context.Context, caseHandle, exam, beamSet models.Handle, target string) (models.Isocenter, error) {
	var iso models.Isocenter
	err := c.call(ctx, "isocenter", map[string]any{
		"case":    caseHandle,
		"exam":    exam,
		"beamset": beamSet,
		"target":  target,
	}, &iso)
	return iso, err
}

func (c *Client) PlaceTomoBeam(ctx context.Context, plan, beamSet models.Handle, iso models.Isocenter, beam models.Beam) error {
	return c.call(ctx, "place_tomo_beam", map[string]any{
		"plan":      plan,
		"beamset":   beamSet,
		"isocenter": iso,
		"beam":      beam,
	}, nil)
}

func (c *Client) PlaceBeams(ctx context.Context, beamSet models.Handle, iso models.Isocenter, beams []models.Beam) error {
	return c.call(ctx, "place_beams", map[string]any{
		"beamset":   beamSet,
		"isocenter": iso,
		"beams":     beams,
	}, nil)
}

func (c *Client) GenerateRegions(ctx context.Context, caseHandle, exam models.Handle, req models.RegionRequest) error {
	return c.call(ctx, "generate_regions", map[string]any{
		"case":    caseHandle,
		"exam":    exam,
		"request": req,
	}, nil)
}
