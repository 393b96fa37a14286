package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
	"github.com/hpungsan/voidmem/internal/ops"
	"github.com/hpungsan/voidmem/internal/telemetry"
)

// Handlers holds dependencies for MCP tool handlers. Calls hold the session
// lock so each tool sees a consistent manager and snapshot store.
type Handlers struct {
	session *ops.Session
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(session *ops.Session) *Handlers {
	return &Handlers{session: session}
}

// Request types for each tool

// RegisterRequest represents the arguments for memory_register.
type RegisterRequest struct {
	Chunks []ops.ChunkInput `json:"chunks"`
}

// ReinforceRequest represents the arguments for memory_reinforce.
type ReinforceRequest struct {
	Batch    *memory.Batch   `json:"batch,omitempty"`
	Results  *memory.Results `json:"results,omitempty"`
	HeatGain *float64        `json:"heat_gain,omitempty"`
	TTLBoost *int            `json:"ttl_boost,omitempty"`
}

// TickRequest represents the arguments for memory_tick.
type TickRequest struct {
	Steps int `json:"steps,omitempty"`
}

// DegradeRequest represents the arguments for memory_degrade.
type DegradeRequest struct {
	IDs      []string `json:"ids"`
	TTLFloor *int     `json:"ttl_floor,omitempty"`
}

// RemoveRequest represents the arguments for memory_remove.
type RemoveRequest struct {
	IDs []string `json:"ids"`
}

// EngramRequest represents the arguments for memory_engram.
type EngramRequest struct {
	SummaryID string   `json:"summary_id"`
	Members   []string `json:"members"`
}

// TopRequest represents the arguments for memory_top.
type TopRequest struct {
	N int `json:"n,omitempty"`
}

// InspectRequest represents the arguments for memory_inspect.
type InspectRequest struct {
	ID string `json:"id"`
}

// EventsRequest represents the arguments for memory_events.
type EventsRequest struct {
	Consume bool `json:"consume,omitempty"`
	Limit   int  `json:"limit,omitempty"`
}

// HistoryRequest represents the arguments for memory_history.
type HistoryRequest struct {
	Type          string `json:"type,omitempty"`
	AfterSequence uint64 `json:"after_sequence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// SnapshotsRequest represents the arguments for memory_snapshots.
type SnapshotsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// TelemetryRequest represents the arguments for memory_telemetry.
type TelemetryRequest struct {
	Iterations      *int `json:"iterations,omitempty"`
	BatchSize       *int `json:"batch_size,omitempty"`
	IncludeMarkdown bool `json:"include_markdown,omitempty"`
}

// HandleRegister handles the memory_register tool call.
func (h *Handlers) HandleRegister(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RegisterRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Register(ctx, h.session, ops.RegisterInput{Chunks: r.Chunks})
	})
}

// HandleReinforce handles the memory_reinforce tool call.
func (h *Handlers) HandleReinforce(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[ReinforceRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Reinforce(ctx, h.session, ops.ReinforceInput{
			Batch:    r.Batch,
			Results:  r.Results,
			HeatGain: r.HeatGain,
			TTLBoost: r.TTLBoost,
		})
	})
}

// HandleTick handles the memory_tick tool call.
func (h *Handlers) HandleTick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TickRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Tick(ctx, h.session, ops.TickInput{Steps: r.Steps})
	})
}

// HandleDegrade handles the memory_degrade tool call.
func (h *Handlers) HandleDegrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[DegradeRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Degrade(ctx, h.session, ops.DegradeInput{IDs: r.IDs, TTLFloor: r.TTLFloor})
	})
}

// HandleRemove handles the memory_remove tool call.
func (h *Handlers) HandleRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[RemoveRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Remove(ctx, h.session, ops.RemoveInput{IDs: r.IDs})
	})
}

// HandleEngram handles the memory_engram tool call.
func (h *Handlers) HandleEngram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[EngramRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.mutate(ctx, func() (any, error) {
		return ops.Engram(ctx, h.session, ops.EngramInput{SummaryID: r.SummaryID, Members: r.Members})
	})
}

// HandleStats handles the memory_stats tool call.
func (h *Handlers) HandleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.read(func() (any, error) {
		return ops.Stats(ctx, h.session)
	})
}

// HandleTop handles the memory_top tool call.
func (h *Handlers) HandleTop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TopRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.read(func() (any, error) {
		return ops.Top(ctx, h.session, ops.TopInput{N: r.N})
	})
}

// HandleInspect handles the memory_inspect tool call.
func (h *Handlers) HandleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[InspectRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.read(func() (any, error) {
		return ops.Inspect(ctx, h.session, ops.InspectInput{ID: r.ID})
	})
}

// HandleTerritories handles the memory_territories tool call.
func (h *Handlers) HandleTerritories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.read(func() (any, error) {
		return ops.Territories(ctx, h.session)
	})
}

// HandleEvents handles the memory_events tool call. Drained events go to the
// archive; the buffer is not part of a snapshot, so no commit follows.
func (h *Handlers) HandleEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[EventsRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	if r.Consume {
		return h.read(func() (any, error) {
			return ops.Drain(ctx, h.session)
		})
	}
	return h.read(func() (any, error) {
		return ops.Peek(ctx, h.session, ops.PeekInput{Limit: r.Limit})
	})
}

// HandleHistory handles the memory_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.read(func() (any, error) {
		return ops.History(ctx, h.session, ops.HistoryInput{
			Type:          r.Type,
			AfterSequence: r.AfterSequence,
			Limit:         r.Limit,
		})
	})
}

// HandleCheckpoint handles the memory_checkpoint tool call.
func (h *Handlers) HandleCheckpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.read(func() (any, error) {
		return ops.Checkpoint(ctx, h.session)
	})
}

// HandleSnapshots handles the memory_snapshots tool call.
func (h *Handlers) HandleSnapshots(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[SnapshotsRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	return h.read(func() (any, error) {
		return ops.Snapshots(ctx, h.session, ops.SnapshotsInput{Limit: r.Limit, Offset: r.Offset})
	})
}

// HandleTelemetry handles the memory_telemetry tool call.
func (h *Handlers) HandleTelemetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := decode[TelemetryRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	probe := telemetry.DefaultProbeConfig()
	if r.Iterations != nil {
		probe.Iterations = *r.Iterations
	}
	if r.BatchSize != nil {
		probe.BatchSize = *r.BatchSize
	}
	return h.read(func() (any, error) {
		out, err := ops.Telemetry(ctx, h.session, ops.TelemetryInput{Probe: &probe})
		if err != nil {
			return nil, err
		}
		if !r.IncludeMarkdown {
			out.Markdown = ""
		}
		return out, nil
	})
}

// read runs fn under the session lock.
func (h *Handlers) read(fn func() (any, error)) (*mcp.CallToolResult, error) {
	h.session.Lock()
	defer h.session.Unlock()

	out, err := fn()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// mutate runs fn under the session lock and commits a snapshot afterwards
// when autosave is enabled. A failed commit is logged; the tool result
// still reports the applied change.
func (h *Handlers) mutate(ctx context.Context, fn func() (any, error)) (*mcp.CallToolResult, error) {
	h.session.Lock()
	defer h.session.Unlock()

	out, err := fn()
	if err != nil {
		return errorResult(err), nil
	}
	if h.session.Config.AutosaveEnabled() {
		if _, cerr := h.session.Commit(ctx); cerr != nil {
			h.session.Logger.Warn("autosave failed", zap.String("store", h.session.Store), zap.Error(cerr))
		}
	}
	return successResult(out)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var vErr *errors.VoidError
	if stderrors.As(err, &vErr) {
		errorObj := map[string]any{
			"code":    vErr.Code,
			"message": vErr.Message,
			"status":  vErr.Status,
		}
		if err != error(vErr) {
			errorObj["message"] = err.Error()
		}
		// Internal messages may carry file paths or SQL text.
		if vErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if vErr.Details != nil {
			errorObj["details"] = vErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
