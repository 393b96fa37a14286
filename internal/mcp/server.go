package mcp

import (
	"context"
	stderrors "errors"
	"io"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"memory_register": {
		def:     registerToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRegister },
	},
	"memory_reinforce": {
		def:     reinforceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReinforce },
	},
	"memory_tick": {
		def:     tickToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTick },
	},
	"memory_degrade": {
		def:     degradeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDegrade },
	},
	"memory_remove": {
		def:     removeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRemove },
	},
	"memory_engram": {
		def:     engramToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEngram },
	},
	"memory_stats": {
		def:     statsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleStats },
	},
	"memory_top": {
		def:     topToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTop },
	},
	"memory_inspect": {
		def:     inspectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInspect },
	},
	"memory_territories": {
		def:     territoriesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTerritories },
	},
	"memory_events": {
		def:     eventsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEvents },
	},
	"memory_history": {
		def:     historyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHistory },
	},
	"memory_checkpoint": {
		def:     checkpointToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCheckpoint },
	},
	"memory_snapshots": {
		def:     snapshotsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshots },
	},
	"memory_telemetry": {
		def:     telemetryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTelemetry },
	},
}

// AllToolNames returns every valid tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server exposing the session's manager.
// Tools listed in the session config's DisabledTools are not registered.
func NewServer(session *ops.Session, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"voidmem",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(session)

	disabled := make(map[string]bool)
	for _, name := range session.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Serve runs the MCP server over stdio-style streams until in closes or ctx
// is cancelled.
func Serve(ctx context.Context, session *ops.Session, version string, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(NewServer(session, version))
	stdio.SetErrorLogger(zap.NewStdLog(session.Logger))

	session.Logger.Info("mcp server listening on stdio", zap.String("store", session.Store))
	err := stdio.Listen(ctx, in, out)
	if err == nil || stderrors.Is(err, context.Canceled) || stderrors.Is(err, io.EOF) {
		return nil
	}
	return err
}
