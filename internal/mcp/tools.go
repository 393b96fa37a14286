package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = map[string]any{"type": "string"}

var registerToolDef = mcp.NewTool("memory_register",
	mcp.WithDescription("Register text chunks. Ids that are already live are refreshed with the new text."),
	mcp.WithArray("chunks",
		mcp.Required(),
		mcp.Description("Chunks to register: [{\"id\": \"...\", \"text\": \"...\"}]"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":   map[string]any{"type": "string"},
				"text": map[string]any{"type": "string"},
			},
			"required": []string{"id", "text"},
		}),
	),
)

var reinforceToolDef = mcp.NewTool("memory_reinforce",
	mcp.WithDescription("Apply retrieval feedback. Pass either batch (queries of id/distance matches) or results (parallel ids/distances lists)."),
	mcp.WithObject("batch",
		mcp.Description("{\"queries\": [{\"matches\": [{\"id\": \"...\", \"distance\": 0.1}]}]}"),
	),
	mcp.WithObject("results",
		mcp.Description("{\"ids\": [[\"...\"]], \"distances\": [[0.1]]}"),
	),
	mcp.WithNumber("heat_gain",
		mcp.Description("Heat added per match, scaled by similarity (default 1.0)"),
	),
	mcp.WithNumber("ttl_boost",
		mcp.Description("Ticks added to a matched chunk's ttl (default 60)"),
	),
)

var tickToolDef = mcp.NewTool("memory_tick",
	mcp.WithDescription("Advance the logical clock. Runs decay, expiry, diffusion and territory maintenance per step."),
	mcp.WithNumber("steps",
		mcp.Description("Number of ticks to advance (default 1)"),
	),
)

var degradeToolDef = mcp.NewTool("memory_degrade",
	mcp.WithDescription("Cap ttl and raise boredom for chunks that proved unhelpful."),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Chunk ids to degrade"),
		mcp.Items(stringItems),
	),
	mcp.WithNumber("ttl_floor",
		mcp.Description("ttl cap applied to each chunk (default 24)"),
	),
)

var removeToolDef = mcp.NewTool("memory_remove",
	mcp.WithDescription("Remove chunks. Unknown ids are ignored."),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Chunk ids to remove"),
		mcp.Items(stringItems),
	),
)

var engramToolDef = mcp.NewTool("memory_engram",
	mcp.WithDescription("Record a consolidation group: a summary id and the live chunks it condenses."),
	mcp.WithString("summary_id",
		mcp.Required(),
		mcp.Description("Id of the summary"),
	),
	mcp.WithArray("members",
		mcp.Required(),
		mcp.Description("Member chunk ids; ids that are not live are dropped"),
		mcp.Items(stringItems),
	),
)

var statsToolDef = mcp.NewTool("memory_stats",
	mcp.WithDescription("Summarize the live set: counts, averages, reward EMA, territories and event backlog."),
)

var topToolDef = mcp.NewTool("memory_top",
	mcp.WithDescription("List the best chunks by composite score, plus the exploration frontier."),
	mcp.WithNumber("n",
		mcp.Description("Number of chunks (default 10, max 100)"),
	),
)

var inspectToolDef = mcp.NewTool("memory_inspect",
	mcp.WithDescription("Show one chunk's full state with derived scores."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Chunk id"),
	),
)

var territoriesToolDef = mcp.NewTool("memory_territories",
	mcp.WithDescription("List territories with their members and aggregates."),
)

var eventsToolDef = mcp.NewTool("memory_events",
	mcp.WithDescription("Show buffered events. With consume=true the buffer is drained and archived."),
	mcp.WithBoolean("consume",
		mcp.Description("Drain the buffer instead of peeking (default false)"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max events when peeking (default all)"),
	),
)

var historyToolDef = mcp.NewTool("memory_history",
	mcp.WithDescription("Read archived events in sequence order."),
	mcp.WithString("type",
		mcp.Description("Filter by event type (register, reinforce, prune, split, ...)"),
	),
	mcp.WithNumber("after_sequence",
		mcp.Description("Only events with a greater sequence"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max events (default 100, max 1000)"),
	),
)

var checkpointToolDef = mcp.NewTool("memory_checkpoint",
	mcp.WithDescription("Save a snapshot of the manager now and archive buffered events."),
)

var snapshotsToolDef = mcp.NewTool("memory_snapshots",
	mcp.WithDescription("List saved snapshots of the current store, newest first."),
	mcp.WithNumber("limit",
		mcp.Description("Max results (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Pagination offset"),
	),
)

var telemetryToolDef = mcp.NewTool("memory_telemetry",
	mcp.WithDescription("Run the telemetry probe against a copy of the manager and return the report. The live manager is not changed."),
	mcp.WithNumber("iterations",
		mcp.Description("Probe windows (default 24)"),
	),
	mcp.WithNumber("batch_size",
		mcp.Description("Chunks reinforced per window (default 4)"),
	),
	mcp.WithBoolean("include_markdown",
		mcp.Description("Include the markdown rendering (default false)"),
	),
)
