package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/voidmem/internal/config"
	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/mcp"
	"github.com/hpungsan/voidmem/internal/memory"
	"github.com/hpungsan/voidmem/internal/ops"
	"github.com/hpungsan/voidmem/internal/telemetry"
	"github.com/hpungsan/voidmem/internal/web"
)

// maxInputBytes caps chunk text and feedback read from stdin or --file.
const maxInputBytes = 8 << 20

// appEnv holds the streams and the lazily opened session shared by commands.
type appEnv struct {
	stdin  io.Reader
	stdout io.Writer

	session  *ops.Session
	database *sql.DB
	logger   *zap.Logger
}

func newEnv(stdin io.Reader, stdout io.Writer) *appEnv {
	return &appEnv{stdin: stdin, stdout: stdout}
}

// open loads config, opens the database and restores the store's latest
// snapshot. Later calls return the same session.
func (e *appEnv) open(c *cli.Context) (*ops.Session, error) {
	if e.session != nil {
		return e.session, nil
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, errors.NewValidationf("load config: %v", err)
	}
	if store := c.String("store"); store != "" {
		cfg.Store = store
	}

	logger, err := newLogger(cfg.LogLevel, c.Bool("verbose"))
	if err != nil {
		return nil, errors.NewValidationf("log_level: %v", err)
	}
	e.logger = logger
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	db.ConfigurePool(database, cfg)
	e.database = database

	session, err := ops.OpenSession(c.Context, database, cfg, logger)
	if err != nil {
		return nil, err
	}
	e.session = session
	return session, nil
}

// close releases what open acquired. A session handed in by tests is left alone.
func (e *appEnv) close() {
	if e.database != nil {
		e.database.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// newLogger builds a JSON logger on stderr. verbose forces debug.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "voidmem",
		Usage:   "Void Dynamics memory manager",
		Version: Version,
		Writer:  env.stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "store", Aliases: []string{"s"}, Usage: "Snapshot store name (overrides config)"},
			&cli.BoolFlag{Name: "verbose", Usage: "Debug logging on stderr"},
		},
		Commands: []*cli.Command{
			registerCmd(env),
			reinforceCmd(env),
			tickCmd(env),
			degradeCmd(env),
			removeCmd(env),
			engramCmd(env),
			statsCmd(env),
			topCmd(env),
			inspectCmd(env),
			territoriesCmd(env),
			eventsCmd(env),
			historyCmd(env),
			checkpointCmd(env),
			snapshotsCmd(env),
			restoreCmd(env),
			pruneSnapshotsCmd(env),
			exportCmd(env),
			importCmd(env),
			seedCmd(env),
			telemetryCmd(env),
			drillCmd(env),
			drillsCmd(env),
			serveCmd(env),
			mcpCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// mutate runs fn against the session and commits the result.
func (e *appEnv) mutate(c *cli.Context, fn func(*ops.Session) (any, error)) error {
	s, err := e.open(c)
	if err != nil {
		return outputError(err)
	}
	out, err := fn(s)
	if err != nil {
		return outputError(err)
	}
	commit, err := s.Commit(c.Context)
	if err != nil {
		return outputError(err)
	}
	s.Logger.Debug("committed", zap.String("snapshot", commit.SnapshotID), zap.Int("archived", commit.Archived))
	return e.outputJSON(out)
}

// query runs fn against the session without committing.
func (e *appEnv) query(c *cli.Context, fn func(*ops.Session) (any, error)) error {
	s, err := e.open(c)
	if err != nil {
		return outputError(err)
	}
	out, err := fn(s)
	if err != nil {
		return outputError(err)
	}
	return e.outputJSON(out)
}

// registerCmd creates the register command.
func registerCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register chunks (one id with --text or stdin, or a JSON array via --file or stdin)",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Chunk text"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: `JSON file of [{"id":..,"text":..}]`},
		},
		Action: func(c *cli.Context) error {
			var input ops.RegisterInput
			if c.NArg() > 0 {
				text := c.String("text")
				if text == "" {
					data, err := env.readInput("")
					if err != nil {
						return outputError(err)
					}
					text = strings.TrimSpace(string(data))
				}
				input.Chunks = []ops.ChunkInput{{ID: c.Args().First(), Text: text}}
			} else {
				data, err := env.readInput(c.String("file"))
				if err != nil {
					return outputError(err)
				}
				if err := decodeStrict(data, &input.Chunks); err != nil {
					return outputError(err)
				}
			}

			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Register(c.Context, s, input)
			})
		},
	}
}

// feedbackPayload accepts either the batch shape or the parallel-list shape.
type feedbackPayload struct {
	Queries   []memory.Query `json:"queries"`
	IDs       [][]string     `json:"ids"`
	Distances [][]float64    `json:"distances"`
}

// reinforceCmd creates the reinforce command.
func reinforceCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "reinforce",
		Usage: `Apply retrieval feedback ({"queries":[...]} or {"ids":[[...]],"distances":[[...]]}) from --file or stdin`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "JSON feedback file"},
			&cli.Float64Flag{Name: "heat-gain", Usage: "Heat added per hit (default from the manager)"},
			&cli.IntFlag{Name: "ttl-boost", Usage: "TTL added per hit (default from the manager)"},
		},
		Action: func(c *cli.Context) error {
			data, err := env.readInput(c.String("file"))
			if err != nil {
				return outputError(err)
			}
			var payload feedbackPayload
			if err := decodeStrict(data, &payload); err != nil {
				return outputError(err)
			}

			var input ops.ReinforceInput
			switch {
			case payload.Queries != nil && (payload.IDs != nil || payload.Distances != nil):
				return outputError(errors.NewValidation("specify either queries or ids/distances, not both"))
			case payload.Queries != nil:
				input.Batch = &memory.Batch{Queries: payload.Queries}
			case payload.IDs != nil || payload.Distances != nil:
				input.Results = &memory.Results{IDs: payload.IDs, Distances: payload.Distances}
			default:
				return outputError(errors.NewValidation("feedback requires queries or ids/distances"))
			}
			if c.IsSet("heat-gain") {
				gain := c.Float64("heat-gain")
				input.HeatGain = &gain
			}
			if c.IsSet("ttl-boost") {
				boost := c.Int("ttl-boost")
				input.TTLBoost = &boost
			}

			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Reinforce(c.Context, s, input)
			})
		},
	}
}

// tickCmd creates the tick command.
func tickCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Advance the clock: decay, diffusion, territory upkeep and pruning",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "steps", Aliases: []string{"n"}, Value: 1, Usage: "Number of steps"},
		},
		Action: func(c *cli.Context) error {
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Tick(c.Context, s, ops.TickInput{Steps: c.Int("steps")})
			})
		},
	}
}

// degradeCmd creates the degrade command.
func degradeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "degrade",
		Usage:     "Cap ttl and raise boredom for chunks",
		ArgsUsage: "<id>...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "ttl-floor", Value: ops.DefaultTTLFloor, Usage: "Maximum ttl after degrading"},
		},
		Action: func(c *cli.Context) error {
			floor := c.Int("ttl-floor")
			input := ops.DegradeInput{IDs: c.Args().Slice(), TTLFloor: &floor}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Degrade(c.Context, s, input)
			})
		},
	}
}

// removeCmd creates the remove command.
func removeCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove chunks",
		ArgsUsage: "<id>...",
		Action: func(c *cli.Context) error {
			input := ops.RemoveInput{IDs: c.Args().Slice()}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Remove(c.Context, s, input)
			})
		},
	}
}

// engramCmd creates the engram command.
func engramCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "engram",
		Usage:     "Record that a summary condenses member chunks",
		ArgsUsage: "<summary-id> <member-id>...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return outputError(errors.NewValidation("engram requires a summary id and at least one member"))
			}
			args := c.Args().Slice()
			input := ops.EngramInput{SummaryID: args[0], Members: args[1:]}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Engram(c.Context, s, input)
			})
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show manager statistics",
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Stats(c.Context, s)
			})
		},
	}
}

// topCmd creates the top command.
func topCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "List the highest scoring chunks and the exploration frontier",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "n", Value: ops.DefaultTopLimit, Usage: "Number of chunks"},
		},
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Top(c.Context, s, ops.TopInput{N: c.Int("n")})
			})
		},
	}
}

// inspectCmd creates the inspect command.
func inspectCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show one chunk's full state",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Inspect(c.Context, s, ops.InspectInput{ID: c.Args().First()})
			})
		},
	}
}

// territoriesCmd creates the territories command.
func territoriesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "territories",
		Usage: "List territories and their members",
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Territories(c.Context, s)
			})
		},
	}
}

// eventsCmd creates the events command.
func eventsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Show buffered events, or drain them into the archive",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "consume", Usage: "Drain the buffer into the archive"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum events to show (peek only)"},
		},
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				if c.Bool("consume") {
					return ops.Drain(c.Context, s)
				}
				return ops.Peek(c.Context, s, ops.PeekInput{Limit: c.Int("limit")})
			})
		},
	}
}

// historyCmd creates the history command.
func historyCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Query archived events",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "Event type filter (register, reinforce, split, ...)"},
			&cli.Uint64Flag{Name: "after", Usage: "Only events after this sequence number"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultHistoryLimit, Usage: "Maximum events"},
		},
		Action: func(c *cli.Context) error {
			input := ops.HistoryInput{
				Type:          c.String("type"),
				AfterSequence: c.Uint64("after"),
				Limit:         c.Int("limit"),
			}
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.History(c.Context, s, input)
			})
		},
	}
}

// checkpointCmd creates the checkpoint command.
func checkpointCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "checkpoint",
		Usage: "Archive buffered events and save a snapshot",
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Checkpoint(c.Context, s)
			})
		},
	}
}

// snapshotsCmd creates the snapshots command.
func snapshotsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "snapshots",
		Usage: "List saved snapshots, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			input := ops.SnapshotsInput{Limit: c.Int("limit"), Offset: c.Int("offset")}
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Snapshots(c.Context, s, input)
			})
		},
	}
}

// restoreCmd creates the restore command.
func restoreCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Restore a saved snapshot and make it the latest",
		ArgsUsage: "<snapshot-id>",
		Action: func(c *cli.Context) error {
			input := ops.RestoreInput{SnapshotID: c.Args().First()}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Restore(c.Context, s, input)
			})
		},
	}
}

// pruneSnapshotsCmd creates the prune-snapshots command.
func pruneSnapshotsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "prune-snapshots",
		Usage: "Permanently delete all but the newest snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keep", Aliases: []string{"k"}, Value: 1, Usage: "Snapshots to keep (at least 1)"},
		},
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.PruneSnapshots(c.Context, s, ops.PruneSnapshotsInput{Keep: c.Int("keep")})
			})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the current state to a JSON snapshot file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.voidmem/exports/<store>-<timestamp>.json)"},
		},
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Export(c.Context, s, ops.ExportInput{Path: c.String("path")})
			})
		},
	}
}

// importCmd creates the import command.
func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace the current state with a JSON snapshot file",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			input := ops.ImportInput{Path: c.Args().First()}
			if input.Path == "" {
				return outputError(errors.NewValidation("path is required"))
			}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Import(c.Context, s, input)
			})
		},
	}
}

// seedCmd creates the seed command.
func seedCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Register the baseline telemetry corpus",
		Action: func(c *cli.Context) error {
			chunks := make([]ops.ChunkInput, len(telemetry.SeedMemory))
			for i, sc := range telemetry.SeedMemory {
				chunks[i] = ops.ChunkInput{ID: sc.ID, Text: sc.Text}
			}
			return env.mutate(c, func(s *ops.Session) (any, error) {
				return ops.Register(c.Context, s, ops.RegisterInput{Chunks: chunks})
			})
		},
	}
}

// probeFlags are shared by telemetry and drill.
func probeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "iterations", Usage: "Probe windows"},
		&cli.IntFlag{Name: "batch-size", Usage: "Chunks reinforced per window"},
	}
}

// probeConfig overlays the probe flags that were set onto base.
func probeConfig(c *cli.Context, base telemetry.ProbeConfig) *telemetry.ProbeConfig {
	if c.IsSet("iterations") {
		base.Iterations = c.Int("iterations")
	}
	if c.IsSet("batch-size") {
		base.BatchSize = c.Int("batch-size")
	}
	return &base
}

// telemetryCmd creates the telemetry command.
func telemetryCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "telemetry",
		Usage: "Probe a copy of the manager and report anomalies (exit 4 when any are found)",
		Flags: append(probeFlags(),
			&cli.BoolFlag{Name: "markdown", Usage: "Print the markdown report instead of JSON"},
		),
		Action: func(c *cli.Context) error {
			s, err := env.open(c)
			if err != nil {
				return outputError(err)
			}
			out, err := ops.Telemetry(c.Context, s, ops.TelemetryInput{
				Probe: probeConfig(c, telemetry.DefaultProbeConfig()),
			})
			if err != nil {
				return outputError(err)
			}

			if c.Bool("markdown") {
				_, err = fmt.Fprint(env.stdout, out.Markdown)
			} else {
				err = env.outputJSON(out.Report)
			}
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if n := len(out.Report.Summary.Anomalies); n > 0 {
				return outputError(errors.NewAnomaly(n))
			}
			return nil
		},
	}
}

// drillCmd creates the drill command.
func drillCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "drill",
		Usage: "Checkpoint, probe a copy and write recovery evidence (exit 4 on anomalies)",
		Flags: append(probeFlags(),
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "Evidence directory (default: ~/.voidmem/drills)"},
		),
		Action: func(c *cli.Context) error {
			s, err := env.open(c)
			if err != nil {
				return outputError(err)
			}
			out, err := ops.Drill(c.Context, s, ops.DrillInput{
				Probe:     probeConfig(c, telemetry.DrillProbeConfig()),
				OutputDir: c.String("output-dir"),
			})
			if err != nil {
				return outputError(err)
			}
			if err := env.outputJSON(out); err != nil {
				return outputError(errors.NewInternal(err))
			}
			if out.AnomalyCount > 0 {
				return outputError(errors.NewAnomaly(out.AnomalyCount))
			}
			return nil
		},
	}
}

// drillsCmd creates the drills command.
func drillsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "drills",
		Usage: "List recorded drills, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
		},
		Action: func(c *cli.Context) error {
			return env.query(c, func(s *ops.Session) (any, error) {
				return ops.Drills(c.Context, s, ops.DrillsInput{Limit: c.Int("limit")})
			})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web dashboard, optionally with the MCP server on stdio",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Listen address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Listen port (default from config)"},
			&cli.BoolFlag{Name: "mcp", Usage: "Also serve MCP over stdin/stdout"},
		},
		Action: func(c *cli.Context) error {
			s, err := env.open(c)
			if err != nil {
				return outputError(err)
			}
			bind, port := s.Config.WebBind, s.Config.WebPort
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			if c.IsSet("port") {
				port = c.Int("port")
			}
			srv, err := web.NewServer(s, Version, bind, port)
			if err != nil {
				return outputError(err)
			}

			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return web.Run(gctx, srv, s.Logger)
			})
			if c.Bool("mcp") {
				g.Go(func() error {
					// The dashboard stops with the MCP client.
					defer cancel()
					return mcp.Serve(gctx, s, Version, env.stdin, env.stdout)
				})
			}
			err = g.Wait()
			if ferr := finalCommit(s); err == nil {
				err = ferr
			}
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve MCP over stdin/stdout (default when input is piped)",
		Action: func(c *cli.Context) error {
			s, err := env.open(c)
			if err != nil {
				return outputError(err)
			}
			err = mcp.Serve(c.Context, s, Version, env.stdin, env.stdout)
			if ferr := finalCommit(s); err == nil {
				err = ferr
			}
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// finalCommit saves events still buffered when a server stops. It runs on a
// fresh context because the serving one is usually cancelled by then.
func finalCommit(s *ops.Session) error {
	s.Lock()
	defer s.Unlock()
	if !s.Config.AutosaveEnabled() {
		return nil
	}
	if buffered, _ := s.Manager.EventBacklog(); buffered == 0 {
		return nil
	}
	out, err := s.Commit(context.Background())
	if err != nil {
		return err
	}
	s.Logger.Info("final checkpoint", zap.String("snapshot", out.SnapshotID), zap.Int("archived", out.Archived))
	return nil
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func (e *appEnv) outputJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI with the exit code of its category.
func outputError(err error) error {
	var vErr *errors.VoidError
	if stderrors.As(err, &vErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", vErr.Code, vErr.Message), vErr.ExitCode())
	}
	return cli.Exit(err.Error(), errors.ExitCode(err))
}

// readInput reads path, or stdin when path is empty.
func (e *appEnv) readInput(path string) ([]byte, error) {
	var r io.Reader
	switch {
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewNotFound("file", path)
			}
			return nil, errors.NewInternal(err)
		}
		defer f.Close()
		r = f
	case e.stdinHasData():
		r = e.stdin
	default:
		return nil, errors.NewValidation("input must be piped via stdin or given with --file")
	}

	data, err := readLimited(r, maxInputBytes)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewValidation("input is empty")
	}
	return data, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func (e *appEnv) stdinHasData() bool {
	if e.stdin == nil {
		return false
	}
	f, ok := e.stdin.(*os.File)
	if !ok {
		return true
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readLimited reads all of r, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return nil, errors.NewValidationf("input exceeds %d bytes", limit)
	}
	return data, nil
}

// decodeStrict unmarshals JSON, rejecting unknown fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationf("invalid JSON input: %v", err)
	}
	return nil
}
