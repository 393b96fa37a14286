package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/config"
	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
	"github.com/hpungsan/voidmem/internal/telemetry"
)

// Drill artifact names inside a run directory.
const (
	DrillTelemetryFile = "telemetry.json"
	DrillMarkdownFile  = "telemetry.md"
	DrillSnapshotFile  = "post-drill-snapshot.json"
	DrillLogFile       = "drill-log.json"
	DrillHistoryFile   = "history.jsonl"
)

// TelemetryInput contains parameters for the Telemetry operation. Nil
// fields use the nightly probe and the configured thresholds.
type TelemetryInput struct {
	Probe      *telemetry.ProbeConfig
	Thresholds *telemetry.Thresholds
	Now        time.Time
}

// TelemetryOutput is a probe report with its markdown rendering.
type TelemetryOutput struct {
	Report   *telemetry.Report `json:"report"`
	Markdown string            `json:"markdown"`
	Seeded   bool              `json:"seeded"`
}

// Telemetry probes a clone of the session's manager. The session itself is
// not changed. An empty store is probed against the seed corpus.
func Telemetry(ctx context.Context, s *Session, input TelemetryInput) (*TelemetryOutput, error) {
	probe := telemetry.DefaultProbeConfig()
	if input.Probe != nil {
		probe = *input.Probe
	}
	report, _, seeded, err := runProbe(ctx, s, probe, input.Thresholds, input.Now)
	if err != nil {
		return nil, err
	}
	return &TelemetryOutput{Report: report, Markdown: telemetry.RenderMarkdown(report), Seeded: seeded}, nil
}

// runProbe drives a bootstrapped clone of the session's manager and returns
// the report together with the exercised clone.
func runProbe(ctx context.Context, s *Session, probe telemetry.ProbeConfig, th *telemetry.Thresholds, now time.Time) (*telemetry.Report, *memory.Manager, bool, error) {
	if probe.Iterations < 0 || probe.BatchSize < 1 {
		return nil, nil, false, errors.NewValidation("iterations must be >= 0 and batch_size >= 1")
	}
	if math.IsNaN(probe.HeatGain) || math.IsInf(probe.HeatGain, 0) || probe.HeatGain < 0 {
		return nil, nil, false, errors.NewValidationf("heat_gain must be a finite value >= 0, got %v", probe.HeatGain)
	}
	if probe.TTLBoost < 0 {
		return nil, nil, false, errors.NewValidationf("ttl_boost must be >= 0, got %d", probe.TTLBoost)
	}
	thresholds := s.Config.Thresholds()
	if th != nil {
		thresholds = *th
	}
	if now.IsZero() {
		now = time.Now()
	}

	clone, err := s.Manager.Clone()
	if err != nil {
		return nil, nil, false, err
	}
	seeded, err := telemetry.Bootstrap(clone)
	if err != nil {
		return nil, nil, false, err
	}
	report, err := telemetry.GenerateReport(ctx, clone, probe, thresholds, now, s.Logger)
	if err != nil {
		return nil, nil, false, errors.Wrap(err)
	}
	return report, clone, seeded, nil
}

// DrillInput contains parameters for the Drill operation.
type DrillInput struct {
	Probe      *telemetry.ProbeConfig
	Thresholds *telemetry.Thresholds
	OutputDir  string // default: <base>/drills
	Now        time.Time
}

// DrillLog is the drill-log.json record, also appended to history.jsonl.
type DrillLog struct {
	ID                string               `json:"id"`
	Timestamp         string               `json:"timestamp"`
	Store             string               `json:"store"`
	SnapshotSource    string               `json:"snapshot_source,omitempty"`
	Status            string               `json:"status"`
	AnomalyCount      int                  `json:"anomaly_count"`
	Anomalies         []telemetry.Anomaly  `json:"anomalies"`
	Thresholds        telemetry.Thresholds `json:"thresholds"`
	TelemetryReport   string               `json:"telemetry_report"`
	TelemetryMarkdown string               `json:"telemetry_markdown"`
	PostDrillSnapshot string               `json:"post_drill_snapshot"`
}

// DrillOutput contains the result of the Drill operation.
type DrillOutput struct {
	DrillLog
	RunDir  string `json:"run_dir"`
	LogPath string `json:"log_path"`
}

// Drill checkpoints the session, runs the drill probe on a copy, and writes
// the evidence files. Anomalies are reported in the output, not as an error.
func Drill(ctx context.Context, s *Session, input DrillInput) (*DrillOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	outputDir := input.OutputDir
	if outputDir == "" {
		base, err := config.BaseDir()
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		outputDir = filepath.Join(base, "drills")
	}

	commit, err := s.Commit(ctx)
	if err != nil {
		return nil, err
	}

	probe := telemetry.DrillProbeConfig()
	if input.Probe != nil {
		probe = *input.Probe
	}
	report, clone, _, err := runProbe(ctx, s, probe, input.Thresholds, now)
	if err != nil {
		return nil, err
	}
	markdown := telemetry.RenderMarkdown(report)

	timestamp := now.UTC().Format("20060102T150405Z")
	runDir := filepath.Join(outputDir, timestamp)
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create drill directory: %w", err))
	}

	out := &DrillOutput{
		DrillLog: DrillLog{
			ID:                db.NewID(),
			Timestamp:         timestamp,
			Store:             s.Store,
			SnapshotSource:    commit.SnapshotID,
			Status:            report.Summary.Status,
			AnomalyCount:      len(report.Summary.Anomalies),
			Anomalies:         report.Summary.Anomalies,
			Thresholds:        report.Summary.Thresholds,
			TelemetryReport:   filepath.Join(runDir, DrillTelemetryFile),
			TelemetryMarkdown: filepath.Join(runDir, DrillMarkdownFile),
			PostDrillSnapshot: filepath.Join(runDir, DrillSnapshotFile),
		},
		RunDir:  runDir,
		LogPath: filepath.Join(runDir, DrillLogFile),
	}

	reportJSON, err := marshalIndent(report)
	if err != nil {
		return nil, err
	}
	post, err := clone.Save()
	if err != nil {
		return nil, err
	}
	logJSON, err := marshalIndent(out.DrillLog)
	if err != nil {
		return nil, err
	}

	files := []struct {
		path string
		data []byte
	}{
		{out.TelemetryReport, reportJSON},
		{out.TelemetryMarkdown, []byte(markdown)},
		{out.PostDrillSnapshot, post},
		{out.LogPath, logJSON},
	}
	for _, f := range files {
		if err := writeFileAtomic(f.path, f.data); err != nil {
			return nil, err
		}
	}
	if err := appendHistory(filepath.Join(outputDir, DrillHistoryFile), out.DrillLog); err != nil {
		return nil, err
	}

	if err := db.InsertDrill(s.DB, &db.DrillRow{
		ID:         out.ID,
		Store:      s.Store,
		Status:     out.Status,
		Anomalies:  out.AnomalyCount,
		SnapshotID: commit.SnapshotID,
		RunDir:     runDir,
		Report:     markdown,
		CreatedAt:  now.Unix(),
	}); err != nil {
		return nil, err
	}

	s.Logger.Info("drill completed",
		zap.String("status", out.Status),
		zap.Int("anomalies", out.AnomalyCount),
		zap.String("run_dir", runDir))
	return out, nil
}

// DrillsInput contains parameters for the Drills operation.
type DrillsInput struct {
	Limit int
}

// DrillsOutput lists recorded drills, newest first.
type DrillsOutput struct {
	Drills []db.DrillRow `json:"drills"`
}

// Drills lists the store's recorded drills.
func Drills(ctx context.Context, s *Session, input DrillsInput) (*DrillsOutput, error) {
	rows, err := db.ListDrills(s.DB, s.Store, clampLimit(input.Limit, DefaultListLimit, MaxListLimit))
	if err != nil {
		return nil, err
	}
	return &DrillsOutput{Drills: rows}, nil
}

// appendHistory appends one JSON line to the drill history file.
func appendHistory(path string, entry DrillLog) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.NewInternal(err)
	}
	f, err := openFileNoFollow(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		if errors.Is(err, errors.ErrValidation) {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to open drill history: %w", err))
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func marshalIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return append(data, '\n'), nil
}
