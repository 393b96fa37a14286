package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/voidmem/internal/db"
	"github.com/hpungsan/voidmem/internal/errors"
	"github.com/hpungsan/voidmem/internal/memory"
	"github.com/hpungsan/voidmem/internal/telemetry"
)

func TestTelemetry_ProbesACopy(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)

	out, err := Telemetry(ctx, s, TelemetryInput{Now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, out.Seeded)
	assert.Len(t, out.Report.Samples, telemetry.DefaultProbeConfig().Iterations)
	assert.True(t, strings.HasPrefix(out.Markdown, telemetry.ReportTitle))
	assert.Contains(t, out.Markdown, "Generated 2026-01-02T03:04:05Z")

	assert.Equal(t, 0, s.Manager.Stats().Count)
	assert.Equal(t, int64(0), s.Manager.CurrentTick())
}

func TestTelemetry_UsesLiveChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t)
	register(t, s, "a", "alpha signal", "b", "beta signal")

	probe := telemetry.DefaultProbeConfig()
	probe.Iterations = 2
	out, err := Telemetry(ctx, s, TelemetryInput{Probe: &probe, Thresholds: &telemetry.Thresholds{MaxHeat: 100, MaxAvgHeatDelta: 100}})
	require.NoError(t, err)
	assert.False(t, out.Seeded)
	require.Len(t, out.Report.Samples, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, out.Report.Samples[0].ReinforcedIDs)
	assert.Equal(t, telemetry.StatusOK, out.Report.Summary.Status)
}

func TestTelemetry_Validation(t *testing.T) {
	s := newTestSession(t)
	probe := telemetry.DefaultProbeConfig()
	probe.BatchSize = 0
	_, err := Telemetry(context.Background(), s, TelemetryInput{Probe: &probe})
	require.Error(t, err)

	for name, mutate := range map[string]func(*telemetry.ProbeConfig){
		"negative heat gain": func(p *telemetry.ProbeConfig) { p.HeatGain = -1 },
		"nan heat gain":      func(p *telemetry.ProbeConfig) { p.HeatGain = math.NaN() },
		"negative ttl boost": func(p *telemetry.ProbeConfig) { p.TTLBoost = -5 },
	} {
		t.Run(name, func(t *testing.T) {
			probe := telemetry.DefaultProbeConfig()
			mutate(&probe)
			_, err := Telemetry(context.Background(), s, TelemetryInput{Probe: &probe})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation), err.Error())
			assert.Equal(t, errors.ExitValidation, errors.ExitCode(err))
		})
	}
}

func TestTelemetry_CanceledContext(t *testing.T) {
	s := newTestSession(t)
	register(t, s, "a", "alpha signal")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	probe := telemetry.DefaultProbeConfig()
	_, err := Telemetry(ctx, s, TelemetryInput{Probe: &probe})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInternal))
}

func TestDrill_WritesEvidence(t *testing.T) {
	ctx := context.Background()
	base, database := testEnv(t)
	s := openTestSession(t, database, nil)
	register(t, s, "a", "alpha signal", "b", "beta signal", "c", "gamma signal")

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	out, err := Drill(ctx, s, DrillInput{Now: now})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "drills", "20260401T120000Z"), out.RunDir)
	assert.NotEmpty(t, out.SnapshotSource)
	assert.Equal(t, len(out.Anomalies), out.AnomalyCount)
	assert.Contains(t, []string{telemetry.StatusOK, telemetry.StatusAlert}, out.Status)

	var report telemetry.Report
	data, err := os.ReadFile(out.TelemetryReport)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Len(t, report.Samples, telemetry.DrillProbeConfig().Iterations)

	md, err := os.ReadFile(out.TelemetryMarkdown)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), telemetry.ReportTitle))

	post, err := os.ReadFile(out.PostDrillSnapshot)
	require.NoError(t, err)
	exercised, err := memory.Load(post)
	require.NoError(t, err)
	assert.Equal(t, int64(8), exercised.CurrentTick())
	assert.Equal(t, int64(0), s.Manager.CurrentTick(), "the session itself is not probed")

	var logged DrillLog
	data, err = os.ReadFile(out.LogPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &logged))
	assert.Equal(t, out.DrillLog.ID, logged.ID)

	_, err = Drill(ctx, s, DrillInput{Now: now.Add(time.Hour)})
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(base, "drills", DrillHistoryFile))
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry DrillLog
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		lines++
	}
	assert.Equal(t, 2, lines)

	drills, err := db.ListDrills(database, "default", 10)
	require.NoError(t, err)
	require.Len(t, drills, 2)
	assert.Equal(t, out.RunDir, drills[1].RunDir)

	listed, err := Drills(ctx, s, DrillsInput{Limit: 1})
	require.NoError(t, err)
	require.Len(t, listed.Drills, 1)
	assert.Equal(t, drills[0].ID, listed.Drills[0].ID)
}
