package telemetry

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hpungsan/voidmem/internal/memory"
)

func seededManager(t *testing.T, n int) *memory.Manager {
	t.Helper()
	m, err := memory.New(memory.DefaultParams(), memory.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	ids := make([]string, n)
	texts := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("c%d", i)
		texts[i] = fmt.Sprintf("signal%02d pattern%02d", i, i)
	}
	require.NoError(t, m.RegisterChunks(ids, texts))
	m.ConsumeEvents()
	return m
}

func relaxed() Thresholds {
	return Thresholds{MinRewardEMA: 0.1, MaxAvgHeatDelta: 1000, MaxHeat: 1000}
}

func TestDrive_RotatesBatches(t *testing.T) {
	m := seededManager(t, 6)
	cfg := DefaultProbeConfig()

	samples, err := Drive(context.Background(), m, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, samples, cfg.Iterations)

	assert.Equal(t, "window-1", samples[0].Label)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, samples[0].ReinforcedIDs)
	assert.Equal(t, []string{"c2", "c3", "c4", "c5"}, samples[1].ReinforcedIDs)
	assert.Equal(t, []string{"c3", "c4", "c5", "c0"}, samples[2].ReinforcedIDs)

	for i, s := range samples {
		assert.Equal(t, int64(i+1), s.Tick, s.Label)
		assert.Equal(t, 4, s.Events["reinforce"], s.Label)
		assert.Equal(t, 1, s.Events["decay"], s.Label)
		want := 0
		if (i+1)%cfg.DegradeInterval == 0 {
			want = 1
		}
		assert.Equal(t, want, s.Events["degrade"], s.Label)
	}
	assert.Greater(t, samples[len(samples)-1].RewardEMA, samples[0].RewardEMA)
}

func TestDrive_ClampsBatchToLiveSet(t *testing.T) {
	m := seededManager(t, 2)
	cfg := DefaultProbeConfig()
	cfg.Iterations = 3

	samples, err := Drive(context.Background(), m, cfg, nil)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for _, s := range samples {
		assert.Len(t, s.ReinforcedIDs, 2)
	}
}

func TestDrive_EmptyManager(t *testing.T) {
	m, err := memory.New(memory.DefaultParams())
	require.NoError(t, err)

	samples, err := Drive(context.Background(), m, DefaultProbeConfig(), nil)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestDrive_Cancelled(t *testing.T) {
	m := seededManager(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	samples, err := Drive(ctx, m, DefaultProbeConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, samples)
	assert.Equal(t, int64(0), m.CurrentTick())
}

func TestDrive_Deterministic(t *testing.T) {
	a := seededManager(t, 8)
	b, err := a.Clone()
	require.NoError(t, err)

	sa, err := Drive(context.Background(), a, DefaultProbeConfig(), nil)
	require.NoError(t, err)
	sb, err := Drive(context.Background(), b, DefaultProbeConfig(), nil)
	require.NoError(t, err)

	if diff := cmp.Diff(sa, sb); diff != "" {
		t.Errorf("probe runs differ (-a +b):\n%s", diff)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, DefaultThresholds())
	assert.Equal(t, StatusOK, s.Status)
	assert.Empty(t, s.Anomalies)
	assert.Empty(t, s.EventTotals)
}

func TestSummarize_Aggregates(t *testing.T) {
	samples := []Sample{
		{Label: "window-1", RewardEMA: 0.2, AvgHeat: 0.5, MaxHeat: 1.0, Territories: 2, FrontierSize: 3,
			Events: map[string]int{"reinforce": 4, "decay": 1}},
		{Label: "window-2", RewardEMA: 0.3, AvgHeat: 1.5, MaxHeat: 2.0, Territories: 5, FrontierSize: 1,
			Events: map[string]int{"reinforce": 4, "prune": 2}},
		{Label: "window-3", RewardEMA: 0.4, AvgHeat: 1.0, MaxHeat: 2.5, Territories: 3, FrontierSize: 2,
			Events: map[string]int{"decay": 1}},
	}

	s := Summarize(samples, DefaultThresholds())

	assert.Equal(t, map[string]int{"reinforce": 8, "decay": 2, "prune": 2}, s.EventTotals)
	assert.InDelta(t, 0.5, s.HeatTrend.AvgDelta, 1e-9)
	assert.InDelta(t, 1.5, s.HeatTrend.MaxDelta, 1e-9)
	assert.Equal(t, 0.4, s.FinalRewardEMA)
	assert.Equal(t, 2, s.FinalFrontier)
	assert.Equal(t, 5, s.TerritorySpan)
	assert.Equal(t, StatusOK, s.Status)
}

func TestDetectAnomalies(t *testing.T) {
	th := DefaultThresholds()
	samples := []Sample{
		{Label: "window-1", AvgHeat: 0.1, MaxHeat: 3.2},
		{Label: "window-2", AvgHeat: 2.9, MaxHeat: 3.9, RewardEMA: 0.05},
	}

	s := Summarize(samples, th)
	require.Equal(t, StatusAlert, s.Status)

	got := make([]string, len(s.Anomalies))
	for i, a := range s.Anomalies {
		got[i] = a.Metric + "/" + a.Severity + "/" + a.Sample
	}
	assert.Equal(t, []string{
		"reward_ema/critical/window-2",
		"avg_heat_delta/warning/window-2",
		"max_heat/warning/window-1",
		"max_heat/critical/window-2",
	}, got)
}

func TestGenerateReport(t *testing.T) {
	m := seededManager(t, 6)
	now := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	r, err := GenerateReport(context.Background(), m, DefaultProbeConfig(), relaxed(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, now, r.GeneratedAt)
	assert.Len(t, r.Samples, 24)
	assert.Equal(t, StatusOK, r.Summary.Status)
	assert.Equal(t, 96, r.Summary.EventTotals["reinforce"])

	strict, err := GenerateReport(context.Background(), seededManager(t, 6), DefaultProbeConfig(), DefaultThresholds(), now, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAlert, strict.Summary.Status)
	var metrics []string
	for _, a := range strict.Summary.Anomalies {
		metrics = append(metrics, a.Metric)
	}
	assert.Contains(t, metrics, "max_heat")
}

func TestRenderMarkdown(t *testing.T) {
	r := &Report{
		GeneratedAt: time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC),
		Samples: []Sample{
			{Label: "window-1", Tick: 1, Count: 6, RewardEMA: 0.04376, AvgHeat: 0.5, MaxHeat: 0.95,
				Territories: 1, FrontierSize: 2, Events: map[string]int{"reinforce": 4}},
		},
	}
	r.Summary = Summarize(r.Samples, DefaultThresholds())

	out := RenderMarkdown(r)
	assert.True(t, strings.HasPrefix(out, ReportTitle+"\n"))
	assert.Contains(t, out, "| window-1 | 1 | 6 | 0.0438 | 0.5000 | 0.9500 | 1 | 2 | 0 | 0 | 4 | 0 | 0 |")
	assert.Contains(t, out, "## Aggregates")
	assert.Contains(t, out, "- Status: ALERT")
	assert.Contains(t, out, "  - reinforce: 4")
	assert.Contains(t, out, "- **CRITICAL** reward_ema (window-1)")
	assert.Contains(t, out, "Generated 2026-03-01T04:00:00Z")
}

func TestRenderMarkdown_NoSamples(t *testing.T) {
	r := &Report{GeneratedAt: time.Unix(0, 0), Summary: Summarize(nil, DefaultThresholds())}
	out := RenderMarkdown(r)
	assert.Contains(t, out, "_No telemetry samples were collected._")
	assert.Contains(t, out, "- Event totals: none")
	assert.Contains(t, out, "- None detected.")
}

func TestBootstrap(t *testing.T) {
	m, err := memory.New(memory.DefaultParams())
	require.NoError(t, err)

	seeded, err := Bootstrap(m)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, len(SeedMemory), m.Stats().Count)

	seeded, err = Bootstrap(m)
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Equal(t, len(SeedMemory), m.Stats().Count)
}
