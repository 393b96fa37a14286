// Package telemetry drives a memory manager through a deterministic probe
// and summarizes its health for nightly reports and recovery drills.
package telemetry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/voidmem/internal/memory"
)

// Status values for a summary.
const (
	StatusOK    = "ok"
	StatusAlert = "alert"
)

// Severity values for an anomaly.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Sample is the manager's health after one probe window.
type Sample struct {
	Label         string         `json:"label"`
	Tick          int64          `json:"tick"`
	Count         int            `json:"count"`
	RewardEMA     float64        `json:"reward_ema"`
	AvgHeat       float64        `json:"avg_heat"`
	MaxHeat       float64        `json:"max_heat"`
	Territories   int            `json:"territories"`
	FrontierSize  int            `json:"frontier_size"`
	Splits        uint64         `json:"split_counter"`
	Merges        uint64         `json:"merge_counter"`
	AvgConfidence float64        `json:"avg_confidence"`
	AvgNovelty    float64        `json:"avg_novelty"`
	AvgBoredom    float64        `json:"avg_boredom"`
	AvgMass       float64        `json:"avg_mass"`
	Events        map[string]int `json:"events"`
	ReinforcedIDs []string       `json:"reinforced_ids"`
}

// Thresholds configures anomaly detection.
type Thresholds struct {
	MinRewardEMA    float64 `json:"min_reward_ema" yaml:"min_reward_ema"`
	MaxAvgHeatDelta float64 `json:"max_avg_heat_delta" yaml:"max_avg_heat_delta"`
	MaxHeat         float64 `json:"max_heat" yaml:"max_heat"`
}

// DefaultThresholds returns the stock anomaly limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRewardEMA:    0.12,
		MaxAvgHeatDelta: 2.5,
		MaxHeat:         3.0,
	}
}

// Anomaly is one threshold breach.
type Anomaly struct {
	Metric   string `json:"metric"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Sample   string `json:"sample"`
}

// HeatTrend compares the last sample with the first.
type HeatTrend struct {
	AvgDelta float64 `json:"avg_delta"`
	MaxDelta float64 `json:"max_delta"`
}

// Summary aggregates a probe run.
type Summary struct {
	EventTotals    map[string]int `json:"event_totals"`
	HeatTrend      HeatTrend      `json:"heat_trend"`
	FinalRewardEMA float64        `json:"final_reward_ema"`
	FinalFrontier  int            `json:"final_frontier"`
	TerritorySpan  int            `json:"territory_span"`
	Thresholds     Thresholds     `json:"thresholds"`
	Anomalies      []Anomaly      `json:"anomalies"`
	Status         string         `json:"status"`
}

// ProbeConfig shapes a probe run.
type ProbeConfig struct {
	Iterations      int     `json:"iterations"`
	BatchSize       int     `json:"batch_size"`
	DegradeInterval int     `json:"degrade_interval"`
	TTLFloor        int     `json:"ttl_floor"`
	HeatGain        float64 `json:"heat_gain"`
	TTLBoost        int     `json:"ttl_boost"`
	TicksPerWindow  int     `json:"ticks_per_window"`
}

// DefaultProbeConfig is the nightly probe.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Iterations:      24,
		BatchSize:       4,
		DegradeInterval: 6,
		TTLFloor:        24,
		HeatGain:        1.0,
		TTLBoost:        120,
		TicksPerWindow:  1,
	}
}

// DrillProbeConfig is the shorter probe used by disaster recovery drills.
func DrillProbeConfig() ProbeConfig {
	cfg := DefaultProbeConfig()
	cfg.Iterations = 8
	cfg.DegradeInterval = 3
	cfg.HeatGain = 0.9
	cfg.TTLBoost = 90
	return cfg
}

// Report is a full probe result.
type Report struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Config      ProbeConfig `json:"config"`
	Samples     []Sample    `json:"samples"`
	Summary     Summary     `json:"summary"`
}

// CollectSample reads the manager's current health.
func CollectSample(m *memory.Manager, label string, events []memory.Event, reinforced []string) Sample {
	st := m.Stats()
	return Sample{
		Label:         label,
		Tick:          st.Tick,
		Count:         st.Count,
		RewardEMA:     st.RewardEMA,
		AvgHeat:       st.AvgHeat,
		MaxHeat:       st.MaxHeat,
		Territories:   st.TerritoryCount,
		FrontierSize:  st.FrontierSize,
		Splits:        st.Splits,
		Merges:        st.Merges,
		AvgConfidence: st.AvgConfidence,
		AvgNovelty:    st.AvgNovelty,
		AvgBoredom:    st.AvgBoredom,
		AvgMass:       st.AvgMass,
		Events:        CountEvents(events),
		ReinforcedIDs: append([]string{}, reinforced...),
	}
}

// CountEvents tallies events by type.
func CountEvents(events []memory.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[string(e.Type)]++
	}
	return counts
}

// Drive runs the probe: each window reinforces a rotating batch of live ids,
// periodically degrades them, advances the clock, and samples. It drains the
// manager's event buffer. Cancellation is checked between windows.
func Drive(ctx context.Context, m *memory.Manager, cfg ProbeConfig, logger *zap.Logger) ([]Sample, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	samples := []Sample{}
	for window := 1; window <= cfg.Iterations; window++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}

		chunks := m.Chunks()
		if len(chunks) == 0 {
			logger.Info("probe stopped: no live chunks", zap.Int("window", window))
			break
		}
		size := cfg.BatchSize
		if size > len(chunks) {
			size = len(chunks)
		}
		ids := make([]string, size)
		distances := make([]float64, size)
		for offset := 0; offset < size; offset++ {
			ids[offset] = chunks[(window+offset)%len(chunks)].ID
			distances[offset] = 0.05 + 0.05*float64(offset)
		}

		batch, err := memory.Results{IDs: [][]string{ids}, Distances: [][]float64{distances}}.Batch()
		if err != nil {
			return samples, err
		}
		if err := m.Reinforce(batch, cfg.HeatGain, cfg.TTLBoost); err != nil {
			return samples, err
		}
		if cfg.DegradeInterval > 0 && window%cfg.DegradeInterval == 0 {
			if _, err := m.Degrade(ids, cfg.TTLFloor); err != nil {
				return samples, err
			}
		}
		if cfg.TicksPerWindow > 0 {
			if err := m.Tick(cfg.TicksPerWindow); err != nil {
				return samples, err
			}
		}

		sample := CollectSample(m, fmt.Sprintf("window-%d", window), m.ConsumeEvents(), ids)
		logger.Debug("probe window",
			zap.String("label", sample.Label),
			zap.Int("count", sample.Count),
			zap.Float64("avg_heat", sample.AvgHeat),
			zap.Float64("reward_ema", sample.RewardEMA))
		samples = append(samples, sample)
	}
	return samples, nil
}

// Summarize aggregates samples and runs anomaly detection.
func Summarize(samples []Sample, th Thresholds) Summary {
	s := Summary{
		EventTotals: map[string]int{},
		Thresholds:  th,
		Anomalies:   []Anomaly{},
		Status:      StatusOK,
	}
	if len(samples) == 0 {
		return s
	}

	for _, sample := range samples {
		for typ, n := range sample.Events {
			s.EventTotals[typ] += n
		}
		if sample.Territories > s.TerritorySpan {
			s.TerritorySpan = sample.Territories
		}
	}
	first, last := samples[0], samples[len(samples)-1]
	s.HeatTrend = HeatTrend{
		AvgDelta: last.AvgHeat - first.AvgHeat,
		MaxDelta: last.MaxHeat - first.MaxHeat,
	}
	s.FinalRewardEMA = last.RewardEMA
	s.FinalFrontier = last.FrontierSize

	s.Anomalies = DetectAnomalies(samples, s, th)
	if len(s.Anomalies) > 0 {
		s.Status = StatusAlert
	}
	return s
}

// DetectAnomalies checks the summary and every sample against th.
func DetectAnomalies(samples []Sample, s Summary, th Thresholds) []Anomaly {
	out := []Anomaly{}
	if len(samples) == 0 {
		return out
	}
	lastLabel := samples[len(samples)-1].Label

	if s.FinalRewardEMA < th.MinRewardEMA {
		out = append(out, Anomaly{
			Metric:   "reward_ema",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Final reward EMA %.4f fell below floor %.4f", s.FinalRewardEMA, th.MinRewardEMA),
			Sample:   lastLabel,
		})
	}
	if s.HeatTrend.AvgDelta > th.MaxAvgHeatDelta {
		out = append(out, Anomaly{
			Metric:   "avg_heat_delta",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Average heat delta %.4f exceeded limit %.4f", s.HeatTrend.AvgDelta, th.MaxAvgHeatDelta),
			Sample:   lastLabel,
		})
	}
	for _, sample := range samples {
		if sample.MaxHeat <= th.MaxHeat {
			continue
		}
		severity := SeverityWarning
		if sample.MaxHeat > th.MaxHeat*1.2 {
			severity = SeverityCritical
		}
		out = append(out, Anomaly{
			Metric:   "max_heat",
			Severity: severity,
			Message:  fmt.Sprintf("Max heat %.4f exceeded limit %.4f", sample.MaxHeat, th.MaxHeat),
			Sample:   sample.Label,
		})
	}
	return out
}

// GenerateReport drives m with cfg and summarizes the run.
func GenerateReport(ctx context.Context, m *memory.Manager, cfg ProbeConfig, th Thresholds, now time.Time, logger *zap.Logger) (*Report, error) {
	samples, err := Drive(ctx, m, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Report{
		GeneratedAt: now.UTC(),
		Config:      cfg,
		Samples:     samples,
		Summary:     Summarize(samples, th),
	}, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
