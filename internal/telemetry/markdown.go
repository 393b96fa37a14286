package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// ReportTitle heads every rendered report.
const ReportTitle = "# Void Dynamics Nightly Telemetry"

// RenderMarkdown renders a report as a markdown table plus aggregates and anomalies.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	b.WriteString(ReportTitle + "\n\n")

	if len(r.Samples) > 0 {
		b.WriteString("| Window | Tick | Memories | Reward EMA | Avg Heat | Max Heat | Territories | " +
			"Frontier | Splits | Merges | Reinforce | Degrade | Prune |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, s := range r.Samples {
			fmt.Fprintf(&b, "| %s | %d | %d | %.4f | %.4f | %.4f | %d | %d | %d | %d | %d | %d | %d |\n",
				s.Label, s.Tick, s.Count, s.RewardEMA, s.AvgHeat, s.MaxHeat, s.Territories,
				s.FrontierSize, s.Splits, s.Merges,
				s.Events["reinforce"], s.Events["degrade"], s.Events["prune"])
		}
		b.WriteString("\n")
	} else {
		b.WriteString("_No telemetry samples were collected._\n\n")
	}

	sum := r.Summary
	b.WriteString("## Aggregates\n\n")
	fmt.Fprintf(&b, "- Final reward EMA: %.4f\n", sum.FinalRewardEMA)
	fmt.Fprintf(&b, "- Heat average delta: %+.4f, max delta: %+.4f\n", sum.HeatTrend.AvgDelta, sum.HeatTrend.MaxDelta)
	fmt.Fprintf(&b, "- Max territories observed: %d\n", sum.TerritorySpan)
	fmt.Fprintf(&b, "- Frontier at end of run: %d\n", sum.FinalFrontier)
	fmt.Fprintf(&b, "- Status: %s\n", strings.ToUpper(sum.Status))
	if len(sum.EventTotals) > 0 {
		b.WriteString("- Event totals:\n")
		for _, k := range sortedKeys(sum.EventTotals) {
			fmt.Fprintf(&b, "  - %s: %d\n", k, sum.EventTotals[k])
		}
	} else {
		b.WriteString("- Event totals: none\n")
	}
	b.WriteString("- Thresholds:\n")
	fmt.Fprintf(&b, "  - max_avg_heat_delta: %g\n", sum.Thresholds.MaxAvgHeatDelta)
	fmt.Fprintf(&b, "  - max_heat: %g\n", sum.Thresholds.MaxHeat)
	fmt.Fprintf(&b, "  - min_reward_ema: %g\n", sum.Thresholds.MinRewardEMA)

	b.WriteString("\n## Anomalies\n\n")
	if len(sum.Anomalies) > 0 {
		for _, a := range sum.Anomalies {
			fmt.Fprintf(&b, "- **%s** %s (%s): %s\n", strings.ToUpper(a.Severity), a.Metric, a.Sample, a.Message)
		}
	} else {
		b.WriteString("- None detected.\n")
	}

	fmt.Fprintf(&b, "\nGenerated %s\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	return b.String()
}
