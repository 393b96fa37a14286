package telemetry

import "github.com/hpungsan/voidmem/internal/memory"

// SeedChunk is one baseline chunk used when a probe runs against an empty store.
type SeedChunk struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SeedMemory is the baseline probe corpus.
var SeedMemory = []SeedChunk{
	{ID: "telemetry-alpha", Text: "Baseline trace describing vacuum resonance calibration and reward decay."},
	{ID: "telemetry-beta", Text: "Queue management protocol for asynchronous reinforcement batches."},
	{ID: "telemetry-gamma", Text: "Centroid drift notebook logging territory churn thresholds and splits."},
	{ID: "telemetry-delta", Text: "Condensation heuristics for semantic clustering during focus recovery."},
}

// Bootstrap registers SeedMemory when m holds no chunks. It reports whether
// anything was registered.
func Bootstrap(m *memory.Manager) (bool, error) {
	if m.Stats().Count > 0 {
		return false, nil
	}
	ids := make([]string, len(SeedMemory))
	texts := make([]string, len(SeedMemory))
	for i, c := range SeedMemory {
		ids[i], texts[i] = c.ID, c.Text
	}
	if err := m.RegisterChunks(ids, texts); err != nil {
		return false, err
	}
	return true, nil
}
