package memory

// diffuseAll runs diffusion over every territory in id order.
func (m *Manager) diffuseAll() {
	for _, id := range m.sortedTerritoryIDs() {
		m.diffuse(m.territories[id])
	}
}

// diffuse moves each member's heat a kappa fraction toward the territory
// mean. The heat sum is unchanged.
func (m *Manager) diffuse(t *territory) {
	if t == nil || len(t.members) < 2 {
		return
	}
	members := t.sortedMembers()
	sum := 0.0
	for _, s := range members {
		sum += s.Heat
	}
	mean := sum / float64(len(members))

	kappa := m.params.DiffusionKappa
	for _, s := range members {
		s.Heat += kappa * (mean - s.Heat)
		if s.Heat < 0 {
			s.Heat = 0
		}
	}

	m.emit(EventDiffuse, map[string]any{
		"territory": t.id,
		"members":   len(members),
		"mean_heat": mean,
	})
}
