package memory

// EventType names a lifecycle event.
type EventType string

const (
	EventRegister        EventType = "register"
	EventTerritoryCreate EventType = "territory_create"
	EventReinforce       EventType = "reinforce"
	EventReinforceMiss   EventType = "reinforce_miss"
	EventDecay           EventType = "decay"
	EventDiffuse         EventType = "diffuse"
	EventSplit           EventType = "split"
	EventMerge           EventType = "merge"
	EventPrune           EventType = "prune"
	EventDegrade         EventType = "degrade"
	EventEngram          EventType = "engram"
	EventCondense        EventType = "condense"
	EventError           EventType = "error"
)

// Prune reasons carried in prune event details.
const (
	ReasonTTLExpired = "ttl_expired"
	ReasonCapacity   = "capacity"
	ReasonRemoved    = "removed"
)

// Event is one audit record. Details is a flat key-value payload.
type Event struct {
	Sequence uint64         `json:"sequence"`
	Tick     int64          `json:"tick"`
	Type     EventType      `json:"type"`
	Details  map[string]any `json:"details,omitempty"`
}

// eventBuffer is a bounded FIFO. When full the oldest event is dropped.
type eventBuffer struct {
	events  []Event
	limit   int
	dropped uint64
}

func newEventBuffer(limit int) *eventBuffer {
	return &eventBuffer{limit: limit}
}

func (b *eventBuffer) push(e Event) {
	if len(b.events) >= b.limit {
		over := len(b.events) - b.limit + 1
		b.events = append(b.events[:0], b.events[over:]...)
		b.dropped += uint64(over)
	}
	b.events = append(b.events, e)
}

// drain returns every buffered event and clears the buffer.
func (b *eventBuffer) drain() []Event {
	out := b.events
	b.events = nil
	if out == nil {
		return []Event{}
	}
	return out
}

// discardThrough drops buffered events with a sequence up to seq.
func (b *eventBuffer) discardThrough(seq uint64) int {
	n := 0
	for n < len(b.events) && b.events[n].Sequence <= seq {
		n++
	}
	b.events = append(b.events[:0], b.events[n:]...)
	return n
}

// peek copies up to limit of the oldest buffered events; limit <= 0 means all.
func (b *eventBuffer) peek(limit int) []Event {
	n := len(b.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.events[:n])
	return out
}

func (b *eventBuffer) resize(limit int) {
	b.limit = limit
	if len(b.events) > limit {
		over := len(b.events) - limit
		b.events = append(b.events[:0], b.events[over:]...)
		b.dropped += uint64(over)
	}
}

// emit stamps and buffers an event. Callers hold m.mu.
func (m *Manager) emit(typ EventType, details map[string]any) {
	m.eventSeq++
	m.events.push(Event{
		Sequence: m.eventSeq,
		Tick:     m.tick,
		Type:     typ,
		Details:  details,
	})
}
