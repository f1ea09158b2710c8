package game

type WeightedEntry[T any] struct {
	Value  T
	Weight float64
}

// Weighted draws values from a fixed discrete distribution using a
// cumulative-weight table.
type Weighted[T any] struct {
	entries  []WeightedEntry[T]
	cum      []float64
	total    float64
	fallback T
}

func NewWeighted[T any](fallback T, entries ...WeightedEntry[T]) *Weighted[T] {
	w := &Weighted[T]{
		entries:  entries,
		cum:      make([]float64, len(entries)),
		fallback: fallback,
	}
	for i, e := range entries {
		if e.Weight > 0 {
			w.total += e.Weight
		}
		w.cum[i] = w.total
	}
	return w
}

// Pick maps a uniform draw u in [0,1) onto the distribution. The first entry
// whose cumulative weight reaches u*total wins.
func (w *Weighted[T]) Pick(u float64) T {
	x := u * w.total
	for i, c := range w.cum {
		if w.entries[i].Weight > 0 && x <= c {
			return w.entries[i].Value
		}
	}
	return w.fallback
}

func (w *Weighted[T]) Total() float64 {
	return w.total
}

func (w *Weighted[T]) Entries() []WeightedEntry[T] {
	return append([]WeightedEntry[T](nil), w.entries...)
}

var eventTable = NewWeighted(EventFoul,
	WeightedEntry[EventType]{Value: EventGoal, Weight: 8},
	WeightedEntry[EventType]{Value: EventYellowCard, Weight: 12},
	WeightedEntry[EventType]{Value: EventRedCard, Weight: 2},
	WeightedEntry[EventType]{Value: EventInjury, Weight: 3},
	WeightedEntry[EventType]{Value: EventFoul, Weight: 15},
	WeightedEntry[EventType]{Value: EventCorner, Weight: 10},
	WeightedEntry[EventType]{Value: EventFreeKick, Weight: 8},
	WeightedEntry[EventType]{Value: EventPenalty, Weight: 2},
)

var positionTable = NewWeighted(PositionMF,
	WeightedEntry[Position]{Value: PositionGK, Weight: 1},
	WeightedEntry[Position]{Value: PositionDF, Weight: 4},
	WeightedEntry[Position]{Value: PositionMF, Weight: 4},
	WeightedEntry[Position]{Value: PositionFW, Weight: 3},
)
