package metronome

import "sync"

// EventKind identifies a scheduler event.
type EventKind int

const (
	EventClick EventKind = iota
	EventMeasureComplete
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventClick:
		return "click"
	case EventMeasureComplete:
		return "measure_complete"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is emitted from the scheduler tick that produced it. Time is on the
// audio clock, so consumers can align to the sound instead of to delivery.
type Event struct {
	Kind            EventKind `json:"kind"`
	Time            float64   `json:"time"`
	ClickIndex      int       `json:"click_index"`
	Beat            int       `json:"beat"`
	BeatsPerMeasure int       `json:"beats_per_measure"`
	MainBeat        bool      `json:"main_beat"`
	Click           ClickKind `json:"click"`
	Measure         int       `json:"measure"`
	Tempo           int       `json:"tempo"`
}

const defaultEventBuffer = 64

// broadcaster fans events out to subscriber channels. Sends never block; a
// full subscriber misses the event.
type broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan Event
	dropped func()
}

func newBroadcaster(dropped func()) *broadcaster {
	return &broadcaster{subs: make(map[uint64]chan Event), dropped: dropped}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			if b.dropped != nil {
				b.dropped()
			}
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
