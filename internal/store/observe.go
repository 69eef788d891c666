package store

import (
	"sync"

	"github.com/strideapp/stride/internal/model"
)

// Op describes what happened to a record in a committed write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is delivered to subscribers after a write commits. It carries
// just enough to let a live query decide whether to reissue; subscribers
// re-read the store for actual data.
type ChangeEvent struct {
	Kind model.Kind
	ID   string
	Op   Op
}

// Notifier fans committed change events out to subscribers. Delivery is
// best-effort: a subscriber whose buffer is full loses the oldest event
// rather than blocking the writer, which is safe because events are wake-up
// hints, not data.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]chan ChangeEvent
	nextID int
	closed bool
}

func newNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan ChangeEvent)}
}

// Subscribe registers a listener. The returned cancel func must be called on
// teardown; after cancel the channel is closed.
func (n *Notifier) Subscribe(buffer int) (<-chan ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}
	}

	id := n.nextID
	n.nextID++
	ch := make(chan ChangeEvent, buffer)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if c, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Called by repositories after
// their transaction commits, never before.
func (n *Notifier) Publish(ev ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			// Full buffer: drop the oldest event to make room.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (n *Notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
}
