package events

import (
	"context"
	"sync"

	"nftylend/core/types"
)

// Carrier is implemented by emitted events that wrap a concrete payload.
type Carrier interface {
	Event() *types.Event
}

// Log is an append-only event journal with cursor-based subscriptions. Every
// emitted event is assigned the next sequence number; subscribers receive the
// backlog past their cursor followed by live updates, so an external indexer
// can reconstruct ledger state by replaying the stream in order.
type Log struct {
	mu      sync.Mutex
	entries []*types.Event
	nextSeq uint64
	subs    map[uint64]chan *types.Event
	nextSub uint64
}

// NewLog returns an empty event log. Sequence numbers start at 1.
func NewLog() *Log {
	return &Log{
		nextSeq: 1,
		subs:    make(map[uint64]chan *types.Event),
	}
}

// Emit implements the Emitter interface. Events that do not carry a concrete
// payload are ignored.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	carrier, ok := evt.(Carrier)
	if !ok {
		return
	}
	payload := carrier.Event()
	if payload == nil {
		return
	}

	l.mu.Lock()
	payload.Sequence = l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, payload)
	for _, ch := range l.subs {
		select {
		case ch <- payload:
		default:
			// Slow subscriber: drop the live update. The consumer can
			// recover the gap by resubscribing with its last cursor.
		}
	}
	l.mu.Unlock()
}

// Entries returns a snapshot of all events with sequence greater than cursor.
func (l *Log) Entries(cursor uint64) []*types.Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entriesAfterLocked(cursor)
}

func (l *Log) entriesAfterLocked(cursor uint64) []*types.Event {
	if cursor >= l.nextSeq-1 {
		return nil
	}
	out := make([]*types.Event, 0, len(l.entries))
	for _, entry := range l.entries {
		if entry.Sequence > cursor {
			out = append(out, entry)
		}
	}
	return out
}

// Subscribe registers a live subscription starting after cursor. It returns
// the backlog of already-emitted events past the cursor, a channel of live
// updates, and a cancel function that must be called to release the
// subscription. The channel is closed when ctx is done or cancel is called.
func (l *Log) Subscribe(ctx context.Context, cursor uint64) (<-chan *types.Event, func(), []*types.Event) {
	ch := make(chan *types.Event, 128)

	l.mu.Lock()
	backlog := l.entriesAfterLocked(cursor)
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return ch, cancel, backlog
}
