package events

import (
	"context"
	"testing"
	"time"

	"nftylend/core/types"
)

type testEvent struct {
	evt *types.Event
}

func (e testEvent) EventType() string { return e.evt.Type }

func (e testEvent) Event() *types.Event { return e.evt }

func newTestEvent(eventType string) testEvent {
	return testEvent{evt: &types.Event{Type: eventType, Attributes: map[string]string{}}}
}

func TestLogAssignsMonotonicSequences(t *testing.T) {
	log := NewLog()
	for i := 0; i < 5; i++ {
		log.Emit(newTestEvent("desk.created"))
	}
	entries := log.Entries(0)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Sequence != uint64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, entry.Sequence)
		}
	}
}

func TestLogCursorFiltersBacklog(t *testing.T) {
	log := NewLog()
	for i := 0; i < 5; i++ {
		log.Emit(newTestEvent("loan.payment"))
	}
	entries := log.Entries(3)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries past cursor 3, got %d", len(entries))
	}
	if entries[0].Sequence != 4 {
		t.Fatalf("expected first entry sequence 4, got %d", entries[0].Sequence)
	}
	if len(log.Entries(5)) != 0 {
		t.Fatalf("expected empty backlog at head cursor")
	}
}

func TestSubscribeReplaysBacklogAndStreamsLive(t *testing.T) {
	log := NewLog()
	log.Emit(newTestEvent("a"))
	log.Emit(newTestEvent("b"))

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	updates, cancel, backlog := log.Subscribe(ctx, 1)
	defer cancel()

	if len(backlog) != 1 || backlog[0].Type != "b" {
		t.Fatalf("unexpected backlog: %+v", backlog)
	}

	log.Emit(newTestEvent("c"))
	select {
	case evt := <-updates:
		if evt.Type != "c" || evt.Sequence != 3 {
			t.Fatalf("unexpected live event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for live event")
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Fatalf("expected closed channel after cancel")
	}
}

func TestEmitIgnoresNonCarrierEvents(t *testing.T) {
	log := NewLog()
	log.Emit(nil)
	if len(log.Entries(0)) != 0 {
		t.Fatalf("nil event recorded")
	}
}
