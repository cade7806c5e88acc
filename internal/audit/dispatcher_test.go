package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{}, nil, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Emitted() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherStampsAndDelivers(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0).UTC()
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, func() time.Time { return fixed })

	d.Emit(context.Background(), Event{EventType: "login_success", UserID: "u1", Success: true})
	d.Close()

	select {
	case got := <-sink.Events():
		if got.ID == "" {
			t.Fatal("expected generated id")
		}
		if !got.Timestamp.Equal(fixed) {
			t.Fatalf("unexpected timestamp %v", got.Timestamp)
		}
		if got.EventType != "login_success" || got.UserID != "u1" {
			t.Fatalf("unexpected event %+v", got)
		}
	default:
		t.Fatal("expected delivered event")
	}
	if d.Emitted() != 1 {
		t.Fatalf("expected 1 emitted, got %d", d.Emitted())
	}

	d.Emit(context.Background(), Event{EventType: "after_close"})
	if d.Emitted() != 1 {
		t.Fatal("emit after close must be ignored")
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s blockingSink) Emit(context.Context, Event) { <-s.release }

func TestDispatcherDropIfFull(t *testing.T) {
	sink := blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, nil)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "logout"})
	}
	close(sink.release)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a full buffer")
	}
	if d.Dropped()+d.Emitted() != 10 {
		t.Fatalf("expected every event accounted for, dropped=%d emitted=%d", d.Dropped(), d.Emitted())
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{ID: "1", EventType: "session_expired", Reason: "timer"})
	sink.Emit(context.Background(), Event{ID: "2", EventType: "logout", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reason != "timer" || got.EventType != "session_expired" {
		t.Fatalf("unexpected event %+v", got)
	}
}
