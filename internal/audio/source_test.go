package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
)

var errCapture = errors.New("capture device gone")

// recordingHandler captures log records for assertions.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func TestSourcePushAndDrain(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 4, OverflowPolicy: DropNewest})

	if !source.Push([]int16{1, 2, 3}, 1) {
		t.Fatal("expected push to succeed")
	}

	frame := <-source.Frames()
	if len(frame.Samples) != 3 {
		t.Errorf("expected 3 samples, got %d", len(frame.Samples))
	}

	stats := source.GetStats()
	if stats.FramesReceived != 1 {
		t.Errorf("expected 1 frame received, got %d", stats.FramesReceived)
	}
	if stats.FramesDropped != 0 {
		t.Errorf("expected 0 frames dropped, got %d", stats.FramesDropped)
	}
}

func TestSourceDownmix(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 4, OverflowPolicy: DropNewest})

	// Two interleaved stereo sample pairs.
	source.Push([]int16{100, 200, -100, -300}, 2)

	frame := <-source.Frames()
	if len(frame.Samples) != 2 {
		t.Fatalf("expected 2 mono samples, got %d", len(frame.Samples))
	}
	if frame.Samples[0] != 150 {
		t.Errorf("expected first sample 150, got %d", frame.Samples[0])
	}
	if frame.Samples[1] != -200 {
		t.Errorf("expected second sample -200, got %d", frame.Samples[1])
	}
}

func TestSourceDropNewest(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 2, OverflowPolicy: DropNewest})

	source.Push([]int16{1}, 1)
	source.Push([]int16{2}, 1)
	if source.Push([]int16{3}, 1) {
		t.Error("expected push to fail when queue is full")
	}

	stats := source.GetStats()
	if stats.FramesDropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", stats.FramesDropped)
	}

	// The oldest frames survive.
	frame := <-source.Frames()
	if frame.Samples[0] != 1 {
		t.Errorf("expected oldest frame to survive, got sample %d", frame.Samples[0])
	}
}

func TestSourceDropOldest(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 2, OverflowPolicy: DropOldest})

	source.Push([]int16{1}, 1)
	source.Push([]int16{2}, 1)
	if !source.Push([]int16{3}, 1) {
		t.Error("expected push to succeed by evicting the oldest frame")
	}

	stats := source.GetStats()
	if stats.FramesDropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", stats.FramesDropped)
	}

	frame := <-source.Frames()
	if frame.Samples[0] != 2 {
		t.Errorf("expected frame 2 at queue head after eviction, got %d", frame.Samples[0])
	}
	frame = <-source.Frames()
	if frame.Samples[0] != 3 {
		t.Errorf("expected frame 3 after eviction, got %d", frame.Samples[0])
	}
}

func TestSourceWarnsOnDrop(t *testing.T) {
	handler := &recordingHandler{}
	source := NewSource(SourceConfig{
		QueueSize:      1,
		OverflowPolicy: DropNewest,
		Logger:         slog.New(handler),
	})

	source.Push([]int16{1}, 1)
	if handler.count(slog.LevelWarn) != 0 {
		t.Fatal("unexpected warning before any drop")
	}

	source.Push([]int16{2}, 1)
	if handler.count(slog.LevelWarn) != 1 {
		t.Errorf("expected a warning on the first drop, got %d", handler.count(slog.LevelWarn))
	}

	// Subsequent drops are throttled.
	for i := 0; i < 10; i++ {
		source.Push([]int16{3}, 1)
	}
	if handler.count(slog.LevelWarn) != 1 {
		t.Errorf("expected drop warnings to be throttled, got %d", handler.count(slog.LevelWarn))
	}
}

func TestSourceClose(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 2, OverflowPolicy: DropNewest})

	source.Close()
	source.Close() // idempotent

	if source.Push([]int16{1}, 1) {
		t.Error("expected push to fail after close")
	}

	if _, ok := <-source.Frames(); ok {
		t.Error("expected frames channel to be closed")
	}

	if !source.GetStats().Closed {
		t.Error("expected stats to report closed")
	}
}

func TestSourceFail(t *testing.T) {
	source := NewSource(SourceConfig{QueueSize: 2, OverflowPolicy: DropNewest})

	source.Fail(errCapture)

	if source.Err() != errCapture {
		t.Errorf("expected capture error to be recorded, got %v", source.Err())
	}
	if _, ok := <-source.Frames(); ok {
		t.Error("expected frames channel to be closed after failure")
	}
}
