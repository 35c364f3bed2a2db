package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Window is a fixed-duration block of normalized samples ready for
// transcription. Samples are float32 in [-1, 1).
type Window struct {
	Samples    []float32
	SampleRate int
	Sequence   uint64
	CreatedAt  time.Time
}

// Duration returns the window length in seconds.
func (w *Window) Duration() float64 {
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// AssemblerConfig configures a window assembler.
type AssemblerConfig struct {
	SampleRate     int
	ChunkSamples   int
	OverlapSamples int
	Logger         *slog.Logger
}

// Assembler accumulates capture frames into overlapping windows. A window is
// emitted once at least ChunkSamples samples are buffered; it spans up to
// ChunkSamples+OverlapSamples samples, and the buffer retains the trailing
// OverlapSamples of the chunk so consecutive windows share context.
type Assembler struct {
	source         *Source
	sampleRate     int
	chunkSamples   int
	overlapSamples int
	logger         *slog.Logger

	mu        sync.Mutex
	buffer    []int16
	sequence  uint64
	extracted uint64
	resets    uint64
}

// AssemblerStats contains window assembler statistics
type AssemblerStats struct {
	BufferedSamples  int    `json:"buffered_samples"`
	WindowsExtracted uint64 `json:"windows_extracted"`
	Resets           uint64 `json:"resets"`
}

// NewAssembler creates a window assembler draining the given source.
func NewAssembler(source *Source, config AssemblerConfig) *Assembler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Assembler{
		source:         source,
		sampleRate:     config.SampleRate,
		chunkSamples:   config.ChunkSamples,
		overlapSamples: config.OverlapSamples,
		logger:         config.Logger,
	}
}

// NextWindow blocks until enough samples have accumulated to emit a window,
// the source closes, or the context is cancelled. The second return value is
// false when no further windows will be produced.
func (a *Assembler) NextWindow(ctx context.Context) (*Window, bool) {
	for {
		a.mu.Lock()
		if len(a.buffer) >= a.chunkSamples {
			window := a.extractLocked()
			a.mu.Unlock()
			return window, true
		}
		a.mu.Unlock()

		select {
		case frame, ok := <-a.source.Frames():
			if !ok {
				return nil, false
			}
			a.mu.Lock()
			a.buffer = append(a.buffer, frame.Samples...)
			a.mu.Unlock()
		case <-ctx.Done():
			return nil, false
		}
	}
}

// extractLocked emits a window of up to chunk+overlap samples and retains
// the trailing overlap of the chunk. Caller holds a.mu.
func (a *Assembler) extractLocked() *Window {
	windowLen := a.chunkSamples + a.overlapSamples
	if windowLen > len(a.buffer) {
		windowLen = len(a.buffer)
	}

	samples := make([]float32, windowLen)
	for i := 0; i < windowLen; i++ {
		samples[i] = float32(a.buffer[i]) / 32768.0
	}

	residual := a.buffer[a.chunkSamples-a.overlapSamples:]
	retained := make([]int16, len(residual))
	copy(retained, residual)
	a.buffer = retained

	a.sequence++
	a.extracted++

	window := &Window{
		Samples:    samples,
		SampleRate: a.sampleRate,
		Sequence:   a.sequence,
		CreatedAt:  time.Now(),
	}

	a.logger.Debug("Window extracted",
		slog.Uint64("sequence", window.Sequence),
		slog.Int("samples", len(window.Samples)),
		slog.Int("retained", len(retained)))

	return window
}

// Reset discards all buffered samples. Used by the pipeline to recover after
// a processing failure so stale audio does not leak into the next window.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffer = nil
	a.resets++
}

// GetStats returns current assembler statistics
func (a *Assembler) GetStats() AssemblerStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AssemblerStats{
		BufferedSamples:  len(a.buffer),
		WindowsExtracted: a.extracted,
		Resets:           a.resets,
	}
}
