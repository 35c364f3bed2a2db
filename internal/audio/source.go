package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Overflow policies for the frame queue.
const (
	DropNewest = "drop_newest"
	DropOldest = "drop_oldest"
)

// Frame is a block of mono PCM16 samples delivered by the capture transport.
type Frame struct {
	Samples    []int16
	ReceivedAt time.Time
}

// SourceConfig configures a Source.
type SourceConfig struct {
	QueueSize      int
	OverflowPolicy string
	Logger         *slog.Logger
}

// Source is a bounded queue of capture frames. The transport goroutine calls
// Push; the assembler drains Frames(). Push never blocks: when the queue is
// full one side loses a frame according to the overflow policy.
type Source struct {
	frames chan Frame
	policy string
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	err      error
	received uint64
	dropped  uint64
}

// SourceStats contains frame source statistics
type SourceStats struct {
	FramesReceived uint64 `json:"frames_received"`
	FramesDropped  uint64 `json:"frames_dropped"`
	QueueLength    int    `json:"queue_length"`
	QueueCapacity  int    `json:"queue_capacity"`
	Closed         bool   `json:"closed"`
}

// NewSource creates a frame source with a bounded queue.
func NewSource(config SourceConfig) *Source {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.OverflowPolicy == "" {
		config.OverflowPolicy = DropNewest
	}

	return &Source{
		frames: make(chan Frame, config.QueueSize),
		policy: config.OverflowPolicy,
		logger: config.Logger,
	}
}

// Push enqueues a block of interleaved PCM16 samples. Multi-channel input is
// downmixed to mono by averaging. Returns false when the frame was dropped
// or the source is closed.
func (s *Source) Push(samples []int16, channels int) bool {
	if len(samples) == 0 {
		return false
	}

	mono := samples
	if channels > 1 {
		mono = downmix(samples, channels)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.received++

	frame := Frame{Samples: mono, ReceivedAt: time.Now()}

	select {
	case s.frames <- frame:
		s.mu.Unlock()
		return true
	default:
	}

	// Queue full, apply overflow policy while still holding the lock so the
	// drop counter stays consistent with what actually happened.
	switch s.policy {
	case DropOldest:
		var dropped uint64
		select {
		case <-s.frames:
			s.dropped++
			dropped = s.dropped
		default:
		}
		select {
		case s.frames <- frame:
			s.mu.Unlock()
			if dropped > 0 {
				s.logDrop(dropped)
			}
			return true
		default:
			s.dropped++
			dropped = s.dropped
			s.mu.Unlock()
			s.logDrop(dropped)
			return false
		}
	default: // DropNewest
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		s.logDrop(dropped)
		return false
	}
}

// logDrop surfaces audio loss as a warning, throttled to the first drop
// and every 100th after that.
func (s *Source) logDrop(dropped uint64) {
	if dropped == 1 || dropped%100 == 0 {
		s.logger.Warn("Dropping audio frames, queue full",
			slog.Uint64("dropped_total", dropped))
	}
}

// Frames returns the channel the assembler drains. The channel is closed
// when the source stops.
func (s *Source) Frames() <-chan Frame {
	return s.frames
}

// Fail stops the source recording the capture error. Safe to call once;
// later calls are ignored.
func (s *Source) Fail(err error) {
	s.stop(err)
}

// Close stops the source cleanly.
func (s *Source) Close() {
	s.stop(nil)
}

func (s *Source) stop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.frames)

	if err != nil {
		s.logger.Error("Frame source failed", slog.String("error", err.Error()))
	} else {
		s.logger.Debug("Frame source closed")
	}
}

// Err returns the capture error recorded by Fail, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// GetStats returns current source statistics
func (s *Source) GetStats() SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SourceStats{
		FramesReceived: s.received,
		FramesDropped:  s.dropped,
		QueueLength:    len(s.frames),
		QueueCapacity:  cap(s.frames),
		Closed:         s.closed,
	}
}

// downmix averages interleaved channels into a mono sample block.
func downmix(samples []int16, channels int) []int16 {
	n := len(samples) / channels
	mono := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}
