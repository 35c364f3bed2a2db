package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tylertzm/KnowledgeOS/internal/audio"
	"github.com/tylertzm/KnowledgeOS/internal/metrics"
	"github.com/tylertzm/KnowledgeOS/internal/router"
	"github.com/tylertzm/KnowledgeOS/internal/session"
)

// Transcriber converts an audio window to text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Dispatcher routes a normalized utterance for a session.
type Dispatcher interface {
	Route(ctx context.Context, sessionID, utterance string) (*router.Result, error)
}

// Pipeline is the local voice processing loop
type Pipeline struct {
	assembler   *audio.Assembler
	transcriber Transcriber
	dispatcher  Dispatcher
	metrics     *metrics.Metrics
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a pipeline. The metrics argument may be nil.
func New(assembler *audio.Assembler, transcriber Transcriber, dispatcher Dispatcher, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		assembler:   assembler,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		metrics:     m,
		logger:      logger,
	}
}

// Start launches the processing loop.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	p.logger.Info("Pipeline started")
}

// Stop cancels the loop and waits for it to drain.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.logger.Info("Pipeline stopped")
}

func (p *Pipeline) run(ctx context.Context) {
	for {
		window, ok := p.assembler.NextWindow(ctx)
		if !ok {
			return
		}
		if p.metrics != nil {
			p.metrics.RecordWindowAssembled()
		}

		p.process(ctx, window)
	}
}

// process handles one window. Errors are logged and absorbed; the window
// buffer is reset so stale audio does not bleed into the next iteration.
func (p *Pipeline) process(ctx context.Context, window *audio.Window) {
	text, err := p.transcriber.Transcribe(ctx, window.Samples, window.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Transcription failed",
			slog.Uint64("sequence", window.Sequence),
			slog.String("error", err.Error()))
		p.recover()
		return
	}

	utterance, ok := router.Normalize(text)
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordEmptyTranscript()
		}
		return
	}

	result, err := p.dispatcher.Route(ctx, session.DefaultSessionID, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Routing failed",
			slog.String("utterance", utterance),
			slog.String("error", err.Error()))
		p.recover()
		return
	}

	p.logger.Info("Utterance processed",
		slog.Uint64("sequence", window.Sequence),
		slog.String("mode", result.Mode.String()),
		slog.String("outcome", result.Outcome),
		slog.String("transcript", result.Transcript))
}

func (p *Pipeline) recover() {
	p.assembler.Reset()
	if p.metrics != nil {
		p.metrics.RecordPipelineError()
		p.metrics.RecordPipelineReset()
	}
}
