package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/audio"
)

// StubEngine reports how much audio it received instead of transcribing it.
// Used when the native library is not compiled in or the model is missing.
type StubEngine struct {
	log          *slog.Logger
	modelVariant string

	mu          sync.Mutex
	totalBytes  int
	defaultLang string
}

func NewStubEngine(logger *slog.Logger, modelVariant string) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEngine{
		log: logger.With(
			"component", "engine.stub",
			"adapter", adapterinfo.Info.Slug,
			"model_variant", modelVariant,
		),
		modelVariant: modelVariant,
	}
}

func (e *StubEngine) Close() error { return nil }

func (e *StubEngine) TranscribeSegment(ctx context.Context, pcm []byte, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	e.mu.Lock()
	e.totalBytes += len(pcm)
	lang := normaliseLanguage(preferLanguage(opts.Language), e.defaultLang)
	e.mu.Unlock()

	e.log.Debug("stub transcript", "bytes", len(pcm), "sequence", opts.Sequence, "final", opts.Final)
	return []Result{{
		Text:       fmt.Sprintf("[stub:%s/%s] %d ms of audio", e.modelVariant, lang, pcmMillis(len(pcm))),
		Confidence: 0.5,
		Final:      opts.Final,
	}}, nil
}

func (e *StubEngine) Flush(ctx context.Context, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	total := e.totalBytes
	e.totalBytes = 0
	e.mu.Unlock()

	text := "[stub] no audio received"
	if total > 0 {
		text = fmt.Sprintf("[stub:%s] %d ms total", e.modelVariant, pcmMillis(total))
	}
	e.log.Debug("stub flush", "total_bytes", total)
	return []Result{{
		Text:       text,
		Confidence: 1,
		Final:      true,
	}}, nil
}

func (e *StubEngine) Reset() {
	e.mu.Lock()
	e.totalBytes = 0
	e.mu.Unlock()
}

func (e *StubEngine) SetDefaultLanguage(lang string) {
	e.mu.Lock()
	e.defaultLang = preferLanguage(lang)
	e.mu.Unlock()
}

func pcmMillis(n int) int {
	return n / bytesPerSample * 1000 / audio.SampleRate
}
