package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

const (
	bytesPerSample      = 2
	windowSeconds       = 30
	targetWindowSeconds = 10
	minFrameMillis      = 3000
	maxAudioBytes       = audio.SampleRate * bytesPerSample * windowSeconds
	targetWindowBytes   = audio.SampleRate * bytesPerSample * targetWindowSeconds
	minBatchBytes       = audio.SampleRate * bytesPerSample * minFrameMillis / 1000
)

// recognizer is the part of *sensevoice.Context the engine drives.
type recognizer interface {
	FullParallel(params sensevoice.FullParams, samples []float64) error
	Text(includePrefix bool) (string, error)
	SpeechProbability(samples []float64) float32
	ResetState()
	Close() error
}

// NativeAvailable reports whether the SenseVoice library is compiled in.
func NativeAvailable() bool { return sensevoice.Available() }

// NativeEngine batches streamed PCM into windows of a few seconds and runs
// SenseVoice over each window, emitting the text that extends the previous
// hypothesis.
type NativeEngine struct {
	mu      sync.Mutex
	inferMu sync.Mutex

	rec             recognizer
	params          sensevoice.FullParamsBuilder
	speechThreshold float32
	log             *slog.Logger

	audio       []byte
	lastSegment []byte
	lastText    string
	lastConf    float32
	defaultLang string
}

// NewNativeEngine loads the GGUF model at modelPath.
func NewNativeEngine(modelPath string, opts NativeOptions, logger *slog.Logger) (*NativeEngine, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("engine: model path required")
	}
	if !NativeAvailable() {
		return nil, ErrNativeEngineUnavailable
	}
	builder, err := opts.fullParams()
	if err != nil {
		return nil, err
	}
	ctx, err := sensevoice.NewContext(modelPath, opts.contextParams())
	if err != nil {
		return nil, err
	}
	return newNativeEngine(ctx, builder, opts.speechThreshold(), logger), nil
}

func newNativeEngine(rec recognizer, params sensevoice.FullParamsBuilder, threshold float32, logger *slog.Logger) *NativeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &NativeEngine{
		rec:             rec,
		params:          params,
		speechThreshold: threshold,
		log: logger.With(
			"component", "engine.native",
			"adapter", adapterinfo.Info.Slug,
		),
	}
}

func (e *NativeEngine) TranscribeSegment(ctx context.Context, pcm []byte, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	lang := normaliseLanguage(preferLanguage(opts.Language), e.defaultLang)
	e.audio = append(e.audio, pcm...)
	if len(e.audio) < minBatchBytes && !opts.Final {
		e.mu.Unlock()
		return nil, nil
	}
	buffer := e.windowLocked()
	previous := e.lastText
	e.mu.Unlock()

	agg, err := e.runInference(ctx, buffer, lang)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.log.Warn("native inference failed",
			"error", err,
			"kind", sensevoice.Kind(err),
			"audio_len", len(buffer),
			"language", lang,
		)
		return nil, err
	}

	e.mu.Lock()
	e.audio = nil
	e.lastSegment = buffer
	text := previous
	if !agg.skipped {
		text = agg.Text
		e.lastText = agg.Text
		e.lastConf = agg.Confidence
	}
	e.mu.Unlock()

	delta := diffTranscript(previous, text)
	if delta == "" {
		return nil, nil
	}
	e.log.Debug("native inference aggregate",
		"stage", "segment",
		"audio_len", len(buffer),
		"language", lang,
		"confidence", agg.Confidence,
	)
	return []Result{{
		Text:       delta,
		Confidence: agg.Confidence,
		Final:      false,
	}}, nil
}

// windowLocked builds the next inference buffer: pending audio prefixed with
// enough of the previous window to reach the target length.
func (e *NativeEngine) windowLocked() []byte {
	var buffer []byte
	if len(e.lastSegment) > 0 {
		overlap := targetWindowBytes - len(e.audio)
		if overlap < 0 {
			overlap = 0
		}
		if overlap > len(e.lastSegment) {
			overlap = len(e.lastSegment)
		}
		buffer = make([]byte, 0, overlap+len(e.audio))
		buffer = append(buffer, e.lastSegment[len(e.lastSegment)-overlap:]...)
		buffer = append(buffer, e.audio...)
	} else {
		buffer = append([]byte(nil), e.audio...)
	}
	if len(buffer) > maxAudioBytes {
		buffer = buffer[len(buffer)-maxAudioBytes:]
	}
	return buffer
}

func (e *NativeEngine) Flush(ctx context.Context, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	lang := normaliseLanguage(preferLanguage(opts.Language), e.defaultLang)
	var buffer []byte
	if len(e.audio) > 0 {
		buffer = e.windowLocked()
	}
	combined := e.lastText
	confidence := e.lastConf
	e.mu.Unlock()

	if len(buffer) > 0 {
		agg, err := e.runInference(ctx, buffer, lang)
		if err != nil {
			e.mu.Lock()
			e.resetLocked()
			e.mu.Unlock()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			e.log.Warn("native flush inference failed",
				"error", err,
				"kind", sensevoice.Kind(err),
				"audio_len", len(buffer),
				"language", lang,
			)
			return nil, err
		}
		if !agg.skipped {
			combined = agg.Text
			confidence = agg.Confidence
		}
	}

	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()

	finalText := strings.TrimSpace(combined)
	if finalText == "" {
		return nil, nil
	}
	return []Result{{
		Text:       finalText,
		Confidence: confidence,
		Final:      true,
	}}, nil
}

func (e *NativeEngine) Close() error {
	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	if e.rec == nil {
		return nil
	}
	err := e.rec.Close()
	e.rec = nil
	return err
}

type transcriptAggregate struct {
	Text       string
	Confidence float32
	// skipped is set when the speech gate rejected the window.
	skipped bool
}

func (e *NativeEngine) runInference(ctx context.Context, pcm []byte, language string) (transcriptAggregate, error) {
	samples := audio.PCM16ToFloat64(pcm)
	if len(samples) == 0 {
		return transcriptAggregate{skipped: true}, nil
	}

	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	// Native calls cannot be interrupted, so cancellation is only observed here.
	if err := ctx.Err(); err != nil {
		return transcriptAggregate{}, err
	}
	if e.rec == nil {
		return transcriptAggregate{}, sensevoice.ErrContextClosed
	}

	e.rec.ResetState()
	prob := e.rec.SpeechProbability(samples)
	if prob < 0 {
		return transcriptAggregate{skipped: true}, nil
	}
	if e.speechThreshold > 0 && prob < e.speechThreshold {
		e.log.Debug("window below speech threshold", "probability", prob, "threshold", e.speechThreshold)
		return transcriptAggregate{Confidence: prob, skipped: true}, nil
	}

	params := e.params.Language(language).Build()
	if err := e.rec.FullParallel(params, samples); err != nil {
		return transcriptAggregate{}, fmt.Errorf("engine: transcribe %d samples: %w", len(samples), err)
	}
	text, err := e.rec.Text(false)
	if err != nil {
		return transcriptAggregate{}, fmt.Errorf("engine: read transcript: %w", err)
	}
	return transcriptAggregate{
		Text:       stripSpecialTags(text),
		Confidence: clampUnit(prob),
	}, nil
}

// Reset discards buffered audio and the running hypothesis. It never enters
// native code, so it does not wait for an inference in flight.
func (e *NativeEngine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
}

func (e *NativeEngine) resetLocked() {
	e.audio = nil
	e.lastSegment = nil
	e.lastText = ""
	e.lastConf = 0
}

// SetDefaultLanguage configures the language used when callers request auto detection.
func (e *NativeEngine) SetDefaultLanguage(lang string) {
	e.mu.Lock()
	e.defaultLang = preferLanguage(lang)
	e.mu.Unlock()
}

func clampUnit(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
