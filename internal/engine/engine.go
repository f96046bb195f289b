package engine

import "context"

// Engine exposes a streaming transcription interface backed by SenseVoice or a stub implementation.
type Engine interface {
	// TranscribeSegment buffers a chunk of PCM16LE audio and may emit zero or more transcripts.
	TranscribeSegment(ctx context.Context, audio []byte, opts Options) ([]Result, error)
	// Flush transcribes whatever is still buffered and resets the stream state.
	Flush(ctx context.Context, opts Options) ([]Result, error)
	// Close releases the native context.
	Close() error
}

// Options configures decoding for a segment or flush call.
type Options struct {
	// Language is a SenseVoice language code or "auto".
	Language string
	Final    bool
	Sequence uint64
}

// Result represents a transcript produced by the engine.
type Result struct {
	Text string
	// Confidence is the speech probability of the window the text came from.
	Confidence float32
	Final      bool
}

type languageHintSetter interface {
	SetDefaultLanguage(string)
}

// SetDefaultLanguage forwards a language hint to engines that accept one.
func SetDefaultLanguage(e Engine, lang string) {
	if setter, ok := e.(languageHintSetter); ok {
		setter.SetDefaultLanguage(lang)
	}
}

type resetter interface {
	Reset()
}

// Reset drops buffered stream state without running inference. It reports
// false when the engine has no such path and the caller must Flush instead.
func Reset(e Engine) bool {
	r, ok := e.(resetter)
	if ok {
		r.Reset()
	}
	return ok
}
