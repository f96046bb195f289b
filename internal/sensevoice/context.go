package sensevoice

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"
	"unsafe"
)

// Context owns one native SenseVoice context. It is only handed out by
// pointer and must not be copied; Close releases the native memory exactly
// once.
//
// Methods may be called from several goroutines without extra locking. The
// wrapper only keeps Close from racing with calls that are in flight; it does
// not serialise inference. Two concurrent FullParallel calls on one Context
// are exactly as safe as the engine's own state handling, which this package
// cannot verify. Callers that cannot rely on the engine should serialise
// calls themselves or use one Context per goroutine.
type Context struct {
	lib library

	mu  sync.RWMutex
	ptr unsafe.Pointer
}

// NewContext loads the model at path. It fails with ErrInvalidString, without
// touching the engine, if path contains a NUL byte, and with ErrInitFailed if
// the engine returns no context.
func NewContext(path string, params ContextParams) (*Context, error) {
	return newContext(nativeLibrary(), path, params)
}

func newContext(lib library, path string, params ContextParams) (*Context, error) {
	if lib == nil {
		return nil, ErrNativeUnavailable
	}
	if strings.IndexByte(path, 0) >= 0 {
		return nil, fmt.Errorf("%w: model path %q", ErrInvalidString, path)
	}

	ptr := lib.initFromFile(path, params.request())
	if ptr == nil {
		return nil, fmt.Errorf("%w: %s", ErrInitFailed, path)
	}

	c := &Context{lib: lib, ptr: ptr}
	runtime.SetFinalizer(c, (*Context).Close)
	return c, nil
}

// Available reports whether the native library is compiled into the binary.
func Available() bool {
	return nativeLibrary() != nil
}

// Close releases the native context. Calling Close more than once is safe.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ptr != nil {
		c.lib.free(c.ptr)
		c.ptr = nil
	}
	runtime.SetFinalizer(c, nil)
	return nil
}

// FullParallel runs inference over samples. Empty input fails with
// ErrNoSamples before reaching the engine. The call blocks until the engine
// returns and cannot be cancelled.
func (c *Context) FullParallel(params FullParams, samples []float64) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	req, err := params.request()
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ptr == nil {
		return ErrContextClosed
	}
	return MapReturnCode(c.lib.fullParallel(c.ptr, req, samples, nProcessors))
}

// Text returns the text decoded by the last FullParallel call. includePrefix
// keeps the engine's language/emotion/event tags in front of the text.
//
// The engine guarantees UTF-8 output; malformed text means the native side
// is broken and Text panics rather than return corrupted data.
func (c *Context) Text(includePrefix bool) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ptr == nil {
		return "", ErrContextClosed
	}
	text, ok := c.lib.fullGetText(c.ptr, includePrefix)
	if !ok {
		return "", ErrNullResult
	}
	if !utf8.ValidString(text) {
		panic("sensevoice: engine returned malformed UTF-8 text")
	}
	return text, nil
}

// SpeechProbability scores samples for the presence of speech.
//
// Unlike FullParallel, empty input is not an error: it returns -1 without
// calling the engine. A closed context also yields -1. Existing callers rely
// on the sentinel, so the inconsistency is kept.
func (c *Context) SpeechProbability(samples []float64) float32 {
	if len(samples) == 0 {
		return -1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ptr == nil {
		return -1
	}
	return c.lib.speechProb(c.ptr, samples, nProcessors)
}

// ResetState clears decoder state so the next FullParallel starts fresh.
func (c *Context) ResetState() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ptr == nil {
		return
	}
	c.lib.resetState(c.ptr)
}
