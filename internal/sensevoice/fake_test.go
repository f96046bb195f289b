package sensevoice

import (
	"sync"
	"testing"
	"unsafe"
)

// fakeLibrary stands in for the engine. Hooks left nil fall back to a
// successful default.
type fakeLibrary struct {
	mu sync.Mutex

	initFn func(path string, req contextRequest) unsafe.Pointer
	fullFn func(req fullRequest, samples []float64, nProcessors int) int
	textFn func(needPrefix bool) (string, bool)
	probFn func(samples []float64, nProcessors int) float32

	handle unsafe.Pointer
	freed  bool

	initCalls  int
	frees      int
	fullCalls  int
	textCalls  int
	probCalls  int
	resets     int
	lastInit   contextRequest
	lastFull   fullRequest
	lastNProcs int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{}
}

func (f *fakeLibrary) checkLive(ctx unsafe.Pointer) {
	if f.freed {
		panic("fake: use after free")
	}
	if ctx == nil || ctx != f.handle {
		panic("fake: unknown context")
	}
}

func (f *fakeLibrary) initFromFile(path string, req contextRequest) unsafe.Pointer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	f.lastInit = req
	if f.initFn != nil {
		f.handle = f.initFn(path, req)
	} else {
		f.handle = unsafe.Pointer(new(int))
	}
	return f.handle
}

func (f *fakeLibrary) free(ctx unsafe.Pointer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkLive(ctx)
	f.frees++
	f.freed = true
}

func (f *fakeLibrary) fullParallel(ctx unsafe.Pointer, req fullRequest, samples []float64, nProcessors int) int {
	f.mu.Lock()
	f.checkLive(ctx)
	f.fullCalls++
	f.lastFull = req
	f.lastNProcs = nProcessors
	fn := f.fullFn
	f.mu.Unlock()
	if fn != nil {
		return fn(req, samples, nProcessors)
	}
	return 0
}

func (f *fakeLibrary) fullGetText(ctx unsafe.Pointer, needPrefix bool) (string, bool) {
	f.mu.Lock()
	f.checkLive(ctx)
	f.textCalls++
	fn := f.textFn
	f.mu.Unlock()
	if fn != nil {
		return fn(needPrefix)
	}
	return "", true
}

func (f *fakeLibrary) speechProb(ctx unsafe.Pointer, samples []float64, nProcessors int) float32 {
	f.mu.Lock()
	f.checkLive(ctx)
	f.probCalls++
	fn := f.probFn
	f.mu.Unlock()
	if fn != nil {
		return fn(samples, nProcessors)
	}
	return 0.5
}

func (f *fakeLibrary) resetState(ctx unsafe.Pointer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkLive(ctx)
	f.resets++
}

// panicLibrary fails the test by panicking on any native call.
type panicLibrary struct{}

func (panicLibrary) initFromFile(string, contextRequest) unsafe.Pointer {
	panic("native initFromFile must not be called")
}

func (panicLibrary) free(unsafe.Pointer) {
	panic("native free must not be called")
}

func (panicLibrary) fullParallel(unsafe.Pointer, fullRequest, []float64, int) int {
	panic("native fullParallel must not be called")
}

func (panicLibrary) fullGetText(unsafe.Pointer, bool) (string, bool) {
	panic("native fullGetText must not be called")
}

func (panicLibrary) speechProb(unsafe.Pointer, []float64, int) float32 {
	panic("native speechProb must not be called")
}

func (panicLibrary) resetState(unsafe.Pointer) {
	panic("native resetState must not be called")
}

// openFake returns a live Context backed by lib, closed at test cleanup.
func openFake(tb testing.TB, lib library) *Context {
	tb.Helper()
	ctx, err := newContext(lib, "model.gguf", DefaultContextParams())
	if err != nil {
		tb.Fatalf("newContext: %v", err)
	}
	tb.Cleanup(func() { ctx.Close() })
	return ctx
}
