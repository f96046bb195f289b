package sensevoice

import (
	"errors"
	"sync"
	"testing"
	"unsafe"
)

func TestNewContextRejectsNulInPathWithoutNativeCall(t *testing.T) {
	ctx, err := newContext(panicLibrary{}, "models/sense\x00voice.gguf", DefaultContextParams())
	if !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
	if ctx != nil {
		t.Fatalf("expected nil context on failure")
	}
}

func TestNewContextNullHandleIsInitError(t *testing.T) {
	lib := newFakeLibrary()
	lib.initFn = func(string, contextRequest) unsafe.Pointer { return nil }

	ctx, err := newContext(lib, "missing.gguf", DefaultContextParams())
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if ctx != nil {
		t.Fatalf("expected nil context on failure")
	}
	if lib.initCalls != 1 {
		t.Fatalf("expected exactly one native init, got %d", lib.initCalls)
	}
	if lib.frees != 0 {
		t.Fatalf("expected no free after failed init, got %d", lib.frees)
	}
}

func TestNewContextWithoutLibrary(t *testing.T) {
	if _, err := newContext(nil, "model.gguf", DefaultContextParams()); !errors.Is(err, ErrNativeUnavailable) {
		t.Fatalf("expected ErrNativeUnavailable, got %v", err)
	}
}

func TestNewContextMarshalsParamsWithEmptyCallbacks(t *testing.T) {
	lib := newFakeLibrary()
	var gotPath string
	lib.initFn = func(path string, _ contextRequest) unsafe.Pointer {
		gotPath = path
		return unsafe.Pointer(new(int))
	}

	params := ContextParams{UseGPU: true, UseITN: true, FlashAttention: true, GPUDevice: 2}
	ctx, err := newContext(lib, "/models/small.gguf", params)
	if err != nil {
		t.Fatalf("newContext: %v", err)
	}
	defer ctx.Close()

	if gotPath != "/models/small.gguf" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	want := contextRequest{useGPU: true, useITN: true, flashAttn: true, gpuDevice: 2}
	if lib.lastInit != want {
		t.Fatalf("unexpected request: got %+v, want %+v", lib.lastInit, want)
	}
}

func TestCloseReleasesExactlyOnce(t *testing.T) {
	lib := newFakeLibrary()
	ctx, err := newContext(lib, "model.gguf", DefaultContextParams())
	if err != nil {
		t.Fatalf("newContext: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := ctx.Close(); err != nil {
			t.Fatalf("Close #%d: %v", i, err)
		}
	}
	if lib.frees != 1 {
		t.Fatalf("expected one native free, got %d", lib.frees)
	}
}

func TestClosedContextRejectsCalls(t *testing.T) {
	lib := newFakeLibrary()
	ctx, err := newContext(lib, "model.gguf", DefaultContextParams())
	if err != nil {
		t.Fatalf("newContext: %v", err)
	}
	ctx.Close()

	if err := ctx.FullParallel(DefaultFullParams(SamplingGreedy), []float64{0.1}); !errors.Is(err, ErrContextClosed) {
		t.Fatalf("FullParallel after close: got %v", err)
	}
	if _, err := ctx.Text(false); !errors.Is(err, ErrContextClosed) {
		t.Fatalf("Text after close: got %v", err)
	}
	if got := ctx.SpeechProbability([]float64{0.1}); got != -1 {
		t.Fatalf("SpeechProbability after close: got %v", got)
	}
	ctx.ResetState()

	if lib.fullCalls+lib.textCalls+lib.probCalls+lib.resets != 0 {
		t.Fatalf("native layer reached after close")
	}
}

func TestFullParallelEmptySamplesNeverReachesNative(t *testing.T) {
	lib := newFakeLibrary()
	lib.fullFn = func(fullRequest, []float64, int) int {
		panic("fullParallel reached with empty samples")
	}
	ctx := openFake(t, lib)

	for _, samples := range [][]float64{nil, {}} {
		if err := ctx.FullParallel(DefaultFullParams(SamplingGreedy), samples); !errors.Is(err, ErrNoSamples) {
			t.Fatalf("expected ErrNoSamples, got %v", err)
		}
	}
	if lib.fullCalls != 0 {
		t.Fatalf("expected no native calls, got %d", lib.fullCalls)
	}
}

func TestFullParallelRejectsNulLanguage(t *testing.T) {
	lib := newFakeLibrary()
	ctx := openFake(t, lib)

	params := NewFullParamsBuilder(SamplingGreedy).Language("e\x00n").Build()
	if err := ctx.FullParallel(params, []float64{0.1}); !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
	if lib.fullCalls != 0 {
		t.Fatalf("expected no native calls, got %d", lib.fullCalls)
	}
}

func TestFullParallelReturnCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{"success", 0, nil},
		{"spectrogram", -1, ErrSpectrogram},
		{"encode", 7, ErrEncode},
		{"decode", 8, ErrDecode},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lib := newFakeLibrary()
			lib.fullFn = func(fullRequest, []float64, int) int { return tc.code }
			ctx := openFake(t, lib)

			err := ctx.FullParallel(DefaultFullParams(SamplingGreedy), []float64{0.1, 0.2})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("code %d: got %v, want %v", tc.code, err, tc.want)
			}
		})
	}

	for _, code := range []int{-2, 1, 2, 6, 9, 42} {
		lib := newFakeLibrary()
		lib.fullFn = func(fullRequest, []float64, int) int { return code }
		ctx := openFake(t, lib)

		err := ctx.FullParallel(DefaultFullParams(SamplingGreedy), []float64{0.1})
		var codeErr *CodeError
		if !errors.As(err, &codeErr) {
			t.Fatalf("code %d: expected *CodeError, got %v", code, err)
		}
		if codeErr.Code != code {
			t.Fatalf("code %d: CodeError carries %d", code, codeErr.Code)
		}
	}
}

func TestFullParallelMarshalsEveryCall(t *testing.T) {
	lib := newFakeLibrary()
	var seen []float64
	lib.fullFn = func(_ fullRequest, samples []float64, _ int) int {
		seen = append([]float64(nil), samples...)
		return 0
	}
	ctx := openFake(t, lib)

	params := NewFullParamsBuilder(SamplingBeamSearch).
		Threads(2).
		Language("zh").
		OffsetMs(100).
		DurationMs(2500).
		AudioCtx(768).
		Build()

	samples := []float64{0.25, -0.5, 0.75}
	if err := ctx.FullParallel(params, samples); err != nil {
		t.Fatalf("FullParallel: %v", err)
	}

	req := lib.lastFull
	if req.strategy != int32(SamplingBeamSearch) || req.nThreads != 2 || req.language != "zh" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.offsetMs != 100 || req.durationMs != 2500 {
		t.Fatalf("offset/duration mismatch: %+v", req)
	}
	if req.beamSize != 5 || req.bestOf != Unused {
		t.Fatalf("strategy sub-params mismatch: %+v", req)
	}
	if req.progressCallback != 0 || req.progressCallbackUserData != 0 {
		t.Fatalf("progress callback slots must be empty")
	}
	if lib.lastNProcs != 8 {
		t.Fatalf("expected 8 processors independent of threads, got %d", lib.lastNProcs)
	}
	if len(seen) != len(samples) || seen[1] != -0.5 {
		t.Fatalf("samples not passed through: %v", seen)
	}

	// Reusing the same params marshals them again.
	if err := ctx.FullParallel(params, samples); err != nil {
		t.Fatalf("FullParallel reuse: %v", err)
	}
	if lib.fullCalls != 2 {
		t.Fatalf("expected 2 native calls, got %d", lib.fullCalls)
	}
}

func TestText(t *testing.T) {
	lib := newFakeLibrary()
	lib.textFn = func(needPrefix bool) (string, bool) {
		if needPrefix {
			return "<|en|><|NEUTRAL|><|Speech|><|woitn|>hello", true
		}
		return "hello", true
	}
	ctx := openFake(t, lib)

	got, err := ctx.Text(false)
	if err != nil || got != "hello" {
		t.Fatalf("Text(false) = %q, %v", got, err)
	}
	got, err = ctx.Text(true)
	if err != nil || got != "<|en|><|NEUTRAL|><|Speech|><|woitn|>hello" {
		t.Fatalf("Text(true) = %q, %v", got, err)
	}
}

func TestTextNullIsError(t *testing.T) {
	lib := newFakeLibrary()
	lib.textFn = func(bool) (string, bool) { return "", false }
	ctx := openFake(t, lib)

	if _, err := ctx.Text(false); !errors.Is(err, ErrNullResult) {
		t.Fatalf("expected ErrNullResult, got %v", err)
	}
}

func TestTextPanicsOnMalformedUTF8(t *testing.T) {
	lib := newFakeLibrary()
	lib.textFn = func(bool) (string, bool) { return "ok\xff\xfe", true }
	ctx := openFake(t, lib)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on malformed engine output")
		}
	}()
	ctx.Text(false)
}

func TestSpeechProbabilityEmptyIsSentinel(t *testing.T) {
	lib := newFakeLibrary()
	lib.probFn = func([]float64, int) float32 {
		panic("speechProb reached with empty samples")
	}
	ctx := openFake(t, lib)

	if got := ctx.SpeechProbability(nil); got != -1.0 {
		t.Fatalf("expected -1.0, got %v", got)
	}
	if lib.probCalls != 0 {
		t.Fatalf("expected no native calls, got %d", lib.probCalls)
	}
}

func TestSpeechProbabilityPassesThrough(t *testing.T) {
	lib := newFakeLibrary()
	var procs int
	lib.probFn = func(_ []float64, n int) float32 {
		procs = n
		return 0.87
	}
	ctx := openFake(t, lib)

	if got := ctx.SpeechProbability([]float64{0.1, 0.2}); got != 0.87 {
		t.Fatalf("unexpected probability %v", got)
	}
	if procs != 8 {
		t.Fatalf("expected 8 processors, got %d", procs)
	}
}

func TestResetStateIsolatesInvocations(t *testing.T) {
	lib := newFakeLibrary()
	var (
		used      bool
		seenReset int
		last      []float64
	)
	// The fake keeps decoder state between calls and fails with a decode
	// error unless the state was reset in between.
	lib.fullFn = func(_ fullRequest, samples []float64, _ int) int {
		lib.mu.Lock()
		resets := lib.resets
		lib.mu.Unlock()
		if used && resets == seenReset {
			return codeDecode
		}
		used = true
		seenReset = resets
		last = samples
		if samples[0] < 0 {
			return codeEncode
		}
		return codeOK
	}
	lib.textFn = func(bool) (string, bool) {
		if last[0] > 0 {
			return "second", true
		}
		return "first", true
	}
	ctx := openFake(t, lib)
	params := DefaultFullParams(SamplingGreedy)

	if err := ctx.FullParallel(params, []float64{-0.3}); !errors.Is(err, ErrEncode) {
		t.Fatalf("first call: expected ErrEncode, got %v", err)
	}

	ctx.ResetState()
	if err := ctx.FullParallel(params, []float64{0.4}); err != nil {
		t.Fatalf("second call after reset: %v", err)
	}
	text, err := ctx.Text(false)
	if err != nil || text != "second" {
		t.Fatalf("Text after reset = %q, %v", text, err)
	}

	if err := ctx.FullParallel(params, []float64{0.5}); !errors.Is(err, ErrDecode) {
		t.Fatalf("call without reset: expected ErrDecode, got %v", err)
	}
}

func TestConcurrentCallsAndClose(t *testing.T) {
	lib := newFakeLibrary()
	ctx, err := newContext(lib, "model.gguf", DefaultContextParams())
	if err != nil {
		t.Fatalf("newContext: %v", err)
	}
	params := DefaultFullParams(SamplingGreedy)
	samples := []float64{0.1, 0.2, 0.3}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				err := ctx.FullParallel(params, samples)
				if err != nil && !errors.Is(err, ErrContextClosed) {
					t.Errorf("FullParallel: %v", err)
					return
				}
				ctx.SpeechProbability(samples)
				ctx.ResetState()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.Close()
	}()
	wg.Wait()

	if lib.frees != 1 {
		t.Fatalf("expected one free, got %d", lib.frees)
	}
}
