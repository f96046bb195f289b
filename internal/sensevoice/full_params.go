package sensevoice

import (
	"fmt"
	"runtime"
	"strings"
)

// Strategy selects the decoding search.
type Strategy int

const (
	SamplingGreedy Strategy = iota
	SamplingBeamSearch
)

func (s Strategy) String() string {
	switch s {
	case SamplingGreedy:
		return "greedy"
	case SamplingBeamSearch:
		return "beam_search"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "greedy" and "beam_search" (or "beam-search").
func ParseStrategy(value string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "greedy", "":
		return SamplingGreedy, nil
	case "beam_search", "beam-search", "beam":
		return SamplingBeamSearch, nil
	default:
		return SamplingGreedy, fmt.Errorf("sensevoice: unknown strategy %q", value)
	}
}

// Unused marks the sub-parameter of the strategy that is not selected.
const Unused = -1

const (
	// AutoLanguage asks the engine to detect the language.
	AutoLanguage = "auto"

	defaultMaxThreads = 4
	defaultMaxTextCtx = 16384
	defaultBestOf     = 5
	defaultBeamSize   = 5
)

// FullParams configures one inference call. Values are immutable once built
// and may be reused across calls; the invocation layer marshals a fresh
// native copy every time.
type FullParams struct {
	strategy        Strategy
	nThreads        int
	language        string
	nMaxTextCtx     int
	offsetMs        int
	durationMs      int
	noTimestamps    bool
	singleSegment   bool
	printProgress   bool
	printTimestamps bool
	debugMode       bool
	audioCtx        int
	bestOf          int
	beamSize        int
}

// DefaultFullParams returns the defaults for strategy.
func DefaultFullParams(strategy Strategy) FullParams {
	return NewFullParamsBuilder(strategy).Build()
}

func (p FullParams) Strategy() Strategy    { return p.strategy }
func (p FullParams) Threads() int          { return p.nThreads }
func (p FullParams) Language() string      { return p.language }
func (p FullParams) MaxTextCtx() int       { return p.nMaxTextCtx }
func (p FullParams) OffsetMs() int         { return p.offsetMs }
func (p FullParams) DurationMs() int       { return p.durationMs }
func (p FullParams) NoTimestamps() bool    { return p.noTimestamps }
func (p FullParams) SingleSegment() bool   { return p.singleSegment }
func (p FullParams) PrintProgress() bool   { return p.printProgress }
func (p FullParams) PrintTimestamps() bool { return p.printTimestamps }
func (p FullParams) DebugMode() bool       { return p.debugMode }
func (p FullParams) AudioCtx() int         { return p.audioCtx }

// BestOf is the greedy candidate count, or Unused.
func (p FullParams) BestOf() int { return p.bestOf }

// BeamSize is the beam-search width, or Unused.
func (p FullParams) BeamSize() int { return p.beamSize }

// FullParamsBuilder assembles FullParams. The strategy is fixed when the
// builder is created; every setter overrides exactly one field and the last
// write wins. The zero value behaves like NewFullParamsBuilder(SamplingGreedy).
type FullParamsBuilder struct {
	params FullParams
	ready  bool
}

// NewFullParamsBuilder returns a builder populated with the defaults for
// strategy.
func NewFullParamsBuilder(strategy Strategy) FullParamsBuilder {
	p := FullParams{
		strategy:        strategy,
		nThreads:        defaultThreads(),
		language:        AutoLanguage,
		nMaxTextCtx:     defaultMaxTextCtx,
		singleSegment:   true,
		printProgress:   true,
		printTimestamps: true,
		bestOf:          Unused,
		beamSize:        Unused,
	}
	switch strategy {
	case SamplingGreedy:
		p.bestOf = defaultBestOf
	case SamplingBeamSearch:
		p.beamSize = defaultBeamSize
	}
	return FullParamsBuilder{params: p, ready: true}
}

// defaultThreads caps inference at four threads while still using every
// core on smaller machines.
func defaultThreads() int {
	return min(defaultMaxThreads, runtime.NumCPU())
}

func (b FullParamsBuilder) init() FullParamsBuilder {
	if !b.ready {
		return NewFullParamsBuilder(SamplingGreedy)
	}
	return b
}

func (b FullParamsBuilder) Threads(n int) FullParamsBuilder {
	b = b.init()
	b.params.nThreads = n
	return b
}

func (b FullParamsBuilder) Language(language string) FullParamsBuilder {
	b = b.init()
	b.params.language = language
	return b
}

func (b FullParamsBuilder) MaxTextCtx(n int) FullParamsBuilder {
	b = b.init()
	b.params.nMaxTextCtx = n
	return b
}

func (b FullParamsBuilder) OffsetMs(ms int) FullParamsBuilder {
	b = b.init()
	b.params.offsetMs = ms
	return b
}

func (b FullParamsBuilder) DurationMs(ms int) FullParamsBuilder {
	b = b.init()
	b.params.durationMs = ms
	return b
}

func (b FullParamsBuilder) NoTimestamps(v bool) FullParamsBuilder {
	b = b.init()
	b.params.noTimestamps = v
	return b
}

func (b FullParamsBuilder) SingleSegment(v bool) FullParamsBuilder {
	b = b.init()
	b.params.singleSegment = v
	return b
}

func (b FullParamsBuilder) PrintProgress(v bool) FullParamsBuilder {
	b = b.init()
	b.params.printProgress = v
	return b
}

func (b FullParamsBuilder) PrintTimestamps(v bool) FullParamsBuilder {
	b = b.init()
	b.params.printTimestamps = v
	return b
}

func (b FullParamsBuilder) DebugMode(v bool) FullParamsBuilder {
	b = b.init()
	b.params.debugMode = v
	return b
}

func (b FullParamsBuilder) AudioCtx(n int) FullParamsBuilder {
	b = b.init()
	b.params.audioCtx = n
	return b
}

// GreedyBestOf sets best_of. It is sent to the engine even when the
// strategy is beam search; the engine ignores it there.
func (b FullParamsBuilder) GreedyBestOf(n int) FullParamsBuilder {
	b = b.init()
	b.params.bestOf = n
	return b
}

// BeamSize sets the beam width. See GreedyBestOf.
func (b FullParamsBuilder) BeamSize(n int) FullParamsBuilder {
	b = b.init()
	b.params.beamSize = n
	return b
}

// Build returns the configured parameters. It never fails.
func (b FullParamsBuilder) Build() FullParams {
	return b.init().params
}

// fullRequest mirrors sense_voice_full_params. language is still a Go string
// here; the native layer copies it into C memory that lives for exactly one
// call.
type fullRequest struct {
	strategy        int32
	nThreads        int32
	language        string
	nMaxTextCtx     int32
	offsetMs        int32
	durationMs      int32
	noTimestamps    bool
	singleSegment   bool
	printProgress   bool
	printTimestamps bool
	debugMode       bool
	audioCtx        int32
	bestOf          int32
	beamSize        int32

	// progress_callback and progress_callback_user_data, always empty.
	progressCallback         uintptr
	progressCallbackUserData uintptr
}

func (p FullParams) request() (fullRequest, error) {
	if strings.IndexByte(p.language, 0) >= 0 {
		return fullRequest{}, fmt.Errorf("%w: language %q", ErrInvalidString, p.language)
	}
	return fullRequest{
		strategy:        int32(p.strategy),
		nThreads:        int32(p.nThreads),
		language:        p.language,
		nMaxTextCtx:     int32(p.nMaxTextCtx),
		offsetMs:        int32(p.offsetMs),
		durationMs:      int32(p.durationMs),
		noTimestamps:    p.noTimestamps,
		singleSegment:   p.singleSegment,
		printProgress:   p.printProgress,
		printTimestamps: p.printTimestamps,
		debugMode:       p.debugMode,
		audioCtx:        int32(p.audioCtx),
		bestOf:          int32(p.bestOf),
		beamSize:        int32(p.beamSize),
	}, nil
}
