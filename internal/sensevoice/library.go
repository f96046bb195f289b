package sensevoice

import "unsafe"

// nProcessors is the decode parallelism handed to the engine. It is
// independent of FullParams.Threads, which the engine uses per processor.
const nProcessors = 8

// library is the complete set of native entry points. Every call into C goes
// through one of these methods, and Context checks all preconditions before
// invoking them.
type library interface {
	// initFromFile returns nil when the engine could not build a context.
	initFromFile(path string, req contextRequest) unsafe.Pointer
	free(ctx unsafe.Pointer)
	fullParallel(ctx unsafe.Pointer, req fullRequest, samples []float64, nProcessors int) int
	// fullGetText returns ok=false when the engine returned NULL.
	fullGetText(ctx unsafe.Pointer, needPrefix bool) (text string, ok bool)
	speechProb(ctx unsafe.Pointer, samples []float64, nProcessors int) float32
	resetState(ctx unsafe.Pointer)
}
