//go:build sensevoice && cgo

package sensevoice

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/SenseVoice.cpp/sense-voice/csrc -I${SRCDIR}/../../third_party/SenseVoice.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/SenseVoice.cpp/sense-voice/csrc -I${SRCDIR}/../../third_party/SenseVoice.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/SenseVoice.cpp/build/lib -Wl,-rpath,${SRCDIR}/../../third_party/SenseVoice.cpp/build/lib -lsense-voice-core -lggml -lggml-base -lggml-cpu -lstdc++ -lm

#include <stdlib.h>
#include <stdbool.h>
#include "sense-voice.h"

static struct sense_voice_context * sv_init(const char * path, bool use_gpu, bool use_itn, bool flash_attn, int gpu_device) {
	struct sense_voice_context_params p;
	p.use_gpu = use_gpu;
	p.use_itn = use_itn;
	p.flash_attn = flash_attn;
	p.gpu_device = gpu_device;
	p.cb_eval = NULL;
	p.cb_eval_user_data = NULL;
	return sense_voice_small_init_from_file_with_params(path, p);
}

static int sv_full_parallel(
	struct sense_voice_context * ctx,
	int strategy, int n_threads, const char * language, int n_max_text_ctx,
	int offset_ms, int duration_ms,
	bool no_timestamps, bool single_segment, bool print_progress, bool print_timestamps, bool debug_mode,
	int audio_ctx, int best_of, int beam_size,
	const double * samples, int n_samples, int n_processors) {
	struct sense_voice_full_params p;
	p.strategy = strategy;
	p.n_threads = n_threads;
	p.language = language;
	p.n_max_text_ctx = n_max_text_ctx;
	p.offset_ms = offset_ms;
	p.duration_ms = duration_ms;
	p.no_timestamps = no_timestamps;
	p.single_segment = single_segment;
	p.print_progress = print_progress;
	p.print_timestamps = print_timestamps;
	p.debug_mode = debug_mode;
	p.audio_ctx = audio_ctx;
	p.greedy.best_of = best_of;
	p.beam_search.beam_size = beam_size;
	p.progress_callback = NULL;
	p.progress_callback_user_data = NULL;
	return sense_voice_full_parallel(ctx, &p, samples, n_samples, n_processors);
}
*/
import "C"

import "unsafe"

type cgoLibrary struct{}

func nativeLibrary() library { return cgoLibrary{} }

func (cgoLibrary) initFromFile(path string, req contextRequest) unsafe.Pointer {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.sv_init(cPath, C.bool(req.useGPU), C.bool(req.useITN), C.bool(req.flashAttn), C.int(req.gpuDevice))
	return unsafe.Pointer(ctx)
}

func (cgoLibrary) free(ctx unsafe.Pointer) {
	C.sense_voice_free((*C.struct_sense_voice_context)(ctx))
}

func (cgoLibrary) fullParallel(ctx unsafe.Pointer, req fullRequest, samples []float64, nProcessors int) int {
	// The C copy of the language must outlive the native call, so it is
	// allocated per call and freed on return.
	cLang := C.CString(req.language)
	defer C.free(unsafe.Pointer(cLang))

	ret := C.sv_full_parallel(
		(*C.struct_sense_voice_context)(ctx),
		C.int(req.strategy), C.int(req.nThreads), cLang, C.int(req.nMaxTextCtx),
		C.int(req.offsetMs), C.int(req.durationMs),
		C.bool(req.noTimestamps), C.bool(req.singleSegment), C.bool(req.printProgress), C.bool(req.printTimestamps), C.bool(req.debugMode),
		C.int(req.audioCtx), C.int(req.bestOf), C.int(req.beamSize),
		(*C.double)(unsafe.Pointer(&samples[0])), C.int(len(samples)), C.int(nProcessors),
	)
	return int(ret)
}

func (cgoLibrary) fullGetText(ctx unsafe.Pointer, needPrefix bool) (string, bool) {
	ret := C.sense_voice_full_get_text((*C.struct_sense_voice_context)(ctx), C.bool(needPrefix))
	if ret == nil {
		return "", false
	}
	return C.GoString(ret), true
}

func (cgoLibrary) speechProb(ctx unsafe.Pointer, samples []float64, nProcessors int) float32 {
	ret := C.sense_voice_get_speech_prob(
		(*C.struct_sense_voice_context)(ctx),
		(*C.double)(unsafe.Pointer(&samples[0])), C.int(len(samples)), C.int(nProcessors),
	)
	return float32(ret)
}

func (cgoLibrary) resetState(ctx unsafe.Pointer) {
	C.sense_voice_reset_ctx_state((*C.struct_sense_voice_context)(ctx))
}
