package sensevoice

// ContextParams configures context construction. It is consumed once by
// NewContext; every combination of fields is valid.
type ContextParams struct {
	// UseGPU offloads inference to an accelerator when the library was built
	// with one.
	UseGPU bool
	// UseITN enables inverse text normalisation of the decoded text.
	UseITN bool
	// FlashAttention enables flash attention.
	//
	// Flash attention and DTW token alignment are mutually exclusive in the
	// engine: when FlashAttention is true, DTW is disabled regardless of any
	// other setting. See DTWDisabled.
	FlashAttention bool
	// GPUDevice selects the accelerator device index.
	GPUDevice int
}

// DefaultContextParams returns the construction defaults. UseGPU follows the
// build: it is true only for binaries built with the sensevoice_gpu tag.
func DefaultContextParams() ContextParams {
	return ContextParams{UseGPU: gpuDefault}
}

// DTWDisabled reports whether the engine will skip DTW token alignment for
// these parameters.
func (p ContextParams) DTWDisabled() bool {
	return p.FlashAttention
}

// contextRequest mirrors sense_voice_context_params. The callback slots are
// kept so that marshalling states explicitly that they are always empty.
type contextRequest struct {
	useGPU    bool
	useITN    bool
	flashAttn bool
	gpuDevice int32

	// cb_eval and cb_eval_user_data. Always zero: evaluation callbacks would
	// need a lifetime design for Go closures crossing into C.
	cbEval         uintptr
	cbEvalUserData uintptr
}

func (p ContextParams) request() contextRequest {
	return contextRequest{
		useGPU:    p.UseGPU,
		useITN:    p.UseITN,
		flashAttn: p.FlashAttention,
		gpuDevice: int32(p.GPUDevice),
	}
}
