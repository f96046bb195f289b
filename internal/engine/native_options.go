package engine

import (
	"fmt"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/config"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

// NativeOptions configures the SenseVoice backend. Nil fields keep the
// library defaults.
type NativeOptions struct {
	UseGPU         *bool
	UseITN         *bool
	FlashAttention *bool
	GPUDevice      *int
	Threads        *int
	// Strategy is "greedy" or "beam_search"; empty means greedy.
	Strategy string
	BestOf   *int
	BeamSize *int
	// SpeechThreshold skips windows whose speech probability is lower. Zero disables the gate.
	SpeechThreshold *float32
}

// NativeOptionsFromConfig copies the native tunables out of the adapter configuration.
func NativeOptionsFromConfig(cfg config.Config) NativeOptions {
	opts := NativeOptions{
		UseGPU:         cfg.UseGPU,
		UseITN:         cfg.UseITN,
		FlashAttention: cfg.FlashAttention,
		GPUDevice:      cfg.GPUDevice,
		Threads:        cfg.Threads,
		Strategy:       cfg.Strategy,
		BestOf:         cfg.BestOf,
		BeamSize:       cfg.BeamSize,
	}
	if cfg.SpeechThreshold != nil {
		v := float32(*cfg.SpeechThreshold)
		opts.SpeechThreshold = &v
	}
	return opts
}

func (o NativeOptions) contextParams() sensevoice.ContextParams {
	params := sensevoice.DefaultContextParams()
	if o.UseGPU != nil {
		params.UseGPU = *o.UseGPU
	}
	if o.UseITN != nil {
		params.UseITN = *o.UseITN
	}
	if o.FlashAttention != nil {
		params.FlashAttention = *o.FlashAttention
	}
	if o.GPUDevice != nil {
		params.GPUDevice = *o.GPUDevice
	}
	return params
}

// fullParams returns a builder preloaded with everything except the language.
func (o NativeOptions) fullParams() (sensevoice.FullParamsBuilder, error) {
	strategy, err := sensevoice.ParseStrategy(o.Strategy)
	if err != nil {
		return sensevoice.FullParamsBuilder{}, fmt.Errorf("engine: %w", err)
	}
	b := sensevoice.NewFullParamsBuilder(strategy).
		PrintProgress(false).
		PrintTimestamps(false)
	if o.Threads != nil && *o.Threads > 0 {
		b = b.Threads(*o.Threads)
	}
	if o.BestOf != nil && strategy == sensevoice.SamplingGreedy {
		b = b.GreedyBestOf(*o.BestOf)
	}
	if o.BeamSize != nil && strategy == sensevoice.SamplingBeamSearch {
		b = b.BeamSize(*o.BeamSize)
	}
	return b, nil
}

func (o NativeOptions) speechThreshold() float32 {
	if o.SpeechThreshold == nil {
		return 0
	}
	return *o.SpeechThreshold
}
