package config

import (
	"fmt"
	"strings"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:50051"
	DefaultModel      = "small-q8"
	DefaultLanguage   = "auto"
	DefaultLogLevel   = "info"
	DefaultDataDir    = "data"

	// ClientLanguage defers the language choice to stream metadata.
	ClientLanguage = "client"
)

// Config captures bootstrap configuration extracted from an optional YAML
// file, the injected JSON payload (`NUPI_ADAPTER_CONFIG`) and environment
// variables, in that order of precedence.
type Config struct {
	ListenAddr    string `yaml:"listen_addr" json:"listen_addr"`
	ModelVariant  string `yaml:"model_variant" json:"model_variant"`
	Language      string `yaml:"language" json:"language"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	DataDir       string `yaml:"data_dir" json:"data_dir"`
	ModelPath     string `yaml:"model_path" json:"model_path"`
	UseStubEngine bool   `yaml:"use_stub_engine" json:"use_stub_engine"`

	UseGPU          *bool    `yaml:"use_gpu" json:"use_gpu"`
	UseITN          *bool    `yaml:"use_itn" json:"use_itn"`
	FlashAttention  *bool    `yaml:"flash_attention" json:"flash_attention"`
	GPUDevice       *int     `yaml:"gpu_device" json:"gpu_device"`
	Threads         *int     `yaml:"threads" json:"threads"`
	Strategy        string   `yaml:"strategy" json:"strategy"`
	BestOf          *int     `yaml:"best_of" json:"best_of"`
	BeamSize        *int     `yaml:"beam_size" json:"beam_size"`
	SpeechThreshold *float64 `yaml:"speech_threshold" json:"speech_threshold"`
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Threads != nil && *c.Threads < 0 {
		return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
	}
	if c.Threads != nil && *c.Threads == 0 {
		c.Threads = nil
	}
	if c.GPUDevice != nil && *c.GPUDevice < 0 {
		return fmt.Errorf("config: gpu_device must be >= 0, got %d", *c.GPUDevice)
	}
	strategy, err := sensevoice.ParseStrategy(c.Strategy)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Strategy = strategy.String()
	if c.BestOf != nil && *c.BestOf < 1 {
		return fmt.Errorf("config: best_of must be >= 1, got %d", *c.BestOf)
	}
	if c.BeamSize != nil && *c.BeamSize < 1 {
		return fmt.Errorf("config: beam_size must be >= 1, got %d", *c.BeamSize)
	}
	if c.BestOf != nil && strategy != sensevoice.SamplingGreedy {
		return fmt.Errorf("config: best_of only applies to the greedy strategy, got %s", c.Strategy)
	}
	if c.BeamSize != nil && strategy != sensevoice.SamplingBeamSearch {
		return fmt.Errorf("config: beam_size only applies to the beam_search strategy, got %s", c.Strategy)
	}
	if c.SpeechThreshold != nil && (*c.SpeechThreshold < 0 || *c.SpeechThreshold > 1) {
		return fmt.Errorf("config: speech_threshold must be within [0, 1], got %g", *c.SpeechThreshold)
	}
	return nil
}

// LanguageHint returns the configured language unless it defers to the client.
func (c Config) LanguageHint() string {
	if strings.EqualFold(strings.TrimSpace(c.Language), ClientLanguage) {
		return ""
	}
	return c.Language
}
