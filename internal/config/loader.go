package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file, the JSON payload and
// environment variables. Tests can override Lookup and ReadFile to inject
// deterministic inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load retrieves the adapter configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("SENSEVOICE_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		raw, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := applyYAML(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(l.Lookup, "NUPI_LANGUAGE_HINT", &cfg.Language)
	overrideString(l.Lookup, "NUPI_ADAPTER_DATA_DIR", &cfg.DataDir)
	overrideString(l.Lookup, "NUPI_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "SENSEVOICE_STRATEGY", &cfg.Strategy)

	var err error
	set := func(e error) {
		if err == nil {
			err = e
		}
	}
	set(overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_ENGINE", &cfg.UseStubEngine))
	set(overrideBoolPtr(l.Lookup, "SENSEVOICE_USE_GPU", &cfg.UseGPU))
	set(overrideBoolPtr(l.Lookup, "SENSEVOICE_USE_ITN", &cfg.UseITN))
	set(overrideBoolPtr(l.Lookup, "SENSEVOICE_FLASH_ATTENTION", &cfg.FlashAttention))
	set(overrideIntPtr(l.Lookup, "SENSEVOICE_GPU_DEVICE", &cfg.GPUDevice))
	set(overrideIntPtr(l.Lookup, "SENSEVOICE_THREADS", &cfg.Threads))
	set(overrideIntPtr(l.Lookup, "SENSEVOICE_BEST_OF", &cfg.BestOf))
	set(overrideIntPtr(l.Lookup, "SENSEVOICE_BEAM_SIZE", &cfg.BeamSize))
	set(overrideFloatPtr(l.Lookup, "SENSEVOICE_SPEECH_THRESHOLD", &cfg.SpeechThreshold))
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyYAML(raw []byte, cfg *Config) error {
	var payload Config
	if err := yaml.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	merge(cfg, payload)
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	var payload Config
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
	}
	merge(cfg, payload)
	return nil
}

// merge copies every field set in src over dst.
func merge(dst *Config, src Config) {
	mergeString(&dst.ListenAddr, src.ListenAddr)
	mergeString(&dst.ModelVariant, src.ModelVariant)
	mergeString(&dst.Language, src.Language)
	mergeString(&dst.LogLevel, src.LogLevel)
	mergeString(&dst.DataDir, src.DataDir)
	mergeString(&dst.ModelPath, src.ModelPath)
	mergeString(&dst.Strategy, src.Strategy)
	if src.UseStubEngine {
		dst.UseStubEngine = true
	}
	if src.UseGPU != nil {
		dst.UseGPU = src.UseGPU
	}
	if src.UseITN != nil {
		dst.UseITN = src.UseITN
	}
	if src.FlashAttention != nil {
		dst.FlashAttention = src.FlashAttention
	}
	if src.GPUDevice != nil {
		dst.GPUDevice = src.GPUDevice
	}
	if src.Threads != nil {
		dst.Threads = src.Threads
	}
	if src.BestOf != nil {
		dst.BestOf = src.BestOf
	}
	if src.BeamSize != nil {
		dst.BeamSize = src.BeamSize
	}
	if src.SpeechThreshold != nil {
		dst.SpeechThreshold = src.SpeechThreshold
	}
}

func mergeString(dst *string, src string) {
	if trimmed := strings.TrimSpace(src); trimmed != "" {
		*dst = trimmed
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func lookupTrimmed(lookup func(string) (string, bool), key string) (string, bool) {
	value, ok := lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func overrideBoolPtr(lookup func(string) (string, bool), key string, target **bool) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &parsed
	return nil
}

func overrideIntPtr(lookup func(string) (string, bool), key string, target **int) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &parsed
	return nil
}

func overrideFloatPtr(lookup func(string) (string, bool), key string, target **float64) error {
	value, ok := lookupTrimmed(lookup, key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = &parsed
	return nil
}
