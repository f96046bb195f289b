package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/config"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/models"
)

// ErrNativeEngineUnavailable indicates the binary was built without the sensevoice tag.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// New resolves the configured model and returns an Engine together with the
// model path it uses. On failure it still returns a stub engine alongside the
// error so callers may choose to keep serving.
func New(ctx context.Context, cfg config.Config, manager *models.Manager, logger *slog.Logger) (Engine, string, error) {
	manifest, err := models.DefaultManifest()
	if err != nil {
		return newEngineWithOptions(ctx, cfg, manager, logger, engineOptions{})
	}
	return newEngineWithOptions(ctx, cfg, manager, logger, engineOptions{
		ensure: models.EnsureOptions{
			Manifest: manifest,
			Override: cfg.ModelPath,
		},
	})
}

type engineOptions struct {
	ensure models.EnsureOptions
	// open replaces NewNativeEngine in tests.
	open func(path string, opts NativeOptions, logger *slog.Logger) (Engine, error)
	// native overrides NativeAvailable in tests.
	native *bool
}

func newEngineWithOptions(ctx context.Context, cfg config.Config, manager *models.Manager, logger *slog.Logger, opts engineOptions) (Engine, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stub := func() Engine {
		e := NewStubEngine(logger, cfg.ModelVariant)
		e.SetDefaultLanguage(cfg.LanguageHint())
		return e
	}

	if cfg.UseStubEngine {
		path := ""
		if manager != nil && strings.TrimSpace(cfg.ModelPath) != "" {
			resolved, err := manager.Resolve(cfg.ModelVariant, cfg.ModelPath)
			if err != nil {
				return stub(), "", err
			}
			path = resolved
		}
		logger.Warn("stub engine forced by configuration")
		return stub(), path, nil
	}

	if manager == nil {
		logger.Warn("model manager unavailable; using stub engine")
		return stub(), "", ErrNativeEngineUnavailable
	}
	if len(opts.ensure.Manifest.Variants) == 0 && strings.TrimSpace(opts.ensure.Override) == "" {
		return stub(), "", errors.New("models: manifest is empty")
	}

	modelPath, err := manager.EnsureVariant(ctx, cfg.ModelVariant, opts.ensure)
	if err != nil {
		logger.Warn("model ensure failed; using stub engine", "error", err)
		return stub(), "", err
	}

	available := NativeAvailable()
	if opts.native != nil {
		available = *opts.native
	}
	if !available {
		logger.Warn("native backend disabled at build time; using stub engine", "model_path", modelPath)
		return stub(), modelPath, ErrNativeEngineUnavailable
	}

	open := opts.open
	if open == nil {
		open = func(path string, nopts NativeOptions, logger *slog.Logger) (Engine, error) {
			return NewNativeEngine(path, nopts, logger)
		}
	}
	native, err := open(modelPath, NativeOptionsFromConfig(cfg), logger)
	if err != nil {
		logger.Error("native engine initialisation failed; using stub", "error", err, "model_path", modelPath)
		return stub(), modelPath, err
	}
	SetDefaultLanguage(native, cfg.LanguageHint())
	logger.Info("native engine ready", "model_path", modelPath)
	return native, modelPath, nil
}
