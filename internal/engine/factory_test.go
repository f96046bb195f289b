package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/config"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/models"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(v bool) *bool { return &v }

func testManifest() models.Manifest {
	return models.Manifest{Variants: map[string]models.Variant{
		"small-q8": {DisplayName: "Small", Filename: "sense-voice-small-q8_0.gguf"},
	}}
}

func managerWithModel(t *testing.T) (*models.Manager, string) {
	t.Helper()
	manager, err := models.NewManager(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	path := filepath.Join(manager.ModelsDir(), "sense-voice-small-q8_0.gguf")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return manager, path
}

func TestNewUsesStubWhenForced(t *testing.T) {
	cfg := config.Config{ModelVariant: "small-q8", UseStubEngine: true}
	eng, modelPath, err := New(context.Background(), cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if modelPath != "" {
		t.Fatalf("expected empty model path, got %q", modelPath)
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub engine, got %T", eng)
	}
}

func TestNewFallsBackWhenModelMissing(t *testing.T) {
	tempDir := t.TempDir()
	manager, err := models.NewManager(tempDir, nil)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	cfg := config.Config{
		ModelVariant:  "small-q8",
		ModelPath:     filepath.Join(tempDir, "missing.gguf"),
		UseStubEngine: true,
	}
	eng, modelPath, err := newEngineWithOptions(context.Background(), cfg, manager, nil, engineOptions{})
	if !errors.Is(err, models.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if modelPath != "" {
		t.Fatalf("expected empty model path")
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub engine")
	}
}

func TestNewRejectsEmptyManifest(t *testing.T) {
	manager, _ := managerWithModel(t)
	eng, _, err := newEngineWithOptions(context.Background(), config.Config{ModelVariant: "small-q8"}, manager, nil, engineOptions{})
	if err == nil {
		t.Fatalf("expected error for empty manifest")
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub engine")
	}
}

func TestNewWithoutNativeBackend(t *testing.T) {
	manager, path := managerWithModel(t)
	eng, modelPath, err := newEngineWithOptions(context.Background(), config.Config{ModelVariant: "small-q8"}, manager, nil, engineOptions{
		ensure: models.EnsureOptions{Manifest: testManifest()},
		native: boolPtr(false),
	})
	if !errors.Is(err, ErrNativeEngineUnavailable) {
		t.Fatalf("expected ErrNativeEngineUnavailable, got %v", err)
	}
	if modelPath != path {
		t.Fatalf("unexpected model path: want %s, got %s", path, modelPath)
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub engine when native unavailable")
	}
}

func TestNewOpensNativeEngine(t *testing.T) {
	manager, path := managerWithModel(t)
	threads := 2
	cfg := config.Config{ModelVariant: "small-q8", Language: "ja", Threads: &threads, UseITN: boolPtr(true)}

	rec := &fakeRecognizer{prob: 0.9, text: "こんにちは"}
	var gotPath string
	var gotOpts NativeOptions
	eng, modelPath, err := newEngineWithOptions(context.Background(), cfg, manager, discardLogger(), engineOptions{
		ensure: models.EnsureOptions{Manifest: testManifest()},
		native: boolPtr(true),
		open: func(p string, opts NativeOptions, logger *slog.Logger) (Engine, error) {
			gotPath, gotOpts = p, opts
			builder, err := opts.fullParams()
			if err != nil {
				return nil, err
			}
			return newNativeEngine(rec, builder, opts.speechThreshold(), logger), nil
		},
	})
	if err != nil {
		t.Fatalf("expected native engine, got %v", err)
	}
	if modelPath != path || gotPath != path {
		t.Fatalf("unexpected model path %q / %q", modelPath, gotPath)
	}
	if gotOpts.Threads == nil || *gotOpts.Threads != 2 || gotOpts.UseITN == nil || !*gotOpts.UseITN {
		t.Fatalf("config not forwarded: %+v", gotOpts)
	}
	native, ok := eng.(*NativeEngine)
	if !ok {
		t.Fatalf("expected native engine, got %T", eng)
	}

	if _, err := native.Flush(context.Background(), Options{}); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := native.TranscribeSegment(context.Background(), make([]byte, minBatchBytes), Options{Language: "auto"}); err != nil {
		t.Fatalf("TranscribeSegment: %v", err)
	}
	if rec.lastParams.Language() != "ja" {
		t.Fatalf("configured language hint not applied, got %q", rec.lastParams.Language())
	}
}

func TestNewFallsBackWhenNativeOpenFails(t *testing.T) {
	manager, path := managerWithModel(t)
	eng, modelPath, err := newEngineWithOptions(context.Background(), config.Config{ModelVariant: "small-q8"}, manager, nil, engineOptions{
		ensure: models.EnsureOptions{Manifest: testManifest()},
		native: boolPtr(true),
		open: func(string, NativeOptions, *slog.Logger) (Engine, error) {
			return nil, sensevoice.ErrInitFailed
		},
	})
	if !errors.Is(err, sensevoice.ErrInitFailed) {
		t.Fatalf("expected ErrInitFailed, got %v", err)
	}
	if modelPath != path {
		t.Fatalf("expected model path to be reported, got %q", modelPath)
	}
	if _, ok := eng.(*StubEngine); !ok {
		t.Fatalf("expected stub fallback, got %T", eng)
	}
}

func TestNewNativeEngineRejectsEmptyPath(t *testing.T) {
	if _, err := NewNativeEngine(" ", NativeOptions{}, nil); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

func TestNewNativeEngineWithoutBackend(t *testing.T) {
	if NativeAvailable() {
		t.Skip("native backend compiled in")
	}
	if _, err := NewNativeEngine("model.gguf", NativeOptions{}, nil); !errors.Is(err, ErrNativeEngineUnavailable) {
		t.Fatalf("expected ErrNativeEngineUnavailable, got %v", err)
	}
}
