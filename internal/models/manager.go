package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnknownVariant = errors.New("models: unknown variant")
	ErrModelNotFound  = errors.New("models: model file not found")
	ErrChecksum       = errors.New("models: checksum mismatch")
)

// Manager keeps model files under <baseDir>/models.
type Manager struct {
	modelsDir string
	log       *slog.Logger
	client    *http.Client
}

// NewManager creates the models directory when missing.
func NewManager(baseDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("models: base directory required")
	}
	dir := filepath.Join(baseDir, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("models: create %s: %w", dir, err)
	}
	return &Manager{
		modelsDir: dir,
		log:       logger.With("component", "models.Manager"),
		client:    &http.Client{Timeout: 30 * time.Minute},
	}, nil
}

func (m *Manager) ModelsDir() string { return m.modelsDir }

// Resolve returns the path of an already present model. A non-empty override
// wins over the variant lookup in the embedded manifest.
func (m *Manager) Resolve(variant, override string) (string, error) {
	if path, ok, err := resolveOverride(override); ok || err != nil {
		return path, err
	}
	manifest, err := DefaultManifest()
	if err != nil {
		return "", err
	}
	return m.resolveVariant(manifest, variant)
}

// EnsureOptions controls EnsureVariant.
type EnsureOptions struct {
	Manifest Manifest
	// Override points at a model file outside the managed directory.
	Override string
	// Client replaces the manager's HTTP client.
	Client *http.Client
}

// EnsureVariant returns the local path of variant, downloading it first when
// the manifest carries a URL and the file is missing.
func (m *Manager) EnsureVariant(ctx context.Context, variant string, opts EnsureOptions) (string, error) {
	if path, ok, err := resolveOverride(opts.Override); ok || err != nil {
		return path, err
	}

	path, err := m.resolveVariant(opts.Manifest, variant)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, ErrModelNotFound) {
		return "", err
	}

	v, _ := opts.Manifest.Lookup(variant)
	if strings.TrimSpace(v.URL) == "" {
		return "", err
	}
	client := opts.Client
	if client == nil {
		client = m.client
	}
	if err := m.download(ctx, client, v, path); err != nil {
		return "", err
	}
	return path, nil
}

func resolveOverride(override string) (string, bool, error) {
	override = strings.TrimSpace(override)
	if override == "" {
		return "", false, nil
	}
	info, err := os.Stat(override)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", true, fmt.Errorf("%w: %s", ErrModelNotFound, override)
		}
		return "", true, fmt.Errorf("models: stat %s: %w", override, err)
	}
	if info.IsDir() {
		return "", true, fmt.Errorf("models: %s is a directory", override)
	}
	return override, true, nil
}

// resolveVariant returns the managed path for variant. The path is returned
// alongside ErrModelNotFound so callers can download into it.
func (m *Manager) resolveVariant(manifest Manifest, variant string) (string, error) {
	v, err := manifest.Lookup(variant)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.modelsDir, v.Filename)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("models: stat %s: %w", path, err)
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, client *http.Client, v Variant, dest string) (err error) {
	log := m.log.With("url", v.URL, "path", dest)
	log.Info("downloading model")
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return fmt.Errorf("models: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("models: download %s: %w", v.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: download %s: unexpected status %s", v.URL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("models: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if err != nil {
		return fmt.Errorf("models: write %s: %w", tmp.Name(), err)
	}
	if v.SizeBytes > 0 && written != v.SizeBytes {
		return fmt.Errorf("%w: %s has %d bytes, want %d", ErrChecksum, v.Filename, written, v.SizeBytes)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	if v.SHA256 != "" && !strings.EqualFold(sum, v.SHA256) {
		return fmt.Errorf("%w: %s sha256 %s, want %s", ErrChecksum, v.Filename, sum, v.SHA256)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("models: close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("models: install %s: %w", dest, err)
	}

	log.Info("model downloaded", "bytes", written, "sha256", sum, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
