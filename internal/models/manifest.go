package models

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

//go:embed embedded_manifest.json
var embeddedManifest []byte

// Manifest lists the GGUF model variants the adapter knows how to fetch.
type Manifest struct {
	Variants map[string]Variant `json:"variants"`
}

// Variant describes one downloadable model file. SHA256 and SizeBytes are
// filled in by cmd/tools/update_manifest; empty values skip verification.
type Variant struct {
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	SHA256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
}

// LoadManifest decodes a manifest and checks every variant names a plain file.
func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("models: decode manifest: %w", err)
	}
	for name, v := range m.Variants {
		if strings.TrimSpace(v.Filename) == "" {
			return Manifest{}, fmt.Errorf("models: variant %q has no filename", name)
		}
		if strings.ContainsAny(v.Filename, `/\`) || v.Filename == "." || v.Filename == ".." {
			return Manifest{}, fmt.Errorf("models: variant %q filename %q must not contain a path", name, v.Filename)
		}
	}
	return m, nil
}

// DefaultManifest returns the manifest compiled into the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}

// Lookup returns the named variant.
func (m Manifest) Lookup(name string) (Variant, error) {
	v, ok := m.Variants[strings.TrimSpace(name)]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownVariant, name, strings.Join(m.Names(), ", "))
	}
	return v, nil
}

// Names returns the variant names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Variants))
	for name := range m.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
