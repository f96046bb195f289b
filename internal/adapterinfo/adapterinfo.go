package adapterinfo

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed plugin.yaml
var manifest []byte

// Metadata captures static identifiers for the adapter, read from plugin.yaml.
type Metadata struct {
	Name        string `yaml:"name"`
	BinaryName  string `yaml:"binary_name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	GeneratorID string `yaml:"generator_id"`
	Version     string `yaml:"version"`
}

// Info describes the current adapter.
var Info = mustParse(manifest)

func mustParse(raw []byte) Metadata {
	md, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return md
}

// Parse decodes a plugin manifest and checks the identifiers are present.
func Parse(raw []byte) (Metadata, error) {
	var md Metadata
	if err := yaml.Unmarshal(raw, &md); err != nil {
		return Metadata{}, fmt.Errorf("adapterinfo: decode manifest: %w", err)
	}
	if md.Slug == "" || md.GeneratorID == "" || md.Version == "" {
		return Metadata{}, fmt.Errorf("adapterinfo: manifest requires slug, generator_id and version")
	}
	return md, nil
}

// Version reports the adapter release.
func Version() string { return Info.Version }

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelVariant, language string) map[string]string {
	return map[string]string{
		"generator":     Info.GeneratorID,
		"model_variant": modelVariant,
		"language":      language,
		"version":       Info.Version,
	}
}
