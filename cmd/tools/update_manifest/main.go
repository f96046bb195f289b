// Command update_manifest refreshes sha256 and size_bytes of every variant by
// downloading it once.
package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/models"
)

func main() {
	manifestPath := flag.String("manifest", "internal/models/embedded_manifest.json", "Path to manifest JSON to update")
	only := flag.String("variant", "", "update a single variant")
	flag.Parse()

	raw, err := os.ReadFile(*manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read manifest: %v\n", err)
		os.Exit(1)
	}
	manifest, err := models.LoadManifest(bytes.NewReader(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse manifest: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	failed := false
	for _, name := range manifest.Names() {
		if *only != "" && name != *only {
			continue
		}
		variant := manifest.Variants[name]
		if variant.URL == "" {
			fmt.Printf("%s: skipping (no URL)\n", name)
			continue
		}

		fmt.Printf("%s: downloading %s...\n", name, variant.URL)
		sum, size, err := digest(context.Background(), client, variant.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
			continue
		}
		variant.SHA256 = sum
		variant.SizeBytes = size
		manifest.Variants[name] = variant
		fmt.Printf("%s: size=%d sha256=%s\n", name, size, sum)
	}

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode manifest: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*manifestPath, append(out, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write manifest: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated manifest written to %s\n", *manifestPath)
	if failed {
		os.Exit(1)
	}
}

func digest(ctx context.Context, client *http.Client, url string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	hasher := sha256.New()
	written, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read error: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}
