package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/logging"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/models"
)

func main() {
	var (
		variant = flag.String("variant", "small-q8", "model variant defined in internal/models/embedded_manifest.json")
		output  = flag.String("dir", "testdata", "base directory where models/<file> will be stored")
		list    = flag.Bool("list", false, "print the known variants and exit")
	)
	flag.Parse()

	manifest, err := models.DefaultManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: load manifest: %v\n", err)
		os.Exit(1)
	}
	if *list {
		for _, name := range manifest.Names() {
			v := manifest.Variants[name]
			fmt.Printf("%-12s %s (%s)\n", name, v.DisplayName, v.Filename)
		}
		return
	}

	if strings.TrimSpace(*output) == "" {
		fmt.Fprintln(os.Stderr, "download_model: --dir must not be empty")
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, "info")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	manager, err := models.NewManager(filepath.Clean(*output), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: init manager: %v\n", err)
		os.Exit(1)
	}

	path, err := manager.EnsureVariant(ctx, *variant, models.EnsureOptions{Manifest: manifest})
	if err != nil {
		fmt.Fprintf(os.Stderr, "download_model: ensure variant %q: %v\n", *variant, err)
		os.Exit(1)
	}

	fmt.Printf("Model %q ready at %s\n", *variant, path)
}
