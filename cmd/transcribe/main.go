// Command transcribe runs SenseVoice once over a WAV file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/logging"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/models"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
)

type options struct {
	input     string
	modelPath string
	variant   string
	dataDir   string
	language  string
	strategy  string
	threads   int
	useGPU    bool
	useITN    bool
	prefix    bool
	probOnly  bool
	logLevel  string
}

func main() {
	var opts options
	flag.StringVar(&opts.input, "in", "", "WAV file to transcribe")
	flag.StringVar(&opts.modelPath, "model", "", "path to a SenseVoice GGUF model (overrides -variant)")
	flag.StringVar(&opts.variant, "variant", "small-q8", "model variant defined in internal/models/embedded_manifest.json")
	flag.StringVar(&opts.dataDir, "data-dir", "data", "base directory where models/<file> are stored")
	flag.StringVar(&opts.language, "lang", sensevoice.AutoLanguage, "language code (auto, zh, en, yue, ja, ko)")
	flag.StringVar(&opts.strategy, "strategy", "greedy", "decoding strategy: greedy or beam_search")
	flag.IntVar(&opts.threads, "threads", 0, "worker threads (0 = default)")
	flag.BoolVar(&opts.useGPU, "gpu", false, "run on the GPU")
	flag.BoolVar(&opts.useITN, "itn", false, "apply inverse text normalisation")
	flag.BoolVar(&opts.prefix, "prefix", false, "keep the language/emotion/event prefix tags")
	flag.BoolVar(&opts.probOnly, "prob", false, "print the speech probability only")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	if strings.TrimSpace(opts.input) == "" {
		fmt.Fprintln(os.Stderr, "transcribe: -in is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, opts.logLevel)
	if err := run(ctx, opts, logger, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "transcribe: %v (%s)\n", err, sensevoice.Kind(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger, out io.Writer) error {
	if !sensevoice.Available() {
		return sensevoice.ErrNativeUnavailable
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return err
	}
	defer f.Close()
	clip, err := audio.DecodeWAV(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", opts.input, err)
	}
	samples := clip.Mono16k()
	logger.Debug("audio decoded", "source_rate", clip.SampleRate, "duration_ms", clip.DurationMs(), "samples", len(samples))

	strategy, err := sensevoice.ParseStrategy(opts.strategy)
	if err != nil {
		return err
	}
	builder := sensevoice.NewFullParamsBuilder(strategy).
		Language(opts.language).
		PrintProgress(false).
		PrintTimestamps(false)
	if opts.threads > 0 {
		builder = builder.Threads(opts.threads)
	}

	modelPath, err := resolveModel(ctx, opts, logger)
	if err != nil {
		return err
	}

	params := sensevoice.DefaultContextParams()
	params.UseGPU = opts.useGPU
	params.UseITN = opts.useITN
	start := time.Now()
	svc, err := sensevoice.NewContext(modelPath, params)
	if err != nil {
		return err
	}
	defer svc.Close()
	logger.Debug("model loaded", "path", modelPath, "duration_ms", time.Since(start).Milliseconds())

	prob := svc.SpeechProbability(samples)
	if opts.probOnly {
		_, err := fmt.Fprintf(out, "%.4f\n", prob)
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	svc.ResetState()
	start = time.Now()
	if err := svc.FullParallel(builder.Build(), samples); err != nil {
		return err
	}
	text, err := svc.Text(opts.prefix)
	if err != nil {
		return err
	}
	logger.Info("transcribed", "duration_ms", time.Since(start).Milliseconds(), "speech_probability", prob)
	_, err = fmt.Fprintln(out, text)
	return err
}

func resolveModel(ctx context.Context, opts options, logger *slog.Logger) (string, error) {
	manager, err := models.NewManager(opts.dataDir, logger)
	if err != nil {
		return "", err
	}
	manifest, err := models.DefaultManifest()
	if err != nil {
		return "", err
	}
	path, err := manager.EnsureVariant(ctx, opts.variant, models.EnsureOptions{
		Manifest: manifest,
		Override: opts.modelPath,
	})
	if errors.Is(err, models.ErrUnknownVariant) {
		return "", fmt.Errorf("%w; pass -model to use a local file", err)
	}
	return path, err
}
