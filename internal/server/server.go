package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/adapterinfo"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/audio"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/config"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/engine"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/sensevoice"
	"github.com/nupi-ai/plugin-stt-local-sensevoice/internal/telemetry"
)

// languageMetadataKey carries the client's ISO 639-1 language code.
const languageMetadataKey = "nupi.lang.iso1"

// Server implements SpeechToTextServer on top of a single engine. The engine
// keeps per-stream state, so streams are served one at a time.
type Server struct {
	cfg     config.Config
	log     *slog.Logger
	engine  engine.Engine
	metrics *telemetry.Recorder
	slot    chan struct{}
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, eng engine.Engine, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if eng == nil {
		panic("server: engine must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_variant", cfg.ModelVariant,
			"language", cfg.Language,
		),
		engine:  eng,
		metrics: metrics,
		slot:    make(chan struct{}, 1),
	}
}

// StreamTranscription consumes PCM16LE segments and emits transcript deltas,
// followed by a final transcript once the client flushes.
func (s *Server) StreamTranscription(stream TranscriptionServerStream) (err error) {
	ctx := stream.Context()
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
	defer func() { <-s.slot }()

	var (
		opened        bool
		flushed       bool
		streamID      string
		language      string
		streamMetrics *telemetry.StreamMetrics
	)
	defer func() {
		if opened && !flushed {
			s.discard()
		}
		if streamMetrics != nil {
			streamMetrics.Finish(err)
		}
	}()

	for {
		req, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.log.Error("failed to receive request", "error", err)
			return err
		}
		if req == nil {
			continue
		}

		if !opened {
			if err := checkFormat(req.GetFormat()); err != nil {
				return err
			}
			streamID = req.GetStreamID()
			if streamID == "" {
				streamID = uuid.NewString()
			}
			language = resolveLanguage(s.cfg.Language, req.GetMetadata())
			streamMetrics = s.metrics.StartStream(req.GetSessionID(), streamID, req.GetMetadata())
			s.log.Info("stream opened",
				"session_id", req.GetSessionID(),
				"stream_id", streamID,
				"stream_language", language,
			)
			opened = true
		}

		segment := req.GetSegment()
		sequence := segment.GetSequence()
		final := req.GetFlush() || segment.GetLast()

		if err := audio.CheckPCM16(segment.GetAudio()); err != nil {
			return status.Errorf(codes.InvalidArgument, "segment %d: %v", sequence, err)
		}
		if len(segment.GetAudio()) > 0 {
			streamMetrics.RecordSegment(sequence, len(segment.GetAudio()), final)
			start := time.Now()
			results, err := s.engine.TranscribeSegment(ctx, segment.GetAudio(), engine.Options{
				Language: language,
				Final:    final,
				Sequence: sequence,
			})
			streamMetrics.RecordInferenceDuration(time.Since(start))
			if err != nil {
				streamMetrics.RecordInferenceFailure(err)
				s.log.Error("engine segment failure", "error", err)
				return toStatus(err)
			}
			if err := s.sendResults(stream, sequence, language, results, streamMetrics); err != nil {
				return err
			}
		}

		if req.GetFlush() {
			streamMetrics.RecordFlush()
			start := time.Now()
			results, err := s.engine.Flush(ctx, engine.Options{Language: language, Final: true, Sequence: sequence})
			streamMetrics.RecordInferenceDuration(time.Since(start))
			flushed = true
			if err != nil {
				streamMetrics.RecordInferenceFailure(err)
				s.log.Error("engine flush failure", "error", err)
				return toStatus(err)
			}
			if err := s.sendResults(stream, sequence, language, results, streamMetrics); err != nil {
				return err
			}
			s.log.Info("stream flushed",
				"session_id", req.GetSessionID(),
				"stream_id", streamID,
			)
			return nil
		}
	}
}

func (s *Server) sendResults(stream TranscriptionServerStream, sequence uint64, language string, results []engine.Result, metrics *telemetry.StreamMetrics) error {
	for _, res := range results {
		metrics.RecordTranscript(sequence, res.Text, res.Final)
		transcript := &Transcript{
			Sequence:   sequence,
			Text:       res.Text,
			Confidence: res.Confidence,
			Final:      res.Final,
			Metadata:   adapterinfo.TranscriptMetadata(s.cfg.ModelVariant, language),
		}
		if err := stream.Send(transcript); err != nil {
			s.log.Error("failed to send transcript", "error", err)
			return err
		}
	}
	return nil
}

// discard drops the state of an abandoned stream so the next one starts clean.
// Engines without a reset path are flushed and the transcript thrown away.
func (s *Server) discard() {
	if engine.Reset(s.engine) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.engine.Flush(ctx, engine.Options{Final: true}); err != nil {
		s.log.Warn("discarding abandoned stream failed", "error", err)
	}
}

// resolveLanguage picks the stream language. The "client" setting defers to
// the nupi.lang.iso1 metadata entry, falling back to auto detection.
func resolveLanguage(configured string, metadata map[string]string) string {
	if !strings.EqualFold(strings.TrimSpace(configured), config.ClientLanguage) {
		return configured
	}
	if lang := strings.TrimSpace(metadata[languageMetadataKey]); lang != "" {
		return lang
	}
	return sensevoice.AutoLanguage
}

func checkFormat(format *AudioFormat) error {
	if format == nil {
		return nil
	}
	if enc := strings.ToLower(format.Encoding); enc != "" && enc != "pcm_s16le" {
		return status.Errorf(codes.InvalidArgument, "unsupported encoding %q, want pcm_s16le", format.Encoding)
	}
	if format.SampleRate != 0 && format.SampleRate != audio.SampleRate {
		return status.Errorf(codes.InvalidArgument, "unsupported sample rate %d, want %d", format.SampleRate, audio.SampleRate)
	}
	if format.Channels > 1 {
		return status.Errorf(codes.InvalidArgument, "unsupported channel count %d, want mono", format.Channels)
	}
	return nil
}

// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, sensevoice.ErrInvalidString), errors.Is(err, sensevoice.ErrNoSamples):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, sensevoice.ErrContextClosed), errors.Is(err, sensevoice.ErrNativeUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Errorf(codes.Internal, "%s: %v", sensevoice.Kind(err), err)
	}
}
