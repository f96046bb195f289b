package server

// AudioFormat describes the PCM payload carried by segments.
type AudioFormat struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate uint32 `json:"sample_rate,omitempty"`
	Channels   uint32 `json:"channels,omitempty"`
}

// Segment is one chunk of streamed audio.
type Segment struct {
	Sequence uint64 `json:"sequence,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	Last     bool   `json:"last,omitempty"`
}

// StreamTranscriptionRequest is sent by the client. The first request opens
// the stream; Flush ends it.
type StreamTranscriptionRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	StreamID  string            `json:"stream_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Format    *AudioFormat      `json:"format,omitempty"`
	Segment   *Segment          `json:"segment,omitempty"`
	Flush     bool              `json:"flush,omitempty"`
}

// Transcript is sent back for every engine result.
type Transcript struct {
	Sequence   uint64            `json:"sequence,omitempty"`
	Text       string            `json:"text,omitempty"`
	Confidence float32           `json:"confidence,omitempty"`
	Final      bool              `json:"final,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (r *StreamTranscriptionRequest) GetSessionID() string {
	if r == nil {
		return ""
	}
	return r.SessionID
}

func (r *StreamTranscriptionRequest) GetStreamID() string {
	if r == nil {
		return ""
	}
	return r.StreamID
}

func (r *StreamTranscriptionRequest) GetMetadata() map[string]string {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func (r *StreamTranscriptionRequest) GetFormat() *AudioFormat {
	if r == nil {
		return nil
	}
	return r.Format
}

func (r *StreamTranscriptionRequest) GetSegment() *Segment {
	if r == nil {
		return nil
	}
	return r.Segment
}

func (r *StreamTranscriptionRequest) GetFlush() bool {
	return r != nil && r.Flush
}

func (s *Segment) GetSequence() uint64 {
	if s == nil {
		return 0
	}
	return s.Sequence
}

func (s *Segment) GetAudio() []byte {
	if s == nil {
		return nil
	}
	return s.Audio
}

func (s *Segment) GetLast() bool {
	return s != nil && s.Last
}
