// Package audio converts PCM payloads and WAV files into the float64 sample
// buffers the SenseVoice engine consumes.
package audio

import (
	"encoding/binary"
	"errors"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// SampleRate is the rate the engine expects.
const SampleRate = 16000

const bytesPerSample = 2

var (
	ErrNotWAV    = errors.New("audio: invalid wav file")
	ErrEmptyClip = errors.New("audio: wav file contains no samples")
	ErrOddPCM    = errors.New("audio: pcm16 payload length must be even")
)

// Clip is a decoded mono recording.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// PCM16ToFloat64 converts little-endian signed 16-bit PCM into samples in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat64(buf []byte) []float64 {
	n := len(buf) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768.0
	}
	return samples
}

// CheckPCM16 rejects payloads that would split a sample. Streamed segments
// are concatenated, so one odd chunk misaligns every sample after it.
func CheckPCM16(buf []byte) error {
	if len(buf)%bytesPerSample != 0 {
		return ErrOddPCM
	}
	return nil
}

// DecodeWAV reads an integer PCM WAV stream, downmixes it to mono and
// normalises it to [-1, 1].
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && !errors.Is(err, io.EOF) {
		return Clip{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return Clip{}, ErrEmptyClip
	}

	channels := int(dec.NumChans)
	if channels == 0 && buf.Format != nil {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		channels = 1
	}
	sampleRate := int(dec.SampleRate)
	if sampleRate == 0 && buf.Format != nil {
		sampleRate = buf.Format.SampleRate
	}
	if sampleRate == 0 {
		sampleRate = SampleRate
	}

	samples := downmix(buf, channels)
	if len(samples) == 0 {
		return Clip{}, ErrEmptyClip
	}
	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

func downmix(buf *goaudio.IntBuffer, channels int) []float64 {
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

// Resample converts samples from inRate to outRate by linear interpolation.
func Resample(samples []float64, inRate, outRate int) []float64 {
	if len(samples) == 0 || inRate <= 0 || outRate <= 0 || inRate == outRate {
		return append([]float64(nil), samples...)
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(i0)
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}

// Mono16k returns the clip resampled to the engine rate.
func (c Clip) Mono16k() []float64 {
	return Resample(c.Samples, c.SampleRate, SampleRate)
}

// DurationMs reports the clip length in milliseconds.
func (c Clip) DurationMs() int {
	if c.SampleRate <= 0 {
		return 0
	}
	return len(c.Samples) * 1000 / c.SampleRate
}
