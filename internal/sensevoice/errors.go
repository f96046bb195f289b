package sensevoice

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidString reports a path or language that cannot be passed to C
	// because it contains a NUL byte.
	ErrInvalidString = errors.New("sensevoice: string contains NUL byte")
	// ErrInitFailed reports that the native constructor returned no context.
	ErrInitFailed = errors.New("sensevoice: failed to initialise context")
	// ErrNoSamples is returned for empty audio buffers. The native engine is
	// not safe on empty input, so the call never reaches it.
	ErrNoSamples = errors.New("sensevoice: no audio samples")

	ErrSpectrogram = errors.New("sensevoice: unable to calculate spectrogram")
	ErrEncode      = errors.New("sensevoice: failed to encode")
	ErrDecode      = errors.New("sensevoice: failed to decode")
	ErrNullResult  = errors.New("sensevoice: native call returned null")

	// ErrContextClosed is returned by every Context method after Close.
	ErrContextClosed = errors.New("sensevoice: context has been closed")
	// ErrNativeUnavailable is returned when the binary was built without the
	// sensevoice build tag.
	ErrNativeUnavailable = errors.New("sensevoice: native library not compiled in")
)

// Return codes of sense_voice_full_parallel.
const (
	codeOK          = 0
	codeSpectrogram = -1
	codeEncode      = 7
	codeDecode      = 8
)

// CodeError carries a return code outside the documented set.
type CodeError struct {
	Code int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("sensevoice: inference failed with code %d", e.Code)
}

// MapReturnCode translates a sense_voice_full_parallel return code. The
// lookup is exact: 7 and 8 are errors even though they are positive.
func MapReturnCode(code int) error {
	switch code {
	case codeOK:
		return nil
	case codeSpectrogram:
		return ErrSpectrogram
	case codeEncode:
		return ErrEncode
	case codeDecode:
		return ErrDecode
	default:
		return &CodeError{Code: code}
	}
}

// Kind returns a short machine-readable reason for err, suitable for log
// attributes and metric labels.
func Kind(err error) string {
	var codeErr *CodeError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidString):
		return "invalid_string"
	case errors.Is(err, ErrInitFailed):
		return "init_failed"
	case errors.Is(err, ErrNoSamples):
		return "no_samples"
	case errors.Is(err, ErrSpectrogram):
		return "spectrogram"
	case errors.Is(err, ErrEncode):
		return "encode"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrNullResult):
		return "null_result"
	case errors.Is(err, ErrContextClosed):
		return "closed"
	case errors.Is(err, ErrNativeUnavailable):
		return "unavailable"
	case errors.As(err, &codeErr):
		return "generic"
	default:
		return "unknown"
	}
}
