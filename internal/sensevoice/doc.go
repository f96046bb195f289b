// Package sensevoice is the cgo boundary to the SenseVoice speech engine.
//
// A Context owns one native context. FullParams, built with
// FullParamsBuilder, configures a single inference call. All native entry
// points check their inputs before crossing into C: empty sample buffers and
// strings with NUL bytes never reach the engine.
//
// The native library is linked only when building with the sensevoice tag
// (and cgo enabled). Other builds compile, and NewContext returns
// ErrNativeUnavailable.
package sensevoice
