//go:build !sensevoice || !cgo

package sensevoice

// nativeLibrary returns nil: the engine is not linked into this build.
func nativeLibrary() library { return nil }
