//go:build sensevoice_gpu

package sensevoice

const gpuDefault = true
