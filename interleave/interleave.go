// Package interleave gathers per-channel port buffers into a single
// interleaved sample stream and scatters an interleaved stream back out
// to per-channel buffers.
package interleave

import "errors"

// ErrNoPorts is returned when constructing an interleaver/deinterleaver
// over an empty port set; this is the only failure mode.
var ErrNoPorts = errors.New("interleave: no ports")

// Interleave gathers ports (one read-only buffer per channel, all the
// same length) into a single interleaved stream: frame0[c0], frame0[c1],
// ..., frame0[cN-1], frame1[c0], ...
func Interleave(ports [][]float32, out []float32) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}
	nFrames := len(ports[0])
	nChannels := len(ports)
	for frame := 0; frame < nFrames; frame++ {
		base := frame * nChannels
		for ch := 0; ch < nChannels; ch++ {
			out[base+ch] = ports[ch][frame]
		}
	}
	return nil
}

// Deinterleave scatters an interleaved stream back into per-channel
// write-only port buffers.
func Deinterleave(in []float32, ports [][]float32) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}
	nChannels := len(ports)
	nFrames := len(ports[0])
	for frame := 0; frame < nFrames; frame++ {
		base := frame * nChannels
		for ch := 0; ch < nChannels; ch++ {
			ports[ch][frame] = in[base+ch]
		}
	}
	return nil
}
