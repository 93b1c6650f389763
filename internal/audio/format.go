package audio

import (
	"encoding/binary"
	"math"
)

// SampleFormat is the wire encoding of samples delivered by a stream.
// It is resolved once when the stream is opened; the pipeline normalizes
// every encoding to float32 in [-1, 1] before any further processing.
type SampleFormat int

const (
	FormatS16 SampleFormat = iota // signed 16-bit little-endian
	FormatU16                     // unsigned 16-bit little-endian
	FormatF32                     // 32-bit IEEE float little-endian
)

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16"
	case FormatU16:
		return "u16"
	case FormatF32:
		return "f32"
	}
	return "unknown"
}

// Bytes returns the size of one sample in bytes.
func (f SampleFormat) Bytes() int {
	if f == FormatF32 {
		return 4
	}
	return 2
}

// decodeFloat32 converts raw little-endian PCM into float32 samples,
// writing into dst and returning the number of samples decoded. Trailing
// bytes that do not form a whole sample are ignored.
func decodeFloat32(dst []float32, raw []byte, f SampleFormat) int {
	n := len(raw) / f.Bytes()
	if n > len(dst) {
		n = len(dst)
	}
	switch f {
	case FormatS16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			dst[i] = float32(v) / 32768.0
		}
	case FormatU16:
		for i := 0; i < n; i++ {
			v := binary.LittleEndian.Uint16(raw[i*2:])
			dst[i] = (float32(v) - 32768.0) / 32768.0
		}
	case FormatF32:
		for i := 0; i < n; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}
	return n
}

// downmixInto averages each interleaved frame of src down to one mono
// sample in dst, returning the number of frames written. channels must be
// at least 1; a mono source is copied through unchanged.
func downmixInto(dst, src []float32, channels int) int {
	if channels <= 1 {
		n := copy(dst, src)
		return n
	}
	frames := len(src) / channels
	if frames > len(dst) {
		frames = len(dst)
	}
	inv := 1.0 / float32(channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for _, s := range src[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * inv
	}
	return frames
}

// encodeS16 clamps src to [-1, 1] and scales to signed 16-bit PCM.
// Full scale maps to +/-32767 so extreme input can never wrap.
func encodeS16(dst []int16, src []float32) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := src[i]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		dst[i] = int16(s * 32767.0)
	}
}
