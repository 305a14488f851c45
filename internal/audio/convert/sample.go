package convert

import (
	"encoding/binary"
	"math"
)

// Float32ToInt16 scales samples by 32768 and rounds. Nothing is clamped:
// a sample outside [-1, 1) wraps around in two's complement, so 1.0 becomes
// -32768. Callers that need saturation must clamp first.
func Float32ToInt16(src []float32) []int16 {
	dst := make([]int16, len(src))
	for i, v := range src {
		dst[i] = int16(int64(math.Round(float64(v) * 32768)))
	}
	return dst
}

func Int16ToFloat32(src []int16) []float32 {
	dst := make([]float32, len(src))
	for i, v := range src {
		dst[i] = float32(v) / 32768.0
	}
	return dst
}

// Int16ToBytes convert int16 sample to byte (Little Endian)
func Int16ToBytes(src []int16) []byte {
	dst := make([]byte, len(src)*2)
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:i*2+2], uint16(v))
	}
	return dst
}

// BytesToInt16 reads little endian samples. A trailing odd byte is ignored.
func BytesToInt16(src []byte) []int16 {
	dst := make([]int16, len(src)/2)
	for i := range dst {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2 : i*2+2]))
	}
	return dst
}

// BytesToFloat32 converts little endian IEEE-754 bytes (malgo FormatF32)
func BytesToFloat32(src []byte) []float32 {
	if len(src)%4 != 0 {
		src = src[:len(src)-(len(src)%4)]
	}

	dst := make([]float32, len(src)/4)
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4 : i*4+4]))
	}
	return dst
}

// PutFloat32 writes data into buf as little endian float32 and returns the
// number of bytes written.
func PutFloat32(buf []byte, data []float32) int {
	n := min(len(data), len(buf)/4)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(data[i]))
	}
	return n * 4
}

// Deinterleave splits interleaved frames into one slice per channel.
func Deinterleave(src []float32, channels int) [][]float32 {
	frames := len(src) / channels
	out := make([][]float32, channels)
	for ch := range out {
		data := make([]float32, frames)
		for i := 0; i < frames; i++ {
			data[i] = src[i*channels+ch]
		}
		out[ch] = data
	}
	return out
}

// DownmixMono averages all channels of a frame into one sample.
func DownmixMono(channels [][]float32) []float32 {
	if len(channels) == 1 {
		return channels[0]
	}
	if len(channels) == 0 {
		return nil
	}
	out := make([]float32, len(channels[0]))
	scale := 1 / float32(len(channels))
	for _, data := range channels {
		for i, v := range data {
			out[i] += v * scale
		}
	}
	return out
}
