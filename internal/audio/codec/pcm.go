// Package codec converts between float samples and the base64 16-bit PCM
// payloads exchanged with the live voice service.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"

	"iurynex-aura/internal/audio/config"
	"iurynex-aura/internal/audio/convert"
)

var (
	ErrInvalidBase64  = errors.New("fragment is not valid base64")
	ErrFragmentLength = errors.New("fragment length is not a whole number of 16-bit frames")
	ErrBadFormat      = errors.New("sample rate and channel count must be positive")
)

// MediaBlob is the transport form of one captured chunk.
type MediaBlob struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// Buffer is decoded audio ready to be scheduled on an output device.
type Buffer struct {
	SampleRate int
	Channels   [][]float32 // one slice per channel, equal lengths
}

func (b *Buffer) NumChannels() int { return len(b.Channels) }

func (b *Buffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// EncodeChunk packs mono samples as base64 little endian PCM16 tagged with the
// input MIME type. Samples outside [-1, 1) wrap around (see
// convert.Float32ToInt16); they are intentionally not clamped.
func EncodeChunk(samples []float32) MediaBlob {
	pcm := convert.Int16ToBytes(convert.Float32ToInt16(samples))
	return MediaBlob{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MIMEType: config.InputMIMEType,
	}
}

// DecodeFragment turns a base64 PCM16 payload into a playable buffer.
func DecodeFragment(data string, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrBadFormat
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if !convert.IsPCM16Aligned(len(raw), channels) {
		return nil, fmt.Errorf("%w: %d bytes for %d channels", ErrFragmentLength, len(raw), channels)
	}
	samples := convert.Int16ToFloat32(convert.BytesToInt16(raw))
	return &Buffer{
		SampleRate: sampleRate,
		Channels:   convert.Deinterleave(samples, channels),
	}, nil
}
