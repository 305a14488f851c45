package codec

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
)

func TestEncodeChunk(t *testing.T) {
	blob := EncodeChunk([]float32{0, 0.5, -0.5})
	if blob.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("mime = %q", blob.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0xc0}
	if string(raw) != string(want) {
		t.Fatalf("pcm = %x, want %x", raw, want)
	}
}

func TestEncodeChunkEmpty(t *testing.T) {
	if blob := EncodeChunk(nil); blob.Data != "" {
		t.Fatalf("empty chunk encoded to %q", blob.Data)
	}
}

func TestRoundTripWithinQuantizationStep(t *testing.T) {
	samples := make([]float32, 4096)
	for i := range samples {
		// sweep [-1, 1) without touching 1.0
		samples[i] = float32(math.Sin(float64(i)*0.013)) * 0.999
	}
	samples[0] = -1

	buf, err := DecodeFragment(EncodeChunk(samples).Data, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Frames() != len(samples) {
		t.Fatalf("frames = %d, want %d", buf.Frames(), len(samples))
	}
	const step = 1.0 / 32768
	for i, s := range samples {
		if d := math.Abs(float64(buf.Channels[0][i] - s)); d > step {
			t.Fatalf("sample %d: got %v want %v (diff %v)", i, buf.Channels[0][i], s, d)
		}
	}
}

func TestRoundTripWrapsOutOfRange(t *testing.T) {
	buf, err := DecodeFragment(EncodeChunk([]float32{1, 1.25}).Data, 16000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Channels[0][0] != -1 {
		t.Errorf("1.0 decoded to %v, want wraparound to -1", buf.Channels[0][0])
	}
	if buf.Channels[0][1] != -0.75 {
		t.Errorf("1.25 decoded to %v, want -0.75", buf.Channels[0][1])
	}
}

func TestDecodeFragmentStereo(t *testing.T) {
	// L=16384 R=-16384, L=0 R=8192
	raw := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00, 0x00, 0x20}
	buf, err := DecodeFragment(base64.StdEncoding.EncodeToString(raw), 24000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if buf.NumChannels() != 2 || buf.Frames() != 2 {
		t.Fatalf("shape = %dx%d", buf.NumChannels(), buf.Frames())
	}
	if buf.Channels[0][0] != 0.5 || buf.Channels[1][0] != -0.5 || buf.Channels[1][1] != 0.25 {
		t.Fatalf("channels = %v", buf.Channels)
	}
	if got, want := buf.Duration(), 2.0/24000; math.Abs(got-want) > 1e-12 {
		t.Fatalf("duration = %v, want %v", got, want)
	}
}

func TestDecodeFragmentErrors(t *testing.T) {
	odd := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	tests := []struct {
		name     string
		data     string
		rate     int
		channels int
		want     error
	}{
		{"odd length", odd, 24000, 1, ErrFragmentLength},
		{"stereo misaligned", base64.StdEncoding.EncodeToString([]byte{1, 2}), 24000, 2, ErrFragmentLength},
		{"bad base64", "!!not base64", 24000, 1, ErrInvalidBase64},
		{"zero channels", odd, 24000, 0, ErrBadFormat},
		{"zero rate", odd, 0, 1, ErrBadFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFragment(tt.data, tt.rate, tt.channels)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
