package config

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	InputSampleRate  = 16000 // what the live service expects from the microphone
	OutputSampleRate = 24000 // what the live service synthesizes
	BlockFrames      = 4096  // frames per capture block
	Channels         = 1

	InputMIMEType = "audio/pcm;rate=16000"

	CaptureQueueSize = 32 // blocks waiting to be encoded and sent
)

// AudioConfig describes both ends of a live voice session.
type AudioConfig struct {
	InputSampleRate  uint32
	OutputSampleRate uint32
	Channels         uint16
	BlockFrames      int
	QueueSize        int // capture blocks buffered before dropping

	// DeviceSampleRate is the rate the microphone is opened at. Zero means
	// InputSampleRate, anything else is resampled down (or up) in capture.
	DeviceSampleRate uint32
}

// NewLiveConfig creates AudioConfig for the realtime voice service
func NewLiveConfig() AudioConfig {
	log.Debug().
		Uint32("in_rate", InputSampleRate).
		Uint32("out_rate", OutputSampleRate).
		Msg("Using live PCM config")
	return AudioConfig{
		InputSampleRate:  InputSampleRate,
		OutputSampleRate: OutputSampleRate,
		Channels:         Channels,
		BlockFrames:      BlockFrames,
		QueueSize:        CaptureQueueSize,
	}
}

// WithDeviceRate returns a copy that opens the microphone at rate.
func (ac AudioConfig) WithDeviceRate(rate uint32) AudioConfig {
	ac.DeviceSampleRate = rate
	return ac
}

// CaptureRate is the rate the capture device actually runs at.
func (ac AudioConfig) CaptureRate() uint32 {
	if ac.DeviceSampleRate == 0 {
		return ac.InputSampleRate
	}
	return ac.DeviceSampleRate
}

func (ac AudioConfig) NeedsResample() bool {
	return ac.CaptureRate() != ac.InputSampleRate
}

func (ac AudioConfig) Validate() error {
	if ac.InputSampleRate == 0 || ac.OutputSampleRate == 0 {
		return fmt.Errorf("sample rates must be positive (in=%d out=%d)", ac.InputSampleRate, ac.OutputSampleRate)
	}
	if ac.Channels == 0 {
		return fmt.Errorf("channel count must be positive")
	}
	if ac.BlockFrames <= 0 {
		return fmt.Errorf("block size must be positive, got %d", ac.BlockFrames)
	}
	return nil
}
