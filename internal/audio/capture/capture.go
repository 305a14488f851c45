package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"iurynex-aura/internal/audio/config"
	"iurynex-aura/internal/audio/convert"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// Device hands out microphone streams.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired microphone. Blocks flow only after Start.
type Stream interface {
	// Start attaches onBlock, which receives fixed size mono blocks at the
	// input sample rate. onBlock runs on the audio thread and must not block.
	Start(blockFrames int, onBlock func([]float32)) error
	// Stop releases the device. Calling it again is a no-op.
	Stop() error
}

// Microphone opens the default capture device through malgo.
type Microphone struct {
	cfg config.AudioConfig
}

func NewMicrophone(cfg config.AudioConfig) *Microphone {
	return &Microphone{cfg: cfg}
}

type MalgoCapture struct {
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	resampler *convert.Resampler

	mu          sync.Mutex
	onBlock     func([]float32)
	blockFrames int
	pending     []float32
	stopped     bool
}

func (m *Microphone) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("component", "capture").Msg(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: context: %v", ErrMicrophoneUnavailable, err)
	}

	mc := &MalgoCapture{ctx: mctx}

	if m.cfg.NeedsResample() {
		mc.resampler, err = convert.NewResampler(m.cfg.CaptureRate(), m.cfg.InputSampleRate, m.cfg.BlockFrames*4)
		if err != nil {
			mc.release()
			return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
		}
	}

	capCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	capCfg.Capture.Format = malgo.FormatF32
	capCfg.Capture.Channels = uint32(m.cfg.Channels)
	capCfg.SampleRate = m.cfg.CaptureRate()

	// alsa specific settings for linux
	if runtime.GOOS == "linux" {
		capCfg.Alsa.NoMMap = 1
	}

	channels := int(m.cfg.Channels)
	onCapture := func(_, input []byte, frameCount uint32) {
		samples := convert.BytesToFloat32(input)
		if channels > 1 {
			samples = convert.DownmixMono(convert.Deinterleave(samples, channels))
		}
		mc.feed(samples)
	}

	device, err := malgo.InitDevice(mctx.Context, capCfg, malgo.DeviceCallbacks{Data: onCapture})
	if err != nil {
		mc.release()
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	mc.device = device

	log.Info().Uint32("rate", capCfg.SampleRate).Msg("Capture device acquired")
	return mc, nil
}

func (mc *MalgoCapture) Start(blockFrames int, onBlock func([]float32)) error {
	if blockFrames <= 0 || onBlock == nil {
		return fmt.Errorf("invalid capture block setup")
	}
	mc.mu.Lock()
	if mc.stopped {
		mc.mu.Unlock()
		return fmt.Errorf("capture already stopped")
	}
	mc.blockFrames = blockFrames
	mc.onBlock = onBlock
	mc.mu.Unlock()

	if err := mc.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	log.Info().Int("block_frames", blockFrames).Msg("Capture device started")
	return nil
}

// feed accumulates device periods into whole blocks.
func (mc *MalgoCapture) feed(samples []float32) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.onBlock == nil || mc.stopped {
		return
	}
	if mc.resampler != nil {
		out, err := mc.resampler.Process(samples)
		if err != nil {
			log.Debug().Err(err).Msg("resample failed, dropping period")
			return
		}
		samples = out
	}
	mc.pending = append(mc.pending, samples...)
	for len(mc.pending) >= mc.blockFrames {
		block := make([]float32, mc.blockFrames)
		copy(block, mc.pending[:mc.blockFrames])
		mc.pending = mc.pending[mc.blockFrames:]
		mc.onBlock(block)
	}
}

func (mc *MalgoCapture) Stop() error {
	mc.mu.Lock()
	if mc.stopped {
		mc.mu.Unlock()
		return nil
	}
	mc.stopped = true
	mc.onBlock = nil
	mc.pending = nil
	mc.mu.Unlock()

	mc.release()
	log.Info().Msg("Capture device released")
	return nil
}

func (mc *MalgoCapture) release() {
	if mc.device != nil {
		mc.device.Uninit()
	}
	if mc.ctx != nil {
		_ = mc.ctx.Uninit()
		mc.ctx.Free()
	}
	if mc.resampler != nil {
		_ = mc.resampler.Close()
	}
}
