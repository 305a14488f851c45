package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"iurynex-aura/internal/audio/codec"
	"iurynex-aura/internal/audio/config"
	"iurynex-aura/internal/audio/convert"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog/log"
)

var ErrOutputClosed = errors.New("output device closed")

// Device hands out Outputs.
type Device interface {
	Open(ctx context.Context) (Output, error)
}

// SpeakerDevice opens the default playback device through malgo.
type SpeakerDevice struct {
	cfg config.AudioConfig
}

func NewSpeakerDevice(cfg config.AudioConfig) *SpeakerDevice {
	return &SpeakerDevice{cfg: cfg}
}

// Speaker is a mono mixer on top of a malgo playback device. Its clock is
// the number of frames handed to the device so far.
type Speaker struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rate   float64

	rendered atomic.Uint64

	mu     sync.Mutex
	voices []*voice
	mix    []float32
	closed bool
}

type voice struct {
	speaker    *Speaker
	samples    []float32
	startFrame uint64
	onEnded    func()
	endOnce    sync.Once
}

func (d *SpeakerDevice) Open(ctx context.Context) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.Debug().Str("component", "playback").Msg(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	sp := &Speaker{
		ctx:  mctx,
		rate: float64(d.cfg.OutputSampleRate),
	}

	playCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	playCfg.Playback.Format = malgo.FormatF32
	playCfg.Playback.Channels = 1
	playCfg.SampleRate = d.cfg.OutputSampleRate

	onPlay := func(pOutputSamples, _ []byte, frameCount uint32) {
		sp.render(pOutputSamples, int(frameCount))
	}

	playDev, err := malgo.InitDevice(mctx.Context, playCfg, malgo.DeviceCallbacks{Data: onPlay})
	if err != nil {
		sp.release()
		return nil, fmt.Errorf("failed to open playback device: %w", err)
	}
	sp.device = playDev

	if err := sp.device.Start(); err != nil {
		sp.release()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	log.Info().Uint32("rate", d.cfg.OutputSampleRate).Msg("Playback device started")
	return sp, nil
}

func (sp *Speaker) CurrentTime() float64 {
	return float64(sp.rendered.Load()) / sp.rate
}

func (sp *Speaker) Schedule(buf *codec.Buffer, at float64, onEnded func()) (Source, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return nil, ErrOutputClosed
	}
	start := uint64(math.Round(max(at, 0) * sp.rate))
	if now := sp.rendered.Load(); start < now {
		start = now
	}
	v := &voice{
		speaker:    sp,
		samples:    convert.DownmixMono(buf.Channels),
		startFrame: start,
		onEnded:    onEnded,
	}
	sp.voices = append(sp.voices, v)
	return v, nil
}

// render mixes every voice that overlaps the next frameCount frames.
func (sp *Speaker) render(out []byte, frameCount int) {
	sp.mu.Lock()
	base := sp.rendered.Load()
	if cap(sp.mix) < frameCount {
		sp.mix = make([]float32, frameCount)
	}
	mix := sp.mix[:frameCount]
	clear(mix)

	var finished []*voice
	keep := sp.voices[:0]
	for _, v := range sp.voices {
		end := v.startFrame + uint64(len(v.samples))
		for i := range mix {
			f := base + uint64(i)
			if f < v.startFrame {
				continue
			}
			if f >= end {
				break
			}
			mix[i] += v.samples[f-v.startFrame]
		}
		if end <= base+uint64(frameCount) {
			finished = append(finished, v)
		} else {
			keep = append(keep, v)
		}
	}
	clear(sp.voices[len(keep):])
	sp.voices = keep

	for i, s := range mix {
		mix[i] = max(-1, min(1, s))
	}
	n := convert.PutFloat32(out, mix)
	clear(out[n:])
	// Schedule clamps against the clock under mu, so it moves under mu too.
	sp.rendered.Add(uint64(frameCount))
	sp.mu.Unlock()

	for _, v := range finished {
		v.finish()
	}
}

// Stop silences the voice right away.
func (v *voice) Stop() {
	sp := v.speaker
	sp.mu.Lock()
	for i, other := range sp.voices {
		if other == v {
			sp.voices = append(sp.voices[:i], sp.voices[i+1:]...)
			break
		}
	}
	sp.mu.Unlock()
	v.finish()
}

func (v *voice) finish() {
	v.endOnce.Do(func() {
		if v.onEnded != nil {
			go v.onEnded()
		}
	})
}

func (sp *Speaker) Close() error {
	sp.mu.Lock()
	if sp.closed {
		sp.mu.Unlock()
		return nil
	}
	sp.closed = true
	sp.voices = nil
	sp.mu.Unlock()

	sp.release()
	log.Info().Msg("Playback device released")
	return nil
}

func (sp *Speaker) release() {
	if sp.device != nil {
		sp.device.Uninit()
	}
	if sp.ctx != nil {
		_ = sp.ctx.Uninit()
		sp.ctx.Free()
	}
}
