package convert

import (
	"fmt"

	"github.com/dh1tw/gosamplerate"
)

// Resampler converts a continuous mono stream between two rates.
// It keeps filter state between calls, so feed it consecutive device periods.
type Resampler struct {
	src   gosamplerate.Src
	ratio float64
}

func NewResampler(fromRate, toRate uint32, maxFrames int) (*Resampler, error) {
	if fromRate == 0 || toRate == 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", fromRate, toRate)
	}
	src, err := gosamplerate.New(gosamplerate.SRC_SINC_FASTEST, 1, maxFrames)
	if err != nil {
		return nil, fmt.Errorf("failed to init resampler: %w", err)
	}
	return &Resampler{
		src:   src,
		ratio: float64(toRate) / float64(fromRate),
	}, nil
}

func (r *Resampler) Process(in []float32) ([]float32, error) {
	return r.src.Process(in, r.ratio, false)
}

func (r *Resampler) Close() error {
	return gosamplerate.Delete(r.src)
}
