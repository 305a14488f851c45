package capture

import (
	"sync"
	"sync/atomic"

	"iurynex-aura/internal/audio/codec"

	"github.com/rs/zerolog/log"
)

// Sender is the live session as seen by the capture side.
type Sender interface {
	SendRealtimeInput(blob codec.MediaBlob) error
}

// AddOnPipe adds a processing function to the pipeline.
// q - quit channel to stop the processing
// f - processing function
// in - input channel
// chanBuffer - buffer size for the output channel
// onDrop - called for each result that did not fit into the output channel, may be nil
func AddOnPipe[X, Y any](q <-chan struct{}, f func(X) Y, in <-chan X, chanBuffer int, onDrop func()) chan Y {
	out := make(chan Y, chanBuffer)
	go func() {
		defer close(out)
		for {
			select {
			case <-q:
				return
			case data, ok := <-in:
				if !ok {
					return
				}
				result := f(data)
				select {
				case out <- result:
				default:
					log.Debug().Msg("Dropping data in pipeline stage")
					if onDrop != nil {
						onDrop()
					}
				}
			}
		}
	}()
	return out
}

type Stats struct {
	Sent    uint64
	Dropped uint64 // queue full, before or after encoding
	Failed  uint64 // session refused the send
}

// Pipeline forwards microphone blocks to the session:
// block -> encode -> send. Sends are fire-and-forget, a failed send is
// counted and forgotten.
type Pipeline struct {
	sender Sender
	blocks chan []float32
	quit   chan struct{}
	done   chan struct{}

	sent, dropped, failed atomic.Uint64
	closeOnce             sync.Once
}

func NewPipeline(sender Sender, queueSize int) *Pipeline {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pipeline{
		sender: sender,
		blocks: make(chan []float32, queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Push queues one block without blocking. Safe to call from the audio thread.
func (p *Pipeline) Push(block []float32) {
	select {
	case <-p.quit:
		return
	default:
	}
	select {
	case p.blocks <- block:
	default:
		p.dropped.Add(1)
	}
}

// Run encodes and sends until Close.
func (p *Pipeline) Run() {
	defer close(p.done)
	defer log.Debug().Msg("Sending pipeline stopped")

	encoded := AddOnPipe(p.quit, codec.EncodeChunk, p.blocks, cap(p.blocks), func() { p.dropped.Add(1) })
	for {
		select {
		case <-p.quit:
			return
		case blob, ok := <-encoded:
			if !ok {
				return
			}
			if err := p.sender.SendRealtimeInput(blob); err != nil {
				p.failed.Add(1)
				log.Debug().Err(err).Msg("realtime input dropped")
				continue
			}
			p.sent.Add(1)
		}
	}
}

// Close stops Run. It does not wait for an in-flight send.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.quit) })
}

// Done is closed once Run has returned.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

func (p *Pipeline) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Dropped: p.dropped.Load(),
		Failed:  p.failed.Load(),
	}
}
