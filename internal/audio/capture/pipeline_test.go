package capture

import (
	"errors"
	"sync"
	"testing"
	"time"

	"iurynex-aura/internal/audio/codec"
)

type recordingSender struct {
	mu    sync.Mutex
	blobs []codec.MediaBlob
	err   error
	got   chan struct{}
}

func newRecordingSender(err error) *recordingSender {
	return &recordingSender{err: err, got: make(chan struct{}, 64)}
}

func (s *recordingSender) SendRealtimeInput(blob codec.MediaBlob) error {
	s.mu.Lock()
	s.blobs = append(s.blobs, blob)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func waitSends(t *testing.T, s *recordingSender, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d sends", i, n)
		}
	}
}

func TestPipelineEncodesAndSendsInOrder(t *testing.T) {
	sender := newRecordingSender(nil)
	p := NewPipeline(sender, 8)
	go p.Run()
	defer p.Close()

	p.Push([]float32{0.5})
	p.Push([]float32{-0.5})
	waitSends(t, sender, 2)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.blobs[0] != codec.EncodeChunk([]float32{0.5}) || sender.blobs[1] != codec.EncodeChunk([]float32{-0.5}) {
		t.Fatalf("unexpected blobs %+v", sender.blobs)
	}
	if sender.blobs[0].MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("mime = %q", sender.blobs[0].MIMEType)
	}
}

func TestPipelineSendFailureIsDropped(t *testing.T) {
	sender := newRecordingSender(errors.New("session gone"))
	p := NewPipeline(sender, 8)
	go p.Run()

	p.Push([]float32{0.1})
	p.Push([]float32{0.2})
	waitSends(t, sender, 2)
	p.Close()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
	if st := p.Stats(); st.Failed != 2 || st.Sent != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPipelinePushDropsWhenFull(t *testing.T) {
	p := NewPipeline(newRecordingSender(nil), 1)
	// not running: the queue fills up
	p.Push([]float32{0})
	p.Push([]float32{0})
	p.Push([]float32{0})
	if got := p.Stats().Dropped; got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestPipelinePushAfterClose(t *testing.T) {
	sender := newRecordingSender(nil)
	p := NewPipeline(sender, 4)
	p.Close()
	p.Close()
	p.Push([]float32{0})
	go p.Run()
	<-p.Done()
	if sender.count() != 0 {
		t.Fatal("block sent after close")
	}
}

type gatedSender struct {
	got  chan struct{}
	gate chan struct{}
}

func (s *gatedSender) SendRealtimeInput(codec.MediaBlob) error {
	s.got <- struct{}{}
	<-s.gate
	return nil
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPipelineCountsDropsAfterEncoding(t *testing.T) {
	sender := &gatedSender{got: make(chan struct{}, 8), gate: make(chan struct{})}
	p := NewPipeline(sender, 1)
	go p.Run()
	defer p.Close()

	// first block parks in the sender
	p.Push([]float32{0.1})
	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatal("first block never sent")
	}
	// second fills the encoded queue
	p.Push([]float32{0.2})
	eventually(t, "second block encoded", func() bool { return len(p.blocks) == 0 })
	// third has nowhere to go once encoded
	p.Push([]float32{0.3})
	eventually(t, "encoded drop counted", func() bool { return p.Stats().Dropped == 1 })

	close(sender.gate)
	select {
	case <-sender.got:
	case <-time.After(2 * time.Second):
		t.Fatal("second block never sent")
	}
	eventually(t, "two sends", func() bool { return p.Stats().Sent == 2 })
	if st := p.Stats(); st.Dropped != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
