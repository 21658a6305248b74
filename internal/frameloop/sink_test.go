package frameloop

import (
	"sync"
	"testing"

	"github.com/gogpu/overlay/internal/gpu"
)

func TestChannelSinkDropsOldest(t *testing.T) {
	s := NewChannelSink(2)
	a := &gpu.FrameBuffer{Width: 1}
	b := &gpu.FrameBuffer{Width: 2}
	c := &gpu.FrameBuffer{Width: 3}

	s.Deliver(a)
	s.Deliver(b)
	s.Deliver(c)

	if s.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped())
	}
	if got := <-s.Frames(); got != b {
		t.Errorf("first frame width %d, want 2", got.Width)
	}
	if got := <-s.Frames(); got != c {
		t.Errorf("second frame width %d, want 3", got.Width)
	}
}

func TestChannelSinkMinimumCapacity(t *testing.T) {
	s := NewChannelSink(0)
	s.Deliver(&gpu.FrameBuffer{})
	s.Deliver(&gpu.FrameBuffer{})
	if cap(s.ch) != 1 || len(s.Frames()) != 1 {
		t.Errorf("cap=%d len=%d, want 1/1", cap(s.ch), len(s.Frames()))
	}
}

func TestChannelSinkConcurrentConsumer(t *testing.T) {
	s := NewChannelSink(1)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	received := 0
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			select {
			case <-s.Frames():
				received++
			case <-done:
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		s.Deliver(&gpu.FrameBuffer{})
	}
	close(done)
	wg.Wait()

	if uint64(received)+s.Dropped()+uint64(len(s.Frames())) != n {
		t.Errorf("received %d + dropped %d + queued %d != %d", received, s.Dropped(), len(s.Frames()), n)
	}
}

func TestFuncSink(t *testing.T) {
	var got *gpu.FrameBuffer
	fb := &gpu.FrameBuffer{Width: 7}
	FuncSink(func(f *gpu.FrameBuffer) { got = f }).Deliver(fb)
	if got != fb {
		t.Error("FuncSink did not forward the frame")
	}
}

func TestChannelSinkClose(t *testing.T) {
	s := NewChannelSink(2)
	queued := &gpu.FrameBuffer{Width: 1}
	s.Deliver(queued)
	s.Close()
	s.Close()
	s.Deliver(&gpu.FrameBuffer{Width: 2})

	var got []*gpu.FrameBuffer
	for fb := range s.Frames() {
		got = append(got, fb)
	}
	if len(got) != 1 || got[0] != queued {
		t.Errorf("drained %d frames, want only the one queued before Close", len(got))
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped())
	}
}
