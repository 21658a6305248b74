package frameloop

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/overlay/internal/gpu"
)

// Sink receives each captured frame exactly once. Deliver is called from the
// render loop and must not block.
type Sink interface {
	Deliver(fb *gpu.FrameBuffer)
}

// FuncSink adapts a function to Sink.
type FuncSink func(fb *gpu.FrameBuffer)

// Deliver calls f(fb).
func (f FuncSink) Deliver(fb *gpu.FrameBuffer) { f(fb) }

// ChannelSink is a bounded queue of frames. When the queue is full the
// oldest frame is dropped to make room, so a slow consumer only ever sees
// stale frames disappear.
type ChannelSink struct {
	mu      sync.Mutex
	ch      chan *gpu.FrameBuffer
	closed  bool
	dropped atomic.Uint64
}

// NewChannelSink returns a sink holding up to capacity frames.
// capacity < 1 is treated as 1.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelSink{ch: make(chan *gpu.FrameBuffer, capacity)}
}

// Deliver enqueues fb, evicting the oldest frame if the queue is full.
// Frames delivered after Close are dropped.
func (s *ChannelSink) Deliver(fb *gpu.FrameBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	for {
		select {
		case s.ch <- fb:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Close closes the channel returned by Frames once the queued frames have
// been read. It is safe to call more than once.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Frames returns the receive side of the queue. It is closed by Close.
func (s *ChannelSink) Frames() <-chan *gpu.FrameBuffer { return s.ch }

// Dropped returns the number of frames evicted before a consumer read them.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
