package hub

import (
	"container/list"
	"sync"
)

// Class is the delivery class of an outbound message.
type Class int

const (
	// ClassControl covers status, chat, tip and error messages.
	ClassControl Class = iota
	// ClassFrame covers video frames.
	ClassFrame
)

func (c Class) String() string {
	if c == ClassFrame {
		return "frame"
	}
	return "control"
}

// PushResult reports what happened to one enqueue.
type PushResult struct {
	Accepted bool
	// EvictedFrame is set when an older queued frame was dropped to make room.
	EvictedFrame bool
}

type outboxItem struct {
	class Class
	data  []byte
}

// Outbox is a connection's outbound queue. Both classes share one FIFO so a
// status update is always written before any frame enqueued after it. Frames
// are capped at frameLimit and overflow evicts the oldest queued frame;
// control messages are capped at controlLimit and overflow drops the new one.
type Outbox struct {
	mu           sync.Mutex
	items        *list.List
	frames       int
	controls     int
	frameLimit   int
	controlLimit int
	notify       chan struct{}
	done         chan struct{}
	closed       bool
}

// NewOutbox creates an outbox with the given per-class limits.
func NewOutbox(frameLimit, controlLimit int) *Outbox {
	if frameLimit < 1 {
		frameLimit = 1
	}
	if controlLimit < 1 {
		controlLimit = 1
	}
	return &Outbox{
		items:        list.New(),
		frameLimit:   frameLimit,
		controlLimit: controlLimit,
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Push enqueues data without blocking.
func (o *Outbox) Push(class Class, data []byte) PushResult {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return PushResult{}
	}

	var res PushResult
	switch class {
	case ClassFrame:
		if o.frames >= o.frameLimit {
			o.evictOldestFrame()
			res.EvictedFrame = true
		}
		o.frames++
	default:
		if o.controls >= o.controlLimit {
			return res
		}
		o.controls++
	}

	o.items.PushBack(outboxItem{class: class, data: data})
	res.Accepted = true

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return res
}

func (o *Outbox) evictOldestFrame() {
	for e := o.items.Front(); e != nil; e = e.Next() {
		if e.Value.(outboxItem).class == ClassFrame {
			o.items.Remove(e)
			o.frames--
			return
		}
	}
}

// Drain removes and returns everything queued, oldest first.
func (o *Outbox) Drain() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.items.Len() == 0 {
		return nil
	}
	out := make([][]byte, 0, o.items.Len())
	for e := o.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(outboxItem).data)
	}
	o.items.Init()
	o.frames = 0
	o.controls = 0
	return out
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.items.Len()
}

// Ready is signalled after a successful Push.
func (o *Outbox) Ready() <-chan struct{} {
	return o.notify
}

// Done is closed by Close.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close rejects further pushes and discards anything queued.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.items.Init()
	o.frames = 0
	o.controls = 0
	close(o.done)
}
