package usecase

import (
	"strings"
	"sync"
	"time"
)

// FlushFunc receives the combined text once a user's buffer is flushed.
// It always runs on its own goroutine, outside the buffer lock.
type FlushFunc func(userName, combined, node string)

type bufferedPart struct {
	text      string
	timestamp time.Time
}

type userBuffer struct {
	parts []bufferedPart
	timer *time.Timer
	node  string
	first time.Time
	gen   int
}

// MessageBuffer coalesces rapid successive messages from the same user into
// one combined request. Each new message restarts the debounce timer; the
// hard cap forces a flush so a continuously typing user cannot delay the
// request forever. At most one live buffer exists per user.
type MessageBuffer struct {
	mu      sync.Mutex
	delay   time.Duration
	maxWait time.Duration
	buffers map[string]*userBuffer
	flush   FlushFunc
	now     func() time.Time
}

// NewMessageBuffer creates a buffer with the given debounce delay and hard
// cap. A delay <= 0 disables buffering: messages are handed to flush
// synchronously.
func NewMessageBuffer(delay, maxWait time.Duration, flush FlushFunc) *MessageBuffer {
	return &MessageBuffer{
		delay:   delay,
		maxWait: maxWait,
		buffers: make(map[string]*userBuffer),
		flush:   flush,
		now:     time.Now,
	}
}

// Add records a message for the user. It returns true when the message was
// buffered for a later flush and false when it was handed to flush right
// away (buffering disabled). Add never waits for the flush callback.
func (b *MessageBuffer) Add(userName, message, node string) bool {
	if b.delay <= 0 {
		go b.flush(userName, strings.TrimSpace(message), node)
		return false
	}

	b.mu.Lock()

	buf, ok := b.buffers[userName]
	if !ok {
		now := b.now()
		buf = &userBuffer{
			parts: []bufferedPart{{text: message, timestamp: now}},
			node:  node,
			first: now,
		}
		buf.timer = time.AfterFunc(b.delay, func() { b.flushUser(userName, 0) })
		b.buffers[userName] = buf
		b.mu.Unlock()
		return true
	}

	buf.parts = append(buf.parts, bufferedPart{text: message, timestamp: b.now()})
	buf.node = node

	// Hard cap reached: flush now instead of waiting for more input
	if b.now().Sub(buf.first) >= b.maxWait {
		b.takeAndFlushLocked(userName, buf)
		return true
	}

	// Cancel-then-reschedule under the lock. The generation guard makes a
	// superseded timer that already fired a no-op, so the reschedule is
	// race-free.
	buf.timer.Stop()
	buf.gen++
	gen := buf.gen
	buf.timer = time.AfterFunc(b.delay, func() { b.flushUser(userName, gen) })
	b.mu.Unlock()
	return true
}

// Pending returns the number of messages currently buffered for the user
func (b *MessageBuffer) Pending(userName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf, ok := b.buffers[userName]; ok {
		return len(buf.parts)
	}
	return 0
}

// flushUser is the timer-fire path
func (b *MessageBuffer) flushUser(userName string, gen int) {
	b.mu.Lock()
	buf, ok := b.buffers[userName]
	if !ok || buf.gen != gen {
		b.mu.Unlock()
		return
	}
	b.takeAndFlushLocked(userName, buf)
}

// takeAndFlushLocked removes the buffer and invokes flush with the combined
// text. The lock is held on entry and released before the callback runs. The
// callback gets its own goroutine: the flush queries the oracle and must
// never stall the poll loop when a hard-cap flush fires inside Add.
func (b *MessageBuffer) takeAndFlushLocked(userName string, buf *userBuffer) {
	buf.timer.Stop()
	delete(b.buffers, userName)
	b.mu.Unlock()

	texts := make([]string, len(buf.parts))
	for i, part := range buf.parts {
		texts[i] = part.text
	}
	combined := strings.TrimSpace(strings.Join(texts, " "))
	go b.flush(userName, combined, buf.node)
}
