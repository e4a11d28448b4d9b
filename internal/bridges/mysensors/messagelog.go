package mysensors

import "sync"

// DefaultMessageLogSize is used when a log is created with a size below one.
const DefaultMessageLogSize = 500

// MessageLog keeps the most recent messages in arrival order.
type MessageLog struct {
	mu    sync.Mutex
	buf   []Message
	start int
	count int
}

// NewMessageLog creates a log holding at most size messages.
func NewMessageLog(size int) *MessageLog {
	if size < 1 {
		size = DefaultMessageLogSize
	}
	return &MessageLog{buf: make([]Message, size)}
}

// Add appends msg, evicting the oldest entry when full.
func (l *MessageLog) Add(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = msg
		l.count++
		return
	}
	l.buf[l.start] = msg
	l.start = (l.start + 1) % len(l.buf)
}

// List returns the logged messages, oldest first.
func (l *MessageLog) List() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Message, l.count)
	for i := range out {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	return out
}

// Len returns the number of logged messages.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Clear empties the log.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.buf)
	l.start = 0
	l.count = 0
}
