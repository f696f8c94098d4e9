package transport

import (
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/james-see/twister2midi/pkg/protocol"
)

// Sent is one message seen by a Monitor.
type Sent struct {
	At    time.Time      `json:"at"`
	Event protocol.Event `json:"event"`
}

// Monitor keeps the most recent messages for display.
type Monitor struct {
	mu    sync.Mutex
	buf   []Sent
	w     uint
	total uint64
}

// NewMonitor keeps the last size messages.
func NewMonitor(size int) *Monitor {
	if size < 1 {
		size = 1
	}
	return &Monitor{buf: make([]Sent, size)}
}

// Send implements Sink.
func (m *Monitor) Send(msg midi.Message) error {
	evt, ok := protocol.FromMessage(msg)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.w%uint(len(m.buf))] = Sent{At: time.Now(), Event: evt}
	m.w++
	m.total++
	return nil
}

// Recent returns up to n messages, oldest first.
func (m *Monitor) Recent(n int) []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	have := int(min(m.w, uint(len(m.buf))))
	if n <= 0 || n > have {
		n = have
	}
	out := make([]Sent, n)
	for i := 0; i < n; i++ {
		out[i] = m.buf[(m.w-uint(n)+uint(i))%uint(len(m.buf))]
	}
	return out
}

// Total returns the number of messages seen.
func (m *Monitor) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
