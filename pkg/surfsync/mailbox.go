package surfsync

import "sync"

// mailbox marshals work posted from provider goroutines onto the engine
// loop. Posting never blocks.
type mailbox struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fns := m.pending
	m.pending = nil

	return fns
}
