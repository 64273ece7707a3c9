package status

import "sync"

// Publisher broadcasts status changes to any number of subscribers.
// It is constructed once at startup and passed by reference; independent
// instances can exist side by side (tests rely on this).
type Publisher struct {
	mu      sync.Mutex
	current Status
	subs    map[int]func(Status)
	nextID  int
}

// NewPublisher creates a Publisher starting in the idle state.
func NewPublisher() *Publisher {
	return &Publisher{
		current: Idle(),
		subs:    make(map[int]func(Status)),
	}
}

// Get returns the current status.
func (p *Publisher) Get() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Set updates the current status and notifies every subscriber.
// Callbacks run outside the registry lock, so they may call Get or
// Subscribe without deadlocking.
func (p *Publisher) Set(s Status) {
	p.mu.Lock()
	p.current = s
	cbs := make([]func(Status), 0, len(p.subs))
	for _, cb := range p.subs {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(s)
	}
}

// Subscribe registers cb, immediately replays the current status to it, and
// returns an unsubscribe function. After unsubscribing the callback
// receives nothing further.
func (p *Publisher) Subscribe(cb func(Status)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = cb
	current := p.current
	p.mu.Unlock()

	cb(current)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}
