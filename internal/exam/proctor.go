package exam

import (
	"context"
	"sync"
	"time"
)

// Proctor holds the active sessions and drives their countdowns from a
// single loop, so no session ever sees two ticks in flight.
type Proctor struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	interval time.Duration
}

// NewProctor creates a proctor ticking once per second.
func NewProctor() *Proctor {
	return &Proctor{
		sessions: make(map[int64]*Session),
		interval: time.Second,
	}
}

// Add registers an active session.
func (p *Proctor) Add(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID()] = s
}

// Get returns the active session with the given ID.
func (p *Proctor) Get(id int64) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

// Remove drops a session from the registry. The session's own countdown
// state decides whether a removal also needs a Cancel.
func (p *Proctor) Remove(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, id)
}

// Run ticks every active session once per interval until ctx is done.
// Sessions whose countdown has finished are dropped from the registry.
func (p *Proctor) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.cancelAll()
			return
		case <-t.C:
			p.tickAll()
		}
	}
}

func (p *Proctor) tickAll() {
	p.mu.Lock()
	active := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		active = append(active, s)
	}
	p.mu.Unlock()

	for _, s := range active {
		if !s.Tick() {
			p.Remove(s.ID())
		}
	}
}

func (p *Proctor) cancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		s.Cancel()
		delete(p.sessions, id)
	}
}
