// Package connectivity abstracts online/offline awareness behind a small
// provider interface so the sync engine never probes the network itself.
package connectivity

import "sync"

// Provider reports connectivity and notifies subscribers on state changes.
// Subscribers are only called when the state actually flips.
type Provider interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) (cancel func())
}

// OnRestore invokes fn on each offline-to-online transition, at most once
// per transition. The returned cancel stops the notifications.
func OnRestore(p Provider, fn func()) (cancel func()) {
	var mu sync.Mutex
	last := p.IsOnline()
	return p.Subscribe(func(online bool) {
		mu.Lock()
		restored := online && !last
		last = online
		mu.Unlock()
		if restored {
			fn()
		}
	})
}

// Manual is a Provider whose state is set explicitly. Tests drive it; it is
// also the provider of record when probing is disabled.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewManual creates a Manual provider in the given state.
func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: make(map[int]func(bool))}
}

// IsOnline implements Provider.
func (m *Manual) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline flips the state. Subscribers are notified only on change, after
// the lock is released so callbacks may call back into the provider.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe implements Provider.
func (m *Manual) Subscribe(fn func(online bool)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
