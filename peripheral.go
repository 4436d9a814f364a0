package gatt

import (
	"sync"
	"sync/atomic"
)

// A Peripheral is the wrapper for one remote GATT server. It is created
// by the Central when the peripheral is first discovered or restored,
// and lives until the app explicitly forgets it: a disconnect keeps the
// wrapper so a later reconnect finds the same object.
type Peripheral struct {
	central *Central
	id      UUID

	state atomic.Int32 // ConnState

	mu       sync.RWMutex
	name     string
	services []*Service // nil until a discovery completes
	svcIndex map[UUID]*Service

	// service discovery state, owned by the central's loop
	disc discovery
}

func newPeripheral(c *Central, id UUID, name string) *Peripheral {
	return &Peripheral{
		central:  c,
		id:       id,
		name:     name,
		svcIndex: make(map[UUID]*Service),
	}
}

// ID returns the peripheral's identifier.
func (p *Peripheral) ID() UUID { return p.id }

// Central returns the Central this peripheral belongs to.
func (p *Peripheral) Central() *Central { return p.central }

// Name returns the advertised or cached GAP name.
func (p *Peripheral) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// State returns the current connection state.
func (p *Peripheral) State() ConnState {
	return ConnState(p.state.Load())
}

// Services returns the discovered services. It is nil before the first
// discovery attempt completes, and an empty non-nil slice after a
// discovery that found nothing.
func (p *Peripheral) Services() []*Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.services == nil {
		return nil
	}
	out := make([]*Service, len(p.services))
	copy(out, p.services)
	return out
}

// Service returns the discovered service with the given UUID, or nil.
func (p *Peripheral) Service(u UUID) *Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.svcIndex[u]
}

// DiscoverServices starts a service discovery pass. A nil filter
// requests all services; an empty non-nil filter completes immediately
// with an empty result and never calls into the backend. Results arrive
// through the ServicesDiscovered observer callback.
//
// DiscoverServices returns ErrUnreachable synchronously if the
// peripheral is not connected.
func (p *Peripheral) DiscoverServices(filter []UUID) error {
	if p.State() != ConnConnected {
		return ErrUnreachable
	}
	f := copyUUIDs(filter)
	p.central.do(func() { p.central.discoverServices(p, f) })
	return nil
}

func (p *Peripheral) setName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

func (p *Peripheral) setState(s ConnState) {
	p.state.Store(int32(s))
}

// setServices replaces the discovered service set. Wrappers for UUIDs
// present in both old and new sets keep their identity; the caller has
// already arranged that. Returns the wrappers that were dropped.
func (p *Peripheral) setServices(ss []*Service) []*Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := make(map[UUID]bool, len(ss))
	index := make(map[UUID]*Service, len(ss))
	for _, s := range ss {
		kept[s.id] = true
		index[s.id] = s
	}
	var dropped []*Service
	for _, s := range p.services {
		if !kept[s.id] {
			dropped = append(dropped, s)
		}
	}
	p.services = ss
	p.svcIndex = index
	return dropped
}

// copyUUIDs clones a filter, preserving nil-ness: nil means "all" and
// must survive the copy.
func copyUUIDs(uu []UUID) []UUID {
	if uu == nil {
		return nil
	}
	out := make([]UUID, len(uu))
	copy(out, uu)
	return out
}
