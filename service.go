package gatt

import "sync"

// A Service is a discovered BLE service on a remote peripheral. The
// parent peripheral is referenced by identifier and resolved through
// the Central's registry; ownership runs strictly top-down.
type Service struct {
	central      *Central
	id           UUID
	peripheralID UUID
	primary      bool

	mu        sync.RWMutex
	chars     []*Characteristic // nil until a discovery completes
	charIndex map[UUID]*Characteristic

	disc discovery
}

func newService(p *Peripheral, info ServiceInfo) *Service {
	return &Service{
		central:      p.central,
		id:           info.UUID,
		peripheralID: p.id,
		primary:      info.Primary,
		charIndex:    make(map[UUID]*Characteristic),
	}
}

// UUID returns the service's UUID.
func (s *Service) UUID() UUID { return s.id }

// Primary reports whether this is a primary service.
func (s *Service) Primary() bool { return s.primary }

// Peripheral resolves the parent peripheral through the registry, or
// returns nil if the wrapper has been forgotten.
func (s *Service) Peripheral() *Peripheral {
	return s.central.peripheralByID(s.peripheralID)
}

// Characteristics returns the discovered characteristics. Nil before
// the first discovery completes; empty non-nil after a discovery that
// found nothing.
func (s *Service) Characteristics() []*Characteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chars == nil {
		return nil
	}
	out := make([]*Characteristic, len(s.chars))
	copy(out, s.chars)
	return out
}

// Characteristic returns the discovered characteristic with the given
// UUID, or nil.
func (s *Service) Characteristic(u UUID) *Characteristic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.charIndex[u]
}

// DiscoverCharacteristics starts a characteristic discovery pass under
// this service. Filter semantics match Peripheral.DiscoverServices.
// Results arrive through the CharacteristicsDiscovered callback.
func (s *Service) DiscoverCharacteristics(filter []UUID) error {
	if p := s.Peripheral(); p == nil || p.State() != ConnConnected {
		return ErrUnreachable
	}
	f := copyUUIDs(filter)
	s.central.do(func() { s.central.discoverCharacteristics(s, f) })
	return nil
}

func (s *Service) setCharacteristics(cc []*Characteristic) []*Characteristic {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[UUID]bool, len(cc))
	index := make(map[UUID]*Characteristic, len(cc))
	for _, c := range cc {
		kept[c.id] = true
		index[c.id] = c
	}
	var dropped []*Characteristic
	for _, c := range s.chars {
		if !kept[c.id] {
			dropped = append(dropped, c)
		}
	}
	s.chars = cc
	s.charIndex = index
	return dropped
}
