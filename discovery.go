package gatt

import "fmt"

// A DiscoveryError reports a failed discovery pass. It carries the
// scope (parent entity) and the requested UUID subset so observers can
// correlate the failure with the request that triggered it.
type DiscoveryError struct {
	Scope  UUID
	Filter []UUID // requested subset, nil means all
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("gatt: discovery under %s failed: %v", e.Scope, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// discState is the per-scope discovery state. Each scope (peripheral
// for services, service for characteristics, characteristic for
// descriptors) carries its own.
type discState int

const (
	discNotDiscovered discState = iota
	discDiscovering
	discDiscovered
	discFailed
)

// discovery tracks one scope's discovery pass. Owned by the Central's
// run loop; never touched from other goroutines.
type discovery struct {
	state discState
	// filter is the UUID subset of the in-flight request. It narrows
	// the backend's completion, which may over-report. nil means all.
	filter []UUID
	// internal re-discovery triggered by a services-modified event.
	// Its completion is not announced as a fresh discovery result.
	rediscover  bool
	invalidated []UUID // UUIDs the backend flagged as modified
	err         error
}

// begin moves the scope to Discovering. It reports false if a pass is
// already in flight, in which case the caller coalesces onto it.
func (d *discovery) begin(filter []UUID) bool {
	if d.state == discDiscovering {
		return false
	}
	*d = discovery{state: discDiscovering, filter: filter}
	return true
}

// beginRediscovery is begin for a modified-event pass. The filter is
// nil: the whole scope is refreshed and unioned into existing state.
func (d *discovery) beginRediscovery(invalidated []UUID) bool {
	if d.state == discDiscovering {
		return false
	}
	*d = discovery{state: discDiscovering, rediscover: true, invalidated: invalidated}
	return true
}

func (d *discovery) complete() {
	*d = discovery{state: discDiscovered}
}

func (d *discovery) fail(err error) {
	*d = discovery{state: discFailed, err: err}
}

// admits reports whether a backend-reported entity passes the request
// filter. Backends have the right to over-report; only entities the
// caller asked for become wrappers.
func (d *discovery) admits(u UUID) bool {
	if d.filter == nil {
		return true
	}
	return containsUUID(d.filter, u)
}

// skipDiscovery reports whether a discover request with the given
// filter short-circuits without a backend call: an empty, non-nil
// filter means the caller already narrowed to nothing.
func skipDiscovery(filter []UUID) bool {
	return filter != nil && len(filter) == 0
}

// Everything below runs on the Central's loop.

func (c *Central) discoverServices(p *Peripheral, filter []UUID) {
	if skipDiscovery(filter) {
		// An in-flight pass owns the scope; answer the empty subset
		// without disturbing its state or the wrapper set.
		if p.disc.state != discDiscovering {
			for _, s := range p.setServices([]*Service{}) {
				c.unregisterServiceTree(s)
			}
			p.disc.complete()
		}
		c.emit(func() {
			if f := c.handlers.servicesDiscovered; f != nil {
				f(p, []*Service{}, nil)
			}
		})
		return
	}
	if !p.disc.begin(filter) {
		return // in-flight pass satisfies this request too
	}
	if err := c.backend.DiscoverServices(p.id, filter); err != nil {
		derr := &DiscoveryError{Scope: p.id, Filter: filter, Err: wrapBackendErr(err, "discoverServices")}
		p.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.servicesDiscovered; f != nil {
				f(p, nil, derr)
			}
		})
	}
}

func (c *Central) handleServicesDiscovered(e EvtServicesDiscovered) {
	p := c.peripheralByID(e.Peripheral)
	if p == nil {
		c.log.WithField("peripheral", e.Peripheral).Debug("gatt: dropping service discovery for unknown peripheral")
		return
	}
	if p.disc.state != discDiscovering {
		c.log.WithField("peripheral", e.Peripheral).Debug("gatt: dropping spurious service discovery completion")
		return
	}
	req := p.disc
	if e.Err != nil {
		derr := &DiscoveryError{Scope: p.id, Filter: req.filter, Err: wrapBackendErr(e.Err, "discoverServices")}
		p.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.servicesDiscovered; f != nil {
				f(p, nil, derr)
			}
		})
		return
	}
	ss := make([]*Service, 0, len(e.Services))
	for _, info := range e.Services {
		if !req.admits(info.UUID) {
			continue // over-reported beyond the requested subset
		}
		if existing := p.Service(info.UUID); existing != nil {
			ss = append(ss, existing)
			continue
		}
		ss = append(ss, c.factory.NewService(p, info))
	}
	for _, s := range p.setServices(ss) {
		c.unregisterServiceTree(s)
	}
	for _, s := range ss {
		c.registerService(p, s)
	}
	p.disc.complete()
	if req.rediscover {
		// Internal refresh after a services-modified event: announce
		// the invalidated wrappers, not a fresh discovery result.
		var invalidated []*Service
		for _, u := range req.invalidated {
			if s := p.Service(u); s != nil {
				invalidated = append(invalidated, s)
			}
		}
		c.emit(func() {
			if f := c.handlers.servicesModified; f != nil {
				f(p, invalidated)
			}
		})
		return
	}
	c.emit(func() {
		if f := c.handlers.servicesDiscovered; f != nil {
			f(p, ss, nil)
		}
	})
}

func (c *Central) discoverCharacteristics(s *Service, filter []UUID) {
	p := c.peripheralByID(s.peripheralID)
	if p == nil {
		return
	}
	if skipDiscovery(filter) {
		if s.disc.state != discDiscovering {
			for _, ch := range s.setCharacteristics([]*Characteristic{}) {
				c.unregisterCharacteristicTree(ch)
			}
			s.disc.complete()
		}
		c.emit(func() {
			if f := c.handlers.characteristicsDiscovered; f != nil {
				f(p, s, []*Characteristic{}, nil)
			}
		})
		return
	}
	if !s.disc.begin(filter) {
		return
	}
	if err := c.backend.DiscoverCharacteristics(s.id, filter); err != nil {
		derr := &DiscoveryError{Scope: s.id, Filter: filter, Err: wrapBackendErr(err, "discoverCharacteristics")}
		s.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.characteristicsDiscovered; f != nil {
				f(p, s, nil, derr)
			}
		})
	}
}

func (c *Central) handleCharacteristicsDiscovered(e EvtCharacteristicsDiscovered) {
	ref, ok := c.lookup(e.Service)
	if !ok || ref.svc == nil {
		c.log.WithField("service", e.Service).Debug("gatt: dropping characteristic discovery for unknown service")
		return
	}
	p, s := ref.p, ref.svc
	if s.disc.state != discDiscovering {
		c.log.WithField("service", e.Service).Debug("gatt: dropping spurious characteristic discovery completion")
		return
	}
	req := s.disc
	if e.Err != nil {
		derr := &DiscoveryError{Scope: s.id, Filter: req.filter, Err: wrapBackendErr(e.Err, "discoverCharacteristics")}
		s.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.characteristicsDiscovered; f != nil {
				f(p, s, nil, derr)
			}
		})
		return
	}
	cc := make([]*Characteristic, 0, len(e.Characteristics))
	var fresh []*Characteristic
	for _, info := range e.Characteristics {
		if !req.admits(info.UUID) {
			continue
		}
		if existing := s.Characteristic(info.UUID); existing != nil {
			cc = append(cc, existing)
			continue
		}
		ch := c.factory.NewCharacteristic(s, info)
		cc = append(cc, ch)
		fresh = append(fresh, ch)
	}
	for _, ch := range s.setCharacteristics(cc) {
		c.unregisterCharacteristicTree(ch)
	}
	for _, ch := range cc {
		c.registerCharacteristic(p, ch)
	}
	s.disc.complete()
	c.emit(func() {
		if f := c.handlers.characteristicsDiscovered; f != nil {
			f(p, s, cc, nil)
		}
	})
	// Policy hooks run once per newly built characteristic.
	for _, ch := range fresh {
		if c.policy.DescriptorsOnDiscovery(ch) {
			c.discoverDescriptors(ch)
		}
		if ch.props&(CharNotify|CharIndicate) != 0 && c.policy.SubscribeOnDiscovery(ch) {
			c.setNotify(ch, true)
		}
	}
}

func (c *Central) discoverDescriptors(ch *Characteristic) {
	p := c.peripheralByID(ch.peripheralID)
	if p == nil {
		return
	}
	if !ch.disc.begin(nil) {
		return
	}
	if err := c.backend.DiscoverDescriptors(ch.id); err != nil {
		derr := &DiscoveryError{Scope: ch.id, Err: wrapBackendErr(err, "discoverDescriptors")}
		ch.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.descriptorsDiscovered; f != nil {
				f(p, ch, nil, derr)
			}
		})
	}
}

func (c *Central) handleDescriptorsDiscovered(e EvtDescriptorsDiscovered) {
	ref, ok := c.lookup(e.Characteristic)
	if !ok || ref.char == nil {
		c.log.WithField("characteristic", e.Characteristic).Debug("gatt: dropping descriptor discovery for unknown characteristic")
		return
	}
	p, ch := ref.p, ref.char
	if ch.disc.state != discDiscovering {
		c.log.WithField("characteristic", e.Characteristic).Debug("gatt: dropping spurious descriptor discovery completion")
		return
	}
	if e.Err != nil {
		derr := &DiscoveryError{Scope: ch.id, Err: wrapBackendErr(e.Err, "discoverDescriptors")}
		ch.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.descriptorsDiscovered; f != nil {
				f(p, ch, nil, derr)
			}
		})
		return
	}
	dd := make([]*Descriptor, 0, len(e.Descriptors))
	for _, info := range e.Descriptors {
		if existing := ch.Descriptor(info.UUID); existing != nil {
			dd = append(dd, existing)
			continue
		}
		dd = append(dd, c.factory.NewDescriptor(ch, info))
	}
	for _, d := range ch.setDescriptors(dd) {
		c.unregister(d.id)
	}
	for _, d := range dd {
		c.registerDescriptor(p, d)
	}
	ch.disc.complete()
	c.emit(func() {
		if f := c.handlers.descriptorsDiscovered; f != nil {
			f(p, ch, dd, nil)
		}
	})
}

func (c *Central) handleServicesModified(e EvtServicesModified) {
	p := c.peripheralByID(e.Peripheral)
	if p == nil {
		c.log.WithField("peripheral", e.Peripheral).Debug("gatt: dropping services-modified for unknown peripheral")
		return
	}
	if !p.disc.beginRediscovery(e.Services) {
		return // in-flight pass will pick the change up
	}
	if err := c.backend.DiscoverServices(p.id, nil); err != nil {
		derr := &DiscoveryError{Scope: p.id, Err: wrapBackendErr(err, "discoverServices")}
		p.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.servicesDiscovered; f != nil {
				f(p, nil, derr)
			}
		})
	}
}
