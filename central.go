package gatt

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// A Central drives the central role: it owns the peripheral registry,
// the scan lifecycle and connect/disconnect sequencing, and routes
// every backend event to the right wrapper.
//
// All backend events and API-triggered work for one Central run on a
// single goroutine, so the entity graph and the pending-operation table
// need no fine-grained locking. Observer callbacks run on a separate
// callback goroutine in FIFO order.
type Central struct {
	backend Backend
	log     logrus.FieldLogger
	factory EntityFactory
	policy  DiscoveryPolicy

	handlers centralHandlers

	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	cb       *notifier

	stateVal atomic.Int32 // State

	// registry: written on the run loop, read from anywhere
	regmu       sync.RWMutex
	peripherals map[UUID]*Peripheral
	entities    map[UUID]entityRef

	// loop-owned
	pending     map[pendingKey]*pendingOp
	scanning    bool
	scanTimer   *time.Timer
	scanTimeout time.Duration
}

// entityRef locates a wrapper in the registry. Exactly one of svc,
// char, desc is set; p always is.
type entityRef struct {
	p    *Peripheral
	svc  *Service
	char *Characteristic
	desc *Descriptor
}

// NewCentral returns a Central over the given radio backend. Call
// Handle to register observers, then Init to start processing events.
func NewCentral(b Backend, opts ...Option) (*Central, error) {
	c := &Central{
		backend:     b,
		log:         logrus.StandardLogger(),
		factory:     defaultFactory{},
		policy:      nopPolicy{},
		tasks:       make(chan func(), 64),
		done:        make(chan struct{}),
		peripherals: make(map[UUID]*Peripheral),
		entities:    make(map[UUID]entityRef),
		pending:     make(map[pendingKey]*pendingOp),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Init registers the radio state observer and starts the event loop.
func (c *Central) Init(stateChanged func(*Central, State)) error {
	c.handlers.stateChanged = stateChanged
	c.cb = newNotifier()
	go c.loop()
	return nil
}

// Close shuts the loop down and releases the backend. Queued observer
// callbacks still run.
func (c *Central) Close() error {
	c.stopOnce.Do(func() {
		close(c.done)
		if c.cb != nil {
			c.cb.stop()
		}
	})
	return c.backend.Close()
}

// State returns the last reported host radio state.
func (c *Central) State() State {
	return State(c.stateVal.Load())
}

// Peripheral returns the known peripheral with the given identifier.
func (c *Central) Peripheral(u UUID) *Peripheral {
	return c.peripheralByID(u)
}

// Peripherals returns all known peripherals, sorted by identifier for
// deterministic iteration.
func (c *Central) Peripherals() []*Peripheral {
	c.regmu.RLock()
	out := make([]*Peripheral, 0, len(c.peripherals))
	for _, p := range c.peripherals {
		out = append(out, p)
	}
	c.regmu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id.Less(out[j].id) })
	return out
}

// Scan starts discovering peripherals advertising at least one of the
// service UUIDs in ss (nil means all). dup asks the backend to report
// duplicate advertisements; discovered peripherals are still announced
// only once. If a scan timeout is configured and StopScanning is not
// called first, the scan stops by itself exactly once.
func (c *Central) Scan(ss []UUID, dup bool) {
	filter := copyUUIDs(ss)
	c.do(func() { c.startScan(filter, dup) })
}

// StopScanning stops an in-progress scan and clears its timeout timer.
func (c *Central) StopScanning() {
	c.do(func() { c.stopScan(nil) })
}

// Connect starts connecting to a peripheral. A no-op when already
// connected or connecting. Completion arrives through the
// PeripheralConnected or PeripheralConnectFailed callback.
func (c *Central) Connect(p *Peripheral) {
	c.do(func() {
		switch p.State() {
		case ConnConnected, ConnConnecting:
			return
		}
		p.setState(ConnConnecting)
		if err := c.backend.Connect(p.id); err != nil {
			p.setState(ConnDisconnected)
			werr := wrapBackendErr(err, "connect")
			c.emit(func() {
				if f := c.handlers.peripheralConnectFailed; f != nil {
					f(p, werr)
				}
			})
		}
	})
}

// CancelConnection starts disconnecting a peripheral. A no-op when
// already disconnected or disconnecting. The wrapper graph survives
// the disconnect so a later reconnect finds the same objects.
func (c *Central) CancelConnection(p *Peripheral) {
	c.do(func() {
		switch p.State() {
		case ConnDisconnected, ConnDisconnecting:
			return
		}
		p.setState(ConnDisconnecting)
		if err := c.backend.CancelConnection(p.id); err != nil {
			// Treat a backend refusal as the disconnect itself.
			c.log.WithError(err).WithField("peripheral", p.id).
				Warn("gatt: cancel connection failed, synthesizing disconnect")
			c.handleDisconnected(EvtDisconnected{UUID: p.id, Err: err})
		}
	})
}

// Forget evicts a peripheral wrapper and its entity subtree from the
// registry. Eviction is the only way a wrapper dies; disconnects never
// remove it. A connected peripheral is disconnected first.
func (c *Central) Forget(p *Peripheral) {
	c.do(func() {
		if s := p.State(); s != ConnDisconnected {
			p.setState(ConnDisconnecting)
			if err := c.backend.CancelConnection(p.id); err != nil {
				c.log.WithError(err).Debug("gatt: cancel on forget failed")
			}
			p.setState(ConnDisconnected)
			c.cancelPendingFor(p)
		}
		c.regmu.Lock()
		delete(c.peripherals, p.id)
		c.regmu.Unlock()
		for _, s := range p.Services() {
			c.unregisterServiceTree(s)
		}
	})
}

// do posts f to the run loop. It never blocks a callback: tasks posted
// after Close are dropped.
func (c *Central) do(f func()) {
	select {
	case c.tasks <- f:
	case <-c.done:
	}
}

// emit queues an observer callback for FIFO delivery.
func (c *Central) emit(f func()) {
	c.cb.push(f)
}

func (c *Central) loop() {
	events := c.backend.Events()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.tasks:
			f()
		case e, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(e)
		}
	}
}

func (c *Central) handleEvent(e Event) {
	switch e := e.(type) {
	case EvtStateChanged:
		c.handleStateChanged(e)
	case EvtPeripheralDiscovered:
		c.handlePeripheralDiscovered(e)
	case EvtConnected:
		c.handleConnected(e)
	case EvtConnectFailed:
		c.handleConnectFailed(e)
	case EvtDisconnected:
		c.handleDisconnected(e)
	case EvtServicesDiscovered:
		c.handleServicesDiscovered(e)
	case EvtCharacteristicsDiscovered:
		c.handleCharacteristicsDiscovered(e)
	case EvtDescriptorsDiscovered:
		c.handleDescriptorsDiscovered(e)
	case EvtValueUpdated:
		c.handleValueUpdated(e)
	case EvtValueWritten:
		c.handleValueWritten(e)
	case EvtNotifyStateUpdated:
		c.handleNotifyStateUpdated(e)
	case EvtServicesModified:
		c.handleServicesModified(e)
	case EvtRestored:
		c.handleRestored(e)
	default:
		c.log.Debugf("gatt: dropping unknown backend event %T", e)
	}
}

// registry access

func (c *Central) peripheralByID(u UUID) *Peripheral {
	c.regmu.RLock()
	defer c.regmu.RUnlock()
	return c.peripherals[u]
}

// attached reports whether an entity wrapper is currently registered,
// meaning its parent chain is part of a live graph.
func (c *Central) attached(u UUID) bool {
	c.regmu.RLock()
	defer c.regmu.RUnlock()
	_, ok := c.entities[u]
	return ok
}

func (c *Central) lookup(u UUID) (entityRef, bool) {
	c.regmu.RLock()
	defer c.regmu.RUnlock()
	ref, ok := c.entities[u]
	return ref, ok
}

func (c *Central) register(u UUID, ref entityRef) {
	c.regmu.Lock()
	if old, ok := c.entities[u]; ok && old.p != ref.p {
		c.log.WithField("uuid", u).Warn("gatt: entity UUID collides across peripherals")
	}
	c.entities[u] = ref
	c.regmu.Unlock()
}

func (c *Central) unregister(u UUID) {
	c.regmu.Lock()
	delete(c.entities, u)
	c.regmu.Unlock()
}

func (c *Central) registerService(p *Peripheral, s *Service) {
	c.register(s.id, entityRef{p: p, svc: s})
}

func (c *Central) unregisterServiceTree(s *Service) {
	for _, ch := range s.Characteristics() {
		c.unregisterCharacteristicTree(ch)
	}
	c.unregister(s.id)
}

func (c *Central) registerCharacteristic(p *Peripheral, ch *Characteristic) {
	c.register(ch.id, entityRef{p: p, char: ch})
}

func (c *Central) unregisterCharacteristicTree(ch *Characteristic) {
	for _, d := range ch.Descriptors() {
		c.unregister(d.id)
	}
	c.unregister(ch.id)
}

func (c *Central) registerDescriptor(p *Peripheral, d *Descriptor) {
	c.register(d.id, entityRef{p: p, desc: d})
}

// scanning

func (c *Central) startScan(filter []UUID, dup bool) {
	if c.scanning {
		return
	}
	if err := c.backend.StartScan(filter, dup); err != nil {
		c.log.WithError(err).Warn("gatt: start scan failed")
		return
	}
	c.scanning = true
	if c.scanTimeout > 0 {
		c.scanTimer = time.AfterFunc(c.scanTimeout, func() {
			c.do(func() { c.stopScan(ErrScanTimeout) })
		})
	}
}

// stopScan stops the scan through any path, clearing the timeout timer
// so it can neither dangle nor fire twice.
func (c *Central) stopScan(cause error) {
	if !c.scanning {
		return
	}
	c.scanning = false
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
	if err := c.backend.StopScan(); err != nil {
		c.log.WithError(err).Warn("gatt: stop scan failed")
	}
	c.emit(func() {
		if f := c.handlers.scanStopped; f != nil {
			f(c, cause)
		}
	})
}

// connection events

func (c *Central) handleStateChanged(e EvtStateChanged) {
	c.stateVal.Store(int32(e.State))
	if e.State == StatePoweredOff {
		c.stopScan(ErrPoweredOff)
		// BlueZ and CoreBluetooth alike stop delivering per-peripheral
		// disconnects once the radio is off; synthesize them.
		for _, p := range c.Peripherals() {
			switch p.State() {
			case ConnConnected, ConnConnecting, ConnDisconnecting:
				c.handleDisconnected(EvtDisconnected{UUID: p.id, Err: ErrPoweredOff})
			}
		}
	}
	c.emit(func() {
		if f := c.handlers.stateChanged; f != nil {
			f(c, e.State)
		}
	})
}

func (c *Central) handlePeripheralDiscovered(e EvtPeripheralDiscovered) {
	if p := c.peripheralByID(e.UUID); p != nil {
		// Known peripheral: refresh the cached name, announce nothing.
		if e.Name != "" {
			p.setName(e.Name)
		}
		return
	}
	p := c.factory.NewPeripheral(c, e.UUID, e.Name)
	c.regmu.Lock()
	c.peripherals[e.UUID] = p
	c.regmu.Unlock()

	adv := &Advertisement{}
	if len(e.Advertisement) > 0 {
		if err := adv.Unmarshall(e.Advertisement); err != nil {
			c.log.WithError(err).Debug("gatt: bad advertisement payload")
		}
	}
	if p.Name() == "" && adv.LocalName != "" {
		p.setName(adv.LocalName)
	}
	rssi := e.RSSI
	c.emit(func() {
		if f := c.handlers.peripheralDiscovered; f != nil {
			f(p, adv, rssi)
		}
	})
}

func (c *Central) handleConnected(e EvtConnected) {
	p := c.peripheralByID(e.UUID)
	if p == nil {
		c.log.WithField("peripheral", e.UUID).Debug("gatt: dropping connect for unknown peripheral")
		return
	}
	p.setState(ConnConnected)
	c.emit(func() {
		if f := c.handlers.peripheralConnected; f != nil {
			f(p)
		}
	})
	if filter, ok := c.policy.ServicesOnConnect(p); ok {
		c.discoverServices(p, filter)
	}
}

func (c *Central) handleConnectFailed(e EvtConnectFailed) {
	p := c.peripheralByID(e.UUID)
	if p == nil {
		c.log.WithField("peripheral", e.UUID).Debug("gatt: dropping connect failure for unknown peripheral")
		return
	}
	p.setState(ConnDisconnected)
	werr := wrapBackendErr(e.Err, "connect")
	c.emit(func() {
		if f := c.handlers.peripheralConnectFailed; f != nil {
			f(p, werr)
		}
	})
}

func (c *Central) handleDisconnected(e EvtDisconnected) {
	p := c.peripheralByID(e.UUID)
	if p == nil {
		c.log.WithField("peripheral", e.UUID).Debug("gatt: dropping disconnect for unknown peripheral")
		return
	}
	if p.State() == ConnDisconnected {
		// Backends may report the same disconnect through more than one
		// path; announce it once.
		return
	}
	// Outstanding work can never complete now; fail it fast. The
	// wrapper graph stays for reconnection.
	c.cancelPendingFor(p)
	c.failDiscoveries(p)
	p.setState(ConnDisconnected)
	werr := wrapBackendErr(e.Err, "disconnect")
	c.emit(func() {
		if f := c.handlers.peripheralDisconnected; f != nil {
			f(p, werr)
		}
	})
}

// failDiscoveries fails every in-flight discovery pass under p with
// ErrUnreachable.
func (c *Central) failDiscoveries(p *Peripheral) {
	if p.disc.state == discDiscovering {
		derr := &DiscoveryError{Scope: p.id, Filter: p.disc.filter, Err: ErrUnreachable}
		p.disc.fail(derr)
		c.emit(func() {
			if f := c.handlers.servicesDiscovered; f != nil {
				f(p, nil, derr)
			}
		})
	}
	for _, s := range p.Services() {
		if s.disc.state == discDiscovering {
			derr := &DiscoveryError{Scope: s.id, Filter: s.disc.filter, Err: ErrUnreachable}
			s.disc.fail(derr)
			s := s
			c.emit(func() {
				if f := c.handlers.characteristicsDiscovered; f != nil {
					f(p, s, nil, derr)
				}
			})
		}
		for _, ch := range s.Characteristics() {
			if ch.disc.state == discDiscovering {
				derr := &DiscoveryError{Scope: ch.id, Err: ErrUnreachable}
				ch.disc.fail(derr)
				ch := ch
				c.emit(func() {
					if f := c.handlers.descriptorsDiscovered; f != nil {
						f(p, ch, nil, derr)
					}
				})
			}
		}
	}
}

func (c *Central) handleRestored(e EvtRestored) {
	for _, rp := range e.Peripherals {
		p := c.peripheralByID(rp.UUID)
		if p == nil {
			p = c.factory.NewPeripheral(c, rp.UUID, rp.Name)
			c.regmu.Lock()
			c.peripherals[rp.UUID] = p
			c.regmu.Unlock()
		} else if rp.Name != "" {
			p.setName(rp.Name)
		}
		if rp.Connected {
			p.setState(ConnConnected)
		}
		c.emit(func() {
			if f := c.handlers.peripheralRestored; f != nil {
				f(p)
			}
		})
		// A restored connection gets the same automatic treatment as a
		// fresh one.
		if rp.Connected {
			if filter, ok := c.policy.ServicesOnConnect(p); ok {
				c.discoverServices(p, filter)
			}
		}
	}
}
