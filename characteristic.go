package gatt

import "sync"

// A Characteristic is a discovered BLE characteristic on a remote
// peripheral. It caches the last raw value the backend delivered and
// owns the descriptors found under it.
//
// All value operations are asynchronous: the call returns immediately
// and the result arrives through the corresponding observer callback.
// Operations on a characteristic whose peripheral is not connected fail
// fast with ErrUnreachable.
type Characteristic struct {
	central      *Central
	id           UUID
	serviceID    UUID
	peripheralID UUID
	props        Property

	// Tag is free for the integrating application, typically set by a
	// custom EntityFactory.
	Tag interface{}

	mu        sync.RWMutex
	value     []byte // last-known raw bytes
	notifying bool
	descs     []*Descriptor // nil until a discovery completes
	descIndex map[UUID]*Descriptor

	disc discovery
}

func newCharacteristic(s *Service, info CharacteristicInfo) *Characteristic {
	return &Characteristic{
		central:      s.central,
		id:           info.UUID,
		serviceID:    s.id,
		peripheralID: s.peripheralID,
		props:        info.Properties,
		descIndex:    make(map[UUID]*Descriptor),
	}
}

// UUID returns the characteristic's UUID.
func (c *Characteristic) UUID() UUID { return c.id }

// Properties returns the characteristic's property bitset.
func (c *Characteristic) Properties() Property { return c.props }

// Service resolves the parent service through the registry, or nil.
func (c *Characteristic) Service() *Service {
	if p := c.central.peripheralByID(c.peripheralID); p != nil {
		return p.Service(c.serviceID)
	}
	return nil
}

// Peripheral resolves the owning peripheral through the registry.
func (c *Characteristic) Peripheral() *Peripheral {
	return c.central.peripheralByID(c.peripheralID)
}

// Value returns the last raw value delivered by the backend, or nil if
// none arrived yet.
func (c *Characteristic) Value() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value == nil {
		return nil
	}
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out
}

// DecodedValue pipes the cached raw value through the transform
// registered for this UUID. Without a registered transform the raw
// bytes are returned. ErrNoValue means no value has been cached yet.
func (c *Characteristic) DecodedValue() (interface{}, error) {
	raw := c.Value()
	t := TransformFor(c.id)
	if t == nil {
		if len(raw) == 0 {
			return nil, ErrNoValue
		}
		return raw, nil
	}
	return t.Decode(raw)
}

// Notifying reports whether notifications are currently enabled.
func (c *Characteristic) Notifying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifying
}

// Descriptors returns the discovered descriptors. Nil before the first
// discovery completes.
func (c *Characteristic) Descriptors() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.descs == nil {
		return nil
	}
	out := make([]*Descriptor, len(c.descs))
	copy(out, c.descs)
	return out
}

// Descriptor returns the discovered descriptor with the given UUID.
func (c *Characteristic) Descriptor(u UUID) *Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.descIndex[u]
}

// DiscoverDescriptors starts descriptor discovery for this
// characteristic. Descriptor discovery is always unfiltered. Results
// arrive through the DescriptorsDiscovered callback.
func (c *Characteristic) DiscoverDescriptors() error {
	if err := c.reachable(); err != nil {
		return err
	}
	c.central.do(func() { c.central.discoverDescriptors(c) })
	return nil
}

// Read requests the current value. Completion arrives through the
// CharacteristicValueUpdated callback; the raw value is then available
// via Value. A second Read issued while one is pending is queued and
// sent to the backend after the first resolves.
func (c *Characteristic) Read() error {
	if err := c.reachable(); err != nil {
		return err
	}
	c.central.do(func() { c.central.readCharacteristic(c) })
	return nil
}

// Write writes value to the characteristic. With withResponse set, the
// backend's acknowledgement arrives through the CharacteristicWritten
// callback.
//
// With withResponse unset the write is fire-and-forget: no completion
// callback ever fires and delivery is unacknowledged, mirroring the
// radio's write-command semantics. Unreliable by design.
func (c *Characteristic) Write(value []byte, withResponse bool) error {
	if err := c.reachable(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.central.do(func() { c.central.writeCharacteristic(c, v, withResponse) })
	return nil
}

// WriteTyped encodes v through the transform registered for this UUID
// and writes the result. It fails synchronously with an EncodeError if
// the value does not encode, and with ErrUnhandled if no transform is
// registered.
func (c *Characteristic) WriteTyped(v interface{}, withResponse bool) error {
	t := TransformFor(c.id)
	if t == nil {
		return ErrUnhandled
	}
	b, err := t.Encode(v)
	if err != nil {
		return err
	}
	return c.Write(b, withResponse)
}

// SetNotify enables or disables notifications. Completion arrives
// through the NotifyStateUpdated callback; subsequent pushed
// values arrive through CharacteristicValueChanged.
func (c *Characteristic) SetNotify(enable bool) error {
	if err := c.reachable(); err != nil {
		return err
	}
	c.central.do(func() { c.central.setNotify(c, enable) })
	return nil
}

// reachable verifies the parent chain is attached to a live connection.
func (c *Characteristic) reachable() error {
	p := c.central.peripheralByID(c.peripheralID)
	if p == nil || p.State() != ConnConnected {
		return ErrUnreachable
	}
	if !c.central.attached(c.id) {
		return ErrUnreachable
	}
	return nil
}

func (c *Characteristic) setValue(b []byte) {
	c.mu.Lock()
	c.value = b
	c.mu.Unlock()
}

func (c *Characteristic) setNotifying(on bool) {
	c.mu.Lock()
	c.notifying = on
	c.mu.Unlock()
}

func (c *Characteristic) setDescriptors(dd []*Descriptor) []*Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make(map[UUID]bool, len(dd))
	index := make(map[UUID]*Descriptor, len(dd))
	for _, d := range dd {
		kept[d.id] = true
		index[d.id] = d
	}
	var dropped []*Descriptor
	for _, d := range c.descs {
		if !kept[d.id] {
			dropped = append(dropped, d)
		}
	}
	c.descs = dd
	c.descIndex = index
	return dropped
}
