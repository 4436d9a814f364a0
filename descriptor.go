package gatt

import "sync"

// A Descriptor is a discovered descriptor under a characteristic.
type Descriptor struct {
	central          *Central
	id               UUID
	characteristicID UUID
	peripheralID     UUID

	mu    sync.RWMutex
	value []byte
}

func newDescriptor(ch *Characteristic, info DescriptorInfo) *Descriptor {
	return &Descriptor{
		central:          ch.central,
		id:               info.UUID,
		characteristicID: ch.id,
		peripheralID:     ch.peripheralID,
	}
}

// UUID returns the descriptor's UUID.
func (d *Descriptor) UUID() UUID { return d.id }

// Characteristic resolves the parent characteristic, or nil.
func (d *Descriptor) Characteristic() *Characteristic {
	p := d.central.peripheralByID(d.peripheralID)
	if p == nil {
		return nil
	}
	for _, s := range p.Services() {
		if c := s.Characteristic(d.characteristicID); c != nil {
			return c
		}
	}
	return nil
}

// Value returns the last raw value delivered by the backend.
func (d *Descriptor) Value() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.value == nil {
		return nil
	}
	out := make([]byte, len(d.value))
	copy(out, d.value)
	return out
}

// Read requests the descriptor value. Completion arrives through the
// DescriptorValueUpdated callback.
func (d *Descriptor) Read() error {
	if err := d.reachable(); err != nil {
		return err
	}
	d.central.do(func() { d.central.readDescriptor(d) })
	return nil
}

// Write writes the descriptor value. Descriptor writes are always
// acknowledged; completion arrives through DescriptorWritten.
func (d *Descriptor) Write(value []byte) error {
	if err := d.reachable(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)
	d.central.do(func() { d.central.writeDescriptor(d, v) })
	return nil
}

func (d *Descriptor) reachable() error {
	p := d.central.peripheralByID(d.peripheralID)
	if p == nil || p.State() != ConnConnected {
		return ErrUnreachable
	}
	if !d.central.attached(d.id) {
		return ErrUnreachable
	}
	return nil
}

func (d *Descriptor) setValue(b []byte) {
	d.mu.Lock()
	d.value = b
	d.mu.Unlock()
}
