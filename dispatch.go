package gatt

import "errors"

// The operation dispatcher tracks in-flight read/write/setNotify
// requests so that the backend's undifferentiated completion events can
// be matched back to the request that caused them.
//
// One slot exists per (entity, kind). A second request of the same kind
// on the same entity while one is pending is queued and issued to the
// backend once the in-flight one resolves; the backend never sees two
// outstanding operations of one kind for one entity. Operations on
// different entities are independent.
//
// The table is owned by the Central's run loop.

type pendingKey struct {
	entity UUID
	kind   opKind
}

type pendingOp struct {
	key pendingKey
	// deferred requests, issued FIFO as the slot frees up. Each func
	// performs the backend call and returns its synchronous error.
	deferred []func() error
}

// issueOp occupies the slot for key and performs the backend call. If
// the slot is taken the call is deferred. A synchronous backend error
// frees the slot and surfaces as a completion failure.
func (c *Central) issueOp(key pendingKey, call func() error) {
	if op, ok := c.pending[key]; ok {
		op.deferred = append(op.deferred, call)
		return
	}
	c.pending[key] = &pendingOp{key: key}
	if err := call(); err != nil {
		delete(c.pending, key)
		c.failOp(key, wrapBackendErr(err, key.kind.String()))
	}
}

// completeOp resolves the pending slot for key. It reports false when
// no request was outstanding, which callers use to tell spontaneous
// backend events apart from completions. When deferred requests exist
// the next one is issued and the slot stays occupied.
func (c *Central) completeOp(key pendingKey) bool {
	op, ok := c.pending[key]
	if !ok {
		return false
	}
	for len(op.deferred) > 0 {
		next := op.deferred[0]
		op.deferred = op.deferred[1:]
		if err := next(); err != nil {
			// The deferred call failed synchronously; surface it as
			// its own completion and try the next one.
			c.failOp(key, wrapBackendErr(err, key.kind.String()))
			continue
		}
		return true
	}
	delete(c.pending, key)
	return true
}

// failOp reports err through the completion callback matching the
// slot's entity and kind.
func (c *Central) failOp(key pendingKey, err error) {
	ref, ok := c.lookup(key.entity)
	if !ok {
		c.log.WithField("entity", key.entity).Debug("gatt: dropping failure for unknown entity")
		return
	}
	switch {
	case ref.desc != nil:
		c.emitDescResult(ref.p, ref.desc, key.kind, err)
	case ref.char != nil:
		c.emitCharResult(ref.p, ref.char, key.kind, err)
	}
}

// cancelPendingFor fails every pending operation whose entity hangs off
// the given peripheral. Used when a connection drops: outstanding work
// can never complete, so it fails fast with ErrUnreachable. Deferred
// requests count as outstanding too; each one gets its own completion.
func (c *Central) cancelPendingFor(p *Peripheral) {
	for key, op := range c.pending {
		ref, ok := c.lookup(key.entity)
		if !ok || ref.p != p {
			continue
		}
		outstanding := 1 + len(op.deferred)
		op.deferred = nil
		delete(c.pending, key)
		for i := 0; i < outstanding; i++ {
			c.failOp(key, ErrUnreachable)
		}
	}
}

func (c *Central) emitCharResult(p *Peripheral, ch *Characteristic, kind opKind, err error) {
	c.emit(func() {
		var f func(*Peripheral, *Characteristic, error)
		switch kind {
		case opRead:
			f = c.handlers.characteristicValueUpdated
		case opWrite:
			f = c.handlers.characteristicWritten
		case opNotify:
			f = c.handlers.notifyStateUpdated
		}
		if f != nil {
			f(p, ch, err)
		}
	})
}

func (c *Central) emitDescResult(p *Peripheral, d *Descriptor, kind opKind, err error) {
	c.emit(func() {
		var f func(*Peripheral, *Descriptor, error)
		switch kind {
		case opRead:
			f = c.handlers.descriptorValueUpdated
		case opWrite:
			f = c.handlers.descriptorWritten
		}
		if f != nil {
			f(p, d, err)
		}
	})
}

// Loop-side operation entry points. The public API re-checks
// reachability here because a disconnect may have been processed
// between the post and the run.

func (c *Central) readCharacteristic(ch *Characteristic) {
	p := c.peripheralByID(ch.peripheralID)
	if err := ch.reachable(); err != nil {
		c.emitCharResult(p, ch, opRead, ErrUnreachable)
		return
	}
	c.issueOp(pendingKey{ch.id, opRead}, func() error {
		return c.backend.ReadValue(ch.id)
	})
}

func (c *Central) writeCharacteristic(ch *Characteristic, value []byte, withResponse bool) {
	p := c.peripheralByID(ch.peripheralID)
	if err := ch.reachable(); err != nil {
		if withResponse {
			c.emitCharResult(p, ch, opWrite, ErrUnreachable)
		}
		return
	}
	if !withResponse {
		// Write command: no pending slot, no completion, ever.
		if err := c.backend.WriteValue(ch.id, value, false); err != nil {
			c.log.WithError(err).WithField("characteristic", ch.id).
				Debug("gatt: write without response failed")
		}
		return
	}
	c.issueOp(pendingKey{ch.id, opWrite}, func() error {
		return c.backend.WriteValue(ch.id, value, true)
	})
}

func (c *Central) setNotify(ch *Characteristic, enable bool) {
	p := c.peripheralByID(ch.peripheralID)
	if err := ch.reachable(); err != nil {
		c.emitCharResult(p, ch, opNotify, ErrUnreachable)
		return
	}
	c.issueOp(pendingKey{ch.id, opNotify}, func() error {
		return c.backend.SetNotify(ch.id, enable)
	})
}

func (c *Central) readDescriptor(d *Descriptor) {
	p := c.peripheralByID(d.peripheralID)
	if err := d.reachable(); err != nil {
		c.emitDescResult(p, d, opRead, ErrUnreachable)
		return
	}
	c.issueOp(pendingKey{d.id, opRead}, func() error {
		return c.backend.ReadValue(d.id)
	})
}

func (c *Central) writeDescriptor(d *Descriptor, value []byte) {
	p := c.peripheralByID(d.peripheralID)
	if err := d.reachable(); err != nil {
		c.emitDescResult(p, d, opWrite, ErrUnreachable)
		return
	}
	c.issueOp(pendingKey{d.id, opWrite}, func() error {
		return c.backend.WriteValue(d.id, value, true)
	})
}

// Completion events.

func (c *Central) handleValueUpdated(e EvtValueUpdated) {
	ref, ok := c.lookup(e.Entity)
	if !ok {
		c.log.WithField("entity", e.Entity).Debug("gatt: dropping value update for unknown entity")
		return
	}
	switch {
	case ref.desc != nil:
		d := ref.desc
		if !c.completeOp(pendingKey{d.id, opRead}) {
			c.log.WithField("descriptor", d.id).Debug("gatt: dropping spontaneous descriptor update")
			return
		}
		err := e.Err
		if err != nil {
			err = wrapBackendErr(err, "readValue")
		} else {
			err = cacheValue(d.id, e.Value, d.setValue)
		}
		c.emitDescResult(ref.p, d, opRead, err)
	case ref.char != nil:
		ch := ref.char
		err := e.Err
		if err != nil {
			err = wrapBackendErr(err, "readValue")
		} else {
			err = cacheValue(ch.id, e.Value, ch.setValue)
		}
		if c.completeOp(pendingKey{ch.id, opRead}) {
			c.emitCharResult(ref.p, ch, opRead, err)
			return
		}
		// No read outstanding: this is a pushed notification value.
		// Steady-state delivery, kept apart from the read path.
		p := ref.p
		c.emit(func() {
			if f := c.handlers.characteristicValueChanged; f != nil {
				f(p, ch, err)
			}
		})
	default:
		c.log.WithField("entity", e.Entity).Debug("gatt: value update for a service, dropping")
	}
}

func (c *Central) handleValueWritten(e EvtValueWritten) {
	ref, ok := c.lookup(e.Entity)
	if !ok {
		c.log.WithField("entity", e.Entity).Debug("gatt: dropping write completion for unknown entity")
		return
	}
	if !c.completeOp(pendingKey{e.Entity, opWrite}) {
		c.log.WithField("entity", e.Entity).Debug("gatt: dropping stale write completion")
		return
	}
	err := wrapBackendErr(e.Err, "writeValue")
	switch {
	case ref.desc != nil:
		c.emitDescResult(ref.p, ref.desc, opWrite, err)
	case ref.char != nil:
		c.emitCharResult(ref.p, ref.char, opWrite, err)
	}
}

func (c *Central) handleNotifyStateUpdated(e EvtNotifyStateUpdated) {
	ref, ok := c.lookup(e.Characteristic)
	if !ok || ref.char == nil {
		c.log.WithField("characteristic", e.Characteristic).Debug("gatt: dropping notify state for unknown characteristic")
		return
	}
	ch := ref.char
	c.completeOp(pendingKey{ch.id, opNotify})
	if e.Err == nil {
		ch.setNotifying(e.Enabled)
	}
	c.emitCharResult(ref.p, ch, opNotify, wrapBackendErr(e.Err, "setNotify"))
}

// cacheValue pipes a fresh raw value through the transform registered
// for the entity. A failed decode surfaces the *DecodeError and leaves
// the previously cached bytes alone; without a transform, or when the
// value decodes, the cache is updated.
func cacheValue(u UUID, value []byte, store func([]byte)) error {
	b := make([]byte, len(value))
	copy(b, value)
	t := TransformFor(u)
	if t == nil {
		store(b)
		return nil
	}
	if _, err := t.Decode(b); err != nil && !errors.Is(err, ErrNoValue) {
		return err
	}
	store(b)
	return nil
}
