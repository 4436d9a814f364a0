package gatt

// centralHandlers is the set of observer callbacks of a Central.
// Package users register them with Handle. Callbacks run on the
// Central's callback goroutine, in FIFO order per entity; they may call
// back into the API freely.
type centralHandlers struct {
	// stateChanged is called when the host radio state changes.
	stateChanged func(c *Central, s State)

	// peripheralDiscovered is called once per newly seen peripheral
	// during a scan. A peripheral already known is never re-announced.
	peripheralDiscovered func(p *Peripheral, a *Advertisement, rssi int)

	// peripheralConnected is called when a connection completes.
	peripheralConnected func(p *Peripheral)

	// peripheralConnectFailed is called when a connection attempt fails.
	peripheralConnectFailed func(p *Peripheral, err error)

	// peripheralDisconnected is called on disconnect, including the
	// synthesized disconnects delivered when the radio powers off.
	peripheralDisconnected func(p *Peripheral, err error)

	// peripheralRestored is called for each peripheral reattached
	// after a process relaunch.
	peripheralRestored func(p *Peripheral)

	// scanStopped is called when scanning stops through any path. err
	// is nil for a manual stop and ErrScanTimeout for a timeout.
	scanStopped func(c *Central, err error)

	// servicesDiscovered is called when a service discovery pass
	// completes. On failure err is a *DiscoveryError carrying the
	// requested subset.
	servicesDiscovered func(p *Peripheral, ss []*Service, err error)

	// servicesModified is called after an incremental service-change
	// re-discovery, with the wrappers the backend invalidated.
	servicesModified func(p *Peripheral, invalidated []*Service)

	// characteristicsDiscovered is called when a characteristic
	// discovery pass under s completes.
	characteristicsDiscovered func(p *Peripheral, s *Service, cc []*Characteristic, err error)

	// descriptorsDiscovered is called when descriptor discovery under
	// ch completes.
	descriptorsDiscovered func(p *Peripheral, ch *Characteristic, dd []*Descriptor, err error)

	// characteristicValueUpdated completes a Read. On success the raw
	// value is cached on ch; a registered transform that fails to
	// decode surfaces a *DecodeError here and leaves the cache alone.
	characteristicValueUpdated func(p *Peripheral, ch *Characteristic, err error)

	// characteristicValueChanged delivers pushed notification values.
	// This path is independent of Read completions.
	characteristicValueChanged func(p *Peripheral, ch *Characteristic, err error)

	// characteristicWritten completes a with-response Write.
	characteristicWritten func(p *Peripheral, ch *Characteristic, err error)

	// notifyStateUpdated completes a SetNotify.
	notifyStateUpdated func(p *Peripheral, ch *Characteristic, err error)

	// descriptorValueUpdated completes a descriptor Read.
	descriptorValueUpdated func(p *Peripheral, d *Descriptor, err error)

	// descriptorWritten completes a descriptor Write.
	descriptorWritten func(p *Peripheral, d *Descriptor, err error)
}

type handler func(*Central)

// Handle registers the specified handlers. Register all handlers
// before Init; registration is not synchronized with a running loop.
func (c *Central) Handle(hh ...handler) {
	for _, h := range hh {
		h(c)
	}
}

// StateChanged sets a function to be called when the radio state changes.
func StateChanged(f func(*Central, State)) handler {
	return func(c *Central) { c.handlers.stateChanged = f }
}

// PeripheralDiscovered sets a function to be called when a new remote
// peripheral is found during a scan.
func PeripheralDiscovered(f func(*Peripheral, *Advertisement, int)) handler {
	return func(c *Central) { c.handlers.peripheralDiscovered = f }
}

// PeripheralConnected sets a function to be called when a remote
// peripheral connects.
func PeripheralConnected(f func(*Peripheral)) handler {
	return func(c *Central) { c.handlers.peripheralConnected = f }
}

// PeripheralConnectFailed sets a function to be called when a
// connection attempt fails.
func PeripheralConnectFailed(f func(*Peripheral, error)) handler {
	return func(c *Central) { c.handlers.peripheralConnectFailed = f }
}

// PeripheralDisconnected sets a function to be called when a remote
// peripheral disconnects.
func PeripheralDisconnected(f func(*Peripheral, error)) handler {
	return func(c *Central) { c.handlers.peripheralDisconnected = f }
}

// PeripheralRestored sets a function to be called for each peripheral
// reattached after a process relaunch.
func PeripheralRestored(f func(*Peripheral)) handler {
	return func(c *Central) { c.handlers.peripheralRestored = f }
}

// ScanStopped sets a function to be called when scanning stops.
func ScanStopped(f func(*Central, error)) handler {
	return func(c *Central) { c.handlers.scanStopped = f }
}

// ServicesDiscovered sets a function to be called when service
// discovery completes.
func ServicesDiscovered(f func(*Peripheral, []*Service, error)) handler {
	return func(c *Central) { c.handlers.servicesDiscovered = f }
}

// ServicesModified sets a function to be called when a peripheral
// changes its service table and re-discovery has completed.
func ServicesModified(f func(*Peripheral, []*Service)) handler {
	return func(c *Central) { c.handlers.servicesModified = f }
}

// CharacteristicsDiscovered sets a function to be called when
// characteristic discovery completes.
func CharacteristicsDiscovered(f func(*Peripheral, *Service, []*Characteristic, error)) handler {
	return func(c *Central) { c.handlers.characteristicsDiscovered = f }
}

// DescriptorsDiscovered sets a function to be called when descriptor
// discovery completes.
func DescriptorsDiscovered(f func(*Peripheral, *Characteristic, []*Descriptor, error)) handler {
	return func(c *Central) { c.handlers.descriptorsDiscovered = f }
}

// CharacteristicValueUpdated sets a function to be called when a Read
// completes.
func CharacteristicValueUpdated(f func(*Peripheral, *Characteristic, error)) handler {
	return func(c *Central) { c.handlers.characteristicValueUpdated = f }
}

// CharacteristicValueChanged sets a function to be called when a
// subscribed characteristic is notified.
func CharacteristicValueChanged(f func(*Peripheral, *Characteristic, error)) handler {
	return func(c *Central) { c.handlers.characteristicValueChanged = f }
}

// CharacteristicWritten sets a function to be called when a
// with-response write completes.
func CharacteristicWritten(f func(*Peripheral, *Characteristic, error)) handler {
	return func(c *Central) { c.handlers.characteristicWritten = f }
}

// NotifyStateUpdated sets a function to be called when a SetNotify
// completes.
func NotifyStateUpdated(f func(*Peripheral, *Characteristic, error)) handler {
	return func(c *Central) { c.handlers.notifyStateUpdated = f }
}

// DescriptorValueUpdated sets a function to be called when a descriptor
// Read completes.
func DescriptorValueUpdated(f func(*Peripheral, *Descriptor, error)) handler {
	return func(c *Central) { c.handlers.descriptorValueUpdated = f }
}

// DescriptorWritten sets a function to be called when a descriptor
// Write completes.
func DescriptorWritten(f func(*Peripheral, *Descriptor, error)) handler {
	return func(c *Central) { c.handlers.descriptorWritten = f }
}
