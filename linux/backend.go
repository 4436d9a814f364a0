// Package linux implements the gatt.Backend capability interface on
// top of BlueZ, over D-Bus.
//
// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc
package linux

import (
	"strings"
	"sync"

	guuid "github.com/google/uuid"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	bzgatt "github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/sirupsen/logrus"

	"github.com/corvuslabs/gatt"
)

// Backend drives BlueZ through its D-Bus object tree. BlueZ addresses
// devices by MAC; peripherals get stable identifiers derived from the
// MAC with a name-based UUID, so the same device always maps to the
// same gatt.UUID.
type Backend struct {
	log     logrus.FieldLogger
	adapter *adapter.Adapter1
	events  chan gatt.Event

	mu         sync.Mutex
	devices    map[gatt.UUID]*device.Device1
	services   map[gatt.UUID]*bzgatt.GattService1
	chars      map[gatt.UUID]*bzgatt.GattCharacteristic1
	descs      map[gatt.UUID]*bzgatt.GattDescriptor1
	cancelScan func()
	closed     bool
}

// NewBackend opens the default BlueZ adapter.
func NewBackend(log logrus.FieldLogger) (*Backend, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	a, err := api.GetDefaultAdapter()
	if err != nil {
		return nil, err
	}
	b := &Backend{
		log:      log,
		adapter:  a,
		events:   make(chan gatt.Event, 64),
		devices:  make(map[gatt.UUID]*device.Device1),
		services: make(map[gatt.UUID]*bzgatt.GattService1),
		chars:    make(map[gatt.UUID]*bzgatt.GattCharacteristic1),
		descs:    make(map[gatt.UUID]*bzgatt.GattDescriptor1),
	}
	if err := b.watchAdapterState(); err != nil {
		return nil, err
	}
	b.emitState()
	return b, nil
}

// Events implements gatt.Backend.
func (b *Backend) Events() <-chan gatt.Event { return b.events }

// Close implements gatt.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancelScan
	b.cancelScan = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
		b.adapter.StopDiscovery()
	}
	close(b.events)
	return nil
}

// send holds the mutex across the channel send so Close can never
// close the channel between the closed check and the send.
func (b *Backend) send(e gatt.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.events <- e
}

func (b *Backend) emitState() {
	s := gatt.StatePoweredOff
	if powered, err := b.adapter.GetPowered(); err == nil && powered {
		s = gatt.StatePoweredOn
	}
	b.send(gatt.EvtStateChanged{State: s})
}

func (b *Backend) watchAdapterState() error {
	ch, err := b.adapter.WatchProperties()
	if err != nil {
		return err
	}
	go func() {
		for changed := range ch {
			if changed == nil {
				return
			}
			if changed.Name != "Powered" {
				continue
			}
			s := gatt.StatePoweredOff
			if on, ok := changed.Value.(bool); ok && on {
				s = gatt.StatePoweredOn
			}
			b.send(gatt.EvtStateChanged{State: s})
		}
	}()
	return nil
}

// peripheralID derives the stable identifier for a BlueZ device from
// its MAC address.
func peripheralID(address string) gatt.UUID {
	u := guuid.NewSHA1(guuid.NameSpaceOID, []byte(strings.ToUpper(address)))
	id, _ := gatt.ParseUUID(u.String())
	return id
}

// StartScan implements gatt.Backend.
func (b *Backend) StartScan(filter []gatt.UUID, allowDuplicates bool) error {
	df := map[string]interface{}{"Transport": "le"}
	if len(filter) > 0 {
		uu := make([]string, len(filter))
		for i, u := range filter {
			uu[i] = u.String()
		}
		df["UUIDs"] = uu
	}
	if allowDuplicates {
		df["DuplicateData"] = true
	}
	if err := b.adapter.SetDiscoveryFilter(df); err != nil {
		return err
	}
	if err := b.adapter.StartDiscovery(); err != nil {
		return err
	}
	discoveries, cancel, err := b.adapter.OnDeviceDiscovered()
	if err != nil {
		b.adapter.StopDiscovery()
		return err
	}
	b.mu.Lock()
	b.cancelScan = cancel
	b.mu.Unlock()

	go func() {
		// Report already-cached devices first; BlueZ only produces
		// events for changes after that.
		if devices, err := b.adapter.GetDevices(); err == nil {
			for _, dev := range devices {
				b.reportDevice(dev)
			}
		}
		for result := range discoveries {
			if result.Type != adapter.DeviceAdded {
				continue
			}
			dev, err := device.NewDevice1(result.Path)
			if err != nil || dev == nil {
				continue
			}
			b.reportDevice(dev)
		}
	}()
	return nil
}

func (b *Backend) reportDevice(dev *device.Device1) {
	id := peripheralID(dev.Properties.Address)
	b.mu.Lock()
	b.devices[id] = dev
	b.mu.Unlock()
	b.send(gatt.EvtPeripheralDiscovered{
		UUID: id,
		Name: dev.Properties.Name,
		RSSI: int(dev.Properties.RSSI),
	})
}

// StopScan implements gatt.Backend.
func (b *Backend) StopScan() error {
	b.mu.Lock()
	cancel := b.cancelScan
	b.cancelScan = nil
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return b.adapter.StopDiscovery()
}

func (b *Backend) deviceFor(peripheral gatt.UUID) (*device.Device1, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, ok := b.devices[peripheral]
	return dev, ok
}

// Connect implements gatt.Backend.
func (b *Backend) Connect(peripheral gatt.UUID) error {
	dev, ok := b.deviceFor(peripheral)
	if !ok {
		return errUnknownEntity(peripheral)
	}
	go func() {
		if err := dev.Connect(); err != nil {
			b.send(gatt.EvtConnectFailed{UUID: peripheral, Err: err})
			return
		}
		b.watchConnection(peripheral, dev)
		b.send(gatt.EvtConnected{UUID: peripheral})
	}()
	return nil
}

// watchConnection surfaces BlueZ's Connected property dropping to
// false as a disconnect event.
func (b *Backend) watchConnection(peripheral gatt.UUID, dev *device.Device1) {
	ch, err := dev.WatchProperties()
	if err != nil {
		b.log.WithError(err).Debug("bluez: cannot watch device properties")
		return
	}
	go func() {
		for changed := range ch {
			if changed == nil {
				return
			}
			if changed.Name != "Connected" {
				continue
			}
			if on, ok := changed.Value.(bool); ok && !on {
				b.send(gatt.EvtDisconnected{UUID: peripheral})
				return
			}
		}
	}()
}

// CancelConnection implements gatt.Backend.
func (b *Backend) CancelConnection(peripheral gatt.UUID) error {
	dev, ok := b.deviceFor(peripheral)
	if !ok {
		return errUnknownEntity(peripheral)
	}
	go func() {
		if err := dev.Disconnect(); err != nil {
			b.log.WithError(err).Debug("bluez: disconnect failed")
		}
		// The property watcher reports the disconnect; devices
		// without one (never connected) get it here.
		if connected, err := dev.GetConnected(); err != nil || !connected {
			b.send(gatt.EvtDisconnected{UUID: peripheral})
		}
	}()
	return nil
}
