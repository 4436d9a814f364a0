package linux

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	bzgatt "github.com/muka/go-bluetooth/bluez/profile/gatt"

	"github.com/corvuslabs/gatt"
)

func errUnknownEntity(u gatt.UUID) error {
	return fmt.Errorf("bluez: unknown entity %s", u)
}

// childObjects lists the D-Bus object paths directly under parent with
// the given path component prefix ("service", "char", "desc"), sorted
// for stable ordering.
func childObjects(parent dbus.ObjectPath, prefix string) ([]dbus.ObjectPath, error) {
	om, err := bluez.GetObjectManager()
	if err != nil {
		return nil, err
	}
	list, err := om.GetManagedObjects()
	if err != nil {
		return nil, err
	}
	var out []string
	for objectPath := range list {
		p := string(objectPath)
		if !strings.HasPrefix(p, string(parent)+"/"+prefix) {
			continue
		}
		suffix := p[len(string(parent))+1:]
		if len(strings.Split(suffix, "/")) != 1 {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	paths := make([]dbus.ObjectPath, len(out))
	for i, p := range out {
		paths[i] = dbus.ObjectPath(p)
	}
	return paths, nil
}

// waitServicesResolved polls the ServicesResolved property. BlueZ
// resolves the whole GATT database on connect; discovery just waits for
// the cache.
func waitServicesResolved(dev *device.Device1) error {
	start := time.Now()
	for {
		resolved, err := dev.GetServicesResolved()
		if err != nil {
			return err
		}
		if resolved {
			return nil
		}
		if time.Since(start) > 10*time.Second {
			return fmt.Errorf("bluez: timeout waiting for services to resolve")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// DiscoverServices implements gatt.Backend. The filter is left to the
// core: BlueZ reports the full cached service list and the core narrows
// it to the requested subset.
func (b *Backend) DiscoverServices(peripheral gatt.UUID, filter []gatt.UUID) error {
	dev, ok := b.deviceFor(peripheral)
	if !ok {
		return errUnknownEntity(peripheral)
	}
	go func() {
		if err := waitServicesResolved(dev); err != nil {
			b.send(gatt.EvtServicesDiscovered{Peripheral: peripheral, Err: err})
			return
		}
		paths, err := childObjects(dev.Path(), "service")
		if err != nil {
			b.send(gatt.EvtServicesDiscovered{Peripheral: peripheral, Err: err})
			return
		}
		var infos []gatt.ServiceInfo
		for _, path := range paths {
			svc, err := bzgatt.NewGattService1(path)
			if err != nil {
				continue
			}
			id, err := gatt.ParseUUID(svc.Properties.UUID)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.services[id] = svc
			b.mu.Unlock()
			infos = append(infos, gatt.ServiceInfo{UUID: id, Primary: svc.Properties.Primary})
		}
		b.send(gatt.EvtServicesDiscovered{Peripheral: peripheral, Services: infos})
	}()
	return nil
}

// DiscoverCharacteristics implements gatt.Backend.
func (b *Backend) DiscoverCharacteristics(service gatt.UUID, filter []gatt.UUID) error {
	b.mu.Lock()
	svc, ok := b.services[service]
	b.mu.Unlock()
	if !ok {
		return errUnknownEntity(service)
	}
	go func() {
		paths, err := childObjects(svc.Path(), "char")
		if err != nil {
			b.send(gatt.EvtCharacteristicsDiscovered{Service: service, Err: err})
			return
		}
		var infos []gatt.CharacteristicInfo
		for _, path := range paths {
			char, err := bzgatt.NewGattCharacteristic1(path)
			if err != nil {
				continue
			}
			id, err := gatt.ParseUUID(char.Properties.UUID)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.chars[id] = char
			b.mu.Unlock()
			infos = append(infos, gatt.CharacteristicInfo{
				UUID:       id,
				Properties: parseFlags(char.Properties.Flags),
			})
		}
		b.send(gatt.EvtCharacteristicsDiscovered{Service: service, Characteristics: infos})
	}()
	return nil
}

// DiscoverDescriptors implements gatt.Backend.
func (b *Backend) DiscoverDescriptors(characteristic gatt.UUID) error {
	b.mu.Lock()
	char, ok := b.chars[characteristic]
	b.mu.Unlock()
	if !ok {
		return errUnknownEntity(characteristic)
	}
	go func() {
		paths, err := childObjects(char.Path(), "desc")
		if err != nil {
			b.send(gatt.EvtDescriptorsDiscovered{Characteristic: characteristic, Err: err})
			return
		}
		var infos []gatt.DescriptorInfo
		for _, path := range paths {
			desc, err := bzgatt.NewGattDescriptor1(path)
			if err != nil {
				continue
			}
			id, err := gatt.ParseUUID(desc.Properties.UUID)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.descs[id] = desc
			b.mu.Unlock()
			infos = append(infos, gatt.DescriptorInfo{UUID: id})
		}
		b.send(gatt.EvtDescriptorsDiscovered{Characteristic: characteristic, Descriptors: infos})
	}()
	return nil
}

// parseFlags maps BlueZ characteristic flag strings onto the property
// bitset.
func parseFlags(flags []string) gatt.Property {
	var p gatt.Property
	for _, f := range flags {
		switch f {
		case "broadcast":
			p |= gatt.CharBroadcast
		case "read":
			p |= gatt.CharRead
		case "write-without-response":
			p |= gatt.CharWriteNR
		case "write":
			p |= gatt.CharWrite
		case "notify":
			p |= gatt.CharNotify
		case "indicate":
			p |= gatt.CharIndicate
		case "authenticated-signed-writes":
			p |= gatt.CharSignedWrite
		case "extended-properties":
			p |= gatt.CharExtended
		}
	}
	return p
}

// ReadValue implements gatt.Backend for characteristics and
// descriptors alike.
func (b *Backend) ReadValue(entity gatt.UUID) error {
	b.mu.Lock()
	char, isChar := b.chars[entity]
	desc, isDesc := b.descs[entity]
	b.mu.Unlock()
	switch {
	case isChar:
		go func() {
			value, err := char.ReadValue(map[string]interface{}{})
			b.send(gatt.EvtValueUpdated{Entity: entity, Value: value, Err: err})
		}()
	case isDesc:
		go func() {
			value, err := desc.ReadValue(map[string]interface{}{})
			b.send(gatt.EvtValueUpdated{Entity: entity, Value: value, Err: err})
		}()
	default:
		return errUnknownEntity(entity)
	}
	return nil
}

// WriteValue implements gatt.Backend. A write without response maps
// onto BlueZ's "command" write type and produces no completion.
func (b *Backend) WriteValue(entity gatt.UUID, value []byte, withResponse bool) error {
	b.mu.Lock()
	char, isChar := b.chars[entity]
	desc, isDesc := b.descs[entity]
	b.mu.Unlock()
	switch {
	case isChar:
		options := map[string]interface{}{"type": "request"}
		if !withResponse {
			options["type"] = "command"
		}
		go func() {
			err := char.WriteValue(value, options)
			if withResponse {
				b.send(gatt.EvtValueWritten{Entity: entity, Err: err})
			} else if err != nil {
				b.log.WithError(err).Debug("bluez: write command failed")
			}
		}()
	case isDesc:
		go func() {
			err := desc.WriteValue(value, map[string]interface{}{})
			b.send(gatt.EvtValueWritten{Entity: entity, Err: err})
		}()
	default:
		return errUnknownEntity(entity)
	}
	return nil
}

// SetNotify implements gatt.Backend. Value pushes surface as
// EvtValueUpdated through the characteristic's property watcher.
func (b *Backend) SetNotify(characteristic gatt.UUID, enabled bool) error {
	b.mu.Lock()
	char, ok := b.chars[characteristic]
	b.mu.Unlock()
	if !ok {
		return errUnknownEntity(characteristic)
	}
	go func() {
		if !enabled {
			err := char.StopNotify()
			b.send(gatt.EvtNotifyStateUpdated{Characteristic: characteristic, Enabled: false, Err: err})
			return
		}
		ch, err := char.WatchProperties()
		if err != nil {
			b.send(gatt.EvtNotifyStateUpdated{Characteristic: characteristic, Enabled: false, Err: err})
			return
		}
		go func() {
			for update := range ch {
				if update == nil {
					return
				}
				if update.Interface == "org.bluez.GattCharacteristic1" && update.Name == "Value" {
					if value, ok := update.Value.([]byte); ok {
						b.send(gatt.EvtValueUpdated{Entity: characteristic, Value: value})
					}
				}
			}
		}()
		err = char.StartNotify()
		b.send(gatt.EvtNotifyStateUpdated{Characteristic: characteristic, Enabled: err == nil, Err: err})
	}()
	return nil
}
