package gatt

// An EntityFactory constructs the wrapper objects built from discovery
// results. Supplying a custom factory lets an integrator produce
// specialized entities: pre-register value transforms, tag entities
// with domain state, or intern well-known UUIDs.
//
// Factories run on the Central's serialized loop and must not block.
type EntityFactory interface {
	NewPeripheral(c *Central, id UUID, name string) *Peripheral
	NewService(p *Peripheral, info ServiceInfo) *Service
	NewCharacteristic(s *Service, info CharacteristicInfo) *Characteristic
	NewDescriptor(ch *Characteristic, info DescriptorInfo) *Descriptor
}

type defaultFactory struct{}

func (defaultFactory) NewPeripheral(c *Central, id UUID, name string) *Peripheral {
	return newPeripheral(c, id, name)
}

func (defaultFactory) NewService(p *Peripheral, info ServiceInfo) *Service {
	return newService(p, info)
}

func (defaultFactory) NewCharacteristic(s *Service, info CharacteristicInfo) *Characteristic {
	return newCharacteristic(s, info)
}

func (defaultFactory) NewDescriptor(ch *Characteristic, info DescriptorInfo) *Descriptor {
	return newDescriptor(ch, info)
}

// A DiscoveryPolicy decides what happens automatically as entities are
// discovered. Hooks are evaluated once per entity, on the Central's
// loop, and must not block.
type DiscoveryPolicy interface {
	// ServicesOnConnect is consulted when a peripheral connects or is
	// restored. Returning discover=true starts a service discovery
	// pass with the given filter (nil means all).
	ServicesOnConnect(p *Peripheral) (filter []UUID, discover bool)

	// DescriptorsOnDiscovery reports whether descriptor discovery
	// should start immediately for a freshly discovered characteristic.
	DescriptorsOnDiscovery(ch *Characteristic) bool

	// SubscribeOnDiscovery reports whether notifications should be
	// enabled immediately for a freshly discovered characteristic.
	// Only consulted for characteristics supporting notify/indicate.
	SubscribeOnDiscovery(ch *Characteristic) bool
}

// nopPolicy does nothing automatically; every step is app-driven.
type nopPolicy struct{}

func (nopPolicy) ServicesOnConnect(*Peripheral) ([]UUID, bool) { return nil, false }
func (nopPolicy) DescriptorsOnDiscovery(*Characteristic) bool  { return false }
func (nopPolicy) SubscribeOnDiscovery(*Characteristic) bool    { return false }

// AutoPolicy is a ready-made DiscoveryPolicy driven by three flags,
// matching the common "discover everything, subscribe to everything"
// setup.
type AutoPolicy struct {
	DiscoverServices    bool
	DiscoverDescriptors bool
	Subscribe           bool
}

func (p AutoPolicy) ServicesOnConnect(*Peripheral) ([]UUID, bool) {
	return nil, p.DiscoverServices
}

func (p AutoPolicy) DescriptorsOnDiscovery(*Characteristic) bool {
	return p.DiscoverDescriptors
}

func (p AutoPolicy) SubscribeOnDiscovery(ch *Characteristic) bool {
	return p.Subscribe && ch.Properties()&(CharNotify|CharIndicate) != 0
}
