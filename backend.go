package gatt

// A Backend is the narrow capability interface to the platform BLE
// stack. The core drives it with requests and consumes its asynchronous
// events; it never reaches past this interface.
//
// All methods must return promptly. Results, where any exist, arrive on
// the Events channel in any order and possibly out of call order. A
// backend may emit events from any goroutine; the Central serializes
// their processing.
type Backend interface {
	// StartScan begins peripheral discovery. A nil filter scans for
	// everything; a non-empty filter restricts to peripherals
	// advertising at least one of the given service UUIDs.
	StartScan(filter []UUID, allowDuplicates bool) error
	StopScan() error

	Connect(peripheral UUID) error
	CancelConnection(peripheral UUID) error

	// Discovery requests. A nil filter requests all entities in scope.
	// The backend may over-report entities beyond the filter; the core
	// narrows results on completion.
	DiscoverServices(peripheral UUID, filter []UUID) error
	DiscoverCharacteristics(service UUID, filter []UUID) error
	DiscoverDescriptors(characteristic UUID) error

	// Value operations, keyed by entity UUID. WriteValue with
	// withResponse=false is fire-and-forget: the backend emits no
	// completion for it.
	ReadValue(entity UUID) error
	WriteValue(entity UUID, value []byte, withResponse bool) error
	SetNotify(characteristic UUID, enabled bool) error

	// Events is the single stream of asynchronous backend events.
	// Closing the channel shuts the consuming Central's loop down.
	Events() <-chan Event

	// Close releases the backend.
	Close() error
}

// Event is an asynchronous notification from the radio backend.
type Event interface{ event() }

// ServiceInfo describes a backend-reported service before wrapping.
type ServiceInfo struct {
	UUID    UUID
	Primary bool
}

// CharacteristicInfo describes a backend-reported characteristic.
type CharacteristicInfo struct {
	UUID       UUID
	Properties Property
}

// DescriptorInfo describes a backend-reported descriptor.
type DescriptorInfo struct {
	UUID UUID
}

// RestoredPeripheral describes a peripheral reattached after process
// relaunch.
type RestoredPeripheral struct {
	UUID      UUID
	Name      string
	Connected bool
}

// EvtStateChanged reports a host radio state transition.
type EvtStateChanged struct {
	State State
}

// EvtPeripheralDiscovered reports an advertising peripheral seen
// during a scan.
type EvtPeripheralDiscovered struct {
	UUID          UUID
	Name          string
	RSSI          int
	Advertisement []byte // raw advertising payload, may be nil
}

// EvtConnected reports a successful connection.
type EvtConnected struct {
	UUID UUID
}

// EvtConnectFailed reports a failed connection attempt.
type EvtConnectFailed struct {
	UUID UUID
	Err  error
}

// EvtDisconnected reports a dropped or cancelled connection.
type EvtDisconnected struct {
	UUID UUID
	Err  error // nil on clean disconnect
}

// EvtServicesDiscovered completes a service discovery request.
type EvtServicesDiscovered struct {
	Peripheral UUID
	Services   []ServiceInfo
	Err        error
}

// EvtCharacteristicsDiscovered completes a characteristic discovery
// request.
type EvtCharacteristicsDiscovered struct {
	Service         UUID
	Characteristics []CharacteristicInfo
	Err             error
}

// EvtDescriptorsDiscovered completes a descriptor discovery request.
type EvtDescriptorsDiscovered struct {
	Characteristic UUID
	Descriptors    []DescriptorInfo
	Err            error
}

// EvtValueUpdated carries a fresh value for a characteristic or
// descriptor. It serves both read completions and unsolicited
// notifications; the dispatcher tells them apart by its pending table.
type EvtValueUpdated struct {
	Entity UUID
	Value  []byte
	Err    error
}

// EvtValueWritten completes a with-response write.
type EvtValueWritten struct {
	Entity UUID
	Err    error
}

// EvtNotifyStateUpdated completes a SetNotify request.
type EvtNotifyStateUpdated struct {
	Characteristic UUID
	Enabled        bool
	Err            error
}

// EvtServicesModified reports that the peripheral changed its service
// table. The core re-discovers the affected scope on its own.
type EvtServicesModified struct {
	Peripheral UUID
	Services   []UUID // invalidated service UUIDs
}

// EvtRestored reports peripherals reattached by the platform after a
// process relaunch.
type EvtRestored struct {
	Peripherals []RestoredPeripheral
}

func (EvtStateChanged) event()              {}
func (EvtPeripheralDiscovered) event()      {}
func (EvtConnected) event()                 {}
func (EvtConnectFailed) event()             {}
func (EvtDisconnected) event()              {}
func (EvtServicesDiscovered) event()        {}
func (EvtCharacteristicsDiscovered) event() {}
func (EvtDescriptorsDiscovered) event()     {}
func (EvtValueUpdated) event()              {}
func (EvtValueWritten) event()              {}
func (EvtNotifyStateUpdated) event()        {}
func (EvtServicesModified) event()          {}
func (EvtRestored) event()                  {}
