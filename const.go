package gatt

// This file includes constants from the BLE spec.

var (
	// Well-known GATT service and attribute UUIDs.
	AttrGAPUUID  = UUID16(0x1800)
	AttrGATTUUID = UUID16(0x1801)

	// Well-known descriptor UUIDs.
	AttrClientCharacteristicConfigUUID = UUID16(0x2902)
	AttrServerCharacteristicConfigUUID = UUID16(0x2903)
	AttrCharacteristicUserDescription  = UUID16(0x2901)

	// Well-known characteristic UUIDs.
	AttrDeviceNameUUID   = UUID16(0x2A00)
	AttrAppearanceUUID   = UUID16(0x2A01)
	AttrBatteryLevelUUID = UUID16(0x2A19)
)

// State describes the host radio state.
type State int

const (
	StateUnknown      State = 0
	StateResetting    State = 1
	StateUnsupported  State = 2
	StateUnauthorized State = 3
	StatePoweredOff   State = 4
	StatePoweredOn    State = 5
)

func (s State) String() string {
	str := []string{
		"Unknown",
		"Resetting",
		"Unsupported",
		"Unauthorized",
		"PoweredOff",
		"PoweredOn",
	}
	if int(s) < 0 || int(s) >= len(str) {
		return "Invalid"
	}
	return str[int(s)]
}

// ConnState describes the connection state of a single peripheral.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnDisconnecting
)

func (s ConnState) String() string {
	str := []string{
		"Disconnected",
		"Connecting",
		"Connected",
		"Disconnecting",
	}
	if int(s) < 0 || int(s) >= len(str) {
		return "Invalid"
	}
	return str[int(s)]
}

// Property flags of a characteristic.
// Do not re-order the bit flags below;
// they are organized to match the BLE spec.
type Property int

const (
	CharBroadcast Property = 1 << iota // the characteristic value may be broadcast
	CharRead                           // the characteristic may be read
	CharWriteNR                        // the characteristic may be written to, with no reply
	CharWrite                          // the characteristic may be written to, with a reply
	CharNotify                         // the characteristic supports notifications
	CharIndicate                       // the characteristic supports indications
	CharSignedWrite                    // the characteristic supports signed writes
	CharExtended                       // the characteristic has extended properties
)

// operation kinds tracked by the dispatcher, one pending slot each
// per entity.
type opKind int

const (
	opRead opKind = iota
	opWrite
	opNotify
)

func (k opKind) String() string {
	switch k {
	case opRead:
		return "read"
	case opWrite:
		return "write"
	case opNotify:
		return "setNotify"
	}
	return "invalid"
}
