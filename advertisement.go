package gatt

import (
	"encoding/binary"
	"errors"

	guuid "github.com/google/uuid"
)

// advertising data field types
const (
	typeFlags            = 0x01 // Flags
	typeSomeUUID16       = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	typeAllUUID16        = 0x03 // Complete List of 16-bit Service Class UUIDs
	typeSomeUUID32       = 0x04 // Incomplete List of 32-bit Service Class UUIDs
	typeAllUUID32        = 0x05 // Complete List of 32-bit Service Class UUIDs
	typeSomeUUID128      = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	typeAllUUID128       = 0x07 // Complete List of 128-bit Service Class UUIDs
	typeShortName        = 0x08 // Shortened Local Name
	typeCompleteName     = 0x09 // Complete Local Name
	typeTxPower          = 0x0A // Tx Power Level
	typeServiceSol16     = 0x14 // List of 16-bit Service Solicitation UUIDs
	typeServiceSol128    = 0x15 // List of 128-bit Service Solicitation UUIDs
	typeServiceData16    = 0x16 // Service Data - 16-bit UUID
	typeServiceSol32     = 0x1F // List of 32-bit Service Solicitation UUIDs
	typeServiceData32    = 0x20 // Service Data - 32-bit UUID
	typeServiceData128   = 0x21 // Service Data - 128-bit UUID
	typeManufacturerData = 0xFF // Manufacturer Specific Data
)

// ErrInvalidAdvertisement is returned by Unmarshall for a truncated or
// malformed advertising payload.
var ErrInvalidAdvertisement = errors.New("gatt: invalid advertise data")

// An Advertisement is the parsed advertising payload delivered with a
// peripheral discovery.
type Advertisement struct {
	LocalName        string
	ManufacturerData []byte
	ServiceData      []byte
	Services         []UUID
	TxPowerLevel     int
	Connectable      bool
	SolicitedService []UUID
}

// Unmarshall parses a raw advertising payload. Unknown field types are
// skipped; a structurally broken payload returns
// ErrInvalidAdvertisement with whatever parsed so far retained.
func (a *Advertisement) Unmarshall(b []byte) error {
	for len(b) > 0 {
		if len(b) < 2 {
			return ErrInvalidAdvertisement
		}
		l, t := b[0], b[1]
		if l == 0 || len(b) < int(1+l) {
			return ErrInvalidAdvertisement
		}
		d := b[2 : 1+l]
		switch t {
		case typeFlags:
			if len(d) > 0 {
				a.Connectable = d[0]&0x03 != 0
			}
		case typeSomeUUID16, typeAllUUID16:
			a.Services = appendUUIDList(a.Services, d, 2)
		case typeSomeUUID32, typeAllUUID32:
			a.Services = appendUUIDList(a.Services, d, 4)
		case typeSomeUUID128, typeAllUUID128:
			a.Services = appendUUIDList(a.Services, d, 16)
		case typeShortName, typeCompleteName:
			a.LocalName = string(d)
		case typeTxPower:
			if len(d) > 0 {
				a.TxPowerLevel = int(int8(d[0]))
			}
		case typeServiceSol16:
			a.SolicitedService = appendUUIDList(a.SolicitedService, d, 2)
		case typeServiceSol32:
			a.SolicitedService = appendUUIDList(a.SolicitedService, d, 4)
		case typeServiceSol128:
			a.SolicitedService = appendUUIDList(a.SolicitedService, d, 16)
		case typeServiceData16, typeServiceData32, typeServiceData128:
			a.ServiceData = make([]byte, len(d))
			copy(a.ServiceData, d)
		case typeManufacturerData:
			a.ManufacturerData = make([]byte, len(d))
			copy(a.ManufacturerData, d)
		}
		b = b[1+l:]
	}
	return nil
}

// appendUUIDList decodes a little-endian packed UUID list of the given
// element width.
func appendUUIDList(u []UUID, d []byte, w int) []UUID {
	for len(d) >= w {
		u = append(u, uuidFromLE(d[:w]))
		d = d[w:]
	}
	return u
}

// uuidFromLE converts a little-endian on-air UUID of 2, 4 or 16 bytes
// to its canonical 128-bit form.
func uuidFromLE(d []byte) UUID {
	switch len(d) {
	case 2:
		return UUID16(binary.LittleEndian.Uint16(d))
	case 4:
		var u guuid.UUID
		copy(u[:], bluetoothBaseUUID)
		binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(d))
		return UUID{u: u}
	case 16:
		var u guuid.UUID
		for i := 0; i < 16; i++ {
			u[i] = d[15-i]
		}
		return UUID{u: u}
	}
	return UUID{}
}
