package gatt

import (
	"bytes"
	"errors"
	"fmt"

	guuid "github.com/google/uuid"
)

// ErrMalformedUUID is returned by ParseUUID when the input is not a
// canonical UUID text form.
var ErrMalformedUUID = errors.New("gatt: malformed UUID")

// A UUID is a 128-bit Bluetooth UUID. It identifies services,
// characteristics and descriptors, and is the sole identity key for
// entity lookup: two entities with equal UUIDs within the same parent
// scope are the same entity.
//
// UUID is an immutable value type and is usable as a map key.
type UUID struct {
	u guuid.UUID
}

// ParseUUID parses a canonical UUID string, such as
// "34da3ad1-7110-41a1-b1ef-4430f509cde7". Parsing is case-insensitive.
func ParseUUID(s string) (UUID, error) {
	if len(s) != 36 {
		return UUID{}, ErrMalformedUUID
	}
	u, err := guuid.Parse(s)
	if err != nil {
		return UUID{}, ErrMalformedUUID
	}
	return UUID{u: u}, nil
}

// MustParseUUID parses a canonical UUID string, or panics.
// Use only for hard-coded, known-good UUIDs.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("gatt: MustParseUUID(%q): %v", s, err))
	}
	return u
}

// UUID16 converts a 16-bit registered UUID (such as 0x180F, Battery
// Service) to its 128-bit form using the Bluetooth base UUID.
func UUID16(i uint16) UUID {
	var u guuid.UUID
	copy(u[:], bluetoothBaseUUID)
	u[2] = byte(i >> 8)
	u[3] = byte(i)
	return UUID{u: u}
}

// 00000000-0000-1000-8000-00805f9b34fb
var bluetoothBaseUUID = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
}

// String renders the UUID in canonical lowercase text form.
// For every valid canonical string s, ParseUUID(s).String() round-trips
// up to case.
func (u UUID) String() string { return u.u.String() }

// Equal reports whether two UUIDs are the same.
func (u UUID) Equal(v UUID) bool { return u.u == v.u }

// Compare returns -1, 0 or 1 comparing u and v bytewise, giving UUIDs a
// total order for deterministic sorting.
func (u UUID) Compare(v UUID) int { return bytes.Compare(u.u[:], v.u[:]) }

// Less reports whether u sorts before v.
func (u UUID) Less(v UUID) bool { return u.Compare(v) < 0 }

// Bytes returns the big-endian 16-byte representation.
func (u UUID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, u.u[:])
	return b
}

// containsUUID reports whether uu contains u. A nil slice matches
// nothing here; "nil means all" is decided by the callers.
func containsUUID(uu []UUID, u UUID) bool {
	for _, v := range uu {
		if v.Equal(u) {
			return true
		}
	}
	return false
}
