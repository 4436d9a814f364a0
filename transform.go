package gatt

import (
	"encoding/binary"
	"fmt"
	"sync"
	"unicode/utf8"
)

// A ValueTransform converts between an entity's raw byte value and a
// typed domain value.
//
// Decode must return ErrNoValue for a nil or empty buffer, and a
// *DecodeError for bytes that are present but malformed; callers rely
// on the distinction between "no value yet" and "value did not parse".
// Encode must be pure and deterministic.
type ValueTransform interface {
	Decode(b []byte) (interface{}, error)
	Encode(v interface{}) ([]byte, error)
}

// transform registry, keyed by characteristic/descriptor UUID. Exactly
// one transform applies per entity; read and write paths pipe raw bytes
// through it.
var (
	transformMu  sync.RWMutex
	transformTab = map[UUID]ValueTransform{}
)

// RegisterTransform associates a value transform with an entity UUID.
// Subsequent reads of that entity decode through t, and typed writes
// encode through it. Registering nil removes the association.
func RegisterTransform(u UUID, t ValueTransform) {
	transformMu.Lock()
	defer transformMu.Unlock()
	if t == nil {
		delete(transformTab, u)
		return
	}
	transformTab[u] = t
}

// TransformFor returns the transform registered for u, or nil.
func TransformFor(u UUID) ValueTransform {
	transformMu.RLock()
	defer transformMu.RUnlock()
	return transformTab[u]
}

// StringTransform decodes UTF-8 string values, such as the Device Name
// characteristic.
type StringTransform struct {
	UUID UUID
}

func (t StringTransform) Decode(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, ErrNoValue
	}
	if !utf8.Valid(b) {
		return nil, &DecodeError{UUID: t.UUID, Reason: "invalid UTF-8"}
	}
	return string(b), nil
}

func (t StringTransform) Encode(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &EncodeError{UUID: t.UUID, Reason: fmt.Sprintf("want string, got %T", v)}
	}
	return []byte(s), nil
}

// UintTransform decodes little-endian unsigned integers of a fixed
// width (1, 2 or 4 bytes), the common encoding of numeric GATT
// characteristics such as Battery Level.
type UintTransform struct {
	UUID  UUID
	Width int
}

func (t UintTransform) Decode(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, ErrNoValue
	}
	if len(b) != t.Width {
		return nil, &DecodeError{
			UUID:   t.UUID,
			Reason: fmt.Sprintf("want %d bytes, got %d", t.Width, len(b)),
		}
	}
	switch t.Width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	}
	return nil, &DecodeError{UUID: t.UUID, Reason: fmt.Sprintf("unsupported width %d", t.Width)}
}

func (t UintTransform) Encode(v interface{}) ([]byte, error) {
	n, ok := v.(uint64)
	if !ok {
		return nil, &EncodeError{UUID: t.UUID, Reason: fmt.Sprintf("want uint64, got %T", v)}
	}
	switch t.Width {
	case 1:
		if n > 0xff {
			return nil, &EncodeError{UUID: t.UUID, Reason: "value out of range"}
		}
		return []byte{byte(n)}, nil
	case 2:
		if n > 0xffff {
			return nil, &EncodeError{UUID: t.UUID, Reason: "value out of range"}
		}
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(n))
		return b, nil
	case 4:
		if n > 0xffffffff {
			return nil, &EncodeError{UUID: t.UUID, Reason: "value out of range"}
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		return b, nil
	}
	return nil, &EncodeError{UUID: t.UUID, Reason: fmt.Sprintf("unsupported width %d", t.Width)}
}

// BytesTransform passes raw bytes through unchanged. Decode still
// reports ErrNoValue on an empty buffer so callers keep the "no value
// yet" signal.
type BytesTransform struct{}

func (BytesTransform) Decode(b []byte) (interface{}, error) {
	if len(b) == 0 {
		return nil, ErrNoValue
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (BytesTransform) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, &EncodeError{Reason: fmt.Sprintf("want []byte, got %T", v)}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
