package gatt

import (
	"bytes"
	"errors"
	"testing"
)

func TestStringTransformDecode(t *testing.T) {
	tr := StringTransform{UUID: testCharID}

	v, err := tr.Decode([]byte("Thingy"))
	if err != nil || v.(string) != "Thingy" {
		t.Errorf("Decode = (%v, %v), want (Thingy, nil)", v, err)
	}

	if _, err := tr.Decode(nil); err != ErrNoValue {
		t.Errorf("Decode(nil) = %v, want ErrNoValue", err)
	}
	if _, err := tr.Decode([]byte{}); err != ErrNoValue {
		t.Errorf("Decode(empty) = %v, want ErrNoValue", err)
	}

	var derr *DecodeError
	if _, err := tr.Decode([]byte{0xff, 0xfe}); !errors.As(err, &derr) {
		t.Errorf("Decode(bad utf8) = %v, want *DecodeError", err)
	}
}

func TestStringTransformEncode(t *testing.T) {
	tr := StringTransform{UUID: testCharID}
	b, err := tr.Encode("abc")
	if err != nil || !bytes.Equal(b, []byte("abc")) {
		t.Errorf("Encode = (%x, %v), want (616263, nil)", b, err)
	}
	var eerr *EncodeError
	if _, err := tr.Encode(42); !errors.As(err, &eerr) {
		t.Errorf("Encode(int) = %v, want *EncodeError", err)
	}
}

func TestUintTransformWidths(t *testing.T) {
	cases := []struct {
		width int
		raw   []byte
		val   uint64
	}{
		{1, []byte{0x55}, 0x55},
		{2, []byte{0x34, 0x12}, 0x1234},
		{4, []byte{0x78, 0x56, 0x34, 0x12}, 0x12345678},
	}
	for _, c := range cases {
		tr := UintTransform{UUID: testCharID, Width: c.width}
		v, err := tr.Decode(c.raw)
		if err != nil || v.(uint64) != c.val {
			t.Errorf("width %d: Decode(%x) = (%v, %v), want %#x", c.width, c.raw, v, err, c.val)
		}
		b, err := tr.Encode(c.val)
		if err != nil || !bytes.Equal(b, c.raw) {
			t.Errorf("width %d: Encode(%#x) = (%x, %v), want %x", c.width, c.val, b, err, c.raw)
		}
	}
}

func TestUintTransformErrors(t *testing.T) {
	tr := UintTransform{UUID: testCharID, Width: 2}

	if _, err := tr.Decode(nil); err != ErrNoValue {
		t.Errorf("Decode(nil) = %v, want ErrNoValue", err)
	}
	var derr *DecodeError
	if _, err := tr.Decode([]byte{1}); !errors.As(err, &derr) {
		t.Errorf("Decode(short) = %v, want *DecodeError", err)
	}
	if _, err := tr.Decode([]byte{1, 2, 3}); !errors.As(err, &derr) {
		t.Errorf("Decode(long) = %v, want *DecodeError", err)
	}

	var eerr *EncodeError
	if _, err := tr.Encode(uint64(0x10000)); !errors.As(err, &eerr) {
		t.Errorf("Encode(overflow) = %v, want *EncodeError", err)
	}
	if _, err := tr.Encode("nan"); !errors.As(err, &eerr) {
		t.Errorf("Encode(string) = %v, want *EncodeError", err)
	}
}

func TestUintTransformEncodeIsPure(t *testing.T) {
	tr := UintTransform{UUID: testCharID, Width: 2}
	b1, err1 := tr.Encode(uint64(7))
	b2, err2 := tr.Encode(uint64(7))
	if err1 != nil || err2 != nil || !bytes.Equal(b1, b2) {
		t.Errorf("Encode not deterministic: (%x, %v) vs (%x, %v)", b1, err1, b2, err2)
	}
}

func TestBytesTransformCopies(t *testing.T) {
	tr := BytesTransform{}
	in := []byte{1, 2, 3}
	v, err := tr.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := v.([]byte)
	out[0] = 0xff
	if in[0] != 1 {
		t.Error("Decode aliased its input")
	}
	if _, err := tr.Decode(nil); err != ErrNoValue {
		t.Errorf("Decode(nil) = %v, want ErrNoValue", err)
	}
}

func TestTransformRegistry(t *testing.T) {
	u := MustParseUUID("66666666-6666-6666-6666-666666666666")
	if got := TransformFor(u); got != nil {
		t.Fatalf("TransformFor(unregistered) = %v, want nil", got)
	}

	RegisterTransform(u, UintTransform{UUID: u, Width: 1})
	if _, ok := TransformFor(u).(UintTransform); !ok {
		t.Fatal("registered transform not returned")
	}

	// Registration replaces; nil removes.
	RegisterTransform(u, StringTransform{UUID: u})
	if _, ok := TransformFor(u).(StringTransform); !ok {
		t.Fatal("re-registration did not replace")
	}
	RegisterTransform(u, nil)
	if got := TransformFor(u); got != nil {
		t.Fatalf("TransformFor after removal = %v, want nil", got)
	}
}
