package ergo

import (
	"bytes"
	"testing"
)

// hx2b decodes test vectors, panicking on bad fixtures.
func hx2b(s string) []byte {
	b, err := HexDecode(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestUVLQVectors(t *testing.T) {
	vectors := []struct {
		val uint64
		hex string
	}{
		{0, "00"},
		{1, "01"},
		{127, "7f"},
		{128, "8001"},
		{300, "ac02"},
		{16383, "ff7f"},
		{16384, "808001"},
		{0xffffffffffffffff, "ffffffffffffffffff01"},
	}
	for _, v := range vectors {
		w := NewWriter()
		w.UVLQ(v.val)
		if got := HexEncode(w.Data()); got != v.hex {
			t.Errorf("UVLQ(%d): got %s, want %s", v.val, got, v.hex)
		}
		r := NewReader(hx2b(v.hex))
		got := r.UVLQ()
		if r.Err() != nil {
			t.Errorf("UVLQ decode %s: %v", v.hex, r.Err())
		}
		if got != v.val {
			t.Errorf("UVLQ decode %s: got %d, want %d", v.hex, got, v.val)
		}
		if r.Remaining() != 0 {
			t.Errorf("UVLQ decode %s: %d bytes left over", v.hex, r.Remaining())
		}
	}
}

func TestZigZag(t *testing.T) {
	vectors := []struct {
		val int64
		enc uint64
	}{
		{0, 0},
		{-1, 1},
		{1, 2},
		{-2, 3},
		{2, 4},
		{2147483647, 4294967294},
		{-2147483648, 4294967295},
	}
	for _, v := range vectors {
		if got := ZigZag(v.val); got != v.enc {
			t.Errorf("ZigZag(%d): got %d, want %d", v.val, got, v.enc)
		}
		if got := UnZigZag(v.enc); got != v.val {
			t.Errorf("UnZigZag(%d): got %d, want %d", v.enc, got, v.val)
		}
	}
}

func TestVLQRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, 1_000_000, -1_000_000, 5_000_000_000, -9223372036854775808, 9223372036854775807}
	for _, val := range values {
		w := NewWriter()
		w.VLQ(val)
		r := NewReader(w.Data())
		got := r.VLQ()
		if r.Err() != nil {
			t.Errorf("VLQ(%d): decode error %v", val, r.Err())
		}
		if got != val {
			t.Errorf("VLQ(%d): round trip gave %d", val, got)
		}
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader(hx2b("80")) // continuation bit with no next byte
	r.UVLQ()
	if r.Err() == nil {
		t.Errorf("expected error decoding truncated VLQ")
	}

	r = NewReader(hx2b("0102"))
	r.Bytes(3)
	if r.Err() == nil {
		t.Errorf("expected error reading past the end")
	}
}

func TestReaderOverflow(t *testing.T) {
	// 11 continuation bytes cannot fit in uint64.
	r := NewReader(hx2b("ffffffffffffffffffff01"))
	r.UVLQ()
	if r.Err() == nil {
		t.Errorf("expected overflow error")
	}
}

func TestReaderLengthGuard(t *testing.T) {
	// claims 200 bytes follow, but only 2 do.
	r := NewReader(hx2b("c8010102"))
	r.Length()
	if r.Err() == nil {
		t.Errorf("expected length guard error")
	}
}

func TestWriterBytes(t *testing.T) {
	w := NewWriter()
	w.Byte(0x01)
	w.Bytes([]byte{0x02, 0x03})
	w.UVLQ(128)
	if !bytes.Equal(w.Data(), hx2b("0102038001")) {
		t.Errorf("unexpected writer output: %s", HexEncode(w.Data()))
	}
}
