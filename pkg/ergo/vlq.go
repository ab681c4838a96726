package ergo

import "fmt"

// Variable-length quantity encoding used throughout the wire format:
// unsigned values are 7 bits per byte with a continuation bit,
// signed values are zig-zag mapped first.
// https://en.wikipedia.org/wiki/Variable-length_quantity

func ZigZag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func UnZigZag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// Writer accumulates wire bytes. The zero value is ready to use.
type Writer struct {
	b []byte
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Data() []byte {
	return w.b
}

func (w *Writer) Len() int {
	return len(w.b)
}

func (w *Writer) Byte(v byte) {
	w.b = append(w.b, v)
}

// Bytes appends raw bytes with no length prefix.
func (w *Writer) Bytes(p []byte) {
	w.b = append(w.b, p...)
}

func (w *Writer) UVLQ(v uint64) {
	for v >= 0x80 {
		w.b = append(w.b, byte(v)|0x80)
		v >>= 7
	}
	w.b = append(w.b, byte(v))
}

func (w *Writer) VLQ(v int64) {
	w.UVLQ(ZigZag(v))
}

// Reader consumes wire bytes with a sticky error, so a decode pass can
// run to completion and check Err once at the end.
type Reader struct {
	b   []byte
	p   int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Remaining() int {
	return len(r.b) - r.p
}

func (r *Reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *Reader) Byte() byte {
	if r.err != nil {
		return 0
	}
	if r.p >= len(r.b) {
		r.fail("unexpected end of input at %d", r.p)
		return 0
	}
	v := r.b[r.p]
	r.p += 1
	return v
}

func (r *Reader) Bytes(num int) []byte {
	if r.err != nil {
		return nil
	}
	if num < 0 || r.p+num > len(r.b) {
		r.fail("unexpected end of input at %d (want %d bytes)", r.p, num)
		return nil
	}
	p := r.p
	r.p += num
	return r.b[p : p+num]
}

// Peek returns the next byte without consuming it.
func (r *Reader) Peek() byte {
	if r.err != nil || r.p >= len(r.b) {
		return 0
	}
	return r.b[r.p]
}

func (r *Reader) UVLQ() uint64 {
	var v uint64
	var shift uint
	for {
		b := r.Byte()
		if r.err != nil {
			return 0
		}
		if shift == 63 && b > 1 {
			r.fail("VLQ value overflows 64 bits at %d", r.p)
			return 0
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v
		}
		shift += 7
		if shift > 63 {
			r.fail("VLQ value overflows 64 bits at %d", r.p)
			return 0
		}
	}
}

func (r *Reader) VLQ() int64 {
	return UnZigZag(r.UVLQ())
}

// Length reads an unsigned count and bounds it by the remaining input,
// which keeps a corrupt length prefix from causing a huge allocation.
func (r *Reader) Length() int {
	n := r.UVLQ()
	if r.err != nil {
		return 0
	}
	if n > uint64(r.Remaining()) {
		r.fail("length %d exceeds remaining input %d", n, r.Remaining())
		return 0
	}
	return int(n)
}
