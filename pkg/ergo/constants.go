package ergo

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Register value type codes, a subset of the ledger's serialization
// types covering what contracts in the wild actually store.
type TypeCode byte

const (
	TypeInt          TypeCode = 0x04 // 32-bit signed, zig-zag VLQ
	TypeLong         TypeCode = 0x05 // 64-bit signed, zig-zag VLQ
	TypeGroupElement TypeCode = 0x07 // 33-byte compressed curve point
	TypeCollByte     TypeCode = 0x0e // length-prefixed byte collection
)

func (t TypeCode) String() string {
	switch t {
	case TypeInt:
		return "SInt"
	case TypeLong:
		return "SLong"
	case TypeGroupElement:
		return "SGroupElement"
	case TypeCollByte:
		return "Coll[Byte]"
	}
	return fmt.Sprintf("type(0x%02x)", byte(t))
}

// Constant is a register or context-extension value in canonical wire
// form: one type tag byte followed by the VLQ-encoded payload. It is
// kept serialized so identical inputs always re-encode byte-identical.
type Constant struct {
	raw []byte
}

func IntConstant(v int32) Constant {
	w := NewWriter()
	w.Byte(byte(TypeInt))
	w.VLQ(int64(v))
	return Constant{raw: w.Data()}
}

func LongConstant(v int64) Constant {
	w := NewWriter()
	w.Byte(byte(TypeLong))
	w.VLQ(v)
	return Constant{raw: w.Data()}
}

func ByteCollConstant(b []byte) Constant {
	w := NewWriter()
	w.Byte(byte(TypeCollByte))
	w.UVLQ(uint64(len(b)))
	w.Bytes(b)
	return Constant{raw: w.Data()}
}

func GroupElementConstant(point []byte) (Constant, error) {
	if err := ValidatePubKey(point); err != nil {
		return Constant{}, err
	}
	w := NewWriter()
	w.Byte(byte(TypeGroupElement))
	w.Bytes(point)
	return Constant{raw: w.Data()}, nil
}

func (c Constant) IsZero() bool {
	return len(c.raw) == 0
}

func (c Constant) Type() TypeCode {
	if c.IsZero() {
		return 0
	}
	return TypeCode(c.raw[0])
}

// Bytes returns the canonical encoding (type tag + payload).
func (c Constant) Bytes() []byte {
	return c.raw
}

func (c Constant) Hex() string {
	return HexEncode(c.raw)
}

func (c Constant) Encode(w *Writer) {
	w.Bytes(c.raw)
}

func (c Constant) Int() (int32, error) {
	if c.Type() != TypeInt {
		return 0, fmt.Errorf("constant is %v, not SInt", c.Type())
	}
	r := NewReader(c.raw[1:])
	v := r.VLQ()
	if r.Err() != nil {
		return 0, r.Err()
	}
	return int32(v), nil
}

func (c Constant) Long() (int64, error) {
	if c.Type() != TypeLong {
		return 0, fmt.Errorf("constant is %v, not SLong", c.Type())
	}
	r := NewReader(c.raw[1:])
	v := r.VLQ()
	if r.Err() != nil {
		return 0, r.Err()
	}
	return v, nil
}

func (c Constant) ByteColl() ([]byte, error) {
	if c.Type() != TypeCollByte {
		return nil, fmt.Errorf("constant is %v, not Coll[Byte]", c.Type())
	}
	r := NewReader(c.raw[1:])
	b := r.Bytes(r.Length())
	if r.Err() != nil {
		return nil, r.Err()
	}
	return b, nil
}

func (c Constant) GroupElement() ([]byte, error) {
	if c.Type() != TypeGroupElement {
		return nil, fmt.Errorf("constant is %v, not SGroupElement", c.Type())
	}
	if len(c.raw) != 1+PubKeyLen {
		return nil, fmt.Errorf("SGroupElement constant has %d payload bytes, want %d", len(c.raw)-1, PubKeyLen)
	}
	return c.raw[1:], nil
}

// readConstant consumes one typed constant from the reader.
func readConstant(r *Reader) Constant {
	start := r.p
	t := TypeCode(r.Byte())
	switch t {
	case TypeInt, TypeLong:
		r.VLQ()
	case TypeGroupElement:
		r.Bytes(PubKeyLen)
	case TypeCollByte:
		r.Bytes(r.Length())
	default:
		r.fail("unsupported constant type 0x%02x at %d", byte(t), start)
	}
	if r.Err() != nil {
		return Constant{}
	}
	return Constant{raw: r.b[start:r.p]}
}

// DecodeConstant parses a single constant and requires it to consume
// the whole input.
func DecodeConstant(b []byte) (Constant, error) {
	r := NewReader(b)
	c := readConstant(r)
	if r.Err() != nil {
		return Constant{}, r.Err()
	}
	if r.Remaining() != 0 {
		return Constant{}, fmt.Errorf("%d trailing bytes after constant", r.Remaining())
	}
	return c, nil
}

func (c Constant) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.Hex() + `"`), nil
}

func (c *Constant) UnmarshalJSON(item []byte) error {
	var h HexBytes
	if err := h.UnmarshalJSON(item); err != nil {
		return err
	}
	parsed, err := DecodeConstant(h)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RegisterID selects a non-mandatory register slot. R0-R3 hold the
// box's own value, guard script, tokens and creation info and are not
// directly assignable.
type RegisterID byte

const (
	R4 RegisterID = 4
	R5 RegisterID = 5
	R6 RegisterID = 6
	R7 RegisterID = 7
	R8 RegisterID = 8
	R9 RegisterID = 9
)

func (r RegisterID) String() string {
	return fmt.Sprintf("R%d", byte(r))
}

// ParseRegisterID parses the node API register key form ("R4".."R9").
func ParseRegisterID(s string) (RegisterID, error) {
	if len(s) == 2 && s[0] == 'R' && s[1] >= '4' && s[1] <= '9' {
		return RegisterID(s[1] - '0'), nil
	}
	return 0, fmt.Errorf("invalid register id %q", s)
}

// Registers holds the assignable register slots of a box.
type Registers map[RegisterID]Constant

// Dense returns register values in slot order and verifies the slots
// are filled contiguously from R4: the wire format stores registers as
// a plain list, so a gap would shift every later slot.
func (regs Registers) Dense() ([]Constant, error) {
	if len(regs) == 0 {
		return nil, nil
	}
	if len(regs) > 6 {
		return nil, fmt.Errorf("too many registers: %d assigned, slots run R4-R9", len(regs))
	}
	out := make([]Constant, 0, len(regs))
	for i := 0; i < len(regs); i++ {
		id := R4 + RegisterID(i)
		c, ok := regs[id]
		if !ok {
			return nil, fmt.Errorf("registers are not dense: %d assigned but %v is empty", len(regs), id)
		}
		out = append(out, c)
	}
	return out, nil
}

func (regs Registers) MarshalJSON() ([]byte, error) {
	ids := make([]RegisterID, 0, len(regs))
	for id := range regs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	buf := []byte{'{'}
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '"')
		buf = append(buf, id.String()...)
		buf = append(buf, '"', ':', '"')
		buf = append(buf, regs[id].Hex()...)
		buf = append(buf, '"')
	}
	return append(buf, '}'), nil
}

func (regs *Registers) UnmarshalJSON(item []byte) error {
	raw := map[string]Constant{}
	if err := json.Unmarshal(item, &raw); err != nil {
		return err
	}
	out := Registers{}
	for key, c := range raw {
		id, err := ParseRegisterID(key)
		if err != nil {
			return err
		}
		out[id] = c
	}
	*regs = out
	return nil
}
