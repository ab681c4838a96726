package ergo

import (
	"encoding/json"
	"testing"
)

func TestConstantVectors(t *testing.T) {
	vectors := []struct {
		c   Constant
		hex string
	}{
		{IntConstant(0), "0400"},
		{IntConstant(1), "0402"},
		{IntConstant(-3), "0405"},
		{LongConstant(0), "0500"},
		{LongConstant(5), "050a"},
		{LongConstant(-1), "0501"},
		{LongConstant(1_000_000), "0580897a"},
		{ByteCollConstant(nil), "0e00"},
		{ByteCollConstant([]byte{0xde, 0xad}), "0e02dead"},
	}
	for _, v := range vectors {
		if got := v.c.Hex(); got != v.hex {
			t.Errorf("constant: got %s, want %s", got, v.hex)
		}
		parsed, err := DecodeConstant(hx2b(v.hex))
		if err != nil {
			t.Errorf("DecodeConstant(%s): %v", v.hex, err)
			continue
		}
		if parsed.Hex() != v.hex {
			t.Errorf("DecodeConstant(%s): re-encoded as %s", v.hex, parsed.Hex())
		}
	}
}

func TestConstantAccessors(t *testing.T) {
	if v, err := IntConstant(-42).Int(); err != nil || v != -42 {
		t.Errorf("Int accessor: %v, %v", v, err)
	}
	if v, err := LongConstant(5_000_000_000).Long(); err != nil || v != 5_000_000_000 {
		t.Errorf("Long accessor: %v, %v", v, err)
	}
	if b, err := ByteCollConstant([]byte("USD")).ByteColl(); err != nil || string(b) != "USD" {
		t.Errorf("ByteColl accessor: %v, %v", b, err)
	}
	// wrong-type access must fail, not coerce
	if _, err := LongConstant(1).Int(); err == nil {
		t.Errorf("expected type mismatch error reading SLong as SInt")
	}
	if _, err := IntConstant(1).ByteColl(); err == nil {
		t.Errorf("expected type mismatch error reading SInt as Coll[Byte]")
	}
}

func TestGroupElementConstant(t *testing.T) {
	point := hx2b("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	c, err := GroupElementConstant(point)
	if err != nil {
		t.Fatalf("GroupElementConstant: %v", err)
	}
	if c.Type() != TypeGroupElement {
		t.Errorf("wrong type: %v", c.Type())
	}
	got, err := c.GroupElement()
	if err != nil || HexEncode(got) != HexEncode(point) {
		t.Errorf("GroupElement accessor: %x, %v", got, err)
	}
	// not a curve point
	bad := append([]byte{0x02}, bytes32(0xff)...)
	if _, err := GroupElementConstant(bad); err == nil {
		t.Errorf("expected error for a non-point")
	}
}

func bytes32(fill byte) []byte {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestDecodeConstantRejectsJunk(t *testing.T) {
	if _, err := DecodeConstant(hx2b("ff00")); err == nil {
		t.Errorf("expected error for unknown type code")
	}
	if _, err := DecodeConstant(hx2b("040200")); err == nil {
		t.Errorf("expected error for trailing bytes")
	}
	if _, err := DecodeConstant(hx2b("0e05dead")); err == nil {
		t.Errorf("expected error for truncated collection")
	}
}

func TestRegistersDense(t *testing.T) {
	ok := Registers{
		R4: LongConstant(1),
		R5: ByteCollConstant([]byte("x")),
	}
	dense, err := ok.Dense()
	if err != nil || len(dense) != 2 {
		t.Errorf("Dense: %v, %v", dense, err)
	}
	if dense[0].Hex() != LongConstant(1).Hex() {
		t.Errorf("Dense order wrong: slot 0 is %s", dense[0].Hex())
	}

	gap := Registers{
		R4: LongConstant(1),
		R6: LongConstant(2),
	}
	if _, err := gap.Dense(); err == nil {
		t.Errorf("expected error for a register gap at R5")
	}

	if dense, err := (Registers{}).Dense(); err != nil || dense != nil {
		t.Errorf("empty registers: %v, %v", dense, err)
	}
}

func TestRegistersJSON(t *testing.T) {
	regs := Registers{
		R4: IntConstant(7),
		R5: ByteCollConstant([]byte("hi")),
	}
	raw, err := json.Marshal(regs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"R4":"040e","R5":"0e026869"}`
	if string(raw) != want {
		t.Errorf("marshal: got %s, want %s", raw, want)
	}
	var back Registers
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back[R4].Hex() != regs[R4].Hex() || back[R5].Hex() != regs[R5].Hex() {
		t.Errorf("round trip mismatch: %v", back)
	}
}
