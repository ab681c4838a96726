package ergo

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func testBoxID(fill byte) BoxID {
	return BoxID(HexEncode(bytes32(fill)))
}

func testTokenID(fill byte) TokenID {
	return TokenID(HexEncode(bytes32(fill)))
}

func testTx(t *testing.T) *UnsignedTransaction {
	t.Helper()
	p2pk, err := P2PKTree(testPubKey)
	if err != nil {
		t.Fatalf("P2PKTree: %v", err)
	}
	return &UnsignedTransaction{
		Inputs: []UnsignedInput{
			{BoxID: testBoxID(0x01)},
			{BoxID: testBoxID(0x02), Extension: ContextExtension{0: IntConstant(7)}},
		},
		DataInputs: []DataInput{{BoxID: testBoxID(0x0a)}},
		Outputs: []BoxCandidate{
			{
				Value:          1_000_000_000,
				ErgoTree:       p2pk,
				CreationHeight: 1_150_000,
				Assets: []TokenAmount{
					{TokenID: testTokenID(0xaa), Amount: 42},
					{TokenID: testTokenID(0xbb), Amount: 7},
				},
				Registers: Registers{R4: LongConstant(99)},
			},
			{
				Value:          RecommendedMinFee,
				ErgoTree:       MinerFeeTree,
				CreationHeight: 1_150_000,
			},
			{
				Value:          3_898_900_000,
				ErgoTree:       p2pk,
				CreationHeight: 1_150_000,
				Assets: []TokenAmount{
					{TokenID: testTokenID(0xbb), Amount: 3},
				},
			},
		},
	}
}

func TestSerializeDeterministic(t *testing.T) {
	tx := testTx(t)
	a, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	b, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("same document serialized differently")
	}
}

func TestDistinctTokenTable(t *testing.T) {
	tx := testTx(t)
	ids := tx.DistinctTokenIDs()
	if len(ids) != 2 {
		t.Fatalf("want 2 distinct tokens, got %d", len(ids))
	}
	// first-appearance order: 0xaa then 0xbb, even though 0xbb repeats later
	if ids[0] != testTokenID(0xaa) || ids[1] != testTokenID(0xbb) {
		t.Errorf("wrong table order: %v", ids)
	}
}

func TestTxIDChangesWithContent(t *testing.T) {
	tx := testTx(t)
	id1, err := tx.TxID()
	if err != nil {
		t.Fatalf("TxID: %v", err)
	}
	if len(id1) != 64 {
		t.Errorf("tx id should be 32 bytes hex: %q", id1)
	}
	tx.Outputs[0].Registers[R4] = LongConstant(100)
	id2, err := tx.TxID()
	if err != nil {
		t.Fatalf("TxID: %v", err)
	}
	if id1 == id2 {
		t.Errorf("register change did not change the tx id")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tx := testTx(t)
	raw, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	back, err := DecodeUnsignedTransaction(raw)
	if err != nil {
		t.Fatalf("DecodeUnsignedTransaction: %v", err)
	}
	raw2, err := back.Serialize()
	if err != nil {
		t.Fatalf("re-Serialize: %v", err)
	}
	if !bytes.Equal(raw, raw2) {
		t.Errorf("decode/encode is not byte-stable")
	}
	if len(back.Inputs) != 2 || len(back.DataInputs) != 1 || len(back.Outputs) != 3 {
		t.Errorf("wrong shape after decode: %d/%d/%d",
			len(back.Inputs), len(back.DataInputs), len(back.Outputs))
	}
	if back.Inputs[1].Extension[0].Hex() != IntConstant(7).Hex() {
		t.Errorf("context extension lost in round trip")
	}
	if back.Outputs[2].Assets[0].TokenID != testTokenID(0xbb) {
		t.Errorf("token table reference resolved wrongly")
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	tx := testTx(t)
	raw, _ := tx.Serialize()
	if _, err := DecodeUnsignedTransaction(append(raw, 0x00)); err == nil {
		t.Errorf("expected error for trailing bytes")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	tx := testTx(t)
	raw, _ := tx.Serialize()
	if _, err := DecodeUnsignedTransaction(raw[:len(raw)-5]); err == nil {
		t.Errorf("expected error for truncated input")
	}
}

func TestOutputBoxIDs(t *testing.T) {
	tx := testTx(t)
	id0, err := tx.OutputBoxID(0)
	if err != nil {
		t.Fatalf("OutputBoxID(0): %v", err)
	}
	id1, err := tx.OutputBoxID(1)
	if err != nil {
		t.Fatalf("OutputBoxID(1): %v", err)
	}
	if id0 == id1 {
		t.Errorf("different outputs derived the same box id")
	}
	if _, err := tx.OutputBoxID(9); err == nil {
		t.Errorf("expected range error")
	}
}

func TestBareKeyIsNotAGuardScript(t *testing.T) {
	// a bare public key in the tree slot is not a valid guard script:
	// it neither classifies as P2PK nor delimits on decode
	if kind, _ := ClassifyTree(testPubKey, Mainnet); kind == TreeTypeP2PK {
		t.Errorf("bare key classified as a valid P2PK guard")
	}
	tx := testTx(t)
	tx.Outputs[0].ErgoTree = testPubKey
	raw, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := DecodeUnsignedTransaction(raw); err == nil {
		t.Errorf("expected decode to reject a bare-key tree")
	}
}

func TestTxJSON(t *testing.T) {
	tx := testTx(t)
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"additionalRegisters":{"R4":`) {
		t.Errorf("registers not in node JSON form: %s", raw)
	}
	var back UnsignedTransaction
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rawAgain, err := back.Serialize()
	if err != nil {
		t.Fatalf("Serialize after JSON round trip: %v", err)
	}
	orig, _ := tx.Serialize()
	if !bytes.Equal(orig, rawAgain) {
		t.Errorf("JSON round trip changed the canonical bytes")
	}
}
