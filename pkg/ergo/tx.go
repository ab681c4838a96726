package ergo

import (
	"encoding/json"
	"fmt"
	"sort"
)

// TxID is the hex form of a transaction's 32-byte id: the blake2b hash
// of the unsigned wire bytes. Proofs are excluded from the id, so it
// is known before the transaction is signed.
type TxID string

// ContextExtension carries per-input values a contract reads at
// validation time, keyed by slot.
type ContextExtension map[uint8]Constant

func (ext ContextExtension) encode(w *Writer) {
	keys := make([]int, 0, len(ext))
	for k := range ext {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	w.UVLQ(uint64(len(keys)))
	for _, k := range keys {
		w.Byte(byte(k))
		ext[uint8(k)].Encode(w)
	}
}

func readContextExtension(r *Reader) ContextExtension {
	num := r.Length()
	if num == 0 {
		return nil
	}
	ext := ContextExtension{}
	for i := 0; i < num; i++ {
		key := r.Byte()
		c := readConstant(r)
		if r.err != nil {
			return nil
		}
		ext[key] = c
	}
	return ext
}

func (ext ContextExtension) MarshalJSON() ([]byte, error) {
	out := map[string]Constant{}
	for k, c := range ext {
		out[fmt.Sprintf("%d", k)] = c
	}
	return json.Marshal(out)
}

func (ext *ContextExtension) UnmarshalJSON(item []byte) error {
	raw := map[string]Constant{}
	if err := json.Unmarshal(item, &raw); err != nil {
		return err
	}
	out := ContextExtension{}
	for key, c := range raw {
		var slot uint8
		if _, err := fmt.Sscanf(key, "%d", &slot); err != nil {
			return fmt.Errorf("invalid extension slot %q", key)
		}
		out[slot] = c
	}
	*ext = out
	return nil
}

// UnsignedInput references a box to spend. The proof slot stays empty
// until an external signer fills it.
type UnsignedInput struct {
	BoxID     BoxID            `json:"boxId"`
	Extension ContextExtension `json:"extension"`
}

// DataInput is a box the contracts may read but that is not spent.
type DataInput struct {
	BoxID BoxID `json:"boxId"`
}

// UnsignedTransaction is the canonical transaction document handed to
// signers. Input, data-input and output order is significant and must
// survive serialization unchanged.
type UnsignedTransaction struct {
	Inputs     []UnsignedInput `json:"inputs"`
	DataInputs []DataInput     `json:"dataInputs"`
	Outputs    []BoxCandidate  `json:"outputs"`
}

// DistinctTokenIDs returns the token ids appearing in outputs, in
// first-appearance order. The wire format stores this table once and
// has outputs reference tokens by index.
func (tx *UnsignedTransaction) DistinctTokenIDs() []TokenID {
	var ids []TokenID
	seen := map[TokenID]bool{}
	for _, out := range tx.Outputs {
		for _, a := range out.Assets {
			if !seen[a.TokenID] {
				seen[a.TokenID] = true
				ids = append(ids, a.TokenID)
			}
		}
	}
	return ids
}

// Serialize produces the canonical unsigned wire bytes: the exact
// bytes a signer commits to and the preimage of the transaction id.
// Identical documents always serialize identically.
func (tx *UnsignedTransaction) Serialize() ([]byte, error) {
	if len(tx.Inputs) == 0 {
		return nil, fmt.Errorf("transaction has no inputs")
	}
	if len(tx.Outputs) == 0 {
		return nil, fmt.Errorf("transaction has no outputs")
	}
	w := NewWriter()
	w.UVLQ(uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		id, err := in.BoxID.Bytes()
		if err != nil {
			return nil, err
		}
		w.Bytes(id)
		w.UVLQ(0) // proof bytes, empty until signed
		in.Extension.encode(w)
	}
	w.UVLQ(uint64(len(tx.DataInputs)))
	for _, din := range tx.DataInputs {
		id, err := din.BoxID.Bytes()
		if err != nil {
			return nil, err
		}
		w.Bytes(id)
	}
	tokenIDs := tx.DistinctTokenIDs()
	tokenIndex := make(map[TokenID]int, len(tokenIDs))
	w.UVLQ(uint64(len(tokenIDs)))
	for i, id := range tokenIDs {
		raw, err := id.Bytes()
		if err != nil {
			return nil, err
		}
		w.Bytes(raw)
		tokenIndex[id] = i
	}
	w.UVLQ(uint64(len(tx.Outputs)))
	for i := range tx.Outputs {
		if err := tx.Outputs[i].encode(w, tokenIndex); err != nil {
			return nil, fmt.Errorf("output %d: %v", i, err)
		}
	}
	return w.Data(), nil
}

// TxID returns the transaction id of the canonical bytes.
func (tx *UnsignedTransaction) TxID() (TxID, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return TxID(HexEncode(Blake2b256(raw))), nil
}

// OutputBoxID derives the id output i will have once mined.
func (tx *UnsignedTransaction) OutputBoxID(i int) (BoxID, error) {
	if i < 0 || i >= len(tx.Outputs) {
		return "", fmt.Errorf("output index %d out of range", i)
	}
	txID, err := tx.TxID()
	if err != nil {
		return "", err
	}
	return tx.Outputs[i].ComputeBoxID(txID, uint16(i))
}

// DecodeUnsignedTransaction parses canonical unsigned wire bytes and
// requires them to be fully consumed.
func DecodeUnsignedTransaction(raw []byte) (*UnsignedTransaction, error) {
	r := NewReader(raw)
	tx := &UnsignedTransaction{}
	numIn := r.Length()
	for i := 0; i < numIn; i++ {
		id := r.Bytes(IDLen)
		proofLen := r.Length()
		r.Bytes(proofLen) // tolerated but ignored: the id covers unsigned bytes only
		ext := readContextExtension(r)
		if r.Err() != nil {
			return nil, fmt.Errorf("input %d: %v", i, r.Err())
		}
		tx.Inputs = append(tx.Inputs, UnsignedInput{BoxID: BoxID(HexEncode(id)), Extension: ext})
	}
	numData := r.Length()
	for i := 0; i < numData; i++ {
		id := r.Bytes(IDLen)
		if r.Err() != nil {
			return nil, fmt.Errorf("data input %d: %v", i, r.Err())
		}
		tx.DataInputs = append(tx.DataInputs, DataInput{BoxID: BoxID(HexEncode(id))})
	}
	numTokens := r.Length()
	tokenIDs := make([]TokenID, 0, numTokens)
	for i := 0; i < numTokens; i++ {
		id := r.Bytes(IDLen)
		if r.Err() != nil {
			return nil, fmt.Errorf("token table entry %d: %v", i, r.Err())
		}
		tokenIDs = append(tokenIDs, TokenID(HexEncode(id)))
	}
	numOut := r.Length()
	for i := 0; i < numOut; i++ {
		out := readBoxCandidate(r, tokenIDs)
		if r.Err() != nil {
			return nil, fmt.Errorf("output %d: %v", i, r.Err())
		}
		tx.Outputs = append(tx.Outputs, out)
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after transaction", r.Remaining())
	}
	return tx, nil
}
