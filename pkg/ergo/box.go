package ergo

import "fmt"

const IDLen = 32

// BoxID is the hex form of a box's 32-byte content id.
type BoxID string

// TokenID is the hex form of a 32-byte token id. A token's id is the
// id of the first input box of the transaction that minted it.
type TokenID string

func (id BoxID) Bytes() ([]byte, error) {
	return idBytes("box id", string(id))
}

func (id TokenID) Bytes() ([]byte, error) {
	return idBytes("token id", string(id))
}

func idBytes(kind, id string) ([]byte, error) {
	b, err := HexDecode(id)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %v", kind, id, err)
	}
	if len(b) != IDLen {
		return nil, fmt.Errorf("invalid %s %q: %d bytes, want %d", kind, id, len(b), IDLen)
	}
	return b, nil
}

type TokenAmount struct {
	TokenID TokenID `json:"tokenId"`
	Amount  int64   `json:"amount"`
}

// Box is an unspent output as reported by the node indexer.
type Box struct {
	BoxID          BoxID         `json:"boxId"`
	TransactionID  TxID          `json:"transactionId,omitempty"`
	Index          uint16        `json:"index"`
	Value          int64         `json:"value"`
	ErgoTree       HexBytes      `json:"ergoTree"`
	CreationHeight uint32        `json:"creationHeight"`
	Assets         []TokenAmount `json:"assets"`
	Registers      Registers     `json:"additionalRegisters"`
}

// TokenBalance returns the amount of one token held by the box.
func (b *Box) TokenBalance(id TokenID) int64 {
	for _, a := range b.Assets {
		if a.TokenID == id {
			return a.Amount
		}
	}
	return 0
}

// BoxCandidate is an output under construction: a box without an id,
// which only exists once the enclosing transaction's id is known.
type BoxCandidate struct {
	Value          int64         `json:"value"`
	ErgoTree       HexBytes      `json:"ergoTree"`
	CreationHeight uint32        `json:"creationHeight"`
	Assets         []TokenAmount `json:"assets"`
	Registers      Registers     `json:"additionalRegisters"`
}

// TokenBalance returns the amount of one token the candidate carries.
func (c *BoxCandidate) TokenBalance(id TokenID) int64 {
	for _, a := range c.Assets {
		if a.TokenID == id {
			return a.Amount
		}
	}
	return 0
}

// encode writes the candidate in wire form. Inside a transaction the
// token ids are replaced by indexes into the distinct-token table
// (tokenIndex non-nil); the standalone form used for box ids keeps the
// full 32-byte ids (tokenIndex nil).
func (c *BoxCandidate) encode(w *Writer, tokenIndex map[TokenID]int) error {
	if c.Value <= 0 {
		return fmt.Errorf("box value %d is not positive", c.Value)
	}
	if len(c.ErgoTree) == 0 {
		return fmt.Errorf("box has no guard script")
	}
	w.UVLQ(uint64(c.Value))
	w.Bytes(c.ErgoTree)
	w.UVLQ(uint64(c.CreationHeight))
	w.UVLQ(uint64(len(c.Assets)))
	for _, a := range c.Assets {
		if a.Amount <= 0 {
			return fmt.Errorf("token %s amount %d is not positive", a.TokenID, a.Amount)
		}
		if tokenIndex != nil {
			idx, ok := tokenIndex[a.TokenID]
			if !ok {
				return fmt.Errorf("token %s missing from the distinct token table", a.TokenID)
			}
			w.UVLQ(uint64(idx))
		} else {
			id, err := a.TokenID.Bytes()
			if err != nil {
				return err
			}
			w.Bytes(id)
		}
		w.UVLQ(uint64(a.Amount))
	}
	regs, err := c.Registers.Dense()
	if err != nil {
		return err
	}
	w.UVLQ(uint64(len(regs)))
	for _, reg := range regs {
		reg.Encode(w)
	}
	return nil
}

// ComputeBoxID derives the box id the candidate will have once mined:
// the hash of the standalone box bytes extended with the enclosing
// transaction id and the output index.
func (c *BoxCandidate) ComputeBoxID(txID TxID, index uint16) (BoxID, error) {
	w := NewWriter()
	if err := c.encode(w, nil); err != nil {
		return "", err
	}
	txBytes, err := idBytes("transaction id", string(txID))
	if err != nil {
		return "", err
	}
	w.Bytes(txBytes)
	w.UVLQ(uint64(index))
	return BoxID(HexEncode(Blake2b256(w.Data()))), nil
}

func readBoxCandidate(r *Reader, tokenIDs []TokenID) (c BoxCandidate) {
	c.Value = int64(r.UVLQ())
	c.ErgoTree = readTree(r)
	c.CreationHeight = uint32(r.UVLQ())
	numAssets := r.Length()
	for i := 0; i < numAssets; i++ {
		idx := r.UVLQ()
		if r.err == nil && idx >= uint64(len(tokenIDs)) {
			r.fail("token index %d out of range (table has %d)", idx, len(tokenIDs))
		}
		amount := int64(r.UVLQ())
		if r.err != nil {
			return
		}
		c.Assets = append(c.Assets, TokenAmount{TokenID: tokenIDs[idx], Amount: amount})
	}
	numRegs := r.Length()
	for i := 0; i < numRegs; i++ {
		reg := readConstant(r)
		if r.err != nil {
			return
		}
		if c.Registers == nil {
			c.Registers = Registers{}
		}
		c.Registers[R4+RegisterID(i)] = reg
	}
	return
}
