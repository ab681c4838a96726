package ergo

import (
	"bytes"
	"fmt"
	"sync"
)

// Tree header flags. The low 3 bits are the script version; bit 3
// means an explicit size VLQ follows the header; bit 4 means the
// script's constants are segregated into a table after the header.
const (
	treeHeaderVersionMask  = 0x07
	treeHeaderHasSize      = 0x08
	treeHeaderConstantsSeg = 0x10
)

// p2pkTreePrefix is the full guard-script preamble for a
// pay-to-public-key box: version-0 header, then the serialized
// sigma-proposition op codes for "prove knowledge of the discrete log
// of this point". The raw 33-byte point is NOT a valid guard script.
var p2pkTreePrefix = []byte{0x00, 0x08, 0xcd}

const P2PKTreeLen = 3 + PubKeyLen

// P2PKTree builds the canonical pay-to-public-key guard script for a
// compressed public key.
func P2PKTree(pubkey []byte) ([]byte, error) {
	if err := ValidatePubKey(pubkey); err != nil {
		return nil, err
	}
	tree := make([]byte, 0, P2PKTreeLen)
	tree = append(tree, p2pkTreePrefix...)
	tree = append(tree, pubkey...)
	return tree, nil
}

// IsP2PKTree reports whether tree is a canonical pay-to-public-key
// guard script.
func IsP2PKTree(tree []byte) bool {
	return len(tree) == P2PKTreeLen && bytes.Equal(tree[:3], p2pkTreePrefix)
}

// TreePubKey extracts the public key from a pay-to-public-key guard
// script.
func TreePubKey(tree []byte) ([]byte, bool) {
	if !IsP2PKTree(tree) {
		return nil, false
	}
	return tree[3:], true
}

// HasSegregatedConstants reports whether the script's constants are
// stored in a segregated table. Such a script's display address must
// come from its canonical serialization, recorded when the contract
// was compiled; re-deriving it from rearranged bytes produces a
// different (wrong) address.
func HasSegregatedConstants(tree []byte) bool {
	return len(tree) > 0 && tree[0]&treeHeaderConstantsSeg != 0
}

func treeVersion(tree []byte) byte {
	if len(tree) == 0 {
		return 0
	}
	return tree[0] & treeHeaderVersionMask
}

// TreeType classifies a guard script for display and policy decisions.
type TreeType string

const (
	TreeTypeP2PK     TreeType = "p2pk"     // single public key
	TreeTypeMinerFee TreeType = "fee"      // the miner fee collection contract
	TreeTypeContract TreeType = "contract" // registered protocol contract
	TreeTypeUnknown  TreeType = "unknown"
)

// Contract pairs a guard script with the canonical address recorded
// when the contract was compiled.
type Contract struct {
	Name    string
	Tree    []byte
	Address Address
}

// The contract book maps known guard scripts to their canonical
// addresses, and lets the tx decoder delimit trees that carry no
// explicit size.
var (
	contractMu   sync.RWMutex
	contractBook = map[string]Contract{} // keyed by hex(tree)
)

// RegisterContract records a known contract. Protocol packages call
// this from init, so lookups must not race registration.
func RegisterContract(c Contract) {
	if len(c.Tree) == 0 {
		panic("RegisterContract: empty tree")
	}
	if HasSegregatedConstants(c.Tree) && c.Address == "" {
		panic(fmt.Sprintf("RegisterContract: %s segregates constants but has no canonical address", c.Name))
	}
	contractMu.Lock()
	defer contractMu.Unlock()
	contractBook[HexEncode(c.Tree)] = c
}

// LookupContract finds a registered contract by its guard script.
func LookupContract(tree []byte) (Contract, bool) {
	contractMu.RLock()
	defer contractMu.RUnlock()
	c, ok := contractBook[HexEncode(tree)]
	return c, ok
}

// matchContractPrefix finds a registered contract whose tree is a
// prefix of the input, longest match first.
func matchContractPrefix(b []byte) (Contract, bool) {
	contractMu.RLock()
	defer contractMu.RUnlock()
	var best Contract
	found := false
	for _, c := range contractBook {
		if len(c.Tree) <= len(b) && bytes.Equal(b[:len(c.Tree)], c.Tree) {
			if !found || len(c.Tree) > len(best.Tree) {
				best = c
				found = true
			}
		}
	}
	return best, found
}

// ClassifyTree identifies a guard script and, where one is defined,
// its display address on the given network.
func ClassifyTree(tree []byte, network NetworkType) (TreeType, Address) {
	if IsP2PKTree(tree) {
		addr, err := P2PKAddress(tree[3:], network)
		if err != nil {
			return TreeTypeUnknown, ""
		}
		return TreeTypeP2PK, addr
	}
	if bytes.Equal(tree, MinerFeeTree) {
		return TreeTypeMinerFee, ""
	}
	if c, ok := LookupContract(tree); ok {
		return TreeTypeContract, c.Address
	}
	return TreeTypeUnknown, ""
}

// readTree consumes one guard script from the reader. Trees with the
// size flag delimit themselves; version-0 trees without it can only be
// delimited by recognizing them (pay-to-public-key, the fee contract,
// or a registered contract), which covers everything this gateway
// emits.
func readTree(r *Reader) []byte {
	if r.err != nil {
		return nil
	}
	rest := r.b[r.p:]
	if len(rest) >= P2PKTreeLen && bytes.Equal(rest[:3], p2pkTreePrefix) {
		return r.Bytes(P2PKTreeLen)
	}
	if len(rest) > 0 && rest[0]&treeHeaderHasSize != 0 {
		start := r.p
		r.Byte() // header
		size := r.Length()
		r.Bytes(size)
		if r.err != nil {
			return nil
		}
		return r.b[start:r.p]
	}
	if len(rest) >= len(MinerFeeTree) && bytes.Equal(rest[:len(MinerFeeTree)], MinerFeeTree) {
		return r.Bytes(len(MinerFeeTree))
	}
	if c, ok := matchContractPrefix(rest); ok {
		return r.Bytes(len(c.Tree))
	}
	r.fail("cannot delimit guard script at %d: unknown tree without size flag", r.p)
	return nil
}
