package ergo

import (
	"testing"
)

func TestP2PKTree(t *testing.T) {
	tree, err := P2PKTree(testPubKey)
	if err != nil {
		t.Fatalf("P2PKTree: %v", err)
	}
	if len(tree) != P2PKTreeLen {
		t.Errorf("wrong tree length: %d", len(tree))
	}
	if tree[0] != 0x00 || tree[1] != 0x08 || tree[2] != 0xcd {
		t.Errorf("wrong tree preamble: %x", tree[:3])
	}
	pk, ok := TreePubKey(tree)
	if !ok || HexEncode(pk) != HexEncode(testPubKey) {
		t.Errorf("TreePubKey: %x, %v", pk, ok)
	}
	// a bare public key is not a guard script
	if IsP2PKTree(testPubKey) {
		t.Errorf("bare public key must not classify as a P2PK tree")
	}
}

func TestP2PKTreeRejectsBadKeys(t *testing.T) {
	if _, err := P2PKTree(testPubKey[:32]); err == nil {
		t.Errorf("expected error for truncated key")
	}
	notAPoint := append([]byte{0x02}, bytes32(0xff)...)
	if _, err := P2PKTree(notAPoint); err == nil {
		t.Errorf("expected error for an off-curve key")
	}
	uncompressed := append([]byte{0x04}, bytes32(0x01)...)
	if _, err := P2PKTree(uncompressed); err == nil {
		t.Errorf("expected error for an uncompressed key prefix")
	}
}

func TestMinerFeeTree(t *testing.T) {
	if !HasSegregatedConstants(MinerFeeTree) {
		t.Errorf("fee contract should carry the segregated-constants flag")
	}
	if treeVersion(MinerFeeTree) != 0 {
		t.Errorf("fee contract should be a version-0 script")
	}
	kind, _ := ClassifyTree(MinerFeeTree, Mainnet)
	if kind != TreeTypeMinerFee {
		t.Errorf("fee tree classified as %v", kind)
	}
	addr := MinerFeeAddress(Mainnet)
	back, err := AddressTree(addr)
	if err != nil || HexEncode(back) != HexEncode(MinerFeeTree) {
		t.Errorf("fee address does not round trip: %v", err)
	}
}

func TestClassifyTree(t *testing.T) {
	p2pk, _ := P2PKTree(testPubKey)
	kind, addr := ClassifyTree(p2pk, Mainnet)
	if kind != TreeTypeP2PK || addr == "" {
		t.Errorf("P2PK classification: %v, %q", kind, addr)
	}

	contractTree := []byte{0x00, 0x01, 0x02, 0x03} // opaque test script
	kind, _ = ClassifyTree(contractTree, Mainnet)
	if kind != TreeTypeUnknown {
		t.Errorf("unregistered tree classified as %v", kind)
	}
	canonical, _ := P2SAddress(contractTree, Mainnet)
	RegisterContract(Contract{Name: "test-contract", Tree: contractTree, Address: canonical})
	kind, addr = ClassifyTree(contractTree, Mainnet)
	if kind != TreeTypeContract || addr != canonical {
		t.Errorf("registered tree classification: %v, %q", kind, addr)
	}
}

func TestRegisterContractGuards(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected panic for a segregated contract without a canonical address")
		}
	}()
	RegisterContract(Contract{Name: "bad", Tree: []byte{0x10, 0x00}})
}
