package ergo

import (
	"strings"
	"testing"
)

// generator point of the curve, a known-good compressed public key
var testPubKey = hx2b("0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")

func TestP2PKAddressRoundTrip(t *testing.T) {
	addr, err := P2PKAddress(testPubKey, Mainnet)
	if err != nil {
		t.Fatalf("P2PKAddress: %v", err)
	}
	if !strings.HasPrefix(string(addr), "9") {
		t.Errorf("mainnet P2PK address should start with 9: %s", addr)
	}
	info, err := ParseAddress(addr)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if info.Network != Mainnet {
		t.Errorf("wrong network: %v", info.Network)
	}
	if info.Type != AddressP2PK {
		t.Errorf("wrong type: %v", info.Type)
	}
	if HexEncode(info.Content) != HexEncode(testPubKey) {
		t.Errorf("wrong content: %x", info.Content)
	}
	tree, err := info.Tree()
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !IsP2PKTree(tree) {
		t.Errorf("recovered tree is not P2PK: %x", tree)
	}
}

func TestAddressChecksum(t *testing.T) {
	addr, err := P2PKAddress(testPubKey, Mainnet)
	if err != nil {
		t.Fatalf("P2PKAddress: %v", err)
	}
	// flip one character
	s := []byte(addr)
	if s[5] != 'x' {
		s[5] = 'x'
	} else {
		s[5] = 'y'
	}
	if _, err := ParseAddress(Address(s)); err == nil {
		t.Errorf("expected checksum or decode error for tampered address")
	}
}

func TestAddressNetworks(t *testing.T) {
	main, _ := P2PKAddress(testPubKey, Mainnet)
	test, _ := P2PKAddress(testPubKey, Testnet)
	if main == test {
		t.Errorf("mainnet and testnet addresses should differ")
	}
	if !ValidateAddress(main, Mainnet) {
		t.Errorf("mainnet address should validate on mainnet")
	}
	if ValidateAddress(main, Testnet) {
		t.Errorf("mainnet address should not validate on testnet")
	}
	if !strings.HasPrefix(string(test), "3") {
		t.Errorf("testnet P2PK address should start with 3: %s", test)
	}
}

func TestTreeAddress(t *testing.T) {
	// a P2PK tree gets the compact public-key form
	tree, err := P2PKTree(testPubKey)
	if err != nil {
		t.Fatalf("P2PKTree: %v", err)
	}
	fromTree, err := TreeAddress(tree, Mainnet)
	if err != nil {
		t.Fatalf("TreeAddress: %v", err)
	}
	fromKey, _ := P2PKAddress(testPubKey, Mainnet)
	if fromTree != fromKey {
		t.Errorf("P2PK tree address mismatch: %s vs %s", fromTree, fromKey)
	}

	// an arbitrary script gets pay-to-script, bytes preserved exactly
	script, err := TreeAddress(MinerFeeTree, Mainnet)
	if err != nil {
		t.Fatalf("TreeAddress(fee): %v", err)
	}
	back, err := AddressTree(script)
	if err != nil {
		t.Fatalf("AddressTree: %v", err)
	}
	if HexEncode(back) != HexEncode(MinerFeeTree) {
		t.Errorf("script bytes did not survive the address round trip")
	}
}

func TestParseNetwork(t *testing.T) {
	if n, err := ParseNetwork("mainnet"); err != nil || n != Mainnet {
		t.Errorf("mainnet: %v, %v", n, err)
	}
	if n, err := ParseNetwork("testnet"); err != nil || n != Testnet {
		t.Errorf("testnet: %v, %v", n, err)
	}
	if _, err := ParseNetwork("devnet"); err == nil {
		t.Errorf("expected error for unknown network")
	}
}
