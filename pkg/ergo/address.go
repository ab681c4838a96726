package ergo

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address is the base-58 display form of a guard script:
// prefix byte (network + type), content, 4-byte blake2b checksum.
type Address string

type NetworkType byte

const (
	Mainnet NetworkType = 0x00
	Testnet NetworkType = 0x10
)

func ParseNetwork(name string) (NetworkType, error) {
	switch name {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	}
	return 0, fmt.Errorf("unknown network %q (want mainnet or testnet)", name)
}

func (n NetworkType) String() string {
	if n == Testnet {
		return "testnet"
	}
	return "mainnet"
}

type AddressType byte

const (
	AddressP2PK AddressType = 0x01 // content is a compressed public key
	AddressP2SH AddressType = 0x02 // content is a 24-byte script digest
	AddressP2S  AddressType = 0x03 // content is the serialized guard script
)

const addressChecksumLen = 4

func encodeAddress(prefix byte, content []byte) Address {
	body := make([]byte, 0, 1+len(content)+addressChecksumLen)
	body = append(body, prefix)
	body = append(body, content...)
	sum := Blake2b256(body)
	body = append(body, sum[:addressChecksumLen]...)
	return Address(base58.FastBase58Encoding(body))
}

// P2PKAddress encodes a compressed public key as a pay-to-public-key
// address.
func P2PKAddress(pubkey []byte, network NetworkType) (Address, error) {
	if err := ValidatePubKey(pubkey); err != nil {
		return "", err
	}
	return encodeAddress(byte(network)+byte(AddressP2PK), pubkey), nil
}

// P2SAddress encodes a serialized guard script as a pay-to-script
// address. The tree bytes pass through untouched, so the address is
// canonical exactly when the input serialization is.
func P2SAddress(tree []byte, network NetworkType) (Address, error) {
	if len(tree) == 0 {
		return "", fmt.Errorf("P2SAddress: empty tree")
	}
	return encodeAddress(byte(network)+byte(AddressP2S), tree), nil
}

// TreeAddress derives the display address for a guard script:
// the compact pay-to-public-key form when the script is a canonical
// P2PK tree, otherwise pay-to-script.
func TreeAddress(tree []byte, network NetworkType) (Address, error) {
	if pk, ok := TreePubKey(tree); ok {
		return P2PKAddress(pk, network)
	}
	return P2SAddress(tree, network)
}

// AddressInfo is a decoded, checksum-verified address.
type AddressInfo struct {
	Network NetworkType
	Type    AddressType
	Content []byte
}

func ParseAddress(addr Address) (*AddressInfo, error) {
	raw, err := base58.FastBase58Decoding(string(addr))
	if err != nil {
		return nil, fmt.Errorf("address %q: %v", addr, err)
	}
	if len(raw) < 1+1+addressChecksumLen {
		return nil, fmt.Errorf("address %q: too short", addr)
	}
	split := len(raw) - addressChecksumLen
	body, check := raw[:split], raw[split:]
	sum := Blake2b256(body)
	if !bytes.Equal(check, sum[:addressChecksumLen]) {
		return nil, fmt.Errorf("address %q: wrong checksum", addr)
	}
	info := &AddressInfo{
		Network: NetworkType(body[0] & 0xf0),
		Type:    AddressType(body[0] & 0x0f),
		Content: body[1:],
	}
	switch info.Type {
	case AddressP2PK:
		if err := ValidatePubKey(info.Content); err != nil {
			return nil, fmt.Errorf("address %q: %v", addr, err)
		}
	case AddressP2SH:
		if len(info.Content) != 24 {
			return nil, fmt.Errorf("address %q: script hash is %d bytes, want 24", addr, len(info.Content))
		}
	case AddressP2S:
		if len(info.Content) == 0 {
			return nil, fmt.Errorf("address %q: empty script", addr)
		}
	default:
		return nil, fmt.Errorf("address %q: unknown type %d", addr, info.Type)
	}
	return info, nil
}

// Tree returns the guard script the address stands for. Pay-to-script-
// hash addresses carry only a digest, so the script itself is not
// recoverable from them.
func (a *AddressInfo) Tree() ([]byte, error) {
	switch a.Type {
	case AddressP2PK:
		return P2PKTree(a.Content)
	case AddressP2S:
		return a.Content, nil
	}
	return nil, fmt.Errorf("cannot recover a script from a type-%d address", a.Type)
}

// AddressTree decodes an address and returns its guard script.
func AddressTree(addr Address) ([]byte, error) {
	info, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	return info.Tree()
}

// ValidateAddress reports whether addr parses, checksums, and belongs
// to the given network.
func ValidateAddress(addr Address, network NetworkType) bool {
	info, err := ParseAddress(addr)
	if err != nil {
		return false
	}
	return info.Network == network
}
