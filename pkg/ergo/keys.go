package ergo

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const PubKeyLen = 33 // compressed secp256k1 point

// ValidatePubKey checks that key is a parseable compressed curve point.
// The gateway never holds private keys, but every public key it embeds
// in a guard script must be a real point or the box becomes unspendable.
func ValidatePubKey(key []byte) error {
	if len(key) != PubKeyLen || (key[0] != 0x02 && key[0] != 0x03) {
		return fmt.Errorf("invalid public key: want %d-byte compressed point", PubKeyLen)
	}
	if _, err := secp256k1.ParsePubKey(key); err != nil {
		return fmt.Errorf("invalid public key: %v", err)
	}
	return nil
}
