package ergo

import "golang.org/x/crypto/blake2b"

type Hash256 = []byte

// Blake2b256 is the ledger's hash for box ids, transaction ids and
// address checksums.
func Blake2b256(bytes []byte) Hash256 {
	result := blake2b.Sum256(bytes)
	return result[:]
}
