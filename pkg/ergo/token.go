package ergo

import "strconv"

// MintRegisters builds the standard asset metadata registers for a
// newly minted token: name, description and decimals, each stored as a
// UTF-8 byte collection. The minted token's id must equal the id of
// the transaction's first input box; the builder enforces that.
func MintRegisters(name, description string, decimals int) Registers {
	return Registers{
		R4: ByteCollConstant([]byte(name)),
		R5: ByteCollConstant([]byte(description)),
		R6: ByteCollConstant([]byte(strconv.Itoa(decimals))),
	}
}
