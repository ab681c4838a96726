package ergo

import (
	"encoding/hex"
	"fmt"
)

func HexEncode(bytes []byte) string {
	return hex.EncodeToString(bytes)
}

func HexDecode(str string) ([]byte, error) {
	return hex.DecodeString(str)
}

func IsValidHex(hex string) bool {
	_, err := HexDecode(hex)
	return err == nil
}

// HexBytes is a byte slice that marshals to/from a JSON hex string,
// matching the node API encoding for trees and register values.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + HexEncode(h) + `"`), nil
}

func (h *HexBytes) UnmarshalJSON(item []byte) error {
	if len(item) < 2 || item[0] != '"' || item[len(item)-1] != '"' {
		return fmt.Errorf("HexBytes: expected a hex string")
	}
	bytes, err := HexDecode(string(item[1 : len(item)-1]))
	if err != nil {
		return err
	}
	*h = bytes
	return nil
}

func (h HexBytes) String() string {
	return HexEncode(h)
}
