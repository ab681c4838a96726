package webapi

import (
	qrcode "github.com/skip2/go-qrcode"
)

// GenerateQRCodePNG renders content as a size x size PNG. Medium error
// correction keeps the module count down; signing URIs carry a whole
// transaction payload and already push the symbol towards its limits.
func GenerateQRCodePNG(content string, size int) ([]byte, error) {
	pngBytes, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return []byte{}, err
	}
	return pngBytes, nil
}
