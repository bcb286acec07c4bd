package reservation

import qrcode "github.com/skip2/go-qrcode"

type qrEncoder struct {
	size int
}

// NewQREncoder returns the PNG encoder used for check-in codes.
func NewQREncoder() QRGenerator {
	return &qrEncoder{size: 256}
}

func (e *qrEncoder) Generate(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, e.size)
}
