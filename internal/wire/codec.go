// Package wire is the byte-level format shared by the producer and the
// companion: PNG-encoded icon bitmaps packed into numbered payload slots.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"notifface/internal/icon"
)

var ErrDecode = errors.New("wire: decode error")

var encoder = png.Encoder{CompressionLevel: png.BestCompression}

// Encode serializes b as a lossless PNG.
func Encode(b *icon.Bitmap) ([]byte, error) {
	if b == nil {
		return nil, errors.New("wire: nil bitmap")
	}
	var buf bytes.Buffer
	if err := encoder.Encode(&buf, b.Image()); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses PNG bytes produced by Encode. Malformed bytes, nil input and
// images that are not icon.Size square all fail with ErrDecode.
func Decode(data []byte) (*icon.Bitmap, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b, err := icon.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return b, nil
}
