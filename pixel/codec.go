// Package pixel converts arbitrary byte payloads into lossless PNG rasters
// and back. Payloads are prefixed with a marker tag plus a random nonce so
// decoded images can be recognized as ours, laid out as near-square RGB
// rasters, and zero-padded to fill the last pixel row.
package pixel

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
)

const (
	// NonceSize is the number of random bytes appended to the marker.
	// The nonce disambiguates otherwise identical uploads so the host
	// cannot collapse them by content hash.
	NonceSize = 8
	// MaxImageBytes is the encoded asset size ceiling imposed by the host.
	MaxImageBytes = 20 * 1024 * 1024
)

// ErrPayloadTooLarge indicates the encoded PNG exceeds MaxImageBytes.
var ErrPayloadTooLarge = errors.New("pixel: encoded image exceeds size limit")

// Codec encodes and decodes payloads using a fixed marker tag.
type Codec struct {
	marker []byte
}

// NewCodec returns a Codec using the given marker tag.
func NewCodec(marker string) *Codec {
	return &Codec{marker: []byte(marker)}
}

// Marker returns the validation marker tag.
func (c *Codec) Marker() string {
	return string(c.marker)
}

// Encode renders marker+nonce+payload as a near-square RGB raster and
// returns it PNG-encoded. It fails with ErrPayloadTooLarge when the
// resulting image exceeds MaxImageBytes.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	data := make([]byte, 0, len(c.marker)+NonceSize+len(payload))
	data = append(data, c.marker...)
	data = append(data, nonce...)
	data = append(data, payload...)

	totalPixels := (len(data) + 2) / 3
	width := int(math.Ceil(math.Sqrt(float64(totalPixels))))
	if width == 0 {
		width = 1
	}
	height := (totalPixels + width - 1) / width
	if height == 0 {
		height = 1
	}

	padded := make([]byte, width*height*3)
	copy(padded, data)

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = padded[i*3+0]
		img.Pix[i*4+1] = padded[i*3+1]
		img.Pix[i*4+2] = padded[i*3+2]
		img.Pix[i*4+3] = 0xff
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	if buf.Len() > MaxImageBytes {
		return nil, ErrPayloadTooLarge
	}

	return buf.Bytes(), nil
}

// Decode extracts the payload from a PNG produced by Encode. It returns
// ok=false when the raster does not start with the marker, meaning the
// asset is not ours rather than being malformed.
//
// Trailing NUL padding is stripped from the payload. This is ambiguous for
// payloads that legitimately end in zero bytes; callers store text-safe
// encodings (base64) to stay clear of the limitation.
func (c *Codec) Decode(imageBytes []byte) (payload []byte, ok bool, err error) {
	img, err := png.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, false, fmt.Errorf("decode PNG: %w", err)
	}

	bounds := img.Bounds()
	raw := make([]byte, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			raw = append(raw, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}

	if len(raw) < len(c.marker)+NonceSize || !bytes.HasPrefix(raw, c.marker) {
		return nil, false, nil
	}

	payload = bytes.TrimRight(raw[len(c.marker)+NonceSize:], "\x00")
	return payload, true, nil
}
