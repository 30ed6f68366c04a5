package pixel

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Buffer is a raw RGBA image: 4 bytes per pixel, row-major.
// Transform stages never alias each other's pixels; every stage that
// changes an image returns a new Buffer.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// New creates a zero-initialized buffer of the given dimensions.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}, nil
}

// FromBytes wraps an existing RGBA byte slice. The slice length must match
// width*height*4 exactly.
func FromBytes(width, height int, pix []byte) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("pixel data length %d does not match %dx%d RGBA", len(pix), width, height)
	}
	return &Buffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage converts any decoded image into a Buffer. The imaging clone
// normalizes every source format to NRGBA, which shares our byte layout.
func FromImage(img image.Image) (*Buffer, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	nrgba := imaging.Clone(img)
	b := nrgba.Bounds()
	return FromBytes(b.Dx(), b.Dy(), nrgba.Pix)
}

// Decode reads an encoded image (PNG, JPEG, GIF...) into a Buffer.
func Decode(data []byte) (*Buffer, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img)
}

// Empty reports whether the buffer holds no pixels.
func (b *Buffer) Empty() bool {
	return b == nil || b.Width <= 0 || b.Height <= 0 || len(b.Pix) == 0
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Offset returns the index of the first byte of pixel (x, y).
// Callers are responsible for bounds.
func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}

// At returns the RGBA components of pixel (x, y).
func (b *Buffer) At(x, y int) (r, g, bl, a byte) {
	i := b.Offset(x, y)
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Set stores the RGBA components of pixel (x, y).
func (b *Buffer) Set(x, y int, r, g, bl, a byte) {
	i := b.Offset(x, y)
	b.Pix[i] = r
	b.Pix[i+1] = g
	b.Pix[i+2] = bl
	b.Pix[i+3] = a
}

// ToNRGBA returns the buffer as a stdlib image sharing the same pixel memory.
func (b *Buffer) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// EncodePNG serializes the buffer as a PNG.
func (b *Buffer) EncodePNG() ([]byte, error) {
	if b.Empty() {
		return nil, fmt.Errorf("cannot encode empty buffer")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, b.ToNRGBA(), imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
