// Package qrcode renders check-in credentials as PNG images.
package qrcode

import (
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	// DefaultSize is the PNG edge length in pixels.
	DefaultSize = 256
	minSize     = 64
	maxSize     = 2048
)

// ContentType is the MIME type of rendered images.
const ContentType = "image/png"

// Renderer encodes strings as QR code PNGs.
type Renderer struct {
	size int
}

// NewRenderer returns a renderer producing size x size images.
// A non-positive size selects DefaultSize.
func NewRenderer(size int) (*Renderer, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size < minSize || size > maxSize {
		return nil, fmt.Errorf("qr size %d out of range [%d, %d]", size, minSize, maxSize)
	}
	return &Renderer{size: size}, nil
}

// PNG renders content at medium error correction.
func (r *Renderer) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("empty qr content")
	}
	q, err := goqrcode.New(content, goqrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	png, err := q.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}

// Size returns the configured edge length.
func (r *Renderer) Size() int { return r.size }
