// Package capture holds the secondary UI layer composited into a frame.
//
// The UI-capture collaborator offers images into a Mailbox; the render loop
// takes at most one per frame. A taken layer is gone: it is valid only for
// the frame that consumed it.
package capture

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ErrInvalidLayer is returned for layers with a zero dimension or a pixel
// slice that is not exactly Width*Height*4 bytes.
var ErrInvalidLayer = errors.New("capture: invalid layer")

// ByteOrder selects the channel order of uploaded layer bytes.
type ByteOrder int

const (
	// OrderRGBA keeps the layer bytes as they are.
	OrderRGBA ByteOrder = iota
	// OrderBGRA swaps red and blue.
	OrderBGRA
)

// Layer is an RGBA image, tightly packed, row-major.
type Layer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewLayer validates and wraps pix. The slice is not copied.
func NewLayer(width, height int, pix []byte) (*Layer, error) {
	l := &Layer{Width: width, Height: height, Pix: pix}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// FromImage converts img into a Layer.
func FromImage(img image.Image) *Layer {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
	return &Layer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Validate checks the layer dimensions against its pixel slice.
func (l *Layer) Validate() error {
	if l == nil {
		return fmt.Errorf("%w: nil", ErrInvalidLayer)
	}
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidLayer, l.Width, l.Height)
	}
	if want := l.Width * l.Height * 4; len(l.Pix) != want {
		return fmt.Errorf("%w: %d bytes for %dx%d, want %d", ErrInvalidLayer, len(l.Pix), l.Width, l.Height, want)
	}
	return nil
}

// RGBA returns the layer as an *image.RGBA sharing its pixels.
func (l *Layer) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    l.Pix,
		Stride: l.Width * 4,
		Rect:   image.Rect(0, 0, l.Width, l.Height),
	}
}

// Fit returns l scaled to width x height. A layer that already has that size
// is returned as is.
func (l *Layer) Fit(width, height int) *Layer {
	if l.Width == width && l.Height == height {
		return l
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), l.RGBA(), l.RGBA().Bounds(), draw.Src, nil)
	return &Layer{Width: width, Height: height, Pix: dst.Pix}
}

// Bytes returns the pixel bytes in the requested order. OrderRGBA returns
// the backing slice; OrderBGRA returns a swapped copy.
func (l *Layer) Bytes(order ByteOrder) []byte {
	if order == OrderRGBA {
		return l.Pix
	}
	out := make([]byte, len(l.Pix))
	for i := 0; i+3 < len(l.Pix); i += 4 {
		out[i] = l.Pix[i+2]
		out[i+1] = l.Pix[i+1]
		out[i+2] = l.Pix[i]
		out[i+3] = l.Pix[i+3]
	}
	return out
}
