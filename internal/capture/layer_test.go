package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

func solid(w, h int, c color.RGBA) *Layer {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	return &Layer{Width: w, Height: h, Pix: pix}
}

func TestNewLayerValidates(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		n    int
		ok   bool
	}{
		{"valid", 2, 3, 24, true},
		{"zero width", 0, 3, 0, false},
		{"negative height", 2, -1, 0, false},
		{"short pixels", 2, 2, 15, false},
		{"long pixels", 2, 2, 17, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayer(tt.w, tt.h, make([]byte, tt.n))
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidLayer) {
				t.Fatalf("got %v, want ErrInvalidLayer", err)
			}
		})
	}
}

func TestFromImageNonZeroOrigin(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	src.SetNRGBA(5, 5, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	src.SetNRGBA(6, 5, color.NRGBA{R: 4, G: 5, B: 6, A: 255})

	l := FromImage(src)
	if l.Width != 2 || l.Height != 1 {
		t.Fatalf("size = %dx%d, want 2x1", l.Width, l.Height)
	}
	want := []byte{1, 2, 3, 255, 4, 5, 6, 255}
	if !bytes.Equal(l.Pix, want) {
		t.Errorf("pix = %v, want %v", l.Pix, want)
	}
}

func TestFitSameSizeIsIdentity(t *testing.T) {
	l := solid(4, 4, color.RGBA{R: 9, A: 255})
	if l.Fit(4, 4) != l {
		t.Error("Fit to the same size should return the layer itself")
	}
}

func TestFitScalesSolidColor(t *testing.T) {
	l := solid(8, 8, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	got := l.Fit(32, 16)
	if got.Width != 32 || got.Height != 16 {
		t.Fatalf("size = %dx%d", got.Width, got.Height)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("fitted layer invalid: %v", err)
	}
	for i := 0; i < len(got.Pix); i += 4 {
		for c, want := range []byte{200, 100, 50, 255} {
			d := int(got.Pix[i+c]) - int(want)
			if d < -1 || d > 1 {
				t.Fatalf("byte %d = %d, want %d", i+c, got.Pix[i+c], want)
			}
		}
	}
}

func TestBytesOrder(t *testing.T) {
	l := &Layer{Width: 1, Height: 1, Pix: []byte{1, 2, 3, 4}}
	if got := l.Bytes(OrderRGBA); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("RGBA = %v", got)
	}
	if got := l.Bytes(OrderBGRA); !bytes.Equal(got, []byte{3, 2, 1, 4}) {
		t.Errorf("BGRA = %v", got)
	}
	if !bytes.Equal(l.Pix, []byte{1, 2, 3, 4}) {
		t.Error("OrderBGRA modified the layer")
	}
}

func TestMailbox(t *testing.T) {
	var m Mailbox
	if m.Take() != nil {
		t.Fatal("empty mailbox returned a layer")
	}

	a := solid(1, 1, color.RGBA{R: 1})
	b := solid(1, 1, color.RGBA{R: 2})
	if err := m.Offer(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Offer(b); err != nil {
		t.Fatal(err)
	}
	if m.Replaced() != 1 {
		t.Errorf("Replaced = %d, want 1", m.Replaced())
	}
	if got := m.Take(); got != b {
		t.Error("Take should return the newest layer")
	}
	if m.Take() != nil {
		t.Error("layer taken twice")
	}

	if err := m.Offer(&Layer{}); !errors.Is(err, ErrInvalidLayer) {
		t.Errorf("Offer(invalid) = %v", err)
	}
	if m.Take() != nil {
		t.Error("invalid layer was stored")
	}
}
