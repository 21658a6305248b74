package gpu

import (
	"bytes"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestAlignedRowStride(t *testing.T) {
	tests := []struct {
		width uint32
		want  uint32
	}{
		{1, 256},
		{63, 256},
		{64, 256},
		{65, 512},
		{100, 512},
		{128, 512},
		{1920, 7680},
		{1921, 7936},
	}
	for _, tt := range tests {
		if got := AlignedRowStride(tt.width); got != tt.want {
			t.Errorf("AlignedRowStride(%d) = %d, want %d", tt.width, got, tt.want)
		}
	}
}

func TestAlignedRowStrideProperties(t *testing.T) {
	for w := uint32(1); w <= 4096; w++ {
		aligned := AlignedRowStride(w)
		unaligned := UnalignedRowStride(w)
		if aligned < unaligned {
			t.Fatalf("width %d: aligned %d < unaligned %d", w, aligned, unaligned)
		}
		if aligned%copyPitchAlignment != 0 {
			t.Fatalf("width %d: aligned %d not a multiple of %d", w, aligned, copyPitchAlignment)
		}
		if aligned-unaligned >= copyPitchAlignment {
			t.Fatalf("width %d: padding %d exceeds alignment", w, aligned-unaligned)
		}
	}
}

func TestStripRowPadding(t *testing.T) {
	const w, h = 3, 4
	aligned := AlignedRowStride(w)
	src := make([]byte, int(aligned)*h)
	for row := 0; row < h; row++ {
		for i := 0; i < int(aligned); i++ {
			if i < w*4 {
				src[row*int(aligned)+i] = byte(row*16 + i)
			} else {
				src[row*int(aligned)+i] = 0xEE // padding
			}
		}
	}

	got := stripRowPadding(src, w, h, aligned)
	if len(got) != w*h*4 {
		t.Fatalf("len = %d, want %d", len(got), w*h*4)
	}
	if bytes.IndexByte(got, 0xEE) >= 0 {
		t.Error("padding bytes leaked into output")
	}
	removed := len(src) - len(got)
	if want := int(aligned-UnalignedRowStride(w)) * h; removed != want {
		t.Errorf("removed %d bytes, want %d", removed, want)
	}
	for row := 0; row < h; row++ {
		for i := 0; i < w*4; i++ {
			if got[row*w*4+i] != byte(row*16+i) {
				t.Fatalf("row %d byte %d = %d, want %d", row, i, got[row*w*4+i], row*16+i)
			}
		}
	}
}

func TestStripRowPaddingAligned(t *testing.T) {
	const w, h = 64, 2
	src := bytes.Repeat([]byte{1, 2, 3, 4}, w*h)
	got := stripRowPadding(src, w, h, AlignedRowStride(w))
	if !bytes.Equal(got, src) {
		t.Error("aligned rows should be copied unchanged")
	}
	src[0] = 9
	if got[0] == 9 {
		t.Error("output aliases the mapped range")
	}
}

func TestConvertBGRAToRGBA(t *testing.T) {
	pix := []byte{
		10, 20, 30, 40,
		50, 60, 70, 80,
	}
	convertBGRAToRGBA(pix, 2)
	want := []byte{
		30, 20, 10, 40,
		70, 60, 50, 80,
	}
	if !bytes.Equal(pix, want) {
		t.Errorf("got %v, want %v", pix, want)
	}
}

func TestIsBGRA(t *testing.T) {
	if !isBGRA(gputypes.TextureFormatBGRA8Unorm) || !isBGRA(gputypes.TextureFormatBGRA8UnormSrgb) {
		t.Error("BGRA formats not detected")
	}
	if isBGRA(gputypes.TextureFormatRGBA8Unorm) {
		t.Error("RGBA8Unorm reported as BGRA")
	}
}

func TestFrameBufferAt(t *testing.T) {
	fb := &FrameBuffer{
		Width:  2,
		Height: 2,
		Stride: 8,
		Pix: []byte{
			1, 2, 3, 4, 5, 6, 7, 8,
			9, 10, 11, 12, 13, 14, 15, 16,
		},
	}
	if got := fb.At(1, 1); got != [4]byte{13, 14, 15, 16} {
		t.Errorf("At(1,1) = %v", got)
	}
	if got := fb.At(0, 1); got != [4]byte{9, 10, 11, 12} {
		t.Errorf("At(0,1) = %v", got)
	}
}

func TestCaptureFrameNil(t *testing.T) {
	r := &Readback{}
	if _, err := r.CaptureFrame(t.Context(), nil); err == nil {
		t.Fatal("expected error for nil frame")
	}
}
