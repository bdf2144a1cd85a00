package capture

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func testImage() *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, 4, 3))
	img.SetRGBA64(1, 1, color.RGBA64{R: 0x1234, G: 0x5678, B: 0x9abc, A: 0xffff})
	return img
}

func TestWritePNG16(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "view.png")
	if err := (Writer{Depth: 16}).WritePNG(path, testImage()); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	img := readPNG(t, path)
	if _, ok := img.(*image.NRGBA64); !ok {
		t.Errorf("decoded %T, want 16-bit NRGBA64", img)
	}
	r, g, b, a := img.At(1, 1).RGBA()
	if r != 0x1234 || g != 0x5678 || b != 0x9abc || a != 0xffff {
		t.Errorf("pixel = (%#x, %#x, %#x, %#x)", r, g, b, a)
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Errorf("background alpha = %#x, want transparent", a)
	}
}

func TestWritePNG8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.png")
	if err := (Writer{Depth: 8}).WritePNG(path, testImage()); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if img := readPNG(t, path); img.ColorModel() != color.NRGBAModel {
		t.Errorf("decoded model %v, want 8-bit NRGBA", img.ColorModel())
	}
}

func TestFromGL16(t *testing.T) {
	// 1x2 image: bottom row red, top row green, as OpenGL returns them.
	pixels := []uint16{
		0xffff, 0, 0, 0xffff,
		0, 0xffff, 0, 0xffff,
	}
	img, err := FromGL16(pixels, 1, 2)
	if err != nil {
		t.Fatalf("FromGL16: %v", err)
	}
	if r, g, _, _ := img.At(0, 0).RGBA(); g != 0xffff || r != 0 {
		t.Errorf("top pixel should be green, got r=%#x g=%#x", r, g)
	}
	if r, g, _, _ := img.At(0, 1).RGBA(); r != 0xffff || g != 0 {
		t.Errorf("bottom pixel should be red, got r=%#x g=%#x", r, g)
	}
}

func TestFromGL16SizeMismatch(t *testing.T) {
	_, err := FromGL16(make([]uint16, 7), 2, 1)
	if !errors.Is(err, ErrPixelSize) {
		t.Errorf("expected ErrPixelSize, got %v", err)
	}
}
