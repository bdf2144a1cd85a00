// Package capture writes rendered views to PNG files.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// ErrPixelSize is returned when a raw pixel buffer does not match its dimensions.
var ErrPixelSize = errors.New("pixel data size mismatch")

// Writer encodes images as PNG at a fixed bit depth.
type Writer struct {
	// Depth is 8 or 16 bits per channel.
	Depth int
}

// WritePNG encodes img to path, creating parent directories as needed.
func (w Writer) WritePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}

	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(file, w.convert(img)); err != nil {
		file.Close()
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return file.Close()
}

// convert returns img in a layout the PNG encoder writes at the target depth.
func (w Writer) convert(img image.Image) image.Image {
	b := img.Bounds()
	if w.Depth == 8 {
		if _, ok := img.(*image.NRGBA); ok {
			return img
		}
		dst := image.NewNRGBA(b)
		draw.Draw(dst, b, img, b.Min, draw.Src)
		return dst
	}
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		return img
	}
	dst := image.NewNRGBA64(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// FromGL16 converts bottom-up 16-bit RGBA pixels read from OpenGL into a
// top-down image.
func FromGL16(pixels []uint16, width, height int) (*image.NRGBA64, error) {
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrPixelSize, width*height*4, len(pixels))
	}

	img := image.NewNRGBA64(image.Rect(0, 0, width, height))
	rowValues := width * 4
	for y := 0; y < height; y++ {
		src := pixels[(height-1-y)*rowValues : (height-y)*rowValues]
		dst := img.Pix[y*img.Stride : y*img.Stride+rowValues*2]
		for i, v := range src {
			dst[i*2] = byte(v >> 8)
			dst[i*2+1] = byte(v)
		}
	}
	return img, nil
}
