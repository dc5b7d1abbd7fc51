package engine

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
)

// SavePNG writes an image to a PNG file.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ToImage converts a frame buffer's color plane to an 8-bit RGBA image with
// gamma 2.0, matching the GPU readback path.
func ToImage(fb *FrameBuffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.Width, fb.Height))
	for i := 0; i < fb.Width*fb.Height; i++ {
		off := i * 4
		img.Pix[off] = gammaByte(fb.Color[off])
		img.Pix[off+1] = gammaByte(fb.Color[off+1])
		img.Pix[off+2] = gammaByte(fb.Color[off+2])
		img.Pix[off+3] = 255
	}
	return img
}

func gammaByte(v float32) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	g := math.Sqrt(float64(v))
	return uint8(g*255.0 + 0.5)
}
