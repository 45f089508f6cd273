// Package preprocess turns uploaded image bytes into the fixed-shape
// grayscale buffer the digit model consumes.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the MNIST input edge length.
const DefaultSize = 28

// DefaultMaxPixels matches the decompression bomb threshold of Pillow.
const DefaultMaxPixels = 89478485

var ErrTooManyPixels = errors.New("image exceeds pixel limit")

// DecodeError reports bytes that could not be decoded as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode decodes an image of any supported format, applying the EXIF
// orientation if present. The header is inspected first and images with more
// than maxPixels pixels are rejected before any pixel data is allocated.
// maxPixels <= 0 disables the check.
func Decode(content []byte, maxPixels int64) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %dx%d is %d pixels, limit %d",
			ErrTooManyPixels, cfg.Width, cfg.Height, pixels, maxPixels)}
	}

	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return img, nil
}

// Normalize converts img to a size×size single-channel buffer in row-major
// order with intensities scaled to [0,1].
func Normalize(img image.Image, size int) ([]float32, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid target size %d", size)
	}

	gray := imaging.Grayscale(img)
	resized := resize.Resize(uint(size), uint(size), gray, resize.Bilinear)

	bounds := resized.Bounds()
	if bounds.Dx() != size || bounds.Dy() != size {
		return nil, fmt.Errorf("resized image is %dx%d, expected %dx%d", bounds.Dx(), bounds.Dy(), size, size)
	}

	out := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := color.GrayModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			out[y*size+x] = float32(px.Y) / 255.0
		}
	}
	return out, nil
}

// Load reads, decodes and normalizes in one step.
func Load(r io.Reader, size int, maxPixels int64) ([]float32, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := Decode(content, maxPixels)
	if err != nil {
		return nil, err
	}
	return Normalize(img, size)
}
