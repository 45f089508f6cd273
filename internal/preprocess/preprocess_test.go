package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode_PNGAndJPEG(t *testing.T) {
	src := solid(40, 30, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	img, err := Decode(encodePNG(t, src), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, nil))
	img, err = Decode(buf.Bytes(), DefaultMaxPixels)
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestDecode_InvalidBytes(t *testing.T) {
	cases := map[string][]byte{
		"plain text": []byte("this is definitely not an image"),
		"empty":      {},
		"truncated":  encodePNG(t, solid(10, 10, color.White))[:20],
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data, DefaultMaxPixels)
			require.Error(t, err)

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
			assert.True(t, strings.HasPrefix(err.Error(), "decode image:"))
		})
	}
}

func TestDecode_PixelLimit(t *testing.T) {
	content := encodePNG(t, image.NewGray(image.Rect(0, 0, 400, 300)))

	_, err := Decode(content, 400*300-1)
	require.Error(t, err)
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.True(t, errors.Is(err, ErrTooManyPixels))

	img, err := Decode(content, 400*300)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())

	_, err = Decode(content, 0)
	assert.NoError(t, err)
}

func TestNormalize_ShapeAndRange(t *testing.T) {
	sizes := []image.Rectangle{
		image.Rect(0, 0, 280, 280),
		image.Rect(0, 0, 3, 5),
		image.Rect(0, 0, 1024, 17),
		image.Rect(10, 10, 60, 90),
	}
	for _, r := range sizes {
		src := image.NewNRGBA(r)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				src.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8(x + y), A: 255})
			}
		}

		out, err := Normalize(src, DefaultSize)
		require.NoError(t, err)
		require.Len(t, out, DefaultSize*DefaultSize)
		for _, v := range out {
			assert.GreaterOrEqual(t, v, float32(0))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestNormalize_Intensities(t *testing.T) {
	white, err := Normalize(solid(100, 100, color.White), DefaultSize)
	require.NoError(t, err)
	black, err := Normalize(solid(100, 100, color.Black), DefaultSize)
	require.NoError(t, err)

	for i := range white {
		assert.InDelta(t, 1.0, white[i], 0.01)
		assert.InDelta(t, 0.0, black[i], 0.01)
	}

	// left half black, right half white
	split := solid(280, 280, color.Black)
	for y := 0; y < 280; y++ {
		for x := 140; x < 280; x++ {
			split.Set(x, y, color.White)
		}
	}
	out, err := Normalize(split, DefaultSize)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0], 0.01)
	assert.InDelta(t, 1.0, out[DefaultSize-1], 0.01)
}

func TestNormalize_Deterministic(t *testing.T) {
	src := solid(64, 48, color.RGBA{R: 90, G: 160, B: 30, A: 255})
	a, err := Normalize(src, DefaultSize)
	require.NoError(t, err)
	b, err := Normalize(src, DefaultSize)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalize_InvalidSize(t *testing.T) {
	_, err := Normalize(solid(4, 4, color.White), 0)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	out, err := Load(bytes.NewReader(encodePNG(t, solid(56, 56, color.White))), 14, DefaultMaxPixels)
	require.NoError(t, err)
	assert.Len(t, out, 14*14)

	_, err = Load(strings.NewReader("nope"), 14, DefaultMaxPixels)
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}
