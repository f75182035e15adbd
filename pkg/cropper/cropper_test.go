package cropper

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// createTestImage creates a gradient image so every pixel is distinguishable
func createTestImage(rect image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(rect)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestCropImage(t *testing.T) {
	img := createTestImage(image.Rect(0, 0, 40, 30))

	out, err := CropImage(img, types.Bounds{X: 5, Y: 7, Width: 10, Height: 3})
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 10, 3), out.Bounds())
	assert.Equal(t, color.NRGBA{5, 7, 128, 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{14, 9, 128, 255}, out.NRGBAAt(9, 2))
}

func TestCropImageOffsetOrigin(t *testing.T) {
	img := createTestImage(image.Rect(100, 50, 140, 80))

	out, err := CropImage(img, types.Bounds{X: 1, Y: 2, Width: 4, Height: 4})
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	assert.Equal(t, color.NRGBA{101, 52, 128, 255}, out.NRGBAAt(0, 0))
}

func TestCropImageOutOfRange(t *testing.T) {
	img := createTestImage(image.Rect(0, 0, 10, 10))

	tests := []types.Bounds{
		{X: 0, Y: 0, Width: 0, Height: 5},
		{X: -1, Y: 0, Width: 5, Height: 5},
		{X: 6, Y: 0, Width: 5, Height: 5},
		{X: 0, Y: 8, Width: 5, Height: 3},
	}
	for _, b := range tests {
		_, err := CropImage(img, b)
		assert.ErrorIs(t, err, types.ErrInvalidInput, "bounds %+v", b)
	}
}

func TestCropImageWholeImage(t *testing.T) {
	img := createTestImage(image.Rect(0, 0, 8, 8))

	out, err := CropImage(img, types.Bounds{Width: 8, Height: 8})
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)

	// The copy does not alias the source.
	out.Pix[0] = 255
	assert.Equal(t, uint8(0), img.Pix[0])
}
