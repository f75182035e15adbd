package watermark

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

var (
	darkGray   = color.NRGBA{60, 60, 60, 255}
	markGray   = color.NRGBA{230, 230, 230, 255}
	orange     = color.NRGBA{250, 150, 60, 255}
	clearPixel = color.NRGBA{0, 0, 0, 0}
	markedSide = 334 // patch side 60
)

func newFilled(width, height int, c color.NRGBA) types.Buffer {
	pix := make([]uint8, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = c.R, c.G, c.B, c.A
	}
	return types.Buffer{Pix: pix, Width: width, Height: height}
}

func fillRect(buf types.Buffer, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := buf.Offset(x, y)
			buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = c.R, c.G, c.B, c.A
		}
	}
}

func pixelLuma(buf types.Buffer, idx int) float64 {
	o := idx * 4
	return luma(buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2])
}

// createMarkedImage creates a dark image with a thin bright bar in the bottom-right corner
func createMarkedImage() (types.Buffer, image.Rectangle) {
	buf := newFilled(markedSide, markedSide, darkGray)
	bar := image.Rect(290, 320, 330, 323) // 40x3
	fillRect(buf, bar, markGray)
	return buf, bar
}

func TestNew(t *testing.T) {
	d := New()
	require.NotNil(t, d)
	assert.Equal(t, DefaultConfig(), d.config)
}

func TestNewWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBlobPixels = 5
	d := NewWithConfig(cfg)
	assert.Equal(t, 5, d.config.MinBlobPixels)
}

func TestPatchSize(t *testing.T) {
	d := New()
	assert.Equal(t, 40, d.PatchSize(40, 40))
	assert.Equal(t, 40, d.PatchSize(200, 1000))
	assert.Equal(t, 60, d.PatchSize(markedSide, markedSide))
	assert.Equal(t, 140, d.PatchSize(4000, 3000))
}

func TestRegion(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 100, Height: 80}

	assert.Equal(t, 8000, r.Area())
	assert.True(t, r.Contains(10, 20))
	assert.True(t, r.Contains(109, 99))
	assert.False(t, r.Contains(110, 50))
	assert.Equal(t, image.Rect(10, 20, 110, 100), r.Rect())
}

func TestDetectFindsCornerMark(t *testing.T) {
	buf, bar := createMarkedImage()

	blob, ok, err := Detect(buf)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, bar.Dx()*bar.Dy(), blob.Size())
	assert.Equal(t, Region{X: 274, Y: 274, Width: 60, Height: 60}, blob.Patch)
	assert.Equal(t, Region{X: 290, Y: 320, Width: 40, Height: 3}, blob.Bounds())

	seen := make(map[int]bool, blob.Size())
	for _, idx := range blob.Pixels {
		x, y := idx%buf.Width, idx/buf.Width
		assert.True(t, blob.Patch.Contains(x, y), "pixel (%d,%d) outside patch", x, y)
		assert.False(t, seen[idx], "duplicate pixel %d", idx)
		seen[idx] = true
	}
}

func TestDetectClipsMarkToPatch(t *testing.T) {
	buf := newFilled(markedSide, markedSide, darkGray)
	// The bar starts left of the patch; only the part inside is returned.
	fillRect(buf, image.Rect(250, 320, 300, 323), markGray)

	blob, ok, err := Detect(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 26*3, blob.Size())
	assert.Equal(t, Region{X: 274, Y: 320, Width: 26, Height: 3}, blob.Bounds())
}

func TestDetectSmallImage(t *testing.T) {
	for _, size := range [][2]int{{39, 39}, {39, 400}, {400, 20}, {1, 1}} {
		buf := newFilled(size[0], size[1], darkGray)
		fillRect(buf, image.Rect(0, 0, size[0], size[1]/2), markGray)

		_, ok, err := Detect(buf)
		require.NoError(t, err)
		assert.False(t, ok, "size %v", size)
	}
}

func TestDetectRejections(t *testing.T) {
	tests := []struct {
		name  string
		paint func(buf types.Buffer)
	}{
		{"plain image", func(buf types.Buffer) {}},
		{"too small", func(buf types.Buffer) {
			fillRect(buf, image.Rect(300, 300, 313, 303), markGray) // 39 px
		}},
		{"too large", func(buf types.Buffer) {
			fillRect(buf, image.Rect(274, 310, 334, 334), markGray) // 1440 px > 1260
		}},
		{"saturated", func(buf types.Buffer) {
			fillRect(buf, image.Rect(290, 320, 330, 323), orange)
		}},
		{"outside patch", func(buf types.Buffer) {
			fillRect(buf, image.Rect(10, 10, 50, 13), markGray)
		}},
		{"transparent patch", func(buf types.Buffer) {
			fillRect(buf, image.Rect(200, 200, 334, 334), clearPixel)
		}},
		{"barely brighter", func(buf types.Buffer) {
			// luma 90 < median 60 + delta 35
			fillRect(buf, image.Rect(290, 320, 330, 323), color.NRGBA{90, 90, 90, 255})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newFilled(markedSide, markedSide, darkGray)
			tt.paint(buf)

			_, ok, err := Detect(buf)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDetectKeepsFirstOfEqualComponents(t *testing.T) {
	buf := newFilled(markedSide, markedSide, darkGray)
	fillRect(buf, image.Rect(290, 290, 330, 293), markGray)
	fillRect(buf, image.Rect(290, 320, 330, 323), markGray)

	blob, ok, err := Detect(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Region{X: 290, Y: 290, Width: 40, Height: 3}, blob.Bounds())
}

func TestDetectKeepsLargestComponent(t *testing.T) {
	buf := newFilled(markedSide, markedSide, darkGray)
	fillRect(buf, image.Rect(290, 290, 330, 293), markGray)
	fillRect(buf, image.Rect(280, 320, 330, 323), markGray)

	blob, ok, err := Detect(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150, blob.Size())
}

func TestDetectDiagonalPixelsAreSeparate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBlobPixels = 1
	d := NewWithConfig(cfg)

	buf := newFilled(markedSide, markedSide, darkGray)
	fillRect(buf, image.Rect(300, 300, 301, 301), markGray)
	fillRect(buf, image.Rect(301, 301, 302, 302), markGray)

	blob, ok, err := d.Detect(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, blob.Size())
}

func TestDetectInvalidInput(t *testing.T) {
	_, _, err := Detect(types.Buffer{Pix: make([]uint8, 3), Width: 1, Height: 1})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestMedianLuma(t *testing.T) {
	d := New()
	buf := newFilled(10, 10, color.NRGBA{100, 100, 100, 255})
	fillRect(buf, image.Rect(0, 0, 10, 4), color.NRGBA{200, 200, 200, 255})
	fillRect(buf, image.Rect(0, 9, 10, 10), clearPixel)

	median, samples := d.medianLuma(buf, Region{Width: 10, Height: 10})
	assert.Equal(t, 90, samples)
	assert.Equal(t, 100, median)
}

func TestLuma(t *testing.T) {
	assert.InDelta(t, 255.0, luma(255, 255, 255), 1e-9)
	assert.InDelta(t, 0.7152*255, luma(0, 255, 0), 1e-9)
	assert.InDelta(t, 0.0, luma(0, 0, 0), 1e-9)
}

func BenchmarkDetect(b *testing.B) {
	buf, _ := createMarkedImage()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = Detect(buf)
	}
}
