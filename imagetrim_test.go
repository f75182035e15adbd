package imagetrim

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

var (
	white    = color.NRGBA{255, 255, 255, 255}
	darkGray = color.NRGBA{60, 60, 60, 255}
	markGray = color.NRGBA{230, 230, 230, 255}
)

// createTestImage creates a 300x300 white image with a dark 250x250 square
// whose bottom-right corner carries a light bar at (235,265)-(270,268)
func createTestImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	fill(img, img.Bounds(), white)
	fill(img, image.Rect(25, 25, 275, 275), darkGray)
	fill(img, image.Rect(235, 265, 270, 268), markGray)
	return img
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func TestNew(t *testing.T) {
	trimmer := New()
	require.NotNil(t, trimmer)

	assert.NotNil(t, trimmer.analyzer)
	assert.NotNil(t, trimmer.detector)
	assert.NotNil(t, trimmer.Processor())
	assert.Equal(t, Options{Tolerance: 10, RemoveWatermark: true}, trimmer.Options())
}

func TestNewWithConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analyzer.Tolerance = 42
	cfg.RemoveWatermark = false

	trimmer := NewWithConfig(cfg)
	assert.Equal(t, Options{Tolerance: 42}, trimmer.Options())
}

func TestSupportsFormat(t *testing.T) {
	trimmer := New()
	assert.True(t, trimmer.SupportsFormat("webp"))
	assert.True(t, trimmer.SupportsFormat("JPEG"))
	assert.False(t, trimmer.SupportsFormat("svg"))
}

func TestTrimSolidBorder(t *testing.T) {
	result, err := New().TrimWithOptions(createTestImage(), Options{Tolerance: 10})
	require.NoError(t, err)

	assert.Equal(t, types.Bounds{X: 25, Y: 25, Width: 250, Height: 250}, result.Bounds)
	assert.Equal(t, types.SolidBackground(types.White), result.Background)
	assert.Equal(t, 300, result.Original.Width)
	assert.Equal(t, image.Rect(0, 0, 250, 250), result.Image.Bounds())
	assert.Nil(t, result.Watermark)
	assert.True(t, result.WatermarkRegion().Empty())

	assert.Equal(t, darkGray, result.Image.NRGBAAt(0, 0))
	assert.Equal(t, markGray, result.Image.NRGBAAt(215, 241))
}

func TestTrimRemovesWatermark(t *testing.T) {
	result, err := New().Trim(createTestImage())
	require.NoError(t, err)
	require.NotNil(t, result.Watermark)

	assert.Equal(t, 35*3, result.Watermark.Size())
	assert.Equal(t, image.Rect(235, 265, 270, 268), result.WatermarkRegion())

	for y := 240; y < 243; y++ {
		for x := 210; x < 245; x++ {
			assert.Equal(t, darkGray, result.Image.NRGBAAt(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestTrimSubImage(t *testing.T) {
	img := createTestImage().SubImage(image.Rect(10, 10, 290, 290))

	result, err := New().Trim(img)
	require.NoError(t, err)
	require.NotNil(t, result.Watermark)

	assert.Equal(t, types.Bounds{X: 15, Y: 15, Width: 250, Height: 250}, result.Bounds)
	assert.Equal(t, image.Rect(0, 0, 250, 250), result.Image.Bounds())
	assert.Equal(t, image.Rect(225, 255, 260, 258), result.WatermarkRegion())
	assert.Equal(t, darkGray, result.Image.NRGBAAt(220, 241))
}

func TestTrimDoesNotModifyInput(t *testing.T) {
	img := createTestImage()
	before := append([]uint8(nil), img.Pix...)

	_, err := New().Trim(img)
	require.NoError(t, err)
	assert.Equal(t, before, img.Pix)
}

func TestTrimTransparent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	img.SetNRGBA(7, 9, color.NRGBA{10, 20, 30, 255})

	result, err := New().Trim(img)
	require.NoError(t, err)

	assert.True(t, result.Background.Transparent)
	assert.Equal(t, types.Bounds{X: 7, Y: 9, Width: 1, Height: 1}, result.Bounds)
	assert.Equal(t, color.NRGBA{10, 20, 30, 255}, result.Image.NRGBAAt(0, 0))
}

func TestTrimAlreadyTrimmed(t *testing.T) {
	trimmer := New()
	first, err := trimmer.TrimWithOptions(createTestImage(), Options{Tolerance: 10})
	require.NoError(t, err)

	// The crop's own border is the content color, so it becomes the background
	// and only the bar remains.
	second, err := trimmer.TrimWithOptions(first.Image, Options{Tolerance: 10})
	require.NoError(t, err)
	assert.Equal(t, types.SolidBackground(types.RGB{R: 60, G: 60, B: 60}), second.Background)
	assert.Equal(t, types.Bounds{X: 210, Y: 240, Width: 35, Height: 3}, second.Bounds)
}

func TestTrimNoContent(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	fill(img, img.Bounds(), white)

	result, err := New().Trim(img)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, types.SolidBackground(types.White), result.Background)
	assert.Nil(t, result.Image)
}

func TestTrimInvalidInput(t *testing.T) {
	trimmer := New()

	_, err := trimmer.Trim(image.NewNRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = trimmer.TrimWithOptions(createTestImage(), Options{Tolerance: -1})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestTrimConcurrent(t *testing.T) {
	trimmer := New()
	img := createTestImage()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = trimmer.Trim(img)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestTrimFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "scan.png")

	f, err := os.Create(input)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, createTestImage()))
	require.NoError(t, f.Close())

	outDir := filepath.Join(dir, "out")
	out, result, err := New().TrimFile(input, outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "scan--trim.png"), out)
	assert.NotNil(t, result.Watermark)

	saved, _, err := New().Processor().LoadImage(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 250, 250), saved.Bounds())
}

func TestTrimFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := New().TrimFile(filepath.Join(dir, "missing.png"), dir)
	assert.ErrorIs(t, err, os.ErrNotExist)

	blank := filepath.Join(dir, "blank.png")
	f, err := os.Create(blank)
	require.NoError(t, err)
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	fill(img, img.Bounds(), white)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	_, _, err = New().TrimFile(blank, dir)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}

func BenchmarkTrim(b *testing.B) {
	trimmer := New()
	img := createTestImage()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = trimmer.Trim(img)
	}
}
