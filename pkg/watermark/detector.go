package watermark

import (
	"fmt"
	"image"
	"math"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// Detector finds a small bright, low-saturation blob in the bottom-right
// corner of an image, the usual shape of a stamped logo or signature.
type Detector struct {
	config DetectionConfig
}

// DetectionConfig holds the thresholds used by detection and inpainting
type DetectionConfig struct {
	// MinDimension disables detection when the shorter side is below it
	MinDimension int
	// PatchRatio of the shorter side gives the search patch size,
	// clamped to [MinPatch, MaxPatch]
	PatchRatio float64
	MinPatch   int
	MaxPatch   int
	// OpaqueAlpha is the lowest alpha a pixel needs to be sampled
	OpaqueAlpha uint8
	// DeltaRatio of (255 - median luma) is how much brighter than the median
	// a candidate must be, clamped to [MinDelta, MaxDelta]
	DeltaRatio float64
	MinDelta   int
	MaxDelta   int
	// MaxSpread is the exclusive limit on max-min channel spread for a
	// pixel to count as neutral
	MaxSpread int
	// MinBlobPixels and MaxBlobRatio (of the patch area) bound the accepted blob
	MinBlobPixels int
	MaxBlobRatio  float64

	// RadiusRatio of the shorter side gives the inpainting radius,
	// clamped to [MinRadius, MaxRadius]
	RadiusRatio float64
	MinRadius   int
	MaxRadius   int
	// NeighborAlpha is the lowest alpha a neighbor needs to be averaged
	NeighborAlpha uint8
}

// DefaultConfig returns the thresholds tuned for small corner watermarks
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		MinDimension:  40,
		PatchRatio:    0.18,
		MinPatch:      40,
		MaxPatch:      140,
		OpaqueAlpha:   16,
		DeltaRatio:    0.18,
		MinDelta:      10,
		MaxDelta:      42,
		MaxSpread:     70,
		MinBlobPixels: 40,
		MaxBlobRatio:  0.35,
		RadiusRatio:   0.01,
		MinRadius:     3,
		MaxRadius:     8,
		NeighborAlpha: 8,
	}
}

// New creates a new Detector with default configuration
func New() *Detector {
	return &Detector{config: DefaultConfig()}
}

// NewWithConfig creates a new Detector with custom configuration
func NewWithConfig(config DetectionConfig) *Detector {
	return &Detector{config: config}
}

// Region represents a rectangular area of the image
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Contains reports whether (x, y) lies inside the region
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Rect converts the region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Blob is one 4-connected set of watermark pixels
type Blob struct {
	// Pixels are linear indices y*Width+x, without duplicates
	Pixels []int
	// Width is the row length the indices were computed with
	Width int
	// Patch is the bottom-right search area the blob was found in
	Patch Region
}

// Size returns the number of pixels in the blob
func (b Blob) Size() int {
	return len(b.Pixels)
}

// Bounds returns the smallest region enclosing every blob pixel
func (b Blob) Bounds() Region {
	if len(b.Pixels) == 0 || b.Width <= 0 {
		return Region{}
	}
	minX, minY := math.MaxInt, math.MaxInt
	maxX, maxY := -1, -1
	for _, idx := range b.Pixels {
		x, y := idx%b.Width, idx/b.Width
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return Region{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
}

// Detect looks for a watermark with the default configuration
func Detect(buf types.Buffer) (Blob, bool, error) {
	return New().Detect(buf)
}

// PatchSize returns the side of the square search patch for a width x height image
func (d *Detector) PatchSize(width, height int) int {
	shorter := min(width, height)
	return clampInt(int(math.Round(float64(shorter)*d.config.PatchRatio)), d.config.MinPatch, d.config.MaxPatch)
}

// Detect scans the bottom-right patch of buf for the largest connected group
// of pixels that are neutral and clearly brighter than the patch median.
// ok is false when the image is too small, the patch has no opaque pixels, or
// the largest group is too small or too large to be a watermark.
func (d *Detector) Detect(buf types.Buffer) (Blob, bool, error) {
	if err := buf.Validate(); err != nil {
		return Blob{}, false, err
	}

	w, h := buf.Width, buf.Height
	if min(w, h) < d.config.MinDimension {
		return Blob{}, false, nil
	}

	size := d.PatchSize(w, h)
	startX, startY := max(0, w-size), max(0, h-size)
	patch := Region{X: startX, Y: startY, Width: w - startX, Height: h - startY}

	median, samples := d.medianLuma(buf, patch)
	if samples == 0 {
		return Blob{}, false, nil
	}

	delta := clampInt(int(math.Round(float64(255-median)*d.config.DeltaRatio)), d.config.MinDelta, d.config.MaxDelta)
	candidates := d.markCandidates(buf, patch, float64(median+delta))

	best := largestComponent(candidates, patch, w)
	maxSize := float64(size*size) * d.config.MaxBlobRatio
	if len(best) < d.config.MinBlobPixels || float64(len(best)) > maxSize {
		return Blob{}, false, nil
	}

	return Blob{Pixels: best, Width: w, Patch: patch}, true, nil
}

// medianLuma builds a 256-bin luma histogram of the opaque pixels in patch
// and returns the smallest bin whose cumulative count reaches half the samples.
func (d *Detector) medianLuma(buf types.Buffer, patch Region) (median, samples int) {
	var histogram [256]int
	for y := patch.Y; y < patch.Y+patch.Height; y++ {
		i := buf.Offset(patch.X, y)
		for x := 0; x < patch.Width; x, i = x+1, i+4 {
			if buf.Pix[i+3] < d.config.OpaqueAlpha {
				continue
			}
			l := int(math.Round(luma(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])))
			histogram[l]++
			samples++
		}
	}
	if samples == 0 {
		return 0, 0
	}

	target := float64(samples) / 2
	cumulative := 0
	for bin, count := range histogram {
		cumulative += count
		if float64(cumulative) >= target {
			return bin, samples
		}
	}
	return 255, samples
}

// markCandidates returns a patch-local mask of opaque, neutral pixels whose
// luma is at least threshold.
func (d *Detector) markCandidates(buf types.Buffer, patch Region, threshold float64) []bool {
	mask := make([]bool, patch.Area())
	for py := 0; py < patch.Height; py++ {
		i := buf.Offset(patch.X, patch.Y+py)
		for px := 0; px < patch.Width; px, i = px+1, i+4 {
			if buf.Pix[i+3] < d.config.OpaqueAlpha {
				continue
			}
			r, g, b := buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2]
			spread := int(max(r, g, b)) - int(min(r, g, b))
			if spread < d.config.MaxSpread && luma(r, g, b) >= threshold {
				mask[py*patch.Width+px] = true
			}
		}
	}
	return mask
}

// largestComponent flood-fills the candidate mask with an explicit stack and
// returns the biggest 4-connected component as image-wide linear indices.
// On equal sizes the component found first in row-major order wins.
func largestComponent(candidates []bool, patch Region, width int) []int {
	visited := make([]bool, len(candidates))
	var (
		best  []int
		stack []int
	)

	for start := range candidates {
		if !candidates[start] || visited[start] {
			continue
		}

		var pixels []int
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			px, py := cur%patch.Width, cur/patch.Width
			pixels = append(pixels, (patch.Y+py)*width+patch.X+px)

			push := func(n int) {
				if candidates[n] && !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
			if px > 0 {
				push(cur - 1)
			}
			if px+1 < patch.Width {
				push(cur + 1)
			}
			if py > 0 {
				push(cur - patch.Width)
			}
			if py+1 < patch.Height {
				push(cur + patch.Width)
			}
		}

		if len(pixels) > len(best) {
			best = pixels
		}
	}

	return best
}

// luma is the BT.709 weighted brightness of an RGB triple
func luma(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validateBlob(buf types.Buffer, blob Blob) error {
	if blob.Width != buf.Width {
		return fmt.Errorf("%w: blob indexed for width %d, buffer width %d", types.ErrInvalidInput, blob.Width, buf.Width)
	}
	n := buf.Width * buf.Height
	for _, idx := range blob.Pixels {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: blob pixel %d outside %dx%d", types.ErrInvalidInput, idx, buf.Width, buf.Height)
		}
	}
	return nil
}
