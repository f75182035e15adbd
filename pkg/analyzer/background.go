package analyzer

import (
	"math"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// transparentRatio is the share of transparent border samples above which
// the whole background is treated as transparent.
const transparentRatio = 0.5

// colorBucket accumulates the border samples that quantize to one key
type colorBucket struct {
	count      int
	r, g, b    int
	registered bool
}

// quantizeKey keeps the 4 most significant bits of each channel (16 levels)
// and packs them into a 12-bit key.
func quantizeKey(r, g, b uint8) int {
	return int(r>>4)<<8 | int(g>>4)<<4 | int(b>>4)
}

// DetectBackground samples the four border lines of buf and decides whether
// the background is transparent or a solid color.
//
// Top and bottom rows are walked first, then the left and right columns, so
// corner pixels are sampled twice.
func DetectBackground(buf types.Buffer, alphaThreshold uint8) (types.Background, error) {
	if err := buf.Validate(); err != nil {
		return types.Background{}, err
	}

	var (
		buckets     [1 << 12]colorBucket
		order       []int
		borderCount int
		transparent int
	)

	sample := func(x, y int) {
		i := buf.Offset(x, y)
		r, g, b, a := buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3]
		borderCount++
		if a <= alphaThreshold {
			transparent++
			return
		}

		key := quantizeKey(r, g, b)
		bucket := &buckets[key]
		if !bucket.registered {
			bucket.registered = true
			order = append(order, key)
		}
		bucket.count++
		bucket.r += int(r)
		bucket.g += int(g)
		bucket.b += int(b)
	}

	w, h := buf.Width, buf.Height
	for x := 0; x < w; x++ {
		sample(x, 0)
		sample(x, h-1)
	}
	for y := 0; y < h; y++ {
		sample(0, y)
		sample(w-1, y)
	}

	ratio := 1.0
	if borderCount > 0 {
		ratio = float64(transparent) / float64(borderCount)
	}
	if ratio > transparentRatio || len(order) == 0 {
		return types.TransparentBackground(), nil
	}

	// Strictly greater keeps the first bucket to reach the maximum.
	best := &buckets[order[0]]
	for _, key := range order[1:] {
		if buckets[key].count > best.count {
			best = &buckets[key]
		}
	}

	n := float64(best.count)
	return types.SolidBackground(types.RGB{
		R: uint8(math.Round(float64(best.r) / n)),
		G: uint8(math.Round(float64(best.g) / n)),
		B: uint8(math.Round(float64(best.b) / n)),
	}), nil
}
