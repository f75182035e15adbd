package analyzer

import (
	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// FindTrimBounds scans every pixel of buf and returns the smallest rectangle
// holding all pixels that are not background. ok is false when the whole
// image is background.
//
// For a solid background a pixel is background when the sum of squared
// channel differences to the background color is at most tolerance²·3.
func FindTrimBounds(buf types.Buffer, bg types.Background, tolerance float64) (bounds types.Bounds, ok bool, err error) {
	return findBounds(buf, bg, tolerance, types.AlphaThreshold)
}

func findBounds(buf types.Buffer, bg types.Background, tolerance float64, alphaThreshold uint8) (types.Bounds, bool, error) {
	if err := buf.Validate(); err != nil {
		return types.Bounds{}, false, err
	}
	if err := ValidateTolerance(tolerance); err != nil {
		return types.Bounds{}, false, err
	}

	tolSquared := tolerance * tolerance * 3
	bgR, bgG, bgB := int(bg.Color.R), int(bg.Color.G), int(bg.Color.B)

	w, h := buf.Width, buf.Height
	minX, minY := w, h
	maxX, maxY := -1, -1

	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := int(buf.Pix[i]), int(buf.Pix[i+1]), int(buf.Pix[i+2]), buf.Pix[i+3]
			i += 4

			if a <= alphaThreshold {
				continue
			}
			if !bg.Transparent {
				dr, dg, db := r-bgR, g-bgG, b-bgB
				if float64(dr*dr+dg*dg+db*db) <= tolSquared {
					continue
				}
			}

			if x < minX {
				minX = x
			}
			if y < minY {
				minY = y
			}
			if x > maxX {
				maxX = x
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if maxX == -1 || maxY == -1 {
		return types.Bounds{}, false, nil
	}

	return types.Bounds{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, true, nil
}
