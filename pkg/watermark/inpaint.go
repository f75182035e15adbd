package watermark

import (
	"math"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// Inpaint erases blob from buf with the default configuration
func Inpaint(buf types.Buffer, blob Blob) error {
	return New().Inpaint(buf, blob)
}

// InpaintRadius returns the half-size of the averaging window for a width x height image
func (d *Detector) InpaintRadius(width, height int) int {
	shorter := min(width, height)
	return clampInt(int(math.Round(float64(shorter)*d.config.RadiusRatio)), d.config.MinRadius, d.config.MaxRadius)
}

// Inpaint replaces every blob pixel of buf, in place, with the rounded RGBA
// mean of the non-blob pixels in the surrounding (2r+1)² square that are at
// least NeighborAlpha opaque. A pixel with no such neighbor is left unchanged.
//
// Neighbors never include blob pixels and only blob pixels are written, so the
// result does not depend on the order of blob.Pixels.
func (d *Detector) Inpaint(buf types.Buffer, blob Blob) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if len(blob.Pixels) == 0 {
		return nil
	}
	if err := validateBlob(buf, blob); err != nil {
		return err
	}

	w, h := buf.Width, buf.Height
	mask := make([]bool, w*h)
	for _, idx := range blob.Pixels {
		mask[idx] = true
	}

	radius := d.InpaintRadius(w, h)
	for _, idx := range blob.Pixels {
		x, y := idx%w, idx/w
		var rSum, gSum, bSum, aSum, count int

		for ny := max(0, y-radius); ny <= min(h-1, y+radius); ny++ {
			for nx := max(0, x-radius); nx <= min(w-1, x+radius); nx++ {
				n := ny*w + nx
				if mask[n] {
					continue
				}
				o := n * 4
				a := buf.Pix[o+3]
				if a < d.config.NeighborAlpha {
					continue
				}
				rSum += int(buf.Pix[o])
				gSum += int(buf.Pix[o+1])
				bSum += int(buf.Pix[o+2])
				aSum += int(a)
				count++
			}
		}

		if count == 0 {
			continue
		}
		o := idx * 4
		c := float64(count)
		buf.Pix[o] = uint8(math.Round(float64(rSum) / c))
		buf.Pix[o+1] = uint8(math.Round(float64(gSum) / c))
		buf.Pix[o+2] = uint8(math.Round(float64(bSum) / c))
		buf.Pix[o+3] = uint8(math.Round(float64(aSum) / c))
	}

	return nil
}

// Remove detects a watermark in buf and inpaints it. ok reports whether one was found.
func (d *Detector) Remove(buf types.Buffer) (Blob, bool, error) {
	blob, ok, err := d.Detect(buf)
	if err != nil || !ok {
		return Blob{}, false, err
	}
	if err := d.Inpaint(buf, blob); err != nil {
		return Blob{}, false, err
	}
	return blob, true, nil
}
