package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// Rect converts trim bounds to a rectangle relative to origin
func Rect(b types.Bounds, origin image.Point) image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height).Add(origin)
}

// CheckBounds reports whether b is a non-empty rectangle inside a width x height image
func CheckBounds(b types.Bounds, width, height int) error {
	if b.Width < 1 || b.Height < 1 || b.X < 0 || b.Y < 0 || b.X+b.Width > width || b.Y+b.Height > height {
		return fmt.Errorf("%w: crop %dx%d at (%d,%d) outside %dx%d image",
			types.ErrInvalidInput, b.Width, b.Height, b.X, b.Y, width, height)
	}
	return nil
}

// CropImage copies the bounds out of img into a new image whose origin is (0,0).
// Bounds are relative to img.Bounds().Min.
func CropImage(img image.Image, b types.Bounds) (*image.NRGBA, error) {
	src := img.Bounds()
	if err := CheckBounds(b, src.Dx(), src.Dy()); err != nil {
		return nil, err
	}
	return imaging.Crop(img, Rect(b, src.Min)), nil
}
