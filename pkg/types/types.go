package types

import (
	"errors"
	"fmt"
)

// AlphaThreshold is the opacity at or below which a pixel counts as background
const AlphaThreshold uint8 = 8

// ErrInvalidInput reports a buffer whose length does not match its dimensions,
// non-positive dimensions, or an out-of-range numeric argument.
var ErrInvalidInput = errors.New("invalid input")

// RGB is an opaque color
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// White is the placeholder color carried by a transparent background
var White = RGB{255, 255, 255}

// Background describes what the border of an image is made of.
// When Transparent is set Color is White and carries no meaning.
type Background struct {
	Transparent bool `json:"transparent"`
	Color       RGB  `json:"color"`
}

// TransparentBackground returns the transparent background model
func TransparentBackground() Background {
	return Background{Transparent: true, Color: White}
}

// SolidBackground returns a solid background of the given color
func SolidBackground(c RGB) Background {
	return Background{Color: c}
}

func (b Background) String() string {
	if b.Transparent {
		return "transparent"
	}
	return fmt.Sprintf("solid #%02x%02x%02x", b.Color.R, b.Color.G, b.Color.B)
}

// Bounds is the inclusive content rectangle in source image coordinates
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the number of pixels covered by the bounds
func (b Bounds) Area() int {
	return b.Width * b.Height
}

// Buffer is a flat, row-major RGBA pixel grid with 8 bits per channel.
// Pix holds R,G,B,A for each pixel; its length is Width*Height*4.
type Buffer struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewBuffer wraps pix as a Buffer after checking its length
func NewBuffer(pix []uint8, width, height int) (Buffer, error) {
	b := Buffer{Pix: pix, Width: width, Height: height}
	if err := b.Validate(); err != nil {
		return Buffer{}, err
	}
	return b, nil
}

// Validate checks the dimensions and the length of Pix
func (b Buffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidInput, b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*4 {
		return fmt.Errorf("%w: buffer length %d, want %d for %dx%d",
			ErrInvalidInput, len(b.Pix), b.Width*b.Height*4, b.Width, b.Height)
	}
	return nil
}

// Offset returns the index of the R sample of pixel (x, y)
func (b Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}

// Clone returns a deep copy of the buffer
func (b Buffer) Clone() Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return Buffer{Pix: pix, Width: b.Width, Height: b.Height}
}
