package analyzer

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

// ImageAnalyzer finds the background of an image and the rectangle of content inside it
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	// Tolerance is how far (per channel, RMS) a pixel may drift from the
	// background color and still count as background.
	Tolerance        float64
	AlphaThreshold   uint8
	SupportedFormats []string
}

// DefaultTolerance matches the initial position of the tolerance slider
const DefaultTolerance = 10

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			Tolerance:        DefaultTolerance,
			AlphaThreshold:   types.AlphaThreshold,
			SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff"},
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// Tolerance returns the configured tolerance
func (a *ImageAnalyzer) Tolerance() float64 {
	return a.config.Tolerance
}

// Analysis is the outcome of analysing one buffer
type Analysis struct {
	Background types.Background `json:"background"`
	Bounds     types.Bounds     `json:"bounds"`
	// Found is false when every pixel was classified as background
	Found bool `json:"found"`
}

// Analyze detects the background of buf and the content bounds at the configured tolerance
func (a *ImageAnalyzer) Analyze(buf types.Buffer) (Analysis, error) {
	return a.AnalyzeWithTolerance(buf, a.config.Tolerance)
}

// AnalyzeWithTolerance is Analyze with a per-call tolerance
func (a *ImageAnalyzer) AnalyzeWithTolerance(buf types.Buffer, tolerance float64) (Analysis, error) {
	bg, err := DetectBackground(buf, a.config.AlphaThreshold)
	if err != nil {
		return Analysis{}, err
	}

	bounds, found, err := findBounds(buf, bg, tolerance, a.config.AlphaThreshold)
	if err != nil {
		return Analysis{}, err
	}

	return Analysis{Background: bg, Bounds: bounds, Found: found}, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// IsFormatSupported reports whether a decoder format name is accepted
func (a *ImageAnalyzer) IsFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks that an image has something to trim
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return fmt.Errorf("%w: image dimensions %dx%d", types.ErrInvalidInput, bounds.Dx(), bounds.Dy())
	}
	return nil
}

// ValidateTolerance rejects negative and NaN tolerances
func ValidateTolerance(tolerance float64) error {
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) || tolerance < 0 {
		return fmt.Errorf("%w: tolerance %v", types.ErrInvalidInput, tolerance)
	}
	return nil
}
