// Package imagetrim removes uniform or transparent borders from raster images
// and can erase a small bright watermark from the bottom-right corner of the
// trimmed result.
//
// Basic usage:
//
//	package main
//
//	import (
//		"errors"
//		"fmt"
//		"log"
//
//		imagetrim "github.com/taichi-web-engineer/image-trim"
//	)
//
//	func main() {
//		trimmer := imagetrim.New()
//
//		out, result, err := trimmer.TrimFile("scan.png", "out")
//		if errors.Is(err, imagetrim.ErrNoContent) {
//			log.Fatal("the image is entirely background")
//		}
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("wrote %s (%dx%d)\n", out, result.Bounds.Width, result.Bounds.Height)
//	}
//
// The pipeline runs in this order:
//
// 1. Analyzer (pkg/analyzer): infers the background from the image border and
// finds the rectangle of non-background pixels
// 2. Cropper (pkg/cropper): copies that rectangle out
// 3. Watermark (pkg/watermark): finds the largest bright, unsaturated blob in the
// bottom-right corner of the crop and paints over it with nearby colors
//
// Decoding and encoding live in pkg/processing.
package imagetrim

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/taichi-web-engineer/image-trim/internal/utils"
	"github.com/taichi-web-engineer/image-trim/pkg/analyzer"
	"github.com/taichi-web-engineer/image-trim/pkg/cropper"
	"github.com/taichi-web-engineer/image-trim/pkg/processing"
	"github.com/taichi-web-engineer/image-trim/pkg/types"
	"github.com/taichi-web-engineer/image-trim/pkg/watermark"
)

// Version of the image trim library
const Version = "1.0.0"

// ErrNoContent is returned when every pixel of the image is background
var ErrNoContent = errors.New("no content found: the image is entirely background")

// Trimmer provides a high-level interface for trimming images.
// It holds no mutable state and is safe for concurrent use.
type Trimmer struct {
	analyzer  *analyzer.ImageAnalyzer
	detector  *watermark.Detector
	processor *processing.Processor
	options   Options
	logger    *slog.Logger
}

// Config configures a Trimmer
type Config struct {
	Analyzer   analyzer.Config
	Watermark  watermark.DetectionConfig
	Processing processing.Config
	// RemoveWatermark enables the watermark pass by default
	RemoveWatermark bool
	// Logger receives debug output; nil discards it
	Logger *slog.Logger
}

// Options are the per-call knobs of a trim
type Options struct {
	Tolerance       float64 `json:"tolerance"`
	RemoveWatermark bool    `json:"remove_watermark"`
}

// Result is the outcome of trimming one image
type Result struct {
	// Image is the trimmed and possibly inpainted image
	Image *image.NRGBA `json:"-"`
	// Watermark is the erased blob in Image coordinates, nil when none was found
	Watermark *watermark.Blob `json:"-"`

	Bounds     types.Bounds       `json:"bounds"`
	Background types.Background   `json:"background"`
	Original   analyzer.ImageInfo `json:"original"`
}

// WatermarkRegion returns the bounding box of the erased watermark in
// original image coordinates, or an empty rectangle.
func (r Result) WatermarkRegion() image.Rectangle {
	if r.Watermark == nil {
		return image.Rectangle{}
	}
	return r.Watermark.Bounds().Rect().Add(image.Pt(r.Bounds.X, r.Bounds.Y))
}

// DefaultConfig returns the configuration used by New
func DefaultConfig() Config {
	return Config{
		Analyzer: analyzer.Config{
			Tolerance:        analyzer.DefaultTolerance,
			AlphaThreshold:   types.AlphaThreshold,
			SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff"},
		},
		Watermark:       watermark.DefaultConfig(),
		Processing:      processing.DefaultConfig(),
		RemoveWatermark: true,
	}
}

// New creates a new Trimmer with default configuration
func New() *Trimmer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Trimmer with custom configuration
func NewWithConfig(config Config) *Trimmer {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Trimmer{
		analyzer:  analyzer.NewWithConfig(config.Analyzer),
		detector:  watermark.NewWithConfig(config.Watermark),
		processor: processing.NewProcessorWithConfig(config.Processing),
		options: Options{
			Tolerance:       config.Analyzer.Tolerance,
			RemoveWatermark: config.RemoveWatermark,
		},
		logger: logger,
	}
}

// Options returns the defaults Trim uses
func (t *Trimmer) Options() Options {
	return t.options
}

// Processor returns the decoder/encoder used by TrimFile
func (t *Trimmer) Processor() *processing.Processor {
	return t.processor
}

// SupportsFormat reports whether a decoder format name is accepted
func (t *Trimmer) SupportsFormat(format string) bool {
	return t.analyzer.IsFormatSupported(format)
}

// Trim trims img with the configured options
func (t *Trimmer) Trim(img image.Image) (Result, error) {
	return t.TrimWithOptions(img, t.options)
}

// TrimWithOptions trims img with per-call options
func (t *Trimmer) TrimWithOptions(img image.Image, opts Options) (Result, error) {
	if err := t.analyzer.ValidateImage(img); err != nil {
		return Result{}, err
	}
	if err := analyzer.ValidateTolerance(opts.Tolerance); err != nil {
		return Result{}, err
	}

	src := processing.ToNRGBA(img)
	buf, err := types.NewBuffer(src.Pix, src.Rect.Dx(), src.Rect.Dy())
	if err != nil {
		return Result{}, err
	}
	analysis, err := t.analyzer.AnalyzeWithTolerance(buf, opts.Tolerance)
	if err != nil {
		return Result{}, fmt.Errorf("analysis failed: %w", err)
	}

	result := Result{
		Background: analysis.Background,
		Original:   t.analyzer.GetImageInfo(img),
	}
	if !analysis.Found {
		t.logger.Debug("no content", "background", analysis.Background.String(), "tolerance", opts.Tolerance)
		return result, ErrNoContent
	}
	result.Bounds = analysis.Bounds

	cropped, err := cropper.CropImage(src, analysis.Bounds)
	if err != nil {
		return Result{}, fmt.Errorf("crop failed: %w", err)
	}

	t.logger.Debug("trimmed",
		"background", analysis.Background.String(),
		"from", fmt.Sprintf("%dx%d", buf.Width, buf.Height),
		"bounds", analysis.Bounds)

	if opts.RemoveWatermark {
		// BufferOf shares memory with cropped, so the inpainting lands in the result
		blob, found, err := t.detector.Remove(processing.BufferOf(cropped))
		if err != nil {
			return Result{}, fmt.Errorf("watermark removal failed: %w", err)
		}
		if found {
			result.Watermark = &blob
			t.logger.Debug("watermark removed", "pixels", blob.Size(), "region", blob.Bounds())
		}
	}

	result.Image = cropped
	return result, nil
}

// TrimFile loads source (a path or an http(s) URL), trims it and writes
// <name>--trim.png into outputDir. It returns the written path.
func (t *Trimmer) TrimFile(source, outputDir string) (string, Result, error) {
	img, _, err := t.processor.LoadImageSmart(source)
	if err != nil {
		return "", Result{}, fmt.Errorf("failed to load image: %w", err)
	}

	result, err := t.Trim(img)
	if err != nil {
		return "", result, err
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return "", result, fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := utils.GenerateOutputFilename(source, outputDir, "", utils.TrimSuffix, "png")
	if err := t.processor.SaveImage(result.Image, outputPath, "png", 0, true); err != nil {
		return "", result, fmt.Errorf("failed to save trimmed image: %w", err)
	}

	return outputPath, result, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
