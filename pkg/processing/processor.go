package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for inputs no registered decoder understands
	// and for unknown output format names.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrPixelLimitExceeded is returned when an image has more pixels than allowed
	ErrPixelLimitExceeded = errors.New("image exceeds max pixels limit")
)

// Processor decodes images into pixel buffers and encodes results back
type Processor struct {
	config     Config
	httpClient *http.Client
}

// Config holds limits for loading images
type Config struct {
	// MaxPixels rejects larger images before they are decoded; 0 disables the check
	MaxPixels int
	// Timeout bounds downloads in LoadImageFromURL
	Timeout time.Duration
}

// DefaultConfig returns the limits used by NewProcessor
func DefaultConfig() Config {
	return Config{
		MaxPixels: 100_000_000,
		Timeout:   30 * time.Second,
	}
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return NewProcessorWithConfig(DefaultConfig())
}

// NewProcessorWithConfig creates a processor with custom limits
func NewProcessorWithConfig(config Config) *Processor {
	return &Processor{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, string, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "image-trim/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%w: URL does not point to an image (Content-Type: %s)", ErrUnsupportedFormat, contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image file: %w", err)
	}
	return p.DecodeBytes(data)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeBytes decodes an image and reports the detected format name
func (p *Processor) DecodeBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image data", ErrUnsupportedFormat)
	}

	// Registered decoders first; imaging applies EXIF orientation for JPEG.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := p.checkPixels(cfg.Width, cfg.Height); err != nil {
			return nil, "", err
		}
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
		}
		return img, format, nil
	}

	// Fallback: libwebp handles WebP variants the pure Go decoder does not
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		if err := p.checkPixels(img.Bounds().Dx(), img.Bounds().Dy()); err != nil {
			return nil, "", err
		}
		return img, "webp", nil
	}

	return nil, "", ErrUnsupportedFormat
}

func (p *Processor) checkPixels(width, height int) error {
	if p.config.MaxPixels > 0 && width*height > p.config.MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrPixelLimitExceeded, width, height)
	}
	return nil
}

// DecodeDataURL decodes a base64 image, optionally wrapped in a data URL
func (p *Processor) DecodeDataURL(input string) (image.Image, string, error) {
	data, err := base64.StdEncoding.DecodeString(stripDataPrefix(strings.TrimSpace(input)))
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return p.DecodeBytes(data)
}

// EncodeDataURL encodes img as a PNG data URL
func (p *Processor) EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, img, "png", 0, true); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func stripDataPrefix(input string) string {
	if strings.HasPrefix(strings.ToLower(input), "data:") {
		if idx := strings.Index(input, ","); idx != -1 {
			return input[idx+1:]
		}
	}
	return input
}

// ToNRGBA returns img as an NRGBA image with origin (0,0) and a tight stride.
// The result never aliases img.
func ToNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// BufferOf views the pixels of n as a Buffer. The buffer shares memory with n,
// so inpainting the buffer edits the image.
func BufferOf(n *image.NRGBA) types.Buffer {
	b := n.Bounds()
	if b.Min != (image.Point{}) || n.Stride != b.Dx()*4 {
		n = imaging.Clone(n)
		b = n.Bounds()
	}
	return types.Buffer{Pix: n.Pix, Width: b.Dx(), Height: b.Dy()}
}

// Encode writes img in the named format (png, jpg/jpeg or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch NormalizeFormat(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "jpg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := p.Encode(f, img, format, quality, lossless); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// NormalizeFormat maps format names and extensions to png, jpg or webp.
// Unknown names are returned lower-cased and unchanged.
func NormalizeFormat(format string) string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	switch f {
	case "jpeg", "jpg":
		return "jpg"
	default:
		return f
	}
}

// ContentType returns the MIME type for an output format
func ContentType(format string) string {
	switch NormalizeFormat(format) {
	case "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
