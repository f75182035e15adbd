package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"

	imagetrim "github.com/taichi-web-engineer/image-trim"
	"github.com/taichi-web-engineer/image-trim/internal/config"
	"github.com/taichi-web-engineer/image-trim/internal/utils"
	"github.com/taichi-web-engineer/image-trim/pkg/processing"
	"github.com/taichi-web-engineer/image-trim/pkg/types"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
	previewSide     = 256
)

var errBadRequest = errors.New("bad request")

// Server serves the trim API
type Server struct {
	trimmer *imagetrim.Trimmer
	config  *config.Config
	logger  *slog.Logger
	engine  *gin.Engine
}

// New creates the server and registers its routes
func New(cfg *config.Config, logger *slog.Logger) *Server {
	trimCfg := imagetrim.DefaultConfig()
	trimCfg.Analyzer.Tolerance = cfg.Trim.Tolerance
	trimCfg.RemoveWatermark = cfg.Trim.RemoveWatermark
	trimCfg.Processing.MaxPixels = cfg.Trim.MaxPixels
	trimCfg.Logger = logger

	s := &Server{
		trimmer: imagetrim.NewWithConfig(trimCfg),
		config:  cfg,
		logger:  logger,
		engine:  gin.New(),
	}
	s.engine.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog())

	s.engine.GET("/healthz", s.health)
	api := s.engine.Group("/api")
	api.POST("/trim", s.trim)
	api.POST("/analyze", s.analyze)

	return s
}

// Handler returns the HTTP handler for the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer returns an http.Server for the configured address
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ksuid.New().String()
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": imagetrim.GetVersion()})
}

// trimRequest is the parsed form of an upload
type trimRequest struct {
	name    string
	image   image.Image
	options imagetrim.Options
	format  string
}

func (s *Server) trim(c *gin.Context) {
	req, err := s.parseRequest(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.trimmer.TrimWithOptions(req.image, req.options)
	if err != nil {
		s.fail(c, err)
		return
	}

	var out bytes.Buffer
	if err := s.trimmer.Processor().Encode(&out, result.Image, req.format, s.config.Output.Quality, true); err != nil {
		s.fail(c, fmt.Errorf("failed to encode result: %w", err))
		return
	}

	b := result.Bounds
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", utils.TrimmedFilename(req.name, req.format)))
	c.Header("X-Trim-Bounds", fmt.Sprintf("%d,%d,%d,%d", b.X, b.Y, b.Width, b.Height))
	c.Header("X-Watermark-Removed", strconv.FormatBool(result.Watermark != nil))
	c.Data(http.StatusOK, processing.ContentType(req.format), out.Bytes())
}

// analyzeResponse is the body of /api/analyze
type analyzeResponse struct {
	RequestID  string           `json:"request_id"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Tolerance  float64          `json:"tolerance"`
	Found      bool             `json:"found"`
	Background types.Background `json:"background"`
	Bounds     *types.Bounds    `json:"bounds"`
	Watermark  *types.Bounds    `json:"watermark"`
	Preview    string           `json:"preview,omitempty"`
}

func (s *Server) analyze(c *gin.Context) {
	req, err := s.parseRequest(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := analyzeResponse{
		RequestID: c.GetString(requestIDKey),
		Width:     req.image.Bounds().Dx(),
		Height:    req.image.Bounds().Dy(),
		Tolerance: req.options.Tolerance,
	}

	result, err := s.trimmer.TrimWithOptions(req.image, req.options)
	switch {
	case errors.Is(err, imagetrim.ErrNoContent):
		resp.Background = result.Background
		c.JSON(http.StatusOK, resp)
		return
	case err != nil:
		s.fail(c, err)
		return
	}

	resp.Found = true
	resp.Background = result.Background
	resp.Bounds = &result.Bounds
	if result.Watermark != nil {
		r := result.WatermarkRegion()
		resp.Watermark = &types.Bounds{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	}

	if on, _ := strconv.ParseBool(c.PostForm("preview")); on {
		processor := s.trimmer.Processor()
		preview, err := processor.EncodeDataURL(processor.Preview(result.Image, previewSide))
		if err != nil {
			s.fail(c, fmt.Errorf("failed to encode preview: %w", err))
			return
		}
		resp.Preview = preview
	}

	c.JSON(http.StatusOK, resp)
}

// parseRequest reads the upload from the multipart "file" field, or from an
// "image" field holding a base64 data URL, plus the trim options.
func (s *Server) parseRequest(c *gin.Context) (trimRequest, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.Server.MaxUploadBytes+1<<20)

	defaults := s.trimmer.Options()
	req := trimRequest{
		options: defaults,
		format:  processing.NormalizeFormat(s.config.Output.DefaultFormat),
	}

	if v := c.PostForm("tolerance"); v != "" {
		tol, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return req, fmt.Errorf("%w: invalid tolerance %q", errBadRequest, v)
		}
		req.options.Tolerance = tol
	}
	if v := c.PostForm("watermark"); v != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return req, fmt.Errorf("%w: invalid watermark flag %q", errBadRequest, v)
		}
		req.options.RemoveWatermark = on
	}
	if v := c.PostForm("format"); v != "" {
		req.format = processing.NormalizeFormat(v)
	}
	switch req.format {
	case "png", "jpg", "webp":
	default:
		return req, fmt.Errorf("%w: unsupported output format %q", errBadRequest, req.format)
	}

	processor := s.trimmer.Processor()

	var (
		img    image.Image
		format string
		err    error
	)
	if dataURL := c.PostForm("image"); dataURL != "" {
		req.name = c.DefaultPostForm("name", "image")
		if img, format, err = processor.DecodeDataURL(dataURL); err != nil {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
	} else {
		img, format, req.name, err = s.readUpload(c)
	}
	if err != nil {
		return req, err
	}
	if !s.trimmer.SupportsFormat(format) {
		return req, fmt.Errorf("%w: %s images are not accepted", errBadRequest, format)
	}
	s.logger.Debug("decoded image", "id", c.GetString(requestIDKey), "name", req.name, "format", format)

	req.image = img
	return req, nil
}

// readUpload decodes the multipart "file" field
func (s *Server) readUpload(c *gin.Context) (image.Image, string, string, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: missing image upload: %v", errBadRequest, err)
	}
	if header.Size > s.config.Server.MaxUploadBytes {
		return nil, "", "", fmt.Errorf("%w: upload of %s exceeds the %s limit", errBadRequest,
			utils.FormatFileSize(header.Size), utils.FormatFileSize(s.config.Server.MaxUploadBytes))
	}

	f, err := header.Open()
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read upload: %w", err)
	}

	img, format, err := s.trimmer.Processor().DecodeBytes(data)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return img, format, header.Filename, nil
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, types.ErrInvalidInput), errors.As(err, &maxBytes):
		status = http.StatusBadRequest
	case errors.Is(err, imagetrim.ErrNoContent):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "id", c.GetString(requestIDKey), "error", err)
	}

	msg := err.Error()
	if errors.Is(err, errBadRequest) {
		msg = strings.TrimPrefix(msg, errBadRequest.Error()+": ")
	}
	c.JSON(status, gin.H{"error": msg, "request_id": c.GetString(requestIDKey)})
}
