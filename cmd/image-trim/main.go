package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/ksuid"

	imagetrim "github.com/taichi-web-engineer/image-trim"
	"github.com/taichi-web-engineer/image-trim/internal/config"
	"github.com/taichi-web-engineer/image-trim/internal/utils"
	"github.com/taichi-web-engineer/image-trim/pkg/processing"
)

// report is written next to the trimmed image
type report struct {
	RunID     string           `json:"run_id"`
	Source    string           `json:"source"`
	Output    string           `json:"output"`
	Tolerance float64          `json:"tolerance"`
	Result    imagetrim.Result `json:"result"`
	Watermark *watermarkReport `json:"watermark,omitempty"`
}

// runOptions are the per-run flags that are not part of the config file
type runOptions struct {
	runID    string
	preview  int
	lossless bool
	debug    bool
	dbgext   string
	report   bool
}

type watermarkReport struct {
	Pixels int `json:"pixels"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func main() {
	var in, outDir, ext, configPath, saveConfig string
	var tolerance float64
	var quality int
	var watermark bool
	var opts runOptions

	flag.StringVar(&in, "in", "", "input image path, URL or directory of images (jpg/png/gif/webp)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config, \".\")")
	flag.StringVar(&configPath, "config", "", "JSON config file (default: "+config.GetConfigPath()+" if it exists)")
	flag.StringVar(&saveConfig, "save-config", "", "write the effective config to this path and exit")

	flag.Float64Var(&tolerance, "tolerance", 10, "how far a pixel may drift from the background color (0-100)")
	flag.BoolVar(&watermark, "watermark", true, "remove a bright watermark from the bottom-right corner")

	flag.StringVar(&ext, "ext", "png", "output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 90, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&opts.lossless, "lossless", true, "WebP output lossless mode")
	flag.IntVar(&opts.preview, "preview", 0, "also write a preview scaled to this max side (px), 0=off")

	flag.BoolVar(&opts.debug, "debug", false, "log at debug level and write a debug overlay")
	flag.StringVar(&opts.dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	flag.BoolVar(&opts.report, "report", false, "write a JSON report next to the output")

	flag.Parse()
	if in == "" && saveConfig == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in input.png|URL|dir [-out outdir] [-tolerance 10] [-watermark=false] [-ext png|jpg|webp] [-debug]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tolerance":
			cfg.Trim.Tolerance = tolerance
		case "watermark":
			cfg.Trim.RemoveWatermark = watermark
		case "ext":
			cfg.Output.DefaultFormat = processing.NormalizeFormat(ext)
		case "quality":
			cfg.Output.Quality = quality
		case "out":
			cfg.Output.OutputDir = outDir
		}
	})
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid options: %v\n", err)
		os.Exit(2)
	}

	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", saveConfig)
		if in == "" {
			return
		}
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	opts.runID = ksuid.New().String()
	logger = logger.With("run", opts.runID)

	trimmer := newTrimmer(cfg, logger)
	if utils.DirExists(in) {
		err = runBatch(logger, trimmer, cfg, opts, in)
	} else {
		err = run(logger, trimmer, cfg, opts, in)
	}
	if err != nil {
		if errors.Is(err, imagetrim.ErrNoContent) {
			fmt.Fprintln(os.Stderr, "No content besides the margins was found. Adjust -tolerance and try again.")
			os.Exit(3)
		}
		logger.Error("trim failed", "source", in, "error", err)
		os.Exit(1)
	}
}

func newTrimmer(cfg *config.Config, logger *slog.Logger) *imagetrim.Trimmer {
	trimCfg := imagetrim.DefaultConfig()
	trimCfg.Analyzer.Tolerance = cfg.Trim.Tolerance
	trimCfg.RemoveWatermark = cfg.Trim.RemoveWatermark
	trimCfg.Processing.MaxPixels = cfg.Trim.MaxPixels
	trimCfg.Logger = logger
	return imagetrim.NewWithConfig(trimCfg)
}

func ensureOutputDir(logger *slog.Logger, dir string) error {
	if utils.DirExists(dir) {
		return nil
	}
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	logger.Info("created output directory", "path", dir)
	return nil
}

// runBatch trims every image below dir. Images that are entirely background
// are skipped; any other failure fails the batch after all files were tried.
func runBatch(logger *slog.Logger, trimmer *imagetrim.Trimmer, cfg *config.Config, opts runOptions, dir string) error {
	files, err := utils.ListImageFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	var failed, skipped int
	for _, file := range files {
		err := run(logger, trimmer, cfg, opts, file)
		switch {
		case errors.Is(err, imagetrim.ErrNoContent):
			skipped++
			logger.Warn("skipped, no content besides the margins", "source", file)
		case err != nil:
			failed++
			logger.Error("trim failed", "source", file, "error", err)
		}
	}

	logger.Info("batch done", "images", len(files), "skipped", skipped, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(files))
	}
	return nil
}

func run(logger *slog.Logger, trimmer *imagetrim.Trimmer, cfg *config.Config, opts runOptions, in string) error {
	processor := trimmer.Processor()

	if err := ensureOutputDir(logger, cfg.Output.OutputDir); err != nil {
		return err
	}
	img, format, err := processor.LoadImageSmart(in)
	if err != nil {
		return err
	}
	logger.Info("loaded", "source", in, "format", format, "size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()))

	result, err := trimmer.Trim(img)
	if err != nil {
		return err
	}

	outFormat := processing.NormalizeFormat(cfg.Output.DefaultFormat)
	outPath := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Prefix, cfg.Output.Suffix, outFormat)
	if err := processor.SaveImage(result.Image, outPath, outFormat, cfg.Output.Quality, opts.lossless); err != nil {
		return err
	}
	logger.Info("wrote", "path", outPath,
		"bounds", fmt.Sprintf("%dx%d@%d,%d", result.Bounds.Width, result.Bounds.Height, result.Bounds.X, result.Bounds.Y),
		"background", result.Background.String(),
		"watermark", result.Watermark != nil)

	if opts.preview > 0 {
		previewPath := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, cfg.Output.Prefix, cfg.Output.Suffix+"-preview", outFormat)
		if err := processor.SaveImage(processor.Preview(result.Image, opts.preview), previewPath, outFormat, cfg.Output.Quality, opts.lossless); err != nil {
			logger.Warn("preview save failed", "path", previewPath, "error", err)
		} else {
			logger.Info("wrote", "path", previewPath)
		}
	}

	if opts.debug {
		dbgext := processing.NormalizeFormat(opts.dbgext)
		dbg := processor.CreateDebugOverlay(img, result.Bounds, result.WatermarkRegion())
		dbgPath := filepath.Join(cfg.Output.OutputDir, fmt.Sprintf("%s--debug-%s.%s", utils.BaseName(in), opts.runID, dbgext))
		if err := processor.SaveImage(dbg, dbgPath, dbgext, 92, false); err != nil {
			logger.Warn("debug overlay save failed", "path", dbgPath, "error", err)
		} else {
			logger.Debug("wrote", "path", dbgPath)
		}
	}

	if opts.report {
		rep := report{
			RunID:     opts.runID,
			Source:    in,
			Output:    outPath,
			Tolerance: cfg.Trim.Tolerance,
			Result:    result,
		}
		if result.Watermark != nil {
			r := result.WatermarkRegion()
			rep.Watermark = &watermarkReport{Pixels: result.Watermark.Size(), X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
		}
		js, _ := json.MarshalIndent(rep, "", "  ")
		reportPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".json"
		if err := os.WriteFile(reportPath, js, 0o644); err != nil {
			logger.Warn("report save failed", "path", reportPath, "error", err)
		}
	}

	return nil
}
