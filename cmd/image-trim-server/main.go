package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taichi-web-engineer/image-trim/internal/config"
	"github.com/taichi-web-engineer/image-trim/internal/server"
	"github.com/taichi-web-engineer/image-trim/internal/utils"
)

func main() {
	var configPath, addr string
	var debug bool

	flag.StringVar(&configPath, "config", "", "JSON config file (default: "+config.GetConfigPath()+" if it exists)")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config and IMAGE_TRIM_ADDR)")
	flag.BoolVar(&debug, "debug", false, "log at debug level and run gin in debug mode")
	flag.Parse()

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if debug {
		cfg.Log.Level = "debug"
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	srv := server.New(cfg, logger).HTTPServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", srv.Addr, "max_upload", utils.FormatFileSize(cfg.Server.MaxUploadBytes))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
