// Guardian - personal safety companion server
// Tracks the user location, maps nearby threats and dispatches emergencies
// raised by panic buttons, voice commands and the camera.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-guardian/internal/config"
	"github.com/teslashibe/go-guardian/internal/log"
	"github.com/teslashibe/go-guardian/pkg/guardian"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	app, err := guardian.New(cfg)
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, environment and flags, in
// that order.
func loadConfig() (guardian.Config, error) {
	cfg := guardian.DefaultConfig()

	configPath := flag.String("config", config.ConfigPath(), "Path to JSON config file")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", "", "HTTP port (overrides GUARDIAN_PORT)")
	staticDir := flag.String("static", "", "Dashboard static files directory")
	autoResponse := flag.String("auto-response", "", "Auto response level: none, notify, assist, full")
	refresh := flag.Duration("refresh", 0, "Threat map refresh interval")
	model := flag.String("yolo-model", "", "YOLO ONNX model path (enables weapon detection)")
	camera := flag.String("camera-url", "", "Camera JPEG snapshot URL")
	flag.Parse()

	if err := cfg.LoadFileConfig(*configPath); err != nil {
		return cfg, err
	}
	cfg.LoadEnvConfig()

	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if *autoResponse != "" {
		cfg.AutoResponseLevel = *autoResponse
	}
	if *refresh > 0 {
		cfg.RefreshInterval = *refresh
	}
	if *model != "" {
		cfg.YOLOModelPath = *model
		if cfg.DetectionInterval <= 0 {
			cfg.DetectionInterval = time.Second
		}
	}
	if *camera != "" {
		cfg.CameraSnapshotURL = *camera
	}
	return cfg, nil
}
