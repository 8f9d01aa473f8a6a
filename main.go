package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"radiorec-tui/config"
	"radiorec-tui/player"
	"radiorec-tui/session"
	"radiorec-tui/store"
	"radiorec-tui/stream"
	"radiorec-tui/tui"
)

// defaultBackendURL can be set at build time via -ldflags "-X main.defaultBackendURL=http://..."
var defaultBackendURL string

func main() {
	volumePercent := flag.Int("volume", -1, "Initial volume (0-100), -1 means use saved config")
	streamURL := flag.String("stream-url", "", "Live stream URL (overrides config)")
	backendURL := flag.String("backend-url", defaultBackendURL, "Recording backend base URL (overrides config)")
	transport := flag.String("transport", "", "Stream transport: http or websocket (overrides config)")
	flag.Parse()

	// .env is optional; real environment always wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("⚠ failed to load config, using defaults: %v\n", err)
	}

	if *volumePercent >= 0 {
		cfg.Volume = float64(*volumePercent) / 100.0
		if cfg.Volume > 1 {
			cfg.Volume = 1
		}
	}
	if *streamURL != "" {
		cfg.StreamURL = *streamURL
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *transport == config.TransportHTTP || *transport == config.TransportWebSocket {
		cfg.Transport = *transport
	}

	appDir, err := config.Dir()
	if err != nil {
		fmt.Printf("❌ cannot prepare config directory: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(filepath.Join(appDir, "radiorec.log"))
	defer logger.Sync()

	kv := store.NewFileKV(filepath.Join(appDir, "storage.json"))
	deviceID, err := store.DeviceID(kv)
	if err != nil {
		fmt.Printf("❌ cannot establish device identity: %v\n", err)
		os.Exit(1)
	}
	logger.Info("starting",
		zap.String("device_id", deviceID),
		zap.String("transport", cfg.Transport),
		zap.String("stream_url", cfg.StreamURL))

	catalog := store.NewCatalog(kv, deviceID, logger)
	backend := session.NewClient(cfg.BackendURL, logger)
	controller := session.NewController(backend, catalog, deviceID, cfg, logger)

	var factory player.Factory
	switch cfg.Transport {
	case config.TransportWebSocket:
		factory = player.NewWSFactory(cfg.Volume)
	default:
		factory = player.NewHTTPFactory(cfg.Volume, cfg.CacheBust)
	}
	manager := stream.NewManager(cfg, factory, logger)

	fmt.Println("🚀 starting interface...")
	if err := tui.Run(manager, controller, backend, logger, cfg); err != nil {
		fmt.Printf("❌ interface error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes structured logs to a file; stdout belongs to the TUI.
func newLogger(path string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
