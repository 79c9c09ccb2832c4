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
	"strings"
	"syscall"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/daemon"
	"ttrgbplus/internal/events"
	"ttrgbplus/internal/sensor"
	"ttrgbplus/internal/store"
	"ttrgbplus/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const (
	systemConfig = "/etc/linux_thermaltake_rgb_plus/config.yml"
	localConfig  = "config.yml"
)

func main() {
	cfgFlag := flag.String("config", "", "config file (default "+systemConfig+", then ./"+localConfig+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath, err := resolveConfigPath(*cfgFlag)
	if err != nil {
		bootLogger.Error("locate config", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "path", cfgPath, "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("ttrgbplus starting", "version", version, "config", cfgPath)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	hwmon := sensor.NewHwmon(cfg.Sensors.HwmonRoot)
	var sensors sensor.Reader = hwmon
	if cfg.Sensors.Smoothing > 1 {
		sensors = sensor.NewSmoothed(hwmon, cfg.Sensors.Smoothing)
	}

	bus := events.NewBus(logger)
	d, err := daemon.New(cfg, daemon.Options{
		Sensors: sensors,
		Store:   db,
		Bus:     bus,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("initialize", "err", err)
		db.Close()
		os.Exit(1)
	}
	defer d.Close()

	// Start MQTT bridge (no-op when built with no_mqtt tag). It subscribes
	// before the groups start so the first writes are published.
	mqtt := initMQTT(d, cfg, logger)

	webOpts := []web.ServerOption{
		web.WithVersion(version),
		web.WithSensors(hwmon),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webServer := web.NewServer(d, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	if err := d.Start(); err != nil {
		logger.Error("start daemon", "err", err)
		mqtt.Stop()
		webServer.Stop()
		d.Close()
		db.Close()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// Stopping the daemon saves each controller's profile.
	d.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()

	logger.Info("goodbye")
}

// resolveConfigPath returns the explicit path, or the system config when it
// exists, or the local one.
func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, p := range []string{systemConfig, localConfig} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found at %s or ./%s", systemConfig, localConfig)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
