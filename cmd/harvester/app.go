package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/gdao-harvester/pkg/config"
	"github.com/Sriram-PR/gdao-harvester/pkg/fetch"
)

// setupLogger creates a configured logrus.Logger with the given log level
func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Debugf("Setting log level to: %s", level.String())
	}
	return log
}

// loadConfig reads the resolved config file, or returns the defaults when there is none
func loadConfig(explicit string) (*config.AppConfig, string, error) {
	path := config.ResolveConfigPath(explicit)
	if path == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// loadAndValidateConfig loads the config, applies CLI overrides, validates and logs warnings
func loadAndValidateConfig(explicit string, override func(*config.AppConfig), log *logrus.Logger) (*config.AppConfig, error) {
	cfg, path, err := loadConfig(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		log.Info("No config file found, using built-in defaults")
	} else {
		log.Infof("Loaded configuration from %s", path)
	}

	if override != nil {
		override(cfg)
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	logAppConfig(cfg, log)
	return cfg, nil
}

// withSignals cancels the returned context on SIGINT/SIGTERM. A second signal, or a stuck shutdown, exits the process
func withSignals(parent context.Context, log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// newFetchStack builds the shared client, per-host limiter and fetcher. robots is nil unless respect_robots is set
func newFetchStack(cfg *config.AppConfig, log *logrus.Entry) (*fetch.Fetcher, *fetch.RobotsHandler) {
	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	limiter := fetch.NewRateLimiter(cfg.RequestDelay, log.WithField("component", "rate_limiter"))
	fetcher := fetch.NewFetcher(client, cfg, limiter, log.WithField("component", "fetcher"))
	if !cfg.RespectRobots {
		return fetcher, nil
	}
	return fetcher, fetch.NewRobotsHandler(fetcher, cfg.UserAgent, log.WithField("component", "robots"))
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: BaseURL:%s, RequestDelay:%v, RespectRobots:%t, OutputDir:%s, StateDir:%s",
		cfg.BaseURL, cfg.RequestDelay, cfg.RespectRobots, cfg.OutputDir, cfg.StateDir)
	log.Infof("Config Retries: Max:%d, InitialDelay:%v, MaxDelay:%v",
		cfg.MaxRetries, cfg.InitialRetryDelay, cfg.MaxRetryDelay)
	log.Debugf("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		cfg.HTTPClientSettings.Timeout, cfg.HTTPClientSettings.MaxIdleConns, cfg.HTTPClientSettings.MaxIdleConnsPerHost,
		cfg.HTTPClientSettings.IdleConnTimeout, cfg.HTTPClientSettings.TLSHandshakeTimeout, cfg.HTTPClientSettings.DialerTimeout)
	log.Debugf("Config Graph: MaxDepth:%d, MaxPages:%d, SQLite:%t",
		cfg.Graph.MaxDepth, cfg.Graph.MaxPages, config.GetEffectiveEnableSQLite(cfg.Graph))
	log.Debugf("Config Harvest: Listing:%s, ItemDelay:%v, MaxPages:%d, MaxItems:%d, Downloads:%d (per host %d), SkipAttachments:%t",
		cfg.ListingURL(1), cfg.Harvest.ItemDelay, cfg.Harvest.MaxPages, cfg.Harvest.MaxItems,
		cfg.Harvest.MaxConcurrentDownloads, cfg.Harvest.MaxDownloadsPerHost, cfg.Harvest.SkipAttachments)
}
