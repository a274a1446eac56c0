package app

import (
	"time"

	"urlwatch/internal/config"
	"urlwatch/internal/fetch"
	"urlwatch/internal/notifier"
	"urlwatch/internal/pipeline"
	"urlwatch/internal/storage"
	logx "urlwatch/pkg/logx"
)

func mapLogConfig(cfg config.Config) logx.Config {
	level := cfg.Logging.Level
	if cfg.Debug {
		level = "debug"
	}
	return logx.Config{
		Level:   level,
		Console: cfg.Logging.ConsoleEnabled(),
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func natsTimeout(cfg config.Config) (time.Duration, error) {
	return config.ParseDurationOrDefault("nats.timeout", cfg.NATS.Timeout, 5*time.Second)
}

func mapStorageConfig(cfg config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	nt, err := natsTimeout(cfg)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Location:    cfg.Storage.Location,
		BusyTimeout: busy,
		NATSURL:     cfg.NATS.URL,
		NATSTimeout: nt,
	}, nil
}

func mapFetchConfig(cfg config.Config) (fetch.Config, error) {
	timeout, err := config.ParseDurationOrDefault("fetch.timeout", cfg.Fetch.Timeout, fetch.DefaultTimeout)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Timeout:      timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
		UserAgent:    cfg.Fetch.UserAgent,
		RatePerSec:   cfg.Fetch.RatePerSec,
	}, nil
}

func mapNotifierConfig(cfg config.Config) (notifier.Config, error) {
	nt, err := natsTimeout(cfg)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Driver:           cfg.Notify.Driver,
		Channel:          cfg.Notify.Channel,
		TelegramToken:    cfg.Notify.Telegram.Token,
		TelegramThreadID: cfg.Notify.Telegram.ThreadID,
		NATSURL:          cfg.NATS.URL,
		NATSTimeout:      nt,
	}, nil
}

func mapPipelineConfig(cfg config.Config) (pipeline.Config, error) {
	nt, err := config.ParseDurationOrDefault("notify.timeout", cfg.Notify.Timeout, 10*time.Second)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Resources:     pipeline.Specs(cfg.URLs),
		Workers:       cfg.Pipeline.Workers,
		Location:      cfg.Storage.Location,
		NotifyTimeout: nt,
	}, nil
}
