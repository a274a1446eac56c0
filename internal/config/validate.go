package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNoResources       = errors.New("no resource URLs configured (set URL_1 or urls)")
	ErrNoStorageLocation = errors.New("storage location not configured (set DATA_BUCKET or storage.location)")
)

// Validate reports the first fatal configuration problem.
// Errors for the two mandatory settings wrap ErrNoResources / ErrNoStorageLocation.
func Validate(cfg Config) error {
	if len(cfg.URLs) == 0 {
		return ErrNoResources
	}
	for i, u := range cfg.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("urls[%d]: %w", i, ErrNoResources)
		}
	}
	if strings.TrimSpace(cfg.Storage.Location) == "" {
		return ErrNoStorageLocation
	}

	switch cfg.Storage.Driver {
	case "", "file", "sqlite", "sqlite3", "nats":
	default:
		return fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}

	if cfg.NotifyEnabled() {
		switch cfg.Notify.Driver {
		case "", "nats", "log":
		case "telegram":
			if strings.TrimSpace(cfg.Notify.Telegram.Token) == "" {
				return errors.New("notify.telegram.token is required when notify.driver=telegram")
			}
			if _, err := strconv.ParseInt(cfg.Notify.Channel, 10, 64); err != nil {
				return fmt.Errorf("notify.channel must be a numeric chat id for telegram: %q", cfg.Notify.Channel)
			}
		default:
			return fmt.Errorf("unknown notify.driver: %s", cfg.Notify.Driver)
		}
	}

	if cfg.Fetch.MaxBodyBytes < 0 {
		return errors.New("fetch.max_body_bytes must be >= 0")
	}
	if cfg.Fetch.RatePerSec < 0 {
		return errors.New("fetch.rate_per_sec must be >= 0")
	}

	for path, raw := range map[string]string{
		"fetch.timeout":        cfg.Fetch.Timeout,
		"notify.timeout":       cfg.Notify.Timeout,
		"storage.busy_timeout": cfg.Storage.BusyTimeout,
		"nats.timeout":         cfg.NATS.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

// ParseDurationField parses a Go duration string; empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty/zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
