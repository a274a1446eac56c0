package config

import "net/url"

// Config is the resolved configuration for one run.
//
// It is built once by Load (file, then .env file, then process environment)
// and handed to constructors by value. Nothing mutates it afterwards.
type Config struct {
	// URLs are the watched resources. Position i (0-based) is resource index i+1,
	// which is also the storage key. Reordering the list repoints stored history.
	URLs []string `json:"urls"`

	Storage  StorageConfig  `json:"storage"`
	Notify   NotifyConfig   `json:"notify"`
	Fetch    FetchConfig    `json:"fetch"`
	Pipeline PipelineConfig `json:"pipeline"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	NATS     NATSConfig     `json:"nats"`

	// Region is an endpoint/region hint for the storage and notify backends.
	// It is logged and reported, backends that have no notion of region ignore it.
	Region string `json:"region,omitempty"`

	// Debug forces the log level to debug.
	Debug bool `json:"debug,omitempty"`
}

// StorageConfig selects and configures the state store.
//
// Example:
//
//	"storage": { "driver": "file", "location": "./state" }
type StorageConfig struct {
	// Driver is one of "file" (default), "sqlite", "nats".
	Driver string `json:"driver,omitempty"`
	// Location is the directory (file), database path (sqlite) or bucket
	// prefix (nats). Required.
	Location    string `json:"location"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifyConfig controls the change alert. An empty Channel disables alerting.
type NotifyConfig struct {
	// Driver is one of "nats" (default), "telegram", "log".
	Driver  string `json:"driver,omitempty"`
	Channel string `json:"channel,omitempty"`
	// Timeout bounds the single notify call (Go duration string, default "10s").
	Timeout  string                `json:"timeout,omitempty"`
	Telegram NotifyTelegramConfig `json:"telegram,omitempty"`
}

type NotifyTelegramConfig struct {
	Token    string `json:"token,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// FetchConfig controls the resource fetcher.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
//
// Defaults (when fields are omitted/zero):
//   - timeout: "10s"
//   - max_body_bytes: 0 (unlimited)
//   - rate_per_sec: 0 (no pacing)
type FetchConfig struct {
	Timeout      string  `json:"timeout,omitempty"`
	MaxBodyBytes int64   `json:"max_body_bytes,omitempty"`
	UserAgent    string  `json:"user_agent,omitempty"`
	RatePerSec   float64 `json:"rate_per_sec,omitempty"`
}

// PipelineConfig controls per-run fan-out. Workers <= 1 means sequential.
type PipelineConfig struct {
	Workers int `json:"workers,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MetricsConfig enables a single push of run metrics to a Prometheus push gateway.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url,omitempty"`
	Job            string `json:"job,omitempty"`
}

// NATSConfig is shared by the nats storage and notify drivers.
type NATSConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"` // connect timeout, Go duration string
}

// ConsoleEnabled reports whether console logging is on (default true).
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// NotifyEnabled reports whether a change alert will be attempted.
func (c Config) NotifyEnabled() bool {
	return c.Notify.Channel != ""
}

// Redacted returns a copy safe to print: secrets are masked and URL
// passwords are replaced.
func (c Config) Redacted() Config {
	cp := c
	cp.URLs = make([]string, len(c.URLs))
	for i, u := range c.URLs {
		cp.URLs[i] = redactURL(u)
	}
	if cp.Notify.Telegram.Token != "" {
		cp.Notify.Telegram.Token = "***"
	}
	cp.NATS.URL = redactURL(c.NATS.URL)
	cp.Metrics.PushgatewayURL = redactURL(c.Metrics.PushgatewayURL)
	return cp
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		// user-only userinfo is usually a token
		u.User = url.User("xxxxx")
	}
	return u.Redacted()
}
