package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LookupFunc resolves an environment variable. os.LookupEnv is the default.
type LookupFunc func(key string) (string, bool)

// LoadOptions tells Load where configuration comes from.
type LoadOptions struct {
	// Path is an optional JSON/YAML config file.
	Path string
	// EnvFile is an optional dotenv file. Its values sit below the process
	// environment: a variable set in both places takes the process value.
	EnvFile string
	// Lookup overrides the process environment (tests).
	Lookup LookupFunc
}

// Environment variables understood by the overlay.
const (
	EnvURLPrefix       = "URL_"
	EnvDataBucket      = "DATA_BUCKET"
	EnvStorageDriver   = "STORAGE_DRIVER"
	EnvAlertChannel    = "ALERT_CHANNEL"
	EnvAlertSNSChannel = "ALERT_SNS_CHANNEL"
	EnvNotifyDriver    = "NOTIFY_DRIVER"
	EnvRegion          = "REGION"
	EnvAWSRegion       = "AWS_REGION"
	EnvNATSURL         = "NATS_URL"
	EnvTelegramToken   = "TELEGRAM_TOKEN"
	EnvPushgatewayURL  = "PUSHGATEWAY_URL"
	EnvWorkers         = "WORKERS"
	EnvDebug           = "DEBUG"
)

// Load resolves and validates the run configuration.
//
// Precedence, lowest first: config file, dotenv file, process environment.
// A validation failure is returned before any backend is touched.
func Load(opts LoadOptions) (Config, error) {
	var cfg Config
	if p := strings.TrimSpace(opts.Path); p != "" {
		if err := parseFile(p, &cfg); err != nil {
			return Config{}, err
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if p := strings.TrimSpace(opts.EnvFile); p != "" {
		vals, err := godotenv.Read(p)
		if err != nil {
			return Config{}, fmt.Errorf("env file %s: %w", p, err)
		}
		lookup = layered(lookup, vals)
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func layered(primary LookupFunc, fallback map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	// URL_1, URL_2, ... are read until the first gap. When URL_1 is present the
	// environment list replaces any list from the config file.
	if urls := readURLs(lookup); len(urls) > 0 {
		cfg.URLs = urls
	}

	if v, ok := get(EnvDataBucket); ok {
		cfg.Storage.Location = v
	}
	if v, ok := get(EnvStorageDriver); ok {
		cfg.Storage.Driver = v
	}
	if v, ok := get(EnvAlertChannel, EnvAlertSNSChannel); ok {
		cfg.Notify.Channel = v
	}
	if v, ok := get(EnvNotifyDriver); ok {
		cfg.Notify.Driver = v
	}
	if v, ok := get(EnvRegion, EnvAWSRegion); ok {
		cfg.Region = v
	}
	if v, ok := get(EnvNATSURL); ok {
		cfg.NATS.URL = v
	}
	if v, ok := get(EnvTelegramToken); ok {
		cfg.Notify.Telegram.Token = v
	}
	if v, ok := get(EnvPushgatewayURL); ok {
		cfg.Metrics.PushgatewayURL = v
	}
	if v, ok := get(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvWorkers, v)
		}
		cfg.Pipeline.Workers = n
	}
	if v, ok := get(EnvDebug); ok {
		cfg.Debug = isTruthy(v)
	}
	return nil
}

func readURLs(lookup LookupFunc) []string {
	var urls []string
	for i := 1; ; i++ {
		v, ok := lookup(EnvURLPrefix + strconv.Itoa(i))
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return urls
		}
		urls = append(urls, v)
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func applyDefaults(cfg *Config) {
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	cfg.Notify.Driver = strings.ToLower(strings.TrimSpace(cfg.Notify.Driver))
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "nats"
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = 1
	}
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = "urlwatch"
	}
	for i := range cfg.URLs {
		cfg.URLs[i] = strings.TrimSpace(cfg.URLs[i])
	}
}
