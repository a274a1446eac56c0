// Package app wires configuration, storage, fetching and alerting into one
// invocation of the change-detection pipeline.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"urlwatch/internal/config"
	"urlwatch/internal/fetch"
	"urlwatch/internal/metrics"
	"urlwatch/internal/notifier"
	"urlwatch/internal/pipeline"
	"urlwatch/internal/storage"
	logx "urlwatch/pkg/logx"
)

// Options tells Invoke where to find configuration.
type Options struct {
	ConfigPath string
	EnvFile    string
	// Lookup overrides the process environment (tests).
	Lookup config.LookupFunc
	// Debug forces debug logging regardless of configuration.
	Debug bool
	// HTTPClient is used for fetches; nil means a default client.
	HTTPClient *http.Client
}

// Result is what the trigger sees: 200/"success" or 500 with the error text.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

const bodySuccess = "success"

// Invoke runs the pipeline once.
func Invoke(ctx context.Context, opts Options) Result {
	if _, err := Run(ctx, opts); err != nil {
		return Result{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}
	return Result{StatusCode: http.StatusOK, Body: bodySuccess}
}

// Run is Invoke with the full pipeline result.
func Run(ctx context.Context, opts Options) (pipeline.RunResult, error) {
	start := time.Now()

	cfg, err := loadConfig(opts)
	if err != nil {
		logx.NewConsole("info").Error("invalid configuration", logx.Err(err))
		return pipeline.RunResult{}, err
	}

	runID := uuid.NewString()
	log, closer := logx.New(mapLogConfig(cfg))
	defer closer.Close()
	// The pipeline tags its own lines with run_id.
	alog := log.With(logx.String("comp", "app"), logx.String("run_id", runID))

	var rec metrics.Recorder = metrics.NoopRecorder{}
	var prec *metrics.PrometheusRecorder
	if cfg.Metrics.PushgatewayURL != "" {
		prec = metrics.NewPrometheusRecorder(nil)
		rec = prec
	}
	// finish records the outcome and pushes metrics once, on every path past
	// config loading.
	finish := func(res pipeline.RunResult, err error) (pipeline.RunResult, error) {
		rec.ObserveRun(time.Since(start), err == nil)
		if prec != nil {
			pushMetrics(ctx, alog, prec, cfg)
		}
		if err != nil {
			return failRun(alog, err)
		}
		return res, nil
	}

	pcfg, err := mapPipelineConfig(cfg)
	if err != nil {
		return finish(pipeline.RunResult{}, err)
	}
	fcfg, err := mapFetchConfig(cfg)
	if err != nil {
		return finish(pipeline.RunResult{}, err)
	}

	alog.Info("run starting",
		logx.Int("resources", len(cfg.URLs)),
		logx.String("storage", cfg.Storage.Driver),
		logx.String("location", cfg.Storage.Location),
		logx.Bool("notify", cfg.NotifyEnabled()),
		logx.String("region", cfg.Region))
	notifyStatus(alog, "running")

	store, err := openStore(cfg, log)
	if err != nil {
		return finish(pipeline.RunResult{}, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			alog.Warn("storage close failed", logx.Err(cerr))
		}
	}()

	n, err := openNotifier(cfg, log)
	if err != nil {
		return finish(pipeline.RunResult{}, err)
	}
	if n != nil {
		defer n.Close()
	}

	f := fetch.New(fcfg, opts.HTTPClient)
	p := pipeline.New(pcfg, store, f, n, log.With(logx.String("comp", "pipeline")), rec)

	res, err := p.Run(ctx, runID)
	if err != nil {
		return finish(res, err)
	}
	alog.Info("run finished",
		logx.Bool("changed", res.AnyChanged),
		logx.Bool("notified", res.Notified),
		logx.Int("soft_failures", len(res.SoftFailures)),
		logx.Duration("took", time.Since(start)))
	notifyStatus(alog, fmt.Sprintf("done: changed=%t notified=%t", res.AnyChanged, res.Notified))
	return finish(res, nil)
}

func loadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: opts.ConfigPath, EnvFile: opts.EnvFile, Lookup: opts.Lookup})
	if err != nil {
		return config.Config{}, err
	}
	if opts.Debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func openStore(cfg config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	return storage.Open(sc, log.With(logx.String("comp", "storage")))
}

// openNotifier returns a nil Notifier when alerting is disabled.
func openNotifier(cfg config.Config, log logx.Logger) (notifier.Notifier, error) {
	nc, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	n, err := notifier.Open(nc, log.With(logx.String("comp", "notifier")))
	if errors.Is(err, notifier.ErrDisabled) {
		log.Info("no alert channel configured; alerting disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func pushMetrics(ctx context.Context, log logx.Logger, prec *metrics.PrometheusRecorder, cfg config.Config) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := prec.Push(pctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Warn("metrics push failed", logx.String("url", cfg.Metrics.PushgatewayURL), logx.Err(err))
		return
	}
	log.Debug("metrics pushed", logx.String("job", cfg.Metrics.Job))
}

func failRun(log logx.Logger, err error) (pipeline.RunResult, error) {
	log.Error("run failed", logx.Err(err))
	notifyStatus(log, "failed: "+err.Error())
	return pipeline.RunResult{}, err
}

// CheckConfig validates configuration and writes the redacted result as JSON.
// No backend is contacted.
func CheckConfig(opts Options, w io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFetchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPipelineConfig(cfg); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg.Redacted())
}

// Show writes the stored digest of every configured resource, one per line:
// "URL_<i> <digest|-> <locator>". A blank digest prints as "-".
func Show(ctx context.Context, opts Options, w io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	store, err := openStore(cfg, logx.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	for _, spec := range pipeline.Specs(cfg.URLs) {
		d, ok, err := store.ReadDigest(ctx, storage.Key(spec.Index))
		if err != nil {
			return fmt.Errorf("read digest %s: %w", storage.Key(spec.Index), err)
		}
		if !ok || d == "" {
			d = "-"
		}
		if _, err := fmt.Fprintf(w, "URL_%d %s %s\n", spec.Index, d, spec.Locator); err != nil {
			return err
		}
	}
	return nil
}
