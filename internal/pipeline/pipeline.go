// Package pipeline reconciles watched resources against stored state.
//
// One Run is one pass: load every prior digest, fetch and persist each
// resource, then compare and decide whether to alert. The alert is sent at
// most once, after every resource has finished.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"urlwatch/internal/digest"
	"urlwatch/internal/fetch"
	"urlwatch/internal/metrics"
	"urlwatch/internal/notifier"
	"urlwatch/internal/storage"
	logx "urlwatch/pkg/logx"
)

var (
	ErrStorage = errors.New("storage failure")
	ErrNotify  = errors.New("notify failure")
)

const defaultNotifyTimeout = 10 * time.Second

// Pipeline is built per invocation and holds no state between runs.
type Pipeline struct {
	cfg      Config
	store    storage.Store
	fetcher  fetch.Fetcher
	notifier notifier.Notifier // nil disables alerting
	log      logx.Logger
	rec      metrics.Recorder
	now      func() time.Time
}

func New(cfg Config, store storage.Store, f fetch.Fetcher, n notifier.Notifier, log logx.Logger, rec metrics.Recorder) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &Pipeline{cfg: cfg, store: store, fetcher: f, notifier: n, log: log, rec: rec, now: time.Now}
}

// Run executes one reconciliation pass.
//
// Soft fetch failures never make Run fail. A storage error aborts the run
// before any alert is sent. An alert delivery error is returned along with
// the otherwise complete result.
func (p *Pipeline) Run(ctx context.Context, runID string) (RunResult, error) {
	start := p.now()
	res := RunResult{RunID: runID}
	log := p.log.With(logx.String("run_id", runID))

	obs, err := p.load(ctx, log)
	if err != nil {
		return res, err
	}

	if err := p.observeAll(ctx, log, obs); err != nil {
		return res, err
	}

	// Barrier passed: every resource has been fetched and persisted.
	for _, o := range obs {
		o.Changed = changed(o)
		if o.Changed {
			res.Changed = append(res.Changed, o.Spec)
			p.rec.IncChanged()
		}
		if !o.Succeeded() {
			res.SoftFailures = append(res.SoftFailures, o.Spec)
		}
	}
	res.AnyChanged = anyChanged(log, obs)
	res.Took = p.now().Sub(start)

	if !res.AnyChanged {
		log.Info("no changes detected", logx.Int("resources", len(obs)), logx.Int("soft_failures", len(res.SoftFailures)))
		return res, nil
	}

	if p.notifier == nil {
		log.Info("changes detected; alerting disabled", logx.Int("changed", len(res.Changed)))
		return res, nil
	}
	if err := p.notify(ctx, log, res); err != nil {
		return res, err
	}
	res.Notified = true
	return res, nil
}

// load reads every prior digest before any fetch starts.
func (p *Pipeline) load(ctx context.Context, log logx.Logger) ([]*Observation, error) {
	log.Debug("loading previously known digests", logx.Int("resources", len(p.cfg.Resources)))

	obs := make([]*Observation, 0, len(p.cfg.Resources))
	for _, spec := range p.cfg.Resources {
		key := storage.Key(spec.Index)
		d, ok, err := p.store.ReadDigest(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: read digest %s: %v", ErrStorage, key, err)
		}
		if !ok {
			log.Info("no stored digest; assuming blank and writing placeholder",
				logx.Int("index", spec.Index), logx.String("key", key))
			if err := p.store.WriteDigest(ctx, key, ""); err != nil {
				return nil, fmt.Errorf("%w: write placeholder %s: %v", ErrStorage, key, err)
			}
		} else {
			log.Debug("stored digest found", logx.Int("index", spec.Index), logx.String(digest.Algorithm, d))
		}
		obs = append(obs, &Observation{Spec: spec, PriorDigest: d, HadPrior: ok})
	}
	return obs, nil
}

// observeAll runs fetch+digest+persist for every resource and returns once
// all of them are done. Each goroutine only touches its own Observation.
func (p *Pipeline) observeAll(ctx context.Context, log logx.Logger, obs []*Observation) error {
	if p.cfg.Workers <= 1 || len(obs) <= 1 {
		for _, o := range obs {
			if err := p.observe(ctx, log, o); err != nil {
				return err
			}
		}
		return nil
	}

	// Plain Group: a storage error in one worker does not cancel the others.
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, o := range obs {
		o := o
		g.Go(func() error { return p.observe(ctx, log, o) })
	}
	return g.Wait()
}

func (p *Pipeline) observe(ctx context.Context, log logx.Logger, o *Observation) error {
	key := storage.Key(o.Spec.Index)
	log = log.With(logx.Int("index", o.Spec.Index))

	o.Fetch = p.fetcher.Fetch(ctx, o.Spec.Locator)
	p.rec.ObserveFetch(o.Fetch.Took, o.Fetch.OK())

	if !o.Fetch.OK() {
		// Keep the last good content; blank the digest so the next good fetch
		// is reported as a change.
		log.Info("fetch failed; resetting stored digest",
			logx.String("locator", o.Spec.Locator),
			logx.Int("status", o.Fetch.StatusCode),
			logx.String("reason", o.Fetch.Reason()))
		if err := p.store.WriteDigest(ctx, key, ""); err != nil {
			return fmt.Errorf("%w: reset digest %s: %v", ErrStorage, key, err)
		}
		return nil
	}

	o.CurrentContent = o.Fetch.Content
	o.CurrentDigest = digest.Sum(o.CurrentContent)
	log.Info("fetched",
		logx.Int("status", o.Fetch.StatusCode),
		logx.Int("bytes", len(o.CurrentContent)),
		logx.String(digest.Algorithm, o.CurrentDigest),
		logx.Duration("took", o.Fetch.Took))

	// Content first: a digest on disk always has its content next to it.
	if err := p.store.WriteContent(ctx, key, o.CurrentContent); err != nil {
		return fmt.Errorf("%w: write content %s: %v", ErrStorage, key, err)
	}
	if err := p.store.WriteDigest(ctx, key, o.CurrentDigest); err != nil {
		return fmt.Errorf("%w: write digest %s: %v", ErrStorage, key, err)
	}
	return nil
}

// changed reports whether a resource changed during this run.
//
// A blank baseline with an empty body counts as unchanged: both sides are
// "nothing".
func changed(o *Observation) bool {
	if !o.Succeeded() {
		return false
	}
	if o.PriorDigest == "" && len(o.CurrentContent) == 0 {
		return false
	}
	return o.CurrentDigest != o.PriorDigest
}

// anyChanged returns at the first changed resource.
func anyChanged(log logx.Logger, obs []*Observation) bool {
	for _, o := range obs {
		if o.Changed {
			log.Info("resource changed", logx.Int("index", o.Spec.Index), logx.String("locator", o.Spec.Locator))
			return true
		}
		log.Debug("resource did not change", logx.Int("index", o.Spec.Index))
	}
	return false
}

func (p *Pipeline) notify(ctx context.Context, log logx.Logger, res RunResult) error {
	refs := make([]notifier.ResourceRef, len(res.Changed))
	for i, s := range res.Changed {
		refs[i] = s.ref()
	}
	msg := notifier.Message{
		RunID:    res.RunID,
		At:       p.now().UTC(),
		Location: p.cfg.Location,
		Changed:  refs,
		Text:     notifier.FormatText(p.cfg.Location, refs),
	}

	nctx, cancel := context.WithTimeout(ctx, p.cfg.NotifyTimeout)
	defer cancel()

	log.Info("sending modification alert", logx.Int("changed", len(refs)))
	if err := p.notifier.Notify(nctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	return nil
}
