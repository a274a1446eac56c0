// Package notifier sends the single per-run change alert.
//
// Drivers:
//   - nats: JetStream publish; the stream is created or updated first, which is
//     safe to repeat on every run
//   - telegram: bot message to a chat (optionally a forum thread)
//   - log: writes the alert to the run log only
//
// Notifiers do not deduplicate: every call sends one message.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "urlwatch/pkg/logx"
)

var (
	ErrDisabled      = errors.New("notifier disabled")
	ErrUnknownDriver = errors.New("unknown notify driver")
)

// ResourceRef names one changed resource in an alert.
type ResourceRef struct {
	Index   int    `json:"index"`
	Locator string `json:"locator"`
}

// Message is the alert payload.
type Message struct {
	RunID    string        `json:"run_id"`
	At       time.Time     `json:"at"`
	Location string        `json:"location"`
	Changed  []ResourceRef `json:"changed"`
	Text     string        `json:"text"`
}

// Notifier delivers a change alert. The pipeline calls it at most once per run.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	Close() error
}

// Config configures Open.
type Config struct {
	Driver  string
	Channel string

	// telegram
	TelegramToken    string
	TelegramThreadID int

	// nats
	NATSURL     string
	NATSTimeout time.Duration
}

// Open builds the configured notifier. An empty channel yields ErrDisabled.
func Open(cfg Config, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "nats":
		return openNATS(cfg, log)
	case "telegram":
		return openTelegram(cfg, log)
	case "log":
		return &logNotifier{log: log, channel: cfg.Channel}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

const maxListed = 20

// FormatText renders the human readable alert body.
func FormatText(location string, changed []ResourceRef) string {
	var b strings.Builder
	b.WriteString("One of the watched URLs was modified. Latest version of all files are in the storage location: ")
	b.WriteString(location)
	for i, r := range changed {
		if i == maxListed {
			fmt.Fprintf(&b, "\n(+%d more)", len(changed)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n- URL_%d %s", r.Index, r.Locator)
	}
	return b.String()
}

type logNotifier struct {
	log     logx.Logger
	channel string
}

func (n *logNotifier) Notify(_ context.Context, msg Message) error {
	n.log.Warn("change alert",
		logx.String("channel", n.channel),
		logx.String("run_id", msg.RunID),
		logx.Int("changed", len(msg.Changed)),
		logx.String("text", msg.Text))
	return nil
}

func (n *logNotifier) Close() error { return nil }
