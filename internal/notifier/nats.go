package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	logx "urlwatch/pkg/logx"
)

// streamPublisher is the part of jetstream.JetStream used here.
type streamPublisher interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type natsNotifier struct {
	log     logx.Logger
	conn    *nats.Conn
	js      streamPublisher
	stream  string
	subject string
}

var reStreamUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// StreamAndSubject maps a channel name to a JetStream stream and its subject.
func StreamAndSubject(channel string) (stream, subject string) {
	stream = strings.Trim(reStreamUnsafe.ReplaceAllString(strings.TrimSpace(channel), "-"), "-")
	if stream == "" {
		stream = "urlwatch"
	}
	return stream, stream + ".changes"
}

func openNATS(cfg Config, log logx.Logger) (Notifier, error) {
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := cfg.NATSTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := nats.Connect(url, nats.Name("urlwatch-notifier"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	n := newNATSNotifier(js, cfg.Channel, log)
	n.conn = conn
	return n, nil
}

func newNATSNotifier(js streamPublisher, channel string, log logx.Logger) *natsNotifier {
	stream, subject := StreamAndSubject(channel)
	return &natsNotifier{log: log, js: js, stream: stream, subject: subject}
}

func (n *natsNotifier) Notify(ctx context.Context, msg Message) error {
	// Creating the stream on every alert keeps a fresh deployment working
	// without a provisioning step.
	if _, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        n.stream,
		Description: "urlwatch change alerts",
		Subjects:    []string{n.subject},
	}); err != nil {
		return fmt.Errorf("ensure stream %s: %w", n.stream, err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var opts []jetstream.PublishOpt
	if msg.RunID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.RunID))
	}
	ack, err := n.js.Publish(ctx, n.subject, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	fields := []logx.Field{logx.String("stream", n.stream), logx.String("subject", n.subject)}
	if ack != nil {
		fields = append(fields, logx.Any("seq", ack.Sequence))
	}
	n.log.Debug("alert published", fields...)
	return nil
}

func (n *natsNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Drain()
	n.conn = nil
	return err
}
