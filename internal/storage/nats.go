package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	logx "urlwatch/pkg/logx"
)

// blobBucket is the slice of JetStream KV / object store behavior the nats
// store needs. Keeping it narrow lets tests run without a server.
type blobBucket interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, b []byte) error
}

// natsStore keeps digests in a JetStream KeyValue bucket (small text values)
// and content in an object store bucket (arbitrary size).
type natsStore struct {
	log     logx.Logger
	conn    *nats.Conn
	digests blobBucket
	content blobBucket
}

var reBucketUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// BucketNames returns the KV and object store bucket names for a location.
func BucketNames(location string) (digests, content string) {
	base := strings.Trim(reBucketUnsafe.ReplaceAllString(strings.TrimSpace(location), "-"), "-")
	if base == "" {
		base = "urlwatch"
	}
	return base + "-digests", base + "-data"
}

func openNATS(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Location) == "" {
		return nil, errors.New("storage location (bucket prefix) is required for nats driver")
	}
	url := strings.TrimSpace(cfg.NATSURL)
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := cfg.NATSTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	conn, err := nats.Connect(url, nats.Name("urlwatch-store"), nats.Timeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	kvName, objName := BucketNames(cfg.Location)
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      kvName,
		Description: "urlwatch content digests",
		History:     1,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", kvName, err)
	}
	obs, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      objName,
		Description: "urlwatch last fetched content",
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open object store %s: %w", objName, err)
	}

	log.Debug("nats store opened",
		logx.String("url", url),
		logx.String("kv_bucket", kvName),
		logx.String("object_bucket", objName))

	return &natsStore{
		log:     log,
		conn:    conn,
		digests: kvBucket{kv: kv},
		content: objectBucket{obs: obs},
	}, nil
}

func (s *natsStore) ReadDigest(ctx context.Context, key string) (string, bool, error) {
	b, ok, err := s.digests.get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(b), true, nil
}

func (s *natsStore) WriteDigest(ctx context.Context, key, d string) error {
	return s.digests.put(ctx, key, []byte(d))
}

func (s *natsStore) ReadContent(ctx context.Context, key string) ([]byte, bool, error) {
	return s.content.get(ctx, key)
}

func (s *natsStore) WriteContent(ctx context.Context, key string, content []byte) error {
	return s.content.put(ctx, key, content)
}

func (s *natsStore) Close() error {
	if s.conn == nil {
		return nil
	}
	// Drain flushes pending publishes before closing.
	err := s.conn.Drain()
	s.conn = nil
	return err
}

type kvBucket struct{ kv jetstream.KeyValue }

func (b kvBucket) get(ctx context.Context, key string) ([]byte, bool, error) {
	e, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Value(), true, nil
}

func (b kvBucket) put(ctx context.Context, key string, v []byte) error {
	_, err := b.kv.Put(ctx, key, v)
	return err
}

type objectBucket struct{ obs jetstream.ObjectStore }

func (b objectBucket) get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.obs.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b objectBucket) put(ctx context.Context, key string, v []byte) error {
	_, err := b.obs.PutBytes(ctx, key, v)
	return err
}
