package storage

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrClosed        = errors.New("storage closed")
)

// Store is the persistence API used by the pipeline.
//
// Reads of a missing key return found=false with a nil error.
// Writes are independent idempotent overwrites.
type Store interface {
	ReadDigest(ctx context.Context, key string) (digest string, found bool, err error)
	WriteDigest(ctx context.Context, key, digest string) error
	ReadContent(ctx context.Context, key string) (content []byte, found bool, err error)
	WriteContent(ctx context.Context, key string, content []byte) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": directory tree under Location (default)
//   - "sqlite": SQLite database file at Location
//   - "nats": JetStream KV + object store buckets prefixed with Location
type Config struct {
	Driver      string
	Location    string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// NATS settings (nats driver only).
	NATSURL     string
	NATSTimeout time.Duration
}

// Key is the stable storage key for a 1-based resource index.
func Key(index int) string {
	return "url_" + strconv.Itoa(index)
}
