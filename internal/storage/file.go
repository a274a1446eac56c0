package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"urlwatch/internal/digest"
	logx "urlwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Layout under the root directory:
//   - hashes/sha256/<key>.sha256 (digest, text)
//   - data/<key>.txt             (last good content, raw bytes)
//
// Every write goes to a temp file in the same directory and is renamed into
// place, so a reader never sees a torn file.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool

	hashDir string
	dataDir string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Location)
	if root == "" {
		return nil, errors.New("storage location is required for file driver")
	}

	hashDir := filepath.Join(root, "hashes", digest.Algorithm)
	dataDir := filepath.Join(root, "data")
	for _, d := range []string{hashDir, dataDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	log.Debug("file store opened", logx.String("root", root))

	return &fileStore{log: log, hashDir: hashDir, dataDir: dataDir}, nil
}

func (s *fileStore) digestPath(key string) string {
	return filepath.Join(s.hashDir, key+"."+digest.Algorithm)
}

func (s *fileStore) contentPath(key string) string {
	return filepath.Join(s.dataDir, key+".txt")
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) ReadDigest(ctx context.Context, key string) (string, bool, error) {
	b, ok, err := s.read(ctx, s.digestPath(key))
	if err != nil || !ok {
		return "", ok, err
	}
	return strings.TrimSpace(string(b)), true, nil
}

func (s *fileStore) WriteDigest(ctx context.Context, key, d string) error {
	return s.write(ctx, s.digestPath(key), []byte(d))
}

func (s *fileStore) ReadContent(ctx context.Context, key string) ([]byte, bool, error) {
	return s.read(ctx, s.contentPath(key))
}

func (s *fileStore) WriteContent(ctx context.Context, key string, content []byte) error {
	return s.write(ctx, s.contentPath(key), content)
}

func (s *fileStore) read(ctx context.Context, path string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, false, ErrClosed
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) write(ctx context.Context, path string, b []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
