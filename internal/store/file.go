package store

import (
	"context"
	"crypto/md5"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements Store on the filesystem, one file per key. Writes go
// through a temp file and rename so a crash mid-write never leaves a
// half-written entry behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve home dir: %v", ErrStorage, err)
		}
		dir = filepath.Join(home, ".weathercache")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create state dir: %v", ErrStorage, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the state directory.
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

func (fs *FileStore) Set(ctx context.Context, key string, value []byte) error {
	path := fs.path(key)
	tmp := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: commit %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (fs *FileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(fs.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete %s: %v", ErrStorage, key, err)
	}
	return nil
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.dir, sanitizeKey(key)+".json")
}

// sanitizeKey makes a key safe as a filename. Very long keys collapse to a
// hash to stay under filesystem limits.
func sanitizeKey(key string) string {
	if len(key) > 200 {
		return fmt.Sprintf("hash_%x", md5.Sum([]byte(key)))
	}
	replacer := strings.NewReplacer(
		":", "_", "/", "_", "?", "_", "&", "_", "=", "_",
		"#", "_", "<", "_", ">", "_", "|", "_", "*", "_", "\"", "_",
	)
	return replacer.Replace(key)
}
