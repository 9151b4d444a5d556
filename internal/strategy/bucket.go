package strategy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kjstillabower/weathercache/internal/store"
)

// BucketStore is a durable cache partitioned into named generations. The
// engine enumerates buckets at activation to purge stale generations, so
// backends must support listing.
type BucketStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Set(ctx context.Context, bucket, key string, value []byte) error
	Buckets(ctx context.Context) ([]string, error)
	DeleteBucket(ctx context.Context, bucket string) error
}

// MemoryBuckets implements BucketStore in process memory. Used in tests.
type MemoryBuckets struct {
	data map[string]map[string][]byte
}

// NewMemoryBuckets creates an empty MemoryBuckets.
func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{data: make(map[string]map[string][]byte)}
}

func (m *MemoryBuckets) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	b, ok := m.data[bucket]
	if !ok {
		return nil, false, nil
	}
	v, ok := b[key]
	return v, ok, nil
}

func (m *MemoryBuckets) Set(ctx context.Context, bucket, key string, value []byte) error {
	b, ok := m.data[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.data[bucket] = b
	}
	b[key] = value
	return nil
}

func (m *MemoryBuckets) Buckets(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBuckets) DeleteBucket(ctx context.Context, bucket string) error {
	delete(m.data, bucket)
	return nil
}

// FileBuckets implements BucketStore on disk, one directory per generation,
// reusing the store package's file layout per entry.
type FileBuckets struct {
	root string
}

// NewFileBuckets creates a FileBuckets rooted at root, defaulting to
// ~/.weathercache/assets when root is empty.
func NewFileBuckets(root string) (*FileBuckets, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve home dir: %v", store.ErrStorage, err)
		}
		root = filepath.Join(home, ".weathercache", "assets")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create cache root: %v", store.ErrStorage, err)
	}
	return &FileBuckets{root: root}, nil
}

func (f *FileBuckets) bucketStore(bucket string) (*store.FileStore, error) {
	return store.NewFileStore(filepath.Join(f.root, bucket))
}

func (f *FileBuckets) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	if _, err := os.Stat(filepath.Join(f.root, bucket)); os.IsNotExist(err) {
		return nil, false, nil
	}
	fs, err := f.bucketStore(bucket)
	if err != nil {
		return nil, false, err
	}
	return fs.Get(ctx, key)
}

func (f *FileBuckets) Set(ctx context.Context, bucket, key string, value []byte) error {
	fs, err := f.bucketStore(bucket)
	if err != nil {
		return err
	}
	return fs.Set(ctx, key, value)
}

func (f *FileBuckets) Buckets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileBuckets) DeleteBucket(ctx context.Context, bucket string) error {
	if err := os.RemoveAll(filepath.Join(f.root, bucket)); err != nil {
		return fmt.Errorf("%w: purge generation %s: %v", store.ErrStorage, bucket, err)
	}
	return nil
}
