package cache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	fileSuffix  = ".entry"
	tempPattern = ".tmp-*"
)

// FileStore keeps one file per key below a root directory. Files are
// sharded by the xxhash of the key; the key itself is stored in the file
// so Scan can match prefixes by walking the tree.
type FileStore struct {
	dir       string
	dirMode   os.FileMode
	fileMode  os.FileMode
	hardFlush bool
}

var (
	_ Store   = (*FileStore)(nil)
	_ Clearer = (*FileStore)(nil)
)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithDirMode sets the mode of created directories. Defaults to 0755.
func WithDirMode(mode os.FileMode) FileOption {
	return func(s *FileStore) { s.dirMode = mode }
}

// WithFileMode sets the mode of entry files. Defaults to 0644.
func WithFileMode(mode os.FileMode) FileOption {
	return func(s *FileStore) { s.fileMode = mode }
}

// WithHardFlush makes Clear remove the shard directories as well as files.
func WithHardFlush(hard bool) FileOption {
	return func(s *FileStore) { s.hardFlush = hard }
}

type fileRecord struct {
	Key     string `msgpack:"k"`
	Data    []byte `msgpack:"d"`
	Expires int64  `msgpack:"e"`
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{dirMode: 0o755, fileMode: 0o644}
	for _, opt := range opts {
		opt(s)
	}
	if dir == "" {
		return nil, errors.Wrap(ErrConfiguration, "filesystem store requires a directory")
	}
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "directory %q could not be created: %v", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrConfiguration, "directory %q: %v", dir, err)
	}
	s.dir = abs
	if !s.Available(context.Background()) {
		return nil, errors.Wrapf(ErrConfiguration, "directory %q is not writable", abs)
	}
	return s, nil
}

// NewFilesystem returns a PathKeyCache over a new FileStore.
func NewFilesystem(dir string, fileOpts []FileOption, opts ...Option) (*PathKeyCache, error) {
	store, err := NewFileStore(dir, fileOpts...)
	if err != nil {
		return nil, err
	}
	return NewPathKeyCache(store, opts...), nil
}

// Directory returns the absolute root directory.
func (s *FileStore) Directory() string { return s.dir }

// Filename returns the path used for key.
func (s *FileStore) Filename(key string) string {
	h := strconv.FormatUint(xxhash.Sum64String(key), 16)
	h = strings.Repeat("0", 16-len(h)) + h
	return filepath.Join(s.dir, h[0:2], h[2:4], h+fileSuffix)
}

func (s *FileStore) read(path string) (fileRecord, bool, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileRecord{}, false, nil
	}
	if err != nil {
		return fileRecord{}, false, err
	}
	var rec fileRecord
	if err := msgpack.Unmarshal(buf, &rec); err != nil {
		return fileRecord{}, false, errors.Wrapf(err, "corrupt cache file %s", path)
	}
	return rec, true, nil
}

func (s *FileStore) Get(_ context.Context, key string) (Entry, bool, error) {
	rec, ok, err := s.read(s.Filename(key))
	if err != nil || !ok || rec.Key != key {
		return Entry{}, false, err
	}
	return Entry{Data: Encoded(rec.Data), ExpiresAt: expiresTime(rec.Expires)}, true, nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.Filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Put writes to a temporary file and renames it into place.
func (s *FileStore) Put(_ context.Context, key string, entry Entry, _ time.Duration) error {
	data, err := encodeData(entry.Data)
	if err != nil {
		return err
	}
	buf, err := msgpack.Marshal(&fileRecord{Key: key, Data: data, Expires: expiresNanos(entry.ExpiresAt)})
	if err != nil {
		return err
	}
	path := s.Filename(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), s.fileMode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	err := os.Remove(s.Filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) walk(ctx context.Context, fn func(path string) error) error {
	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileSuffix) {
			return nil
		}
		return fn(path)
	})
}

func (s *FileStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.walk(ctx, func(path string) error {
		rec, ok, err := s.read(path)
		if err != nil || !ok {
			return err
		}
		if strings.HasPrefix(rec.Key, prefix) {
			keys = append(keys, rec.Key)
		}
		return nil
	})
	return keys, err
}

func (s *FileStore) Clear(ctx context.Context) error {
	if s.hardFlush {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return s.walk(ctx, func(path string) error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

func (s *FileStore) Size(ctx context.Context) (int64, error) {
	var n int64
	err := s.walk(ctx, func(string) error {
		n++
		return nil
	})
	return n, err
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	size, err := s.Size(ctx)
	if err != nil {
		return nil, err
	}
	return Stats{StatsSize: size}, nil
}

func (s *FileStore) Available(context.Context) bool {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}

func (s *FileStore) Close() error { return nil }
