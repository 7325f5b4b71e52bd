package db

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/gomantics/gitindex/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrCorrupt  = errors.New("corrupt index record")
)

// DB is the shared handle to the index store. It is safe for concurrent use,
// but the indexer assumes a single writer pass at a time.
type DB struct {
	p *pebble.DB
}

// Options configures Open
type Options struct {
	CacheSize int64
	// FS overrides the filesystem, tests use vfs.NewMem()
	FS vfs.FS
}

// Open opens (creating if needed) the store rooted at dir
func Open(dir string, opts Options) (*DB, error) {
	popts := &pebble.Options{}
	if opts.FS != nil {
		popts.FS = opts.FS
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		popts.Cache = cache
	}

	p, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}

	return &DB{p: p}, nil
}

// New opens the store described by the configuration and closes it when the
// application stops.
func New(lc fx.Lifecycle, l *zap.Logger, cfg *config.Config) (*DB, error) {
	d, err := Open(cfg.Database.Path, Options{CacheSize: cfg.Database.CacheSize})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			l.Info("closing index store")
			return d.Close()
		},
	})

	l.Info("index store opened", zap.String("path", cfg.Database.Path))
	return d, nil
}

// Get returns a copy of the value stored at key, or ErrNotFound
func (d *DB) Get(key []byte) ([]byte, error) {
	v, closer, err := d.p.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Scan calls fn for every key starting with prefix, in key order. Key and
// value are only valid for the duration of the call.
func (d *DB) Scan(prefix []byte, fn func(key, value []byte) error) error {
	it := d.p.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	})

	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			_ = it.Close()
			return err
		}
	}

	return closeIter(it)
}

// ScanFrom is Scan starting at start (inclusive) and stopping after limit
// entries. A non-positive limit means no limit.
func (d *DB) ScanFrom(prefix, start []byte, limit int, fn func(key, value []byte) error) error {
	it := d.p.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixEnd(prefix),
	})

	n := 0
	for it.SeekGE(start); it.Valid(); it.Next() {
		if limit > 0 && n >= limit {
			break
		}
		if err := fn(it.Key(), it.Value()); err != nil {
			_ = it.Close()
			return err
		}
		n++
	}

	return closeIter(it)
}

func closeIter(it io.Closer) error {
	if err := it.Close(); err != nil {
		return fmt.Errorf("iterator failed: %w", err)
	}
	return nil
}

// Flush writes all in-memory state to disk. It is the durability
// checkpoint for batches committed without sync.
func (d *DB) Flush() error {
	return d.p.Flush()
}

// Close releases the store. The handle is unusable afterwards.
func (d *DB) Close() error {
	return d.p.Close()
}
