package storage

import (
	"io"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"
)

// Storage holds the open storage engines of a server.
type Storage struct {
	// Cfg is the configuration for the storage provided to Open.
	Cfg Config
	// KV is the key-value store holding resources, users and credentials.
	KV *pebble.DB
	// ReleaseLock releases the lock on the storage directory.
	ReleaseLock func() error
}

// Close closes the key-value store and releases the directory lock.
func (s *Storage) Close() error {
	var err error
	if s.KV != nil {
		err = s.KV.Close()
	}
	if s.ReleaseLock != nil {
		err = errors.CombineErrors(err, s.ReleaseLock())
	}
	return err
}

type Config struct {
	// Dirname defines the root directory the server will write its data to.
	// Dirname shouldn't be used by any other process while the server is running.
	Dirname string
	// MemBacked defines whether the server should use a memory-backed file system.
	MemBacked bool
	// Logger is the logger used by the storage layer.
	Logger *zap.Logger
}

// Open acquires the directory lock and opens the key-value store.
func Open(cfg Config) (Storage, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	fs := openBaseFS(cfg)
	s := Storage{Cfg: cfg}

	if err := fs.MkdirAll(cfg.Dirname, 0755); err != nil {
		return s, errors.Wrapf(err, "[storage] - create %s", cfg.Dirname)
	}

	// Acquire the lock on the storage directory. If any other server is using
	// the same directory we return an error to the caller.
	releaser, err := acquireLock(cfg, fs)
	if err != nil {
		return s, err
	}
	s.ReleaseLock = releaser.Close

	if s.KV, err = openKV(cfg, fs); err != nil {
		err = errors.CombineErrors(err, s.ReleaseLock())
		s.KV, s.ReleaseLock = nil, nil
		return s, err
	}
	cfg.Logger.Info("storage opened",
		zap.String("dirname", cfg.Dirname),
		zap.Bool("memBacked", cfg.MemBacked),
	)
	return s, nil
}

const (
	kvDirname    = "kv"
	lockFileName = "LOCK"
)

func openBaseFS(cfg Config) vfs.FS {
	if cfg.MemBacked {
		return vfs.NewMem()
	}
	return vfs.Default
}

const (
	lockAlreadyAcquiredMsg = `
	The storage directory is locked by another process.

	Is there another server using the same directory?
	`
)

func acquireLock(cfg Config, fs vfs.FS) (io.Closer, error) {
	fName := filepath.Join(cfg.Dirname, lockFileName)
	release, err := fs.Lock(fName)
	if err == nil {
		return release, nil
	}
	if errors.Is(err, syscall.EAGAIN) {
		return release, errors.Wrap(err, lockAlreadyAcquiredMsg)
	}
	return release, errors.Wrapf(err, "[storage] - lock %s", fName)
}

func openKV(cfg Config, fs vfs.FS) (*pebble.DB, error) {
	dirname := filepath.Join(cfg.Dirname, kvDirname)
	db, err := pebble.Open(dirname, &pebble.Options{FS: fs})
	return db, errors.Wrap(err, "[storage] - open key-value store")
}
