package odm

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

const defaultBoltBucket = "odm"

// BoltOptions configures a bbolt-backed Store.
type BoltOptions struct {
	// Bucket holding all keys; defaults to "odm".
	Bucket string

	// Timeout waiting for the file lock; zero waits forever.
	Timeout time.Duration

	ReadOnly bool
	NoSync   bool
	MmapSize int
}

type boltStorage struct {
	bdb    *bbolt.DB
	bucket []byte
}

func openBoltStorage(path string, opt BoltOptions) (storage, error) {
	if opt.Bucket == "" {
		opt.Bucket = defaultBoltBucket
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	bdb, err := bbolt.Open(path, 0o666, &bbolt.Options{
		Timeout:         opt.Timeout,
		ReadOnly:        opt.ReadOnly,
		NoSync:          opt.NoSync,
		InitialMmapSize: opt.MmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return newBoltStorage(bdb, opt.Bucket), nil
}

func newBoltStorage(bdb *bbolt.DB, bucket string) storage {
	return &boltStorage{bdb: bdb, bucket: []byte(bucket)}
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err == bbolt.ErrDatabaseNotOpen {
		return nil, ErrClosed
	} else if err != nil {
		return nil, err
	}
	b := btx.Bucket(s.bucket)
	if b == nil && writable {
		b, err = btx.CreateBucket(s.bucket)
		if err != nil {
			btx.Rollback()
			return nil, err
		}
	}
	return &boltStorageTx{btx: btx, b: b}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

type boltStorageTx struct {
	btx *bbolt.Tx
	b   *bbolt.Bucket // nil in a read tx on a fresh file
}

func (tx *boltStorageTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltStorageTx) Get(key []byte) ([]byte, error) {
	if tx.b == nil {
		return nil, nil
	}
	return tx.b.Get(key), nil
}

func (tx *boltStorageTx) Put(key, value []byte) error {
	if tx.b == nil {
		return errTxReadOnly
	}
	return tx.b.Put(key, value)
}

func (tx *boltStorageTx) Delete(key []byte) error {
	if tx.b == nil {
		return errTxReadOnly
	}
	return tx.b.Delete(key)
}

func (tx *boltStorageTx) Cursor() storageCursor {
	if tx.b == nil {
		return emptyCursor{}
	}
	return boltCursor{c: tx.b.Cursor()}
}

func (tx *boltStorageTx) Commit() error { return tx.btx.Commit() }

func (tx *boltStorageTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) Seek(seek []byte) []byte {
	k, _ := c.c.Seek(seek)
	return k
}

func (c boltCursor) Next() []byte {
	k, _ := c.c.Next()
	return k
}

func (c boltCursor) Close() {}

type emptyCursor struct{}

func (emptyCursor) Seek([]byte) []byte { return nil }
func (emptyCursor) Next() []byte       { return nil }
func (emptyCursor) Close()             {}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
