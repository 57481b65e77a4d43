package odm

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
)

const (
	defaultPageSize = 256
	createAttempts  = 3
	purgeBatchSize  = 1000
)

// StoreOptions configures a Store regardless of its backend.
type StoreOptions struct {
	// Codec encodes documents; defaults to MsgPack.
	Codec Codec

	Logger *slog.Logger

	// PageSize is the number of keys KeyStream reads per transaction.
	PageSize int
}

// Store is the Adapter implementation over an ordered key/value backend:
// in-memory, bbolt or badger.
type Store struct {
	s        storage
	codec    Codec
	logger   *slog.Logger
	pageSize int
}

func newStore(s storage, opt StoreOptions) *Store {
	if opt.Codec == nil {
		opt.Codec = MsgPack
	}
	if opt.Logger == nil {
		opt.Logger = discardLogger()
	}
	if opt.PageSize <= 0 {
		opt.PageSize = defaultPageSize
	}
	return &Store{s: s, codec: opt.Codec, logger: opt.Logger, pageSize: opt.PageSize}
}

// NewMemoryStore returns a Store that keeps everything in memory.
func NewMemoryStore(opt StoreOptions) *Store {
	return newStore(newMemStorage(), opt)
}

// OpenBoltStore opens (creating if needed) a bbolt file.
func OpenBoltStore(path string, bopt BoltOptions, opt StoreOptions) (*Store, error) {
	s, err := openBoltStorage(path, bopt)
	if err != nil {
		return nil, err
	}
	return newStore(s, opt), nil
}

// OpenBadgerStore opens a badger database.
func OpenBadgerStore(bopt BadgerOptions, opt StoreOptions) (*Store, error) {
	s, err := openBadgerStorage(bopt)
	if err != nil {
		return nil, err
	}
	return newStore(s, opt), nil
}

func (s *Store) Codec() Codec {
	return s.codec
}

func (s *Store) view(f func(tx storageTx) error) error {
	tx, err := s.s.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return f(tx)
}

func (s *Store) update(f func(tx storageTx) error) error {
	tx, err := s.s.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := f(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.view(func(tx storageTx) error {
		v, err := tx.Get(unsafeBytesFromString(key))
		found = v != nil
		return err
	})
	return found, storageErr("", "has", key, err)
}

func (s *Store) Read(ctx context.Context, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc Document
	err := s.view(func(tx storageTx) error {
		data, err := tx.Get(unsafeBytesFromString(key))
		if err != nil {
			return err
		}
		if data == nil {
			return ErrNotFound
		}
		doc, err = s.codec.Decode(data)
		return err
	})
	if err != nil {
		return nil, storageErr("", "read", key, err)
	}
	return doc, nil
}

func (s *Store) Write(ctx context.Context, key string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(doc)
	if err != nil {
		return storageErr("", "write", key, err)
	}
	err = s.update(func(tx storageTx) error {
		return tx.Put(unsafeBytesFromString(key), data)
	})
	if err != nil {
		return storageErr("", "write", key, err)
	}
	s.logger.Debug("odm: write", "key", key, "size", len(data))
	return nil
}

func (s *Store) Create(ctx context.Context, template string, doc Document) (string, error) {
	if !strings.Contains(template, idPlaceholder) {
		return "", storageErr("", "create", template, fmt.Errorf("key template has no %s placeholder", idPlaceholder))
	}
	data, err := s.codec.Encode(doc)
	if err != nil {
		return "", storageErr("", "create", template, err)
	}
	for range createAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id, err := NewID()
		if err != nil {
			return "", storageErr("", "create", template, err)
		}
		key := strings.Replace(template, idPlaceholder, id.String(), 1)
		var taken bool
		err = s.update(func(tx storageTx) error {
			k := unsafeBytesFromString(key)
			v, err := tx.Get(k)
			if err != nil {
				return err
			}
			if v != nil {
				taken = true
				return nil
			}
			return tx.Put(k, data)
		})
		if err != nil {
			return "", storageErr("", "create", key, err)
		}
		if !taken {
			s.logger.Debug("odm: create", "key", key, "size", len(data))
			return key, nil
		}
	}
	return "", storageErr("", "create", template, fmt.Errorf("no free key after %d attempts", createAttempts))
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.update(func(tx storageTx) error {
		k := unsafeBytesFromString(key)
		v, err := tx.Get(k)
		if err != nil {
			return err
		}
		if v == nil {
			return ErrNotFound
		}
		return tx.Delete(k)
	})
	if err != nil {
		return storageErr("", "remove", key, err)
	}
	s.logger.Debug("odm: remove", "key", key)
	return nil
}

// KeyStream reads keys a page at a time, each page in its own short read
// transaction, so no transaction stays open while the consumer runs.
func (s *Store) KeyStream(ctx context.Context, opt KeyStreamOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		prefix := []byte(opt.Prefix)
		seek := prefix
		after := false
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			page, err := s.keyPage(prefix, seek, after)
			if err != nil {
				yield("", storageErr("", "keystream", opt.Prefix, err))
				return
			}
			for _, key := range page {
				if !opt.match(key) {
					continue
				}
				if err := ctx.Err(); err != nil {
					yield("", err)
					return
				}
				if !yield(key, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			seek, after = []byte(page[len(page)-1]), true
		}
	}
}

func (s *Store) keyPage(prefix, seek []byte, after bool) ([]string, error) {
	page := make([]string, 0, s.pageSize)
	err := s.view(func(tx storageTx) error {
		c := tx.Cursor()
		defer c.Close()
		k := c.Seek(seek)
		if after && k != nil && bytes.Equal(k, seek) {
			k = c.Next()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix) && len(page) < s.pageSize; k = c.Next() {
			page = append(page, string(k))
		}
		return nil
	})
	return page, err
}

func (s *Store) Purge(ctx context.Context) error {
	var total int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int
		err := s.update(func(tx storageTx) error {
			var keys [][]byte
			c := tx.Cursor()
			for k := c.Seek(nil); k != nil && len(keys) < purgeBatchSize; k = c.Next() {
				keys = append(keys, bytes.Clone(k))
			}
			c.Close()
			for _, k := range keys {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			n = len(keys)
			return nil
		})
		if err != nil {
			return storageErr("", "purge", "", err)
		}
		total += n
		if n < purgeBatchSize {
			s.logger.Debug("odm: purge", "keys", total)
			return nil
		}
	}
}

func (s *Store) Close() error {
	return s.s.Close()
}
