package odm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures a badger-backed Store.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	InMemory   bool
	SyncWrites bool

	// Logger receives badger's own log output. Nil silences it.
	Logger *slog.Logger
}

// InMemoryBadgerOptions returns options for a throwaway in-memory database.
func InMemoryBadgerOptions() BadgerOptions {
	return BadgerOptions{InMemory: true}
}

// badgerLogger adapts slog to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

type badgerStorage struct {
	db *badger.DB
}

func openBadgerStorage(opt BadgerOptions) (storage, error) {
	if !opt.InMemory && opt.Path == "" {
		return nil, errors.New("badger: path is required for a persistent database")
	}
	var bopts badger.Options
	if opt.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opt.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", opt.Path, err)
		}
		bopts = badger.DefaultOptions(opt.Path)
	}
	bopts = bopts.WithSyncWrites(opt.SyncWrites).WithNumVersionsToKeep(1)
	if opt.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opt.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerStorage{db: db}, nil
}

func (s *badgerStorage) BeginTx(writable bool) (storageTx, error) {
	if s.db.IsClosed() {
		return nil, ErrClosed
	}
	return &badgerTx{txn: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *badgerStorage) Close() error {
	return s.db.Close()
}

type badgerTx struct {
	txn      *badger.Txn
	writable bool
}

func (tx *badgerTx) Writable() bool { return tx.writable }

func (tx *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := tx.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Put(key, value []byte) error {
	if !tx.writable {
		return errTxReadOnly
	}
	return tx.txn.Set(key, value)
}

func (tx *badgerTx) Delete(key []byte) error {
	if !tx.writable {
		return errTxReadOnly
	}
	return tx.txn.Delete(key)
}

func (tx *badgerTx) Cursor() storageCursor {
	it := tx.txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
	return &badgerCursor{it: it}
}

func (tx *badgerTx) Commit() error {
	return tx.txn.Commit()
}

func (tx *badgerTx) Rollback() error {
	tx.txn.Discard()
	return nil
}

type badgerCursor struct {
	it *badger.Iterator
}

func (c *badgerCursor) key() []byte {
	if !c.it.Valid() {
		return nil
	}
	return c.it.Item().Key()
}

func (c *badgerCursor) Seek(seek []byte) []byte {
	c.it.Seek(seek)
	return c.key()
}

func (c *badgerCursor) Next() []byte {
	c.it.Next()
	return c.key()
}

func (c *badgerCursor) Close() {
	c.it.Close()
}
