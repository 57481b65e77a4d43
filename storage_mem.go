package odm

import (
	"bytes"
	"slices"
	"sync"
	"sync/atomic"
)

// memStorage keeps a sorted, immutable item list behind an atomic pointer.
// Readers grab the current list; the single writer edits a private copy and
// swaps it in on commit.
type memStorage struct {
	current   atomic.Pointer[[]memKV]
	writeSlot chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type memKV struct {
	key   []byte
	value []byte
}

func newMemStorage() storage {
	s := &memStorage{
		writeSlot: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.current.Store(&[]memKV{})
	return s
}

func (s *memStorage) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if writable {
		select {
		case s.writeSlot <- struct{}{}:
		case <-s.done:
			return nil, ErrClosed
		}
	}
	return &memTx{s: s, writable: writable, items: *s.current.Load()}, nil
}

func (s *memStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.current.Store(&[]memKV{})
	})
	return nil
}

type memTx struct {
	s        *memStorage
	writable bool
	items    []memKV
	dirty    bool
	finished bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(tx.items, key, func(kv memKV, k []byte) int {
		return bytes.Compare(kv.key, k)
	})
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	if tx.finished {
		return nil, ErrClosed
	}
	if i, found := tx.search(key); found {
		return tx.items[i].value, nil
	}
	return nil, nil
}

// edit readies the private copy of the item list.
func (tx *memTx) edit() error {
	switch {
	case tx.finished:
		return ErrClosed
	case !tx.writable:
		return errTxReadOnly
	}
	if !tx.dirty {
		tx.items = slices.Clone(tx.items)
		tx.dirty = true
	}
	return nil
}

func (tx *memTx) Put(key, value []byte) error {
	if err := tx.edit(); err != nil {
		return err
	}
	kv := memKV{key: slices.Clone(key), value: slices.Clone(value)}
	if i, found := tx.search(key); found {
		tx.items[i] = kv
	} else {
		tx.items = slices.Insert(tx.items, i, kv)
	}
	return nil
}

func (tx *memTx) Delete(key []byte) error {
	if err := tx.edit(); err != nil {
		return err
	}
	if i, found := tx.search(key); found {
		tx.items = slices.Delete(tx.items, i, i+1)
	}
	return nil
}

func (tx *memTx) Cursor() storageCursor {
	return &memCursor{items: tx.items, pos: -1}
}

func (tx *memTx) Commit() error {
	if tx.finished {
		return nil
	}
	if !tx.writable {
		return errTxReadOnly
	}
	defer tx.finish()
	if tx.s.isClosed() {
		return ErrClosed
	}
	if tx.dirty {
		items := tx.items
		tx.s.current.Store(&items)
	}
	return nil
}

func (tx *memTx) Rollback() error {
	tx.finish()
	return nil
}

func (tx *memTx) finish() {
	if tx.finished {
		return
	}
	tx.finished = true
	if tx.writable {
		<-tx.s.writeSlot
	}
}

// memCursor walks the item list the transaction started with.
type memCursor struct {
	items []memKV
	pos   int
}

func (c *memCursor) key() []byte {
	if c.pos < 0 || c.pos >= len(c.items) {
		return nil
	}
	return c.items[c.pos].key
}

func (c *memCursor) Seek(seek []byte) []byte {
	c.pos, _ = slices.BinarySearchFunc(c.items, seek, func(kv memKV, k []byte) int {
		return bytes.Compare(kv.key, k)
	})
	return c.key()
}

func (c *memCursor) Next() []byte {
	c.pos++
	return c.key()
}

func (c *memCursor) Close() {}
