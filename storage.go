package odm

import "errors"

// storage is an ordered key/value backend. Store implements the Adapter
// contract on top of it.
type storage interface {
	// BeginTx starts a new transaction. At most one writable transaction is
	// open at a time.
	BeginTx(writable bool) (storageTx, error)

	Close() error
}

type storageTx interface {
	Writable() bool

	// Get returns nil when the key is missing. The value is only valid until
	// the transaction ends.
	Get(key []byte) ([]byte, error)

	Put(key, value []byte) error

	Delete(key []byte) error

	// Cursor iterates keys in byte order. Callers must Close it before the
	// transaction ends.
	Cursor() storageCursor

	Commit() error

	// Rollback aborts the transaction. It is safe to call after Commit.
	Rollback() error
}

type storageCursor interface {
	// Seek moves to the first key >= seek and returns it, or nil at the end.
	Seek(seek []byte) []byte

	// Next advances and returns the key, or nil at the end.
	Next() []byte

	Close()
}

var errTxReadOnly = errors.New("transaction not writable")
