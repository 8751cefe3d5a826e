// Package storage provides the durable key-value abstraction used to mirror
// session state across process restarts. Values are opaque bytes; callers
// decide what, if anything, is encrypted before it gets here.
package storage

import "errors"

// ErrNotFound is returned by Get when the key is absent. Backends also map
// unreadable or corrupt values to ErrNotFound: a broken mirror is treated
// as a cache miss, never as a fatal condition.
var ErrNotFound = errors.New("key not found")

// Store is a process-restart-durable key-value store, isolated per
// application. Implementations must be safe for concurrent use.
type Store interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error
}
