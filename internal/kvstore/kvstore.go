// Package kvstore is the wizard's local persistent key-value storage.
package kvstore

// Store keeps opaque values under string keys. A missing key is not an error.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
