// Package token persists the session bearer token between runs.
package token

import "errors"

// Key is the fixed slot the bearer token is stored under.
const Key = "token"

var ErrNotFound = errors.New("token not found")

// Store is a durable string key/value slot. Get returns ErrNotFound for a
// missing key; Remove of a missing key is not an error.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}
