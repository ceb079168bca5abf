package tokenfakerepo

import (
	"sync"

	"github.com/azkaraz/adstat/token"
)

var _ token.Store = (*FakeTokenStore)(nil)

// FakeTokenStore keeps values in memory and counts writes, so tests can
// assert that an operation left storage untouched.
type FakeTokenStore struct {
	values  map[string]string
	lock    sync.RWMutex
	Writes  int
	Removes int

	// SetErr, when set, is returned by every Set.
	SetErr error
}

func NewFakeTokenStore() *FakeTokenStore {
	return &FakeTokenStore{values: make(map[string]string)}
}

// NewFakeTokenStoreWith seeds the store with a persisted token.
func NewFakeTokenStoreWith(tok string) *FakeTokenStore {
	s := NewFakeTokenStore()
	s.values[token.Key] = tok
	return s
}

func (s *FakeTokenStore) Get(key string) (string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", token.ErrNotFound
	}
	return v, nil
}

func (s *FakeTokenStore) Set(key, value string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	s.values[key] = value
	s.Writes++
	return nil
}

func (s *FakeTokenStore) Remove(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.values, key)
	s.Removes++
	return nil
}

// Counts returns Writes and Removes under the lock.
func (s *FakeTokenStore) Counts() (writes, removes int) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.Writes, s.Removes
}
