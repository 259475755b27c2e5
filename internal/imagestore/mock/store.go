package mock

import (
	"context"
	"io"
	"sync"

	"github.com/kiranshivaraju/chronos/internal/imagestore"
)

// Store satisfies imagestore.Store for testing and keeps every image in memory.
type Store struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr    error
	AccessErr error
}

func New() *Store {
	return &Store{Objects: map[string][]byte{}}
}

func (s *Store) Name() string { return "mock" }

func (s *Store) Put(_ context.Context, key, _ string, r io.Reader) (imagestore.Handle, error) {
	if s.PutErr != nil {
		return imagestore.Handle{}, s.PutErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return imagestore.Handle{}, err
	}
	s.mu.Lock()
	s.Objects[key] = data
	s.mu.Unlock()
	return imagestore.Handle{Key: key, URL: "mem://" + key}, nil
}

func (s *Store) CheckAccess(_ context.Context) error { return s.AccessErr }

// Compile-time check that Store implements imagestore.Store.
var _ imagestore.Store = (*Store)(nil)
