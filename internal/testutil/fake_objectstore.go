package testutil

import (
	"context"
	"sync"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// FakeObjectStore is an in-memory domain.ObjectStore, keyed by
// location+"/"+filename, for tests that feed a settlement or feedback file
// through a reconciler without touching S3.
type FakeObjectStore struct {
	mu    sync.Mutex
	files map[string][]byte

	FetchFn func(ctx context.Context, location, filename string) ([]byte, error)
}

func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{files: make(map[string][]byte)}
}

func key(location, filename string) string { return location + "/" + filename }

// Seed places a file's bytes into the store ahead of a Fetch call.
func (f *FakeObjectStore) Seed(location, filename string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key(location, filename)] = data
}

func (f *FakeObjectStore) Fetch(ctx context.Context, location, filename string) ([]byte, error) {
	if f.FetchFn != nil {
		return f.FetchFn(ctx, location, filename)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key(location, filename)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (f *FakeObjectStore) Put(ctx context.Context, location, filename string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key(location, filename)] = data
	return nil
}
