package testutil

import (
	"context"
	"sync"

	"github.com/moyuhunter/huntqueue/bili"
	"github.com/moyuhunter/huntqueue/match"
	"github.com/moyuhunter/huntqueue/supervisor"
)

// MemCredentialStore is an in-memory supervisor.CredentialStore for tests
// that must not touch Postgres.
type MemCredentialStore struct {
	mu   sync.Mutex
	cred string
}

func (m *MemCredentialStore) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *MemCredentialStore) Set(ctx context.Context, c string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = c
	return nil
}

func (m *MemCredentialStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = ""
	return nil
}

// StaticCatalog is a fixed queue.CatalogSource.
type StaticCatalog []match.CatalogEntry

func (c StaticCatalog) List(ctx context.Context) ([]match.CatalogEntry, error) {
	return c, nil
}

// FakeStream is a scriptable live stream: push events into Events, then
// Close to end the pump.
type FakeStream struct {
	Ch   chan bili.Event
	once sync.Once
}

func NewFakeStream() *FakeStream {
	return &FakeStream{Ch: make(chan bili.Event, 16)}
}

func (f *FakeStream) Events() <-chan bili.Event { return f.Ch }

func (f *FakeStream) Close() error {
	f.once.Do(func() { close(f.Ch) })
	return nil
}

// AlwaysDial returns a Dialer that hands out the given stream.
func AlwaysDial(s *FakeStream) supervisor.Dialer {
	return func(ctx context.Context, roomID int64, cookie string) (supervisor.Stream, error) {
		return s, nil
	}
}

// AcquireFixed returns an Acquirer that always yields the given credential.
func AcquireFixed(cred string) supervisor.Acquirer {
	return func(ctx context.Context, loginURL, markerCookie string) (string, error) {
		return cred, nil
	}
}
