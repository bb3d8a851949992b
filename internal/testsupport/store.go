package testsupport

import (
	"context"
	"testing"

	"battery/internal/config"
	"battery/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewSession creates an active session for tests using the provided store.
func NewSession(t testing.TB, st *store.Store, participantID string, tasks ...string) *store.Session {
	t.Helper()

	session, err := st.NewSession(context.Background(), participantID, tasks)
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return session
}
