package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hisab/internal/ledger"
)

type stubStore struct {
	ledger.Store
	name    string
	pingErr error
}

func (s *stubStore) Ping(context.Context) error { return s.pingErr }
func (s *stubStore) Close() error               { return nil }

func TestRouterSelection(t *testing.T) {
	local := &stubStore{name: "local"}
	remote := &stubStore{name: "remote"}

	tests := []struct {
		name   string
		router *Router
		user   string
		want   BackendType
	}{
		{"guest without remote", &Router{Local: local}, "guest", LocalBackend},
		{"user without remote", &Router{Local: local}, "alice", LocalBackend},
		{"guest with remote", &Router{Local: local, Remote: remote}, "guest", LocalBackend},
		{"blank user with remote", &Router{Local: local, Remote: remote}, "", LocalBackend},
		{"user with remote", &Router{Local: local, Remote: remote}, "alice", RemoteBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.router.TypeFor(tt.user); got != tt.want {
				t.Errorf("TypeFor(%q) = %s, want %s", tt.user, got, tt.want)
			}
		})
	}
}

func TestRouterPing(t *testing.T) {
	boom := errors.New("down")
	r := &Router{Local: &stubStore{}, Remote: &stubStore{pingErr: boom}}
	if err := r.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ping = %v, want %v", err, boom)
	}
}

func TestOpenLocalOnly(t *testing.T) {
	r, err := Open(context.Background(), Config{SQLiteDBPath: filepath.Join(t.TempDir(), "hisab.db")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Remote != nil {
		t.Error("remote store should not be opened without a database URL")
	}
	if err := r.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if _, err := Open(context.Background(), Config{}, nil); err == nil {
		t.Error("expected error without SQLite path")
	}
}
