// Package backend decides which store serves a user and builds the stores
// from configuration.
package backend

import (
	"context"

	"hisab/internal/core"
	"hisab/internal/ledger"
)

// Store is a ledger store that can also report its health.
type Store interface {
	ledger.Store
	Ping(ctx context.Context) error
}

// BackendType names a store implementation
type BackendType string

const (
	LocalBackend  BackendType = "sqlite"
	RemoteBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// Config holds configuration for backend creation
type Config struct {
	SQLiteDBPath string
	// DatabaseURL enables the remote store for signed-in users.
	DatabaseURL string
}

// Router sends guests to the local store and signed-in users to the remote
// store when one is configured.
type Router struct {
	Local  Store
	Remote Store
}

var _ ledger.Backends = (*Router)(nil)

func (r *Router) For(userID string) ledger.Store {
	return r.store(userID)
}

func (r *Router) store(userID string) Store {
	if r.Remote == nil || userID == "" || userID == core.GuestUserID {
		return r.Local
	}
	return r.Remote
}

// TypeFor reports which backend serves userID.
func (r *Router) TypeFor(userID string) BackendType {
	if r.store(userID) == r.Remote && r.Remote != nil {
		return RemoteBackend
	}
	return LocalBackend
}

// Ping checks every configured store.
func (r *Router) Ping(ctx context.Context) error {
	if err := r.Local.Ping(ctx); err != nil {
		return err
	}
	if r.Remote != nil {
		return r.Remote.Ping(ctx)
	}
	return nil
}

// Close releases every configured store.
func (r *Router) Close() error {
	var first error
	if r.Remote != nil {
		first = r.Remote.Close()
	}
	if err := r.Local.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
