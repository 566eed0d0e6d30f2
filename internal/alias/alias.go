// Package alias maps backend-native message identifiers to short ids a
// user can type, scoped per account and folder.
package alias

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/store"
)

// Store is the bijection between native ids and aliases of one scope.
type Store interface {
	// GetOrCreateAlias returns the alias of nativeID, allocating the next
	// free one when nativeID was never seen in the scope.
	GetOrCreateAlias(ctx context.Context, nativeID string) (string, error)

	// GetID returns the native id behind alias.
	GetID(ctx context.Context, alias string) (string, error)

	// GetIDs is the batch form of GetID. It fails on the first unknown alias.
	GetIDs(ctx context.Context, aliases []string) ([]string, error)

	// CreateAlias binds nativeID right away, typically after a message was
	// added to a folder, and returns its alias.
	CreateAlias(ctx context.Context, nativeID string) (string, error)
}

// Provider hands out the store of a scope.
type Provider interface {
	Scope(account, folder string) Store
}

// Select returns the provider matching the active read backend. Backends
// with filename-like or header-derived ids use the persistent provider when
// one is available; IMAP UIDs are already short and pass through.
func Select(kind backend.Kind, persistent *SQLProvider) Provider {
	if persistent == nil {
		return PassThrough{}
	}
	switch kind {
	case backend.KindMaildir, backend.KindIndex:
		return persistent
	default:
		return PassThrough{}
	}
}

// UnknownAliasError is returned when an alias was never allocated in its scope.
type UnknownAliasError struct {
	Scope store.Scope
	Alias string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown alias %q in %s/%s", e.Alias, e.Scope.Account, e.Scope.Folder)
}

// IsUnknownAlias reports whether err (or any error in its chain) is an
// UnknownAliasError.
func IsUnknownAlias(err error) bool {
	var unknown *UnknownAliasError
	return errors.As(err, &unknown)
}

// PersistenceError wraps a storage failure of the persistent provider.
type PersistenceError struct {
	Scope store.Scope
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("alias %s in %s/%s: %v", e.Op, e.Scope.Account, e.Scope.Folder, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err (or any error in its chain) is a
// PersistenceError.
func IsPersistenceError(err error) bool {
	var persistence *PersistenceError
	return errors.As(err, &persistence)
}
