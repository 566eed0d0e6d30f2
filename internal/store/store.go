package store

import (
	"context"
)

// Scope identifies an alias namespace: one folder of one account.
type Scope struct {
	Account string
	Folder  string
}

// AliasRecord binds a native message identifier to a short id within a
// scope. Records are never updated or reused once committed.
type AliasRecord struct {
	Account  string `db:"account" json:"account"`
	Folder   string `db:"folder" json:"folder"`
	NativeID string `db:"native_id" json:"native_id"`
	ShortID  int64  `db:"short_id" json:"id"`
}

// AliasStore defines the durable persistence used by the alias layer.
type AliasStore interface {
	// ShortID returns the short id bound to nativeID, if any.
	ShortID(ctx context.Context, scope Scope, nativeID string) (int64, bool, error)

	// NativeID returns the native id bound to shortID, if any.
	NativeID(ctx context.Context, scope Scope, shortID int64) (string, bool, error)

	// Allocate returns the short id bound to nativeID, binding the next
	// free id of the scope first when there is none. The binding and the
	// counter update commit together or not at all.
	Allocate(ctx context.Context, scope Scope, nativeID string) (int64, error)

	// Aliases returns every record of the scope ordered by short id.
	Aliases(ctx context.Context, scope Scope) ([]AliasRecord, error)

	Close() error
}
