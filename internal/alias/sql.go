package alias

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/nhle/mailctl/internal/store"
)

// SQLProvider keeps aliases in a persistent AliasStore. Aliases are
// decimal integers starting at 1, allocated in first-seen order per scope.
type SQLProvider struct {
	db     store.AliasStore
	logger *slog.Logger

	mu    sync.Mutex
	locks map[store.Scope]*sync.RWMutex
}

// NewSQLProvider wraps db. A nil logger discards log output.
func NewSQLProvider(db store.AliasStore, logger *slog.Logger) *SQLProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLProvider{
		db:     db,
		logger: logger.With("component", "alias"),
		locks:  make(map[store.Scope]*sync.RWMutex),
	}
}

// Scope returns the store of account/folder.
func (p *SQLProvider) Scope(account, folder string) Store {
	scope := store.Scope{Account: account, Folder: folder}
	return &sqlScope{provider: p, scope: scope, lock: p.lockFor(scope)}
}

// List returns the aliases bound in account/folder ordered by alias.
func (p *SQLProvider) List(ctx context.Context, account, folder string) ([]store.AliasRecord, error) {
	scope := store.Scope{Account: account, Folder: folder}
	lock := p.lockFor(scope)
	lock.RLock()
	defer lock.RUnlock()

	records, err := p.db.Aliases(ctx, scope)
	if err != nil {
		return nil, &PersistenceError{Scope: scope, Op: "list", Err: err}
	}
	return records, nil
}

// Close closes the underlying store.
func (p *SQLProvider) Close() error {
	return p.db.Close()
}

func (p *SQLProvider) lockFor(scope store.Scope) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[scope]
	if !ok {
		lock = &sync.RWMutex{}
		p.locks[scope] = lock
	}
	return lock
}

type sqlScope struct {
	provider *SQLProvider
	scope    store.Scope
	lock     *sync.RWMutex
}

func (s *sqlScope) GetOrCreateAlias(ctx context.Context, nativeID string) (string, error) {
	s.lock.RLock()
	short, ok, err := s.provider.db.ShortID(ctx, s.scope, nativeID)
	s.lock.RUnlock()
	if err != nil {
		return "", &PersistenceError{Scope: s.scope, Op: "lookup", Err: err}
	}
	if ok {
		return formatAlias(short), nil
	}
	return s.allocate(ctx, nativeID)
}

func (s *sqlScope) CreateAlias(ctx context.Context, nativeID string) (string, error) {
	return s.allocate(ctx, nativeID)
}

// allocate takes the write lock; Allocate re-checks for an existing binding
// inside its transaction, so racing callers for the same id agree.
func (s *sqlScope) allocate(ctx context.Context, nativeID string) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	short, err := s.provider.db.Allocate(ctx, s.scope, nativeID)
	if err != nil {
		return "", &PersistenceError{Scope: s.scope, Op: "allocate", Err: err}
	}
	s.provider.logger.Debug("alias bound",
		"account", s.scope.Account,
		"folder", s.scope.Folder,
		"native_id", nativeID,
		"alias", short,
	)
	return formatAlias(short), nil
}

func (s *sqlScope) GetID(ctx context.Context, alias string) (string, error) {
	short, err := strconv.ParseInt(alias, 10, 64)
	if err != nil || short <= 0 {
		return "", &UnknownAliasError{Scope: s.scope, Alias: alias}
	}

	s.lock.RLock()
	id, ok, err := s.provider.db.NativeID(ctx, s.scope, short)
	s.lock.RUnlock()
	if err != nil {
		return "", &PersistenceError{Scope: s.scope, Op: "lookup", Err: err}
	}
	if !ok {
		return "", &UnknownAliasError{Scope: s.scope, Alias: alias}
	}
	return id, nil
}

func (s *sqlScope) GetIDs(ctx context.Context, aliases []string) ([]string, error) {
	ids := make([]string, 0, len(aliases))
	for _, a := range aliases {
		id, err := s.GetID(ctx, a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatAlias(short int64) string {
	return strconv.FormatInt(short, 10)
}
