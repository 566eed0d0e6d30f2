// Package index implements the local index backend: a SQLite table of
// envelopes kept over a maildir tree. The native id of a message is its
// Message-ID, or its delivery key when the header is missing or repeated
// within a folder.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/backend/maildir"
	"github.com/nhle/mailctl/internal/message"
	"github.com/nhle/mailctl/internal/model"
	"github.com/nhle/mailctl/internal/store"
)

// DefaultDBName is the index file created in the maildir root when no
// path is configured.
const DefaultDBName = ".mailctl-index.db"

// Initializer opens an index session.
type Initializer struct {
	cfg    model.IndexConfig
	logger *slog.Logger
}

// NewInitializer returns the index initializer of an account.
func NewInitializer(cfg model.IndexConfig, logger *slog.Logger) *Initializer {
	return &Initializer{cfg: cfg, logger: logger}
}

func (i *Initializer) Kind() backend.Kind {
	return backend.KindIndex
}

func (i *Initializer) Build(ctx context.Context) (backend.Session, error) {
	return Open(ctx, i.cfg, i.logger)
}

// Session is a live index: an open database plus the maildir it indexes.
type Session struct {
	md     *maildir.Session
	db     *sqlx.DB
	logger *slog.Logger
}

// row is the database form of an indexed envelope.
type row struct {
	Folder        string `db:"folder"`
	MessageID     string `db:"message_id"`
	FileKey       string `db:"file_key"`
	InReplyTo     string `db:"in_reply_to"`
	Subject       string `db:"subject"`
	FromName      string `db:"from_name"`
	FromAddr      string `db:"from_addr"`
	ToName        string `db:"to_name"`
	ToAddr        string `db:"to_addr"`
	Date          int64  `db:"date"`
	Flags         string `db:"flags"`
	HasAttachment bool   `db:"has_attachment"`
}

const insertRow = `
	INSERT INTO messages (
		folder, message_id, file_key, in_reply_to, subject,
		from_name, from_addr, to_name, to_addr, date, flags, has_attachment
	) VALUES (
		:folder, :message_id, :file_key, :in_reply_to, :subject,
		:from_name, :from_addr, :to_name, :to_addr, :date, :flags, :has_attachment
	)`

const selectRows = `
	SELECT folder, message_id, file_key, in_reply_to, subject,
		from_name, from_addr, to_name, to_addr, date, flags, has_attachment
	FROM messages`

// Open opens the index database, creating it when missing, and rebuilds
// it from the maildir tree.
func Open(ctx context.Context, cfg model.IndexConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	md, err := maildir.Open(cfg.RootDir, logger)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.RootDir, DefaultDBName)
	}
	db, err := store.Open(dbPath, migrations)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	s := &Session{md: md, db: db, logger: logger.With("component", "index")}
	if err := s.Reindex(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the index database.
func (s *Session) Close() error {
	return s.db.Close()
}

// Reindex drops every row and scans the maildir tree again.
func (s *Session) Reindex(ctx context.Context) error {
	folders, err := s.md.ListFolders(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	total := 0
	for _, f := range folders {
		envs, err := s.md.ListEnvelopes(ctx, f.Name, backend.ListOptions{})
		if err != nil {
			return fmt.Errorf("scanning %s: %w", f.Name, err)
		}
		seen := make(map[string]bool, len(envs))
		for _, env := range envs {
			r := toRow(f.Name, env.ID, env)
			if seen[r.MessageID] {
				r.MessageID = env.ID
			}
			seen[r.MessageID] = true
			if _, err := tx.NamedExecContext(ctx, insertRow, r); err != nil {
				return fmt.Errorf("indexing %s: %w", env.ID, err)
			}
		}
		total += len(envs)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index: %w", err)
	}
	s.logger.Debug("index rebuilt", "folders", len(folders), "messages", total)
	return nil
}

func canonicalFolder(folder string) string {
	if folder == "" || strings.EqualFold(folder, maildir.Inbox) {
		return maildir.Inbox
	}
	return folder
}

// toRow builds an index row; env.ID is ignored in favour of key.
func toRow(folder, key string, env backend.Envelope) row {
	id := env.MessageID
	if id == "" {
		id = key
	}
	var date int64
	if !env.Date.IsZero() {
		date = env.Date.Unix()
	}
	flags := make([]string, 0, len(env.Flags))
	for _, f := range env.Flags {
		flags = append(flags, string(f))
	}
	return row{
		Folder:        canonicalFolder(folder),
		MessageID:     id,
		FileKey:       key,
		InReplyTo:     env.InReplyTo,
		Subject:       env.Subject,
		FromName:      env.From.Name,
		FromAddr:      env.From.Addr,
		ToName:        env.To.Name,
		ToAddr:        env.To.Addr,
		Date:          date,
		Flags:         strings.Join(flags, ","),
		HasAttachment: env.HasAttachment,
	}
}

func (r row) envelope() backend.Envelope {
	env := backend.Envelope{
		ID:            r.MessageID,
		MessageID:     r.MessageID,
		InReplyTo:     r.InReplyTo,
		Subject:       r.Subject,
		From:          backend.Address{Name: r.FromName, Addr: r.FromAddr},
		To:            backend.Address{Name: r.ToName, Addr: r.ToAddr},
		HasAttachment: r.HasAttachment,
	}
	if r.Date != 0 {
		env.Date = time.Unix(r.Date, 0).UTC()
	}
	if r.Flags != "" {
		for _, f := range strings.Split(r.Flags, ",") {
			env.Flags = append(env.Flags, backend.Flag(f))
		}
	}
	return env
}

// ListFolders returns the folders of the underlying maildir.
func (s *Session) ListFolders(ctx context.Context) ([]backend.Folder, error) {
	return s.md.ListFolders(ctx)
}

// ListEnvelopes pages through the index, newest first.
func (s *Session) ListEnvelopes(
	ctx context.Context,
	folder string,
	opts backend.ListOptions,
) ([]backend.Envelope, error) {
	query := selectRows + ` WHERE folder = ? ORDER BY date DESC, message_id DESC`
	args := []any{canonicalFolder(folder)}
	if opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.PageSize, (page-1)*opts.PageSize)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing envelopes of %s: %w", folder, err)
	}

	envelopes := make([]backend.Envelope, 0, len(rows))
	for _, r := range rows {
		envelopes = append(envelopes, r.envelope())
	}
	return envelopes, nil
}

// ThreadEnvelopes threads the whole folder, then keeps the requested page.
// Replies whose parent falls on another page keep an edge to it.
func (s *Session) ThreadEnvelopes(
	ctx context.Context,
	folder string,
	opts backend.ListOptions,
) (*backend.ThreadedEnvelopes, error) {
	all, err := s.ListEnvelopes(ctx, folder, backend.ListOptions{})
	if err != nil {
		return nil, err
	}
	threaded := backend.Thread(all)

	start, end := opts.Bounds(len(all))
	ids := make([]string, 0, end-start)
	for _, env := range all[start:end] {
		ids = append(ids, env.ID)
	}
	return threaded.Restrict(ids), nil
}

// fileKeys maps native ids to delivery keys, preserving input order.
func (s *Session) fileKeys(ctx context.Context, folder string, ids []string) ([]row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(selectRows+` WHERE folder = ? AND message_id IN (?)`, canonicalFolder(folder), ids)
	if err != nil {
		return nil, fmt.Errorf("building lookup query: %w", err)
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("looking up messages in %s: %w", folder, err)
	}

	byID := make(map[string]row, len(rows))
	for _, r := range rows {
		byID[r.MessageID] = r
	}
	ordered := make([]row, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", backend.ErrMessageNotFound, id, folder)
		}
		ordered = append(ordered, r)
	}
	return ordered, nil
}

func keysOf(rows []row) []string {
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.FileKey)
	}
	return keys
}

// GetMessages reads raw messages through the index.
func (s *Session) GetMessages(ctx context.Context, folder string, ids []string) ([]backend.Message, error) {
	rows, err := s.fileKeys(ctx, folder, ids)
	if err != nil {
		return nil, err
	}
	msgs, err := s.md.GetMessages(ctx, folder, keysOf(rows))
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].ID = rows[i].MessageID
	}
	return msgs, nil
}

// AddMessage delivers raw to the maildir and indexes it.
func (s *Session) AddMessage(
	ctx context.Context,
	folder string,
	raw []byte,
	flags []backend.Flag,
) (string, error) {
	key, err := s.md.AddMessage(ctx, folder, raw, flags)
	if err != nil {
		return "", err
	}

	env, err := message.ParseEnvelope(key, raw)
	if err != nil {
		return "", err
	}
	env.Flags = backend.SortFlags(flags)

	r := toRow(folder, key, env)
	r.MessageID, err = freeMessageID(ctx, s.db, r.Folder, r.MessageID, key)
	if err != nil {
		return "", err
	}

	if _, err := s.db.NamedExecContext(ctx, insertRow, r); err != nil {
		return "", fmt.Errorf("indexing %s: %w", key, err)
	}
	return r.MessageID, nil
}

// freeMessageID returns id when no message of folder uses it yet, and
// fallback otherwise.
func freeMessageID(ctx context.Context, q sqlx.QueryerContext, folder, id, fallback string) (string, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n,
		`SELECT COUNT(*) FROM messages WHERE folder = ? AND message_id = ?`, folder, id)
	if err != nil {
		return "", fmt.Errorf("checking index: %w", err)
	}
	if n > 0 {
		return fallback, nil
	}
	return id, nil
}

// CopyMessages copies files and their index rows. A copy whose Message-ID
// is already used in the target folder is indexed under its new file key.
func (s *Session) CopyMessages(ctx context.Context, from, to string, ids []string) error {
	rows, err := s.fileKeys(ctx, from, ids)
	if err != nil {
		return err
	}
	keys, err := s.md.CopyMessagesWithKeys(ctx, from, to, keysOf(rows))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, key := range keys {
		r := rows[i]
		r.Folder = canonicalFolder(to)
		r.FileKey = key
		r.MessageID, err = freeMessageID(ctx, tx, r.Folder, r.MessageID, key)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertRow, r); err != nil {
			return fmt.Errorf("indexing copy %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing copies: %w", err)
	}
	return nil
}

// MoveMessages moves files and re-targets their index rows. A moved
// message whose Message-ID is already used in the target folder is
// re-indexed under its file key.
func (s *Session) MoveMessages(ctx context.Context, from, to string, ids []string) error {
	rows, err := s.fileKeys(ctx, from, ids)
	if err != nil {
		return err
	}
	if err := s.md.MoveMessages(ctx, from, to, keysOf(rows)); err != nil {
		return err
	}

	src, dst := canonicalFolder(from), canonicalFolder(to)
	if src == dst {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range rows {
		id, err := freeMessageID(ctx, tx, dst, r.MessageID, r.FileKey)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE messages SET folder = ?, message_id = ? WHERE folder = ? AND message_id = ?`,
			dst, id, src, r.MessageID,
		)
		if err != nil {
			return fmt.Errorf("moving index row %s: %w", r.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing moves: %w", err)
	}
	return nil
}

// DeleteMessages removes files and their index rows.
func (s *Session) DeleteMessages(ctx context.Context, folder string, ids []string) error {
	rows, err := s.fileKeys(ctx, folder, ids)
	if err != nil {
		return err
	}
	if err := s.md.DeleteMessages(ctx, folder, keysOf(rows)); err != nil {
		return err
	}

	query, args, err := sqlx.In(`DELETE FROM messages WHERE folder = ? AND message_id IN (?)`,
		canonicalFolder(folder), ids)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting index rows: %w", err)
	}
	return nil
}
