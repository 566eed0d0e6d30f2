package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nhle/mailctl/internal/alias"
	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/envelope"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
)

// Options configures Open.
type Options struct {
	// Registry defaults to DefaultRegistry.
	Registry Registry

	Deps Deps

	// Aliases is the persistent alias provider, nil when persistence is
	// disabled.
	Aliases *alias.SQLProvider
}

// Backend is the entry point of every operation on one account. It owns
// the account Context.
type Backend struct {
	account model.AccountConfig
	ctx     *Context
	aliases alias.Provider
	logger  *slog.Logger
}

// Open builds the account Context and picks the alias provider matching
// the read backend.
func Open(ctx context.Context, acc model.AccountConfig, opts Options) (*Backend, error) {
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	builder, err := NewContextBuilder(acc, registry, opts.Deps)
	if err != nil {
		return nil, err
	}
	c, err := builder.Build(ctx)
	if err != nil {
		return nil, err
	}

	provider := alias.Select(c.ReadKind(), opts.Aliases)
	return NewBackend(acc, c, provider, opts.Deps.Logger), nil
}

// NewBackend wraps a built Context.
func NewBackend(acc model.AccountConfig, c *Context, aliases alias.Provider, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Backend{
		account: acc,
		ctx:     c,
		aliases: aliases,
		logger:  logger.With("component", "account", "account", acc.Name),
	}
}

// Close closes the account Context.
func (b *Backend) Close() error {
	return b.ctx.Close()
}

// Account returns the account configuration.
func (b *Backend) Account() model.AccountConfig {
	return b.account
}

func (b *Backend) scope(folder string) alias.Store {
	return b.aliases.Scope(b.account.Name, folder)
}

func (b *Backend) dates() envelope.DateOptions {
	return envelope.DateOptions{
		Layout: b.account.DatetimeFmt(),
		Local:  b.account.Envelope.DatetimeLocalTZ,
	}
}

func (b *Backend) listOptions(page, pageSize int) backend.ListOptions {
	if pageSize <= 0 {
		pageSize = b.account.PageSize()
	}
	if page < 1 {
		page = 1
	}
	return backend.ListOptions{Page: page, PageSize: pageSize}
}

// ListFolders lists the folders of the read backend.
func (b *Backend) ListFolders(ctx context.Context) ([]model.Folder, error) {
	lister, err := b.ctx.FolderLister()
	if err != nil {
		return nil, err
	}

	natives, err := lister.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	folders := make([]model.Folder, 0, len(natives))
	for _, f := range natives {
		folders = append(folders, model.Folder{Name: f.Name, Desc: f.Desc})
	}
	return folders, nil
}

// ListEnvelopes returns one page of envelopes of folder. A zero page size
// uses the account default.
func (b *Backend) ListEnvelopes(ctx context.Context, folder string, page, pageSize int) (model.Envelopes, error) {
	folder = b.account.FolderAlias(folder)
	lister, err := b.ctx.EnvelopeLister()
	if err != nil {
		return nil, err
	}

	opts := b.listOptions(page, pageSize)
	natives, err := lister.ListEnvelopes(ctx, folder, opts)
	if err != nil {
		return nil, fmt.Errorf("listing envelopes of %s: %w", folder, err)
	}
	logging.Trace(ctx, b.logger, "envelopes listed", "folder", folder, "count", len(natives))

	return envelope.FromBackend(ctx, b.scope(folder), natives, b.dates())
}

// ThreadEnvelopes returns the reply graph of one page of envelopes.
// Sessions that cannot thread natively are threaded from a full listing.
func (b *Backend) ThreadEnvelopes(ctx context.Context, folder string, page, pageSize int) (*model.ThreadGraph, error) {
	folder = b.account.FolderAlias(folder)
	_, sess, err := b.ctx.Resolve(backend.FeatureListEnvelopes)
	if err != nil {
		return nil, err
	}

	opts := b.listOptions(page, pageSize)
	var threaded *backend.ThreadedEnvelopes
	if threader, ok := sess.(backend.EnvelopeThreader); ok {
		threaded, err = threader.ThreadEnvelopes(ctx, folder, opts)
		if err != nil {
			return nil, fmt.Errorf("threading envelopes of %s: %w", folder, err)
		}
	} else {
		all, err := sess.(backend.EnvelopeLister).ListEnvelopes(ctx, folder, backend.ListOptions{})
		if err != nil {
			return nil, fmt.Errorf("listing envelopes of %s: %w", folder, err)
		}
		start, end := opts.Bounds(len(all))
		ids := make([]string, 0, end-start)
		for _, env := range all[start:end] {
			ids = append(ids, env.ID)
		}
		threaded = backend.Thread(all).Restrict(ids)
	}

	return envelope.ThreadsFromBackend(ctx, b.scope(folder), threaded, b.dates())
}

// GetMessages returns raw messages addressed by alias.
func (b *Backend) GetMessages(ctx context.Context, folder string, ids []string) ([]model.Message, error) {
	folder = b.account.FolderAlias(folder)
	getter, err := b.ctx.MessageGetter()
	if err != nil {
		return nil, err
	}

	natives, err := b.scope(folder).GetIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	msgs, err := getter.GetMessages(ctx, folder, natives)
	if err != nil {
		return nil, fmt.Errorf("getting messages from %s: %w", folder, err)
	}

	out := make([]model.Message, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, model.Message{ID: ids[i], Raw: m.Raw})
	}
	return out, nil
}

// AddMessage stores raw in folder and binds an alias to it right away.
// The alias is empty when the backend does not report the new id.
func (b *Backend) AddMessage(ctx context.Context, folder string, raw []byte, flags []model.Flag) (string, error) {
	folder = b.account.FolderAlias(folder)
	adder, err := b.ctx.MessageAdder()
	if err != nil {
		return "", err
	}

	nativeFlags := make([]backend.Flag, 0, len(flags))
	for _, f := range flags {
		nativeFlags = append(nativeFlags, backend.ParseFlag(string(f)))
	}

	id, err := adder.AddMessage(ctx, folder, raw, nativeFlags)
	if err != nil {
		return "", fmt.Errorf("adding message to %s: %w", folder, err)
	}
	if id == "" {
		b.logger.Debug("backend did not report the new message id", "folder", folder)
		return "", nil
	}

	return b.scope(folder).CreateAlias(ctx, id)
}

// SendMessage sends raw through the sending backend. When enabled, a copy
// is then added to the sent folder; failing to save it is logged only.
func (b *Backend) SendMessage(ctx context.Context, raw []byte) error {
	sender, err := b.ctx.MessageSender()
	if err != nil {
		return err
	}
	if err := sender.SendMessage(ctx, raw); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	b.logger.Info("message sent", "sending", b.ctx.SendKind())

	if !b.account.SaveCopy() {
		return nil
	}
	sent := b.account.FolderAlias(model.FolderSent)
	if _, err := b.AddMessage(ctx, sent, raw, []model.Flag{model.FlagSeen}); err != nil {
		b.logger.Warn("cannot save sent message copy", "folder", sent, "error", err)
	}
	return nil
}

// CopyMessages copies messages addressed by alias from one folder to
// another.
func (b *Backend) CopyMessages(ctx context.Context, from, to string, ids []string) error {
	from, to = b.account.FolderAlias(from), b.account.FolderAlias(to)
	copier, err := b.ctx.MessageCopier()
	if err != nil {
		return err
	}
	natives, err := b.scope(from).GetIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := copier.CopyMessages(ctx, from, to, natives); err != nil {
		return fmt.Errorf("copying messages from %s to %s: %w", from, to, err)
	}
	return nil
}

// MoveMessages moves messages addressed by alias from one folder to
// another.
func (b *Backend) MoveMessages(ctx context.Context, from, to string, ids []string) error {
	from, to = b.account.FolderAlias(from), b.account.FolderAlias(to)
	mover, err := b.ctx.MessageMover()
	if err != nil {
		return err
	}
	natives, err := b.scope(from).GetIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := mover.MoveMessages(ctx, from, to, natives); err != nil {
		return fmt.Errorf("moving messages from %s to %s: %w", from, to, err)
	}
	return nil
}

// DeleteMessages deletes messages addressed by alias.
func (b *Backend) DeleteMessages(ctx context.Context, folder string, ids []string) error {
	folder = b.account.FolderAlias(folder)
	deleter, err := b.ctx.MessageDeleter()
	if err != nil {
		return err
	}
	natives, err := b.scope(folder).GetIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := deleter.DeleteMessages(ctx, folder, natives); err != nil {
		return fmt.Errorf("deleting messages from %s: %w", folder, err)
	}
	return nil
}
