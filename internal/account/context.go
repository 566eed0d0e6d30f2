// Package account routes the operations of an account to the live
// session of its selected backend.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
)

// ContextBuilder holds the initializers of an account: at most one for the
// read selection and one for the sending selection. It is consumed by Build.
type ContextBuilder struct {
	account  string
	readKind backend.Kind
	sendKind backend.Kind
	read     backend.Initializer
	send     backend.Initializer
	logger   *slog.Logger

	mu    sync.Mutex
	built bool
}

// NewContextBuilder populates the initializer of each selected variant that
// the registry provides. A selected variant missing from the registry
// leaves its slot empty; its operations then report unsupported.
func NewContextBuilder(acc model.AccountConfig, registry Registry, deps Deps) (*ContextBuilder, error) {
	readKind, err := selection(acc.Backend.Type, backend.CategoryRead)
	if err != nil {
		return nil, fmt.Errorf("account %s: backend: %w", acc.Name, err)
	}
	sendKind, err := selection(acc.Sending.Type, backend.CategorySend)
	if err != nil {
		return nil, fmt.Errorf("account %s: sending: %w", acc.Name, err)
	}

	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	b := &ContextBuilder{
		account:  acc.Name,
		readKind: readKind,
		sendKind: sendKind,
		logger:   deps.Logger.With("component", "account", "account", acc.Name),
	}

	if b.read, err = initializer(registry, readKind, acc, deps); err != nil {
		return nil, fmt.Errorf("account %s: %w", acc.Name, err)
	}
	if b.send, err = initializer(registry, sendKind, acc, deps); err != nil {
		return nil, fmt.Errorf("account %s: %w", acc.Name, err)
	}
	return b, nil
}

func selection(value string, want backend.Category) (backend.Kind, error) {
	kind, err := backend.ParseKind(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return backend.KindNone, err
	}
	if kind != backend.KindNone && kind.Category() != want {
		return backend.KindNone, fmt.Errorf("%s is not a %s backend", kind, want)
	}
	return kind, nil
}

func initializer(registry Registry, kind backend.Kind, acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	if kind == backend.KindNone {
		return nil, nil
	}
	factory, ok := registry[kind]
	if !ok {
		return nil, nil
	}
	init, err := factory(acc, deps)
	if err != nil {
		return nil, fmt.Errorf("configuring %s: %w", kind, err)
	}
	return init, nil
}

// Selection returns the selected kind of a category.
func (b *ContextBuilder) Selection(c backend.Category) backend.Kind {
	if c == backend.CategorySend {
		return b.sendKind
	}
	return b.readKind
}

// Supports reports which kind a feature routes to and whether an
// initializer is present for it. Whether the live session really
// implements the feature is only known after Build.
func (b *ContextBuilder) Supports(f backend.Feature) (backend.Kind, bool) {
	if f.Category() == backend.CategorySend {
		return b.sendKind, b.send != nil
	}
	return b.readKind, b.read != nil
}

// Build opens the live sessions of the populated initializers
// concurrently. If any of them fails, sessions already opened are closed
// and no Context is returned.
func (b *ContextBuilder) Build(ctx context.Context) (*Context, error) {
	b.mu.Lock()
	if b.built {
		b.mu.Unlock()
		return nil, errors.New("context builder already consumed")
	}
	b.built = true
	b.mu.Unlock()

	var read, send backend.Session
	g, gctx := errgroup.WithContext(ctx)
	if b.read != nil {
		g.Go(func() error {
			s, err := buildSession(gctx, b.read)
			read = s
			return err
		})
	}
	if b.send != nil {
		g.Go(func() error {
			s, err := buildSession(gctx, b.send)
			send = s
			return err
		})
	}

	if err := g.Wait(); err != nil {
		for _, s := range []backend.Session{read, send} {
			if s == nil {
				continue
			}
			if cerr := s.Close(); cerr != nil {
				b.logger.Warn("closing session after failed build", "error", cerr)
			}
		}
		return nil, err
	}

	b.logger.Debug("context built", "backend", b.readKind, "sending", b.sendKind)
	return &Context{
		readKind: b.readKind,
		sendKind: b.sendKind,
		read:     read,
		send:     send,
	}, nil
}

func buildSession(ctx context.Context, init backend.Initializer) (backend.Session, error) {
	s, err := init.Build(ctx)
	if err != nil {
		return nil, &backend.BuildError{Kind: init.Kind(), Err: err}
	}
	if err := ctx.Err(); err != nil {
		// A sibling failed while this session was opening.
		return s, &backend.BuildError{Kind: init.Kind(), Err: err}
	}
	return s, nil
}

// Context owns the live sessions of an account for the duration of a
// command.
type Context struct {
	readKind backend.Kind
	sendKind backend.Kind
	read     backend.Session
	send     backend.Session

	closeOnce sync.Once
	closeErr  error
}

// NewContext wraps already opened sessions. It is meant for callers that
// manage sessions themselves; sessions must match their category.
func NewContext(readKind backend.Kind, read backend.Session, sendKind backend.Kind, send backend.Session) *Context {
	return &Context{readKind: readKind, sendKind: sendKind, read: read, send: send}
}

// Resolve returns the session implementing f under the current selection.
func (c *Context) Resolve(f backend.Feature) (backend.Kind, backend.Session, error) {
	kind, sess := c.readKind, c.read
	if f.Category() == backend.CategorySend {
		kind, sess = c.sendKind, c.send
	}
	if !backend.Implements(sess, f) {
		return kind, nil, &backend.UnsupportedError{Feature: f, Kind: kind}
	}
	return kind, sess, nil
}

// Close closes every owned session once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		for _, s := range []backend.Session{c.read, c.send} {
			if s != nil {
				errs = append(errs, s.Close())
			}
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

// FolderLister resolves list-folders.
func (c *Context) FolderLister() (backend.FolderLister, error) {
	_, s, err := c.Resolve(backend.FeatureListFolders)
	if err != nil {
		return nil, err
	}
	return s.(backend.FolderLister), nil
}

// EnvelopeLister resolves list-envelopes.
func (c *Context) EnvelopeLister() (backend.EnvelopeLister, error) {
	_, s, err := c.Resolve(backend.FeatureListEnvelopes)
	if err != nil {
		return nil, err
	}
	return s.(backend.EnvelopeLister), nil
}

// MessageGetter resolves get-messages.
func (c *Context) MessageGetter() (backend.MessageGetter, error) {
	_, s, err := c.Resolve(backend.FeatureGetMessages)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageGetter), nil
}

// MessageAdder resolves add-message.
func (c *Context) MessageAdder() (backend.MessageAdder, error) {
	_, s, err := c.Resolve(backend.FeatureAddMessage)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageAdder), nil
}

// MessageSender resolves send-message.
func (c *Context) MessageSender() (backend.MessageSender, error) {
	_, s, err := c.Resolve(backend.FeatureSendMessage)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageSender), nil
}

// MessageCopier resolves copy-messages.
func (c *Context) MessageCopier() (backend.MessageCopier, error) {
	_, s, err := c.Resolve(backend.FeatureCopyMessages)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageCopier), nil
}

// MessageMover resolves move-messages.
func (c *Context) MessageMover() (backend.MessageMover, error) {
	_, s, err := c.Resolve(backend.FeatureMoveMessages)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageMover), nil
}

// MessageDeleter resolves delete-messages.
func (c *Context) MessageDeleter() (backend.MessageDeleter, error) {
	_, s, err := c.Resolve(backend.FeatureDeleteMessages)
	if err != nil {
		return nil, err
	}
	return s.(backend.MessageDeleter), nil
}

// ReadKind returns the read selection.
func (c *Context) ReadKind() backend.Kind {
	return c.readKind
}

// SendKind returns the sending selection.
func (c *Context) SendKind() backend.Kind {
	return c.sendKind
}
