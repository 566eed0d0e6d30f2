package account

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/model"
)

type fakeSession struct {
	closed atomic.Int32
}

func (s *fakeSession) Close() error {
	s.closed.Add(1)
	return nil
}

// fakeReader implements every read-side feature.
type fakeReader struct {
	fakeSession
}

func (*fakeReader) ListFolders(context.Context) ([]backend.Folder, error) { return nil, nil }
func (*fakeReader) ListEnvelopes(context.Context, string, backend.ListOptions) ([]backend.Envelope, error) {
	return nil, nil
}
func (*fakeReader) GetMessages(context.Context, string, []string) ([]backend.Message, error) {
	return nil, nil
}
func (*fakeReader) AddMessage(context.Context, string, []byte, []backend.Flag) (string, error) {
	return "", nil
}
func (*fakeReader) CopyMessages(context.Context, string, string, []string) error { return nil }
func (*fakeReader) MoveMessages(context.Context, string, string, []string) error { return nil }
func (*fakeReader) DeleteMessages(context.Context, string, []string) error       { return nil }

// folderOnly implements list-folders only.
type folderOnly struct {
	fakeSession
}

func (*folderOnly) ListFolders(context.Context) ([]backend.Folder, error) { return nil, nil }

type fakeSender struct {
	fakeSession
}

func (*fakeSender) SendMessage(context.Context, []byte) error { return nil }

type fakeInit struct {
	kind backend.Kind
	sess backend.Session
	err  error
}

func (i *fakeInit) Kind() backend.Kind { return i.kind }

func (i *fakeInit) Build(context.Context) (backend.Session, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.sess, nil
}

func fixed(init backend.Initializer) Factory {
	return func(model.AccountConfig, Deps) (backend.Initializer, error) { return init, nil }
}

func account(read, send string) model.AccountConfig {
	return model.AccountConfig{
		Name:    "work",
		Backend: model.BackendConfig{Type: read},
		Sending: model.SendingConfig{Type: send},
	}
}

func TestDispatchExclusivity(t *testing.T) {
	reader := &fakeReader{}
	sender := &fakeSender{}
	registry := Registry{
		backend.KindMaildir:  fixed(&fakeInit{kind: backend.KindMaildir, sess: reader}),
		backend.KindSendmail: fixed(&fakeInit{kind: backend.KindSendmail, sess: sender}),
		backend.KindIMAP: func(model.AccountConfig, Deps) (backend.Initializer, error) {
			t.Fatal("imap factory called for a maildir account")
			return nil, nil
		},
	}

	builder, err := NewContextBuilder(account("maildir", "sendmail"), registry, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer c.Close()

	for _, f := range backend.Features {
		kind, sess, err := c.Resolve(f)
		if err != nil {
			t.Errorf("Resolve(%s) error = %v", f, err)
			continue
		}
		if f == backend.FeatureSendMessage {
			if kind != backend.KindSendmail || sess != backend.Session(sender) {
				t.Errorf("Resolve(%s) = %s, want sendmail session", f, kind)
			}
			continue
		}
		if kind != backend.KindMaildir || sess != backend.Session(reader) {
			t.Errorf("Resolve(%s) = %s, want maildir session", f, kind)
		}
	}
}

func TestDispatchUnsupported(t *testing.T) {
	full := Registry{
		backend.KindMaildir:  fixed(&fakeInit{kind: backend.KindMaildir, sess: &fakeReader{}}),
		backend.KindIMAP:     fixed(&fakeInit{kind: backend.KindIMAP, sess: &fakeReader{}}),
		backend.KindSendmail: fixed(&fakeInit{kind: backend.KindSendmail, sess: &fakeSender{}}),
	}

	tests := []struct {
		name     string
		acc      model.AccountConfig
		registry Registry
		feature  backend.Feature
		wantKind backend.Kind
	}{
		{"no read backend", account("none", "sendmail"), full, backend.FeatureListEnvelopes, backend.KindNone},
		{"empty read backend", account("", "sendmail"), full, backend.FeatureGetMessages, backend.KindNone},
		{"no sending backend", account("maildir", "none"), full, backend.FeatureSendMessage, backend.KindNone},
		{"read variant not compiled in", account("imap", "sendmail"), full.Without(backend.KindIMAP), backend.FeatureListFolders, backend.KindIMAP},
		{"send variant not compiled in", account("maildir", "smtp"), full, backend.FeatureSendMessage, backend.KindSMTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder, err := NewContextBuilder(tt.acc, tt.registry, Deps{})
			if err != nil {
				t.Fatal(err)
			}
			if kind, ok := builder.Supports(tt.feature); ok || kind != tt.wantKind {
				t.Errorf("Supports(%s) = %s, %v", tt.feature, kind, ok)
			}

			c, err := builder.Build(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()

			_, _, err = c.Resolve(tt.feature)
			var unsupported *backend.UnsupportedError
			if !errors.As(err, &unsupported) {
				t.Fatalf("Resolve(%s) error = %v, want unsupported", tt.feature, err)
			}
			if unsupported.Kind != tt.wantKind || unsupported.Feature != tt.feature {
				t.Errorf("UnsupportedError = %+v", unsupported)
			}
		})
	}
}

func TestDispatchPartialCapabilities(t *testing.T) {
	registry := Registry{
		backend.KindIMAP: fixed(&fakeInit{kind: backend.KindIMAP, sess: &folderOnly{}}),
	}
	builder, err := NewContextBuilder(account("imap", "none"), registry, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := builder.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.FolderLister(); err != nil {
		t.Errorf("FolderLister() error = %v", err)
	}
	if _, err := c.EnvelopeLister(); !backend.IsUnsupported(err) {
		t.Errorf("EnvelopeLister() error = %v, want unsupported", err)
	}
}

func TestBuildFailureClosesOpenedSessions(t *testing.T) {
	reader := &fakeReader{}
	boom := errors.New("connection refused")
	registry := Registry{
		backend.KindMaildir: fixed(&fakeInit{kind: backend.KindMaildir, sess: reader}),
		backend.KindSMTP:    fixed(&fakeInit{kind: backend.KindSMTP, err: boom}),
	}

	builder, err := NewContextBuilder(account("maildir", "smtp"), registry, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	c, err := builder.Build(context.Background())
	if c != nil {
		t.Error("Build() returned a context despite a failing variant")
	}

	var buildErr *backend.BuildError
	if !errors.As(err, &buildErr) || buildErr.Kind != backend.KindSMTP {
		t.Fatalf("Build() error = %v, want smtp build error", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Build() error %v does not wrap the cause", err)
	}
	if n := reader.closed.Load(); n != 1 {
		t.Errorf("maildir session closed %d times, want 1", n)
	}
}

func TestBuildConsumesBuilder(t *testing.T) {
	builder, err := NewContextBuilder(account("none", "none"), Registry{}, Deps{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := builder.Build(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := builder.Build(context.Background()); err == nil {
		t.Error("second Build() succeeded")
	}
}

func TestSelectionCategoryMismatch(t *testing.T) {
	if _, err := NewContextBuilder(account("smtp", "none"), DefaultRegistry(), Deps{}); err == nil {
		t.Error("smtp accepted as read backend")
	}
	if _, err := NewContextBuilder(account("none", "maildir"), DefaultRegistry(), Deps{}); err == nil {
		t.Error("maildir accepted as sending backend")
	}
	if _, err := NewContextBuilder(account("pop3", "none"), DefaultRegistry(), Deps{}); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestMissingSectionFailsConfiguration(t *testing.T) {
	if _, err := NewContextBuilder(account("imap", "none"), DefaultRegistry(), Deps{}); err == nil {
		t.Error("imap backend without imap section accepted")
	}
}

func TestContextCloseOnce(t *testing.T) {
	reader := &fakeReader{}
	sender := &fakeSender{}
	c := NewContext(backend.KindMaildir, reader, backend.KindSendmail, sender)

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if reader.closed.Load() != 1 || sender.closed.Load() != 1 {
		t.Errorf("sessions closed %d/%d times, want 1/1", reader.closed.Load(), sender.closed.Load())
	}
}
