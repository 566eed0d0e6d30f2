// Package imap implements the remote IMAP backend on top of go-imap v2.
// The native id of a message is its UID.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/credential"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
)

// Initializer connects and authenticates an IMAP session.
type Initializer struct {
	account string
	cfg     model.IMAPConfig
	creds   *credential.Store
	logger  *slog.Logger
}

// NewInitializer returns the IMAP initializer of an account.
func NewInitializer(
	account string,
	cfg model.IMAPConfig,
	creds *credential.Store,
	logger *slog.Logger,
) *Initializer {
	return &Initializer{account: account, cfg: cfg, creds: creds, logger: logger}
}

func (i *Initializer) Kind() backend.Kind {
	return backend.KindIMAP
}

// Build establishes a connection to the IMAP server and authenticates.
func (i *Initializer) Build(ctx context.Context) (backend.Session, error) {
	logger := i.logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "imap", "host", i.cfg.Host)

	addr := net.JoinHostPort(i.cfg.Host, strconv.Itoa(i.cfg.Port))
	client, err := dial(ctx, addr, i.cfg.Host, i.cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	// Cancelling ctx aborts the greeting and authentication exchanges.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if err := i.authenticate(ctx, client); err != nil {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, ctxErr)
		}
		return nil, err
	}

	logger.Debug("imap session opened", "login", i.cfg.Login)
	return &Session{client: client, logger: logger}, nil
}

// dial opens the connection for the configured encryption. The TCP
// connect and the implicit TLS handshake follow ctx.
func dial(ctx context.Context, addr, host, encryption string) (*imapclient.Client, error) {
	var d net.Dialer
	switch encryption {
	case "none":
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return imapclient.New(conn, nil), nil
	case "starttls":
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()
		return imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: host},
		})
	default:
		td := tls.Dialer{
			NetDialer: &d,
			Config:    &tls.Config{ServerName: host, NextProtos: []string{"imap"}},
		}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return imapclient.New(conn, nil), nil
	}
}

func (i *Initializer) authenticate(ctx context.Context, client *imapclient.Client) error {
	creds := i.creds
	if creds == nil {
		creds = credential.NewStore()
	}

	if i.cfg.Auth.Type == "oauth2" {
		sc, err := creds.SASLClient(ctx, i.account, backend.KindIMAP, i.cfg.Login, i.cfg.Auth)
		if err != nil {
			return err
		}
		if err := client.Authenticate(sc); err != nil {
			return &backend.AuthError{
				Kind:    backend.KindIMAP,
				Message: fmt.Sprintf("authentication failed for %s: %v", i.cfg.Login, err),
			}
		}
		return nil
	}

	password, err := creds.Password(i.account, backend.KindIMAP, i.cfg.Auth)
	if err != nil {
		return err
	}
	if err := client.Login(i.cfg.Login, password).Wait(); err != nil {
		return &backend.AuthError{
			Kind:    backend.KindIMAP,
			Message: fmt.Sprintf("authentication failed for %s: %v", i.cfg.Login, err),
		}
	}
	return nil
}

// Session wraps one authenticated connection. Commands are serialized
// because IMAP state (the selected mailbox) is per connection.
type Session struct {
	mu       sync.Mutex
	client   *imapclient.Client
	selected string
	logger   *slog.Logger
}

// Close logs out and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.client.Logout().Wait()
	return s.client.Close()
}

func (s *Session) selectFolder(folder string) error {
	if s.selected == folder {
		return nil
	}
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", folder, err)
	}
	s.selected = folder
	return nil
}

// ListFolders lists every mailbox.
func (s *Session) ListFolders(_ context.Context) ([]backend.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailboxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	folders := make([]backend.Folder, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		attrs := make([]string, 0, len(mbox.Attrs))
		for _, a := range mbox.Attrs {
			attrs = append(attrs, string(a))
		}
		folders = append(folders, backend.Folder{
			Name: mbox.Mailbox,
			Desc: strings.Join(attrs, ", "),
		})
	}
	return folders, nil
}

// ListEnvelopes searches every UID of the folder and fetches the requested
// page, newest first.
func (s *Session) ListEnvelopes(
	_ context.Context,
	folder string,
	opts backend.ListOptions,
) ([]backend.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	searchData, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	start, end := opts.Bounds(len(uids))
	uids = uids[start:end]
	if len(uids) == 0 {
		return nil, nil
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:      true,
		Flags:         true,
		UID:           true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
	}
	bufs, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching envelopes: %w", err)
	}

	byUID := make(map[imap.UID]*imapclient.FetchMessageBuffer, len(bufs))
	for _, buf := range bufs {
		byUID[buf.UID] = buf
	}

	envelopes := make([]backend.Envelope, 0, len(uids))
	for _, uid := range uids {
		if buf, ok := byUID[uid]; ok {
			envelopes = append(envelopes, envelopeFromBuffer(buf))
		}
	}
	return envelopes, nil
}

// GetMessages fetches full messages without setting \Seen.
func (s *Session) GetMessages(_ context.Context, folder string, ids []string) ([]backend.Message, error) {
	uids, err := parseUIDs(ids)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}
	bufs, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}

	byUID := make(map[imap.UID][]byte, len(bufs))
	for _, buf := range bufs {
		byUID[buf.UID] = buf.FindBodySection(bodySection)
	}

	messages := make([]backend.Message, 0, len(uids))
	for i, uid := range uids {
		raw, ok := byUID[uid]
		if !ok {
			return nil, fmt.Errorf("%w: UID %s in %s", backend.ErrMessageNotFound, ids[i], folder)
		}
		messages = append(messages, backend.Message{ID: ids[i], Raw: raw})
	}
	return messages, nil
}

// AddMessage appends raw to the folder. The returned id is empty when the
// server does not report the new UID.
func (s *Session) AddMessage(
	_ context.Context,
	folder string,
	raw []byte,
	flags []backend.Flag,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := s.client.Append(folder, int64(len(raw)), &imap.AppendOptions{Flags: toIMAPFlags(flags)})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return "", fmt.Errorf("appending to %s: %w", folder, err)
	}
	if err := cmd.Close(); err != nil {
		return "", fmt.Errorf("appending to %s: %w", folder, err)
	}
	data, err := cmd.Wait()
	if err != nil {
		return "", fmt.Errorf("appending to %s: %w", folder, err)
	}
	if data == nil || data.UID == 0 {
		return "", nil
	}
	return strconv.FormatUint(uint64(data.UID), 10), nil
}

// CopyMessages copies messages with UID COPY.
func (s *Session) CopyMessages(_ context.Context, from, to string, ids []string) error {
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectFolder(from); err != nil {
		return err
	}
	if _, err := s.client.Copy(imap.UIDSetNum(uids...), to).Wait(); err != nil {
		return fmt.Errorf("copying to %s: %w", to, err)
	}
	return nil
}

// MoveMessages moves messages with UID MOVE. go-imap falls back to
// COPY, STORE and EXPUNGE when MOVE is not advertised.
func (s *Session) MoveMessages(_ context.Context, from, to string, ids []string) error {
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectFolder(from); err != nil {
		return err
	}
	if _, err := s.client.Move(imap.UIDSetNum(uids...), to).Wait(); err != nil {
		return fmt.Errorf("moving to %s: %w", to, err)
	}
	return nil
}

// DeleteMessages marks messages \Deleted and expunges them.
func (s *Session) DeleteMessages(_ context.Context, folder string, ids []string) error {
	uids, err := parseUIDs(ids)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.selectFolder(folder); err != nil {
		return err
	}

	uidSet := imap.UIDSetNum(uids...)
	storeCmd := s.client.Store(uidSet, &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("flagging messages deleted: %w", err)
	}

	if s.client.Caps().Has(imap.CapUIDPlus) {
		err = s.client.UIDExpunge(uidSet).Close()
	} else {
		err = s.client.Expunge().Close()
	}
	if err != nil {
		return fmt.Errorf("expunging %s: %w", folder, err)
	}
	return nil
}

func parseUIDs(ids []string) ([]imap.UID, error) {
	uids := make([]imap.UID, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: invalid UID %q", backend.ErrMessageNotFound, id)
		}
		uids = append(uids, imap.UID(n))
	}
	return uids, nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func envelopeFromBuffer(buf *imapclient.FetchMessageBuffer) backend.Envelope {
	env := backend.Envelope{
		ID: strconv.FormatUint(uint64(buf.UID), 10),
	}

	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		if len(buf.Envelope.InReplyTo) > 0 {
			env.InReplyTo = buf.Envelope.InReplyTo[0]
		}
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			env.From = backend.Address{Name: from.Name, Addr: from.Addr()}
		}
		if len(buf.Envelope.To) > 0 {
			to := buf.Envelope.To[0]
			env.To = backend.Address{Name: to.Name, Addr: to.Addr()}
		}
	}

	for _, flag := range buf.Flags {
		env.Flags = append(env.Flags, backend.ParseFlag(string(flag)))
	}
	env.Flags = backend.SortFlags(env.Flags)

	if buf.BodyStructure != nil {
		env.HasAttachment = hasAttachment(buf.BodyStructure)
	}

	return env
}

func hasAttachment(bs imap.BodyStructure) bool {
	found := false
	bs.Walk(func(_ []int, part imap.BodyStructure) bool {
		single, ok := part.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		if disp := single.Disposition(); disp != nil && strings.EqualFold(disp.Value, "attachment") {
			found = true
		}
		return !found
	})
	return found
}

func toIMAPFlags(flags []backend.Flag) []imap.Flag {
	out := make([]imap.Flag, 0, len(flags))
	for _, f := range flags {
		switch f {
		case backend.FlagSeen:
			out = append(out, imap.FlagSeen)
		case backend.FlagAnswered:
			out = append(out, imap.FlagAnswered)
		case backend.FlagFlagged:
			out = append(out, imap.FlagFlagged)
		case backend.FlagDeleted:
			out = append(out, imap.FlagDeleted)
		case backend.FlagDraft:
			out = append(out, imap.FlagDraft)
		default:
			out = append(out, imap.Flag(f))
		}
	}
	return out
}
