// Package smtp implements the remote submission backend on top of go-smtp.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/emersion/go-smtp"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/credential"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/message"
	"github.com/nhle/mailctl/internal/model"
)

// Initializer connects and authenticates an SMTP session.
type Initializer struct {
	account string
	cfg     model.SMTPConfig
	creds   *credential.Store
	logger  *slog.Logger
}

// NewInitializer returns the SMTP initializer of an account.
func NewInitializer(
	account string,
	cfg model.SMTPConfig,
	creds *credential.Store,
	logger *slog.Logger,
) *Initializer {
	return &Initializer{account: account, cfg: cfg, creds: creds, logger: logger}
}

func (i *Initializer) Kind() backend.Kind {
	return backend.KindSMTP
}

// Build dials the submission server and authenticates.
func (i *Initializer) Build(ctx context.Context) (backend.Session, error) {
	logger := i.logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("component", "smtp", "host", i.cfg.Host)

	addr := net.JoinHostPort(i.cfg.Host, strconv.Itoa(i.cfg.Port))
	client, err := dial(ctx, addr, i.cfg.Host, i.cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP %s: %w", addr, err)
	}

	// Cancelling ctx aborts the greeting and authentication exchanges.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	creds := i.creds
	if creds == nil {
		creds = credential.NewStore()
	}
	sc, err := creds.SASLClient(ctx, i.account, backend.KindSMTP, i.cfg.Login, i.cfg.Auth)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Auth(sc); err != nil {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connecting to SMTP %s: %w", addr, ctxErr)
		}
		return nil, &backend.AuthError{
			Kind:    backend.KindSMTP,
			Message: fmt.Sprintf("authentication failed for %s: %v", i.cfg.Login, err),
		}
	}

	logger.Debug("smtp session opened", "login", i.cfg.Login)
	return &Session{client: client, logger: logger}, nil
}

// dial opens the connection for the configured encryption. The TCP
// connect and the implicit TLS handshake follow ctx.
func dial(ctx context.Context, addr, host, encryption string) (*smtp.Client, error) {
	var d net.Dialer
	tlsConfig := &tls.Config{ServerName: host}
	switch encryption {
	case "none":
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	case "starttls":
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()
		return smtp.NewClientStartTLS(conn, tlsConfig)
	default:
		td := tls.Dialer{NetDialer: &d, Config: tlsConfig}
		conn, err := td.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn), nil
	}
}

// Session wraps one authenticated submission connection.
type Session struct {
	mu     sync.Mutex
	client *smtp.Client
	logger *slog.Logger
}

// Close sends QUIT and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Quit(); err != nil {
		return s.client.Close()
	}
	return nil
}

// SendMessage submits raw. The envelope is derived from the From, To, Cc
// and Bcc headers; Bcc is removed from the transmitted copy.
func (s *Session) SendMessage(_ context.Context, raw []byte) error {
	from, rcpts, err := message.Addresses(raw)
	if err != nil {
		return err
	}
	data, err := message.StripBcc(raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.client.SendMail(from, rcpts, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	s.logger.Debug("message sent", "from", from, "recipients", len(rcpts))
	return nil
}
