// Package sendmail implements the command-based sending backend: the raw
// message is piped to a local command such as sendmail or msmtp.
package sendmail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
)

// DefaultCmd is used when the account does not configure a command.
const DefaultCmd = "/usr/sbin/sendmail -t -i"

// Initializer resolves the sending command.
type Initializer struct {
	cfg    model.SendmailConfig
	logger *slog.Logger
}

// NewInitializer returns the sendmail initializer of an account.
func NewInitializer(cfg model.SendmailConfig, logger *slog.Logger) *Initializer {
	return &Initializer{cfg: cfg, logger: logger}
}

func (i *Initializer) Kind() backend.Kind {
	return backend.KindSendmail
}

// Build checks that the command exists; nothing is started yet.
func (i *Initializer) Build(_ context.Context) (backend.Session, error) {
	cmd := i.cfg.Cmd
	if strings.TrimSpace(cmd) == "" {
		cmd = DefaultCmd
	}
	args := strings.Fields(cmd)

	path, err := exec.LookPath(args[0])
	if err != nil {
		return nil, fmt.Errorf("resolving sendmail command %q: %w", args[0], err)
	}

	logger := i.logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		path:   path,
		args:   args[1:],
		logger: logger.With("component", "sendmail"),
	}, nil
}

// Session runs the command once per message.
type Session struct {
	path   string
	args   []string
	logger *slog.Logger
}

// Close releases nothing.
func (s *Session) Close() error {
	return nil
}

// SendMessage pipes raw to the command's standard input.
func (s *Session) SendMessage(ctx context.Context, raw []byte) error {
	cmd := exec.CommandContext(ctx, s.path, s.args...)
	cmd.Stdin = bytes.NewReader(raw)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w: %s", s.path, err, strings.TrimSpace(stderr.String()))
	}
	s.logger.Debug("message piped", "cmd", s.path, "bytes", len(raw))
	return nil
}
