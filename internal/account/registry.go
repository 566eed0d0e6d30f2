package account

import (
	"fmt"
	"log/slog"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/backend/imap"
	"github.com/nhle/mailctl/internal/backend/index"
	"github.com/nhle/mailctl/internal/backend/maildir"
	"github.com/nhle/mailctl/internal/backend/sendmail"
	"github.com/nhle/mailctl/internal/backend/smtp"
	"github.com/nhle/mailctl/internal/credential"
	"github.com/nhle/mailctl/internal/model"
)

// Deps carries what factories need besides the account configuration.
type Deps struct {
	Credentials *credential.Store
	Logger      *slog.Logger
}

// Factory builds the initializer of one backend variant for an account.
type Factory func(acc model.AccountConfig, deps Deps) (backend.Initializer, error)

// Registry lists the backend variants available to this build. A kind
// without a factory behaves as if it were not compiled in.
type Registry map[backend.Kind]Factory

// DefaultRegistry holds every backend variant.
func DefaultRegistry() Registry {
	return Registry{
		backend.KindIMAP:     newIMAP,
		backend.KindMaildir:  newMaildir,
		backend.KindIndex:    newIndex,
		backend.KindSMTP:     newSMTP,
		backend.KindSendmail: newSendmail,
	}
}

// Without returns a copy of the registry lacking the given kinds.
func (r Registry) Without(kinds ...backend.Kind) Registry {
	out := make(Registry, len(r))
	for k, f := range r {
		out[k] = f
	}
	for _, k := range kinds {
		delete(out, k)
	}
	return out
}

func newIMAP(acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	if acc.Backend.IMAP == nil {
		return nil, fmt.Errorf("backend.imap section is missing")
	}
	return imap.NewInitializer(acc.Name, *acc.Backend.IMAP, deps.Credentials, deps.Logger), nil
}

func newMaildir(acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	if acc.Backend.Maildir == nil {
		return nil, fmt.Errorf("backend.maildir section is missing")
	}
	return maildir.NewInitializer(*acc.Backend.Maildir, deps.Logger), nil
}

func newIndex(acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	if acc.Backend.Index == nil {
		return nil, fmt.Errorf("backend.index section is missing")
	}
	return index.NewInitializer(*acc.Backend.Index, deps.Logger), nil
}

func newSMTP(acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	if acc.Sending.SMTP == nil {
		return nil, fmt.Errorf("sending.smtp section is missing")
	}
	return smtp.NewInitializer(acc.Name, *acc.Sending.SMTP, deps.Credentials, deps.Logger), nil
}

func newSendmail(acc model.AccountConfig, deps Deps) (backend.Initializer, error) {
	var cfg model.SendmailConfig
	if acc.Sending.Sendmail != nil {
		cfg = *acc.Sending.Sendmail
	}
	return sendmail.NewInitializer(cfg, deps.Logger), nil
}
