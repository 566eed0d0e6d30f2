package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/account"
	"github.com/nhle/mailctl/internal/alias"
	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/credential"
	"github.com/nhle/mailctl/internal/logging"
	"github.com/nhle/mailctl/internal/model"
	"github.com/nhle/mailctl/internal/printer"
	"github.com/nhle/mailctl/internal/store"
)

// app holds what every command needs once flags are parsed.
type app struct {
	cfg     *model.AppConfig
	account model.AccountConfig
	logger  *slog.Logger
	creds   *credential.Store
	aliases *alias.SQLProvider
	out     *printer.Printer
}

// loadApp reads the configuration and prepares logging and output.
func loadApp(cmd *cobra.Command) (*app, error) {
	format, err := printer.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}

	path := configFile
	if path == "" {
		path = model.DefaultConfigPath()
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	switch {
	case traceFlag:
		cfg.Logging.Level = "trace"
	case debugFlag:
		cfg.Logging.Level = "debug"
	}

	acc, err := cfg.Account(accountName)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		account: acc,
		logger:  logging.New(cfg.Logging),
		creds:   credential.NewStore(),
		out:     printer.New(cmd.OutOrStdout(), format),
	}, nil
}

// open builds the backend of the selected account. The returned closer
// releases the backend and the alias database.
func (a *app) open(ctx context.Context) (*account.Backend, func(), error) {
	if a.cfg.Alias.Enabled {
		db, err := store.NewSQLiteStore(a.cfg.Alias.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening alias database: %w", err)
		}
		a.aliases = alias.NewSQLProvider(db, a.logger)
	}

	b, err := account.Open(ctx, a.account, account.Options{
		Deps: account.Deps{
			Credentials: a.creds,
			Logger:      a.logger,
		},
		Aliases: a.aliases,
	})
	if err != nil {
		a.closeAliases()
		return nil, nil, err
	}

	closer := func() {
		if err := b.Close(); err != nil {
			a.logger.Warn("closing backend", "account", a.account.Name, "error", err)
		}
		a.closeAliases()
	}
	return b, closer, nil
}

func (a *app) closeAliases() {
	if a.aliases == nil {
		return
	}
	if err := a.aliases.Close(); err != nil {
		a.logger.Warn("closing alias database", "error", err)
	}
	a.aliases = nil
}

// withBackend runs fn against the selected account backend.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, a *app, b *account.Backend) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	b, closer, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer closer()

	return fn(ctx, a, b)
}

// readInput reads a message from path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return raw, nil
}

// describeError turns typed failures into a message for the user.
func describeError(err error) string {
	var (
		authErr     *backend.AuthError
		unsupported *backend.UnsupportedError
		unknown     *alias.UnknownAliasError
		persistence *alias.PersistenceError
	)
	switch {
	case errors.As(err, &authErr):
		return fmt.Sprintf("%v\nhint: check the credentials of the %s backend or store them with `mailctl secret set`", err, authErr.Kind)
	case errors.As(err, &unknown):
		return fmt.Sprintf("%v\nhint: list the envelopes of %s to see valid ids", err, unknown.Scope.Folder)
	case errors.As(err, &unsupported):
		return err.Error()
	case errors.As(err, &persistence):
		return fmt.Sprintf("%v\nhint: the alias database may be locked or corrupted; disable it with alias.enabled: false", err)
	default:
		return err.Error()
	}
}
