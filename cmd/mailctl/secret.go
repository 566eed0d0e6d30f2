package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/credential"
)

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage backend secrets stored in the system keyring",
	}

	cmd.AddCommand(secretSetCmd())
	cmd.AddCommand(secretDeleteCmd())

	return cmd
}

// secretKey resolves the keyring key of the selected account and backend.
func secretKey(a *app, kindArg string, oauth bool) (string, error) {
	kind, err := backend.ParseKind(kindArg)
	if err != nil {
		return "", err
	}
	if kind != backend.KindIMAP && kind != backend.KindSMTP {
		return "", fmt.Errorf("backend %s has no secret", kind)
	}
	if oauth {
		return credential.Key(a.account.Name, kind, "oauth2"), nil
	}
	return credential.Key(a.account.Name, kind), nil
}

func secretSetCmd() *cobra.Command {
	var oauth bool

	cmd := &cobra.Command{
		Use:   "set <imap|smtp>",
		Short: "Store a password, or a refresh token with --oauth2, read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			key, err := secretKey(a, args[0], oauth)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				if err != nil {
					return fmt.Errorf("reading secret: %w", err)
				}
				return errors.New("empty secret")
			}

			if err := a.creds.Set(key, secret); err != nil {
				return err
			}
			return a.out.Done("stored %s", key)
		},
	}
	cmd.Flags().BoolVar(&oauth, "oauth2", false, "store an OAuth 2.0 refresh token")

	return cmd
}

func secretDeleteCmd() *cobra.Command {
	var oauth bool

	cmd := &cobra.Command{
		Use:   "delete <imap|smtp>",
		Short: "Remove a stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			key, err := secretKey(a, args[0], oauth)
			if err != nil {
				return err
			}
			if err := a.creds.Delete(key); err != nil {
				return err
			}
			return a.out.Done("deleted %s", key)
		},
	}
	cmd.Flags().BoolVar(&oauth, "oauth2", false, "delete the OAuth 2.0 refresh token")

	return cmd
}
