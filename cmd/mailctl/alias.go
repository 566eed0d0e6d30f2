package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/alias"
	"github.com/nhle/mailctl/internal/model"
	"github.com/nhle/mailctl/internal/store"
)

func aliasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Inspect the persistent message aliases",
	}

	cmd.AddCommand(aliasListCmd())

	return cmd
}

func aliasListCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the aliases bound in a folder and the native ids they stand for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if !a.cfg.Alias.Enabled {
				return errors.New("persistent aliases are disabled (alias.enabled: false)")
			}

			db, err := store.NewSQLiteStore(a.cfg.Alias.DBPath)
			if err != nil {
				return fmt.Errorf("opening alias database: %w", err)
			}
			a.aliases = alias.NewSQLProvider(db, a.logger)
			defer a.closeAliases()

			records, err := a.aliases.List(cmd.Context(), a.account.Name, a.account.FolderAlias(folder))
			if err != nil {
				return err
			}
			return a.out.Aliases(records)
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", model.FolderInbox, "folder name or alias")

	return cmd
}
