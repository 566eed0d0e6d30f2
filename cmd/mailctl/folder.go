package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/account"
)

func folderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the folders of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				folders, err := b.ListFolders(ctx)
				if err != nil {
					return err
				}
				return a.out.Folders(folders)
			})
		},
	})

	return cmd
}
