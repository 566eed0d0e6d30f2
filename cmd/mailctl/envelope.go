package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/account"
	"github.com/nhle/mailctl/internal/model"
	"github.com/nhle/mailctl/internal/sync"
)

func envelopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "List, thread and watch envelopes",
	}

	cmd.AddCommand(envelopeListCmd())
	cmd.AddCommand(envelopeThreadCmd())
	cmd.AddCommand(envelopeWatchCmd())

	return cmd
}

// pageFlags registers the folder and pagination flags shared by listings.
func pageFlags(cmd *cobra.Command, folder *string, page, pageSize *int) {
	cmd.Flags().StringVarP(folder, "folder", "f", model.FolderInbox, "folder name or alias")
	cmd.Flags().IntVarP(page, "page", "p", 1, "page number, starting at 1")
	cmd.Flags().IntVarP(pageSize, "page-size", "s", 0, "page size (default from account config)")
}

func envelopeListCmd() *cobra.Command {
	var (
		folder         string
		page, pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of envelopes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				envs, err := b.ListEnvelopes(ctx, folder, page, pageSize)
				if err != nil {
					return err
				}
				return a.out.Envelopes(envs)
			})
		},
	}
	pageFlags(cmd, &folder, &page, &pageSize)

	return cmd
}

func envelopeThreadCmd() *cobra.Command {
	var (
		folder         string
		page, pageSize int
	)

	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Show one page of envelopes as reply threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				graph, err := b.ThreadEnvelopes(ctx, folder, page, pageSize)
				if err != nil {
					return err
				}
				return a.out.Thread(graph)
			})
		},
	}
	pageFlags(cmd, &folder, &page, &pageSize)

	return cmd
}

func envelopeWatchCmd() *cobra.Command {
	var (
		folders  []string
		interval time.Duration
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll folders and print envelopes as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				poller := sync.New(a.logger)
				for _, folder := range folders {
					poller.Register(b, sync.Watch{
						Account:  a.account.Name,
						Folder:   folder,
						Interval: interval,
						PageSize: pageSize,
					})
				}

				results := poller.Start(ctx)
				defer poller.Stop()

				for r := range results {
					if r.AuthError {
						return r.Error
					}
					if r.Error != nil {
						continue
					}
					if len(r.New) == 0 {
						continue
					}
					if err := a.out.Done("%d new envelope(s) in %s", len(r.New), r.Folder); err != nil {
						return err
					}
					if err := a.out.Envelopes(r.New); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&folders, "folder", "f", []string{model.FolderInbox}, "folders to watch")
	cmd.Flags().DurationVarP(&interval, "interval", "i", sync.DefaultInterval, "poll interval")
	cmd.Flags().IntVarP(&pageSize, "page-size", "s", 0, "number of newest envelopes compared per poll")

	return cmd
}

// parseFlags maps --flag values to message flags.
func parseFlags(values []string) ([]model.Flag, error) {
	flags := make([]model.Flag, 0, len(values))
	for _, v := range values {
		switch f := model.Flag(v); f {
		case model.FlagSeen, model.FlagAnswered, model.FlagFlagged, model.FlagDeleted, model.FlagDraft:
			flags = append(flags, f)
		default:
			return nil, fmt.Errorf("unknown flag %q", v)
		}
	}
	return flags, nil
}
