package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/account"
	"github.com/nhle/mailctl/internal/message"
	"github.com/nhle/mailctl/internal/model"
)

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Read, add, send and organize messages",
	}

	cmd.AddCommand(messageReadCmd())
	cmd.AddCommand(messageAddCmd())
	cmd.AddCommand(messageSendCmd())
	cmd.AddCommand(messageTransferCmd("copy", "Copy messages to another folder"))
	cmd.AddCommand(messageTransferCmd("move", "Move messages to another folder"))
	cmd.AddCommand(messageDeleteCmd())

	return cmd
}

func messageReadCmd() *cobra.Command {
	var (
		folder string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "read <id>...",
		Short: "Print the body of messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				msgs, err := b.GetMessages(ctx, folder, args)
				if err != nil {
					return err
				}

				if raw {
					w := cmd.OutOrStdout()
					for _, m := range msgs {
						if _, err := w.Write(m.Raw); err != nil {
							return err
						}
					}
					return nil
				}

				ids := make([]string, 0, len(msgs))
				bodies := make([]message.Body, 0, len(msgs))
				for _, m := range msgs {
					ids = append(ids, m.ID)
					bodies = append(bodies, message.ParseBody(m.Raw))
				}
				return a.out.Messages(ids, bodies)
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", model.FolderInbox, "folder name or alias")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw RFC 5322 message")

	return cmd
}

func messageAddCmd() *cobra.Command {
	var (
		folder string
		flags  []string
	)

	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Add a raw message to a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFlags(flags)
			if err != nil {
				return err
			}
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				id, err := b.AddMessage(ctx, folder, raw, parsed)
				if err != nil {
					return err
				}
				return a.out.Done("added message %s to %s", id, a.account.FolderAlias(folder))
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", model.FolderInbox, "folder name or alias")
	cmd.Flags().StringSliceVar(&flags, "flag", nil, "flags of the new message (seen, answered, flagged, deleted, draft)")

	return cmd
}

func messageSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <file|->",
		Short: "Send a raw message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				if err := b.SendMessage(ctx, raw); err != nil {
					return err
				}
				return a.out.Done("message sent")
			})
		},
	}
}

func messageTransferCmd(verb, short string) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   verb + " <target> <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ids := args[0], args[1:]
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				var err error
				if verb == "move" {
					err = b.MoveMessages(ctx, folder, target, ids)
				} else {
					err = b.CopyMessages(ctx, folder, target, ids)
				}
				if err != nil {
					return err
				}
				return a.out.Done("%s %d message(s) to %s", pastTense(verb), len(ids), a.account.FolderAlias(target))
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", model.FolderInbox, "source folder name or alias")

	return cmd
}

func pastTense(verb string) string {
	if verb == "copy" {
		return "copied"
	}
	return verb + "d"
}

func messageDeleteCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, a *app, b *account.Backend) error {
				if err := b.DeleteMessages(ctx, folder, args); err != nil {
					return err
				}
				return a.out.Done("deleted %d message(s)", len(args))
			})
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", model.FolderInbox, "folder name or alias")

	return cmd
}
