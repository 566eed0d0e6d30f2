// Package main provides the entry point for the mailctl command line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/mailctl/internal/theme"
)

var (
	configFile  string
	accountName string
	outputFlag  string
	debugFlag   bool
	traceFlag   bool
)

func main() {
	// A .env file is optional; it only seeds MAILCTL_* overrides.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("error:"), describeError(err))
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mailctl",
		Short:         "mailctl - command line mail client",
		Long:          "Read, organize and send mail from IMAP, maildir or indexed maildir accounts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path (default ~/.config/mailctl/config.yaml)")
	flags.StringVarP(&accountName, "account", "a", "", "account name (default account when empty)")
	flags.StringVarP(&outputFlag, "output", "o", "plain", "output format: plain or json")
	flags.BoolVar(&debugFlag, "debug", false, "enable debug logs")
	flags.BoolVar(&traceFlag, "trace", false, "enable trace logs")

	cmd.AddCommand(folderCmd())
	cmd.AddCommand(envelopeCmd())
	cmd.AddCommand(messageCmd())
	cmd.AddCommand(aliasCmd())
	cmd.AddCommand(secretCmd())

	return cmd
}
