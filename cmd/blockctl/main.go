package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/gateways/client"
)

const (
	version = "0.1.0-dev"
	appName = "blockctl"

	// DaemonURLEnv overrides the default daemon address.
	DaemonURLEnv     = "BLOCK_DAEMON_URL"
	defaultDaemonURL = "http://127.0.0.1:8480"
	defaultTimeout   = 5 * time.Second
)

// newDaemon is swapped out in tests.
var newDaemon = func(cmd *cobra.Command) DaemonService {
	url, _ := cmd.Flags().GetString("daemon")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.New(client.Options{BaseURL: url, Timeout: timeout})
}

func daemonURL() string {
	if u := os.Getenv(DaemonURLEnv); strings.TrimSpace(u) != "" {
		return strings.TrimRight(u, "/")
	}
	return defaultDaemonURL
}

func blockCmd(cmd *cobra.Command) BlockCmd {
	logger := log.NewNoopLogger()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		if err := log.Configure("dev", "debug"); err == nil {
			logger = log.GetLogger()
		}
	}
	return BlockCmd{
		daemon: newDaemon(cmd),
		out:    cmd.OutOrStdout(),
		logger: logger,
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Manage the distraction-block daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("daemon", daemonURL(), "blockd API address (env "+DaemonURLEnv+")")
	root.PersistentFlags().Duration("timeout", defaultTimeout, "Request timeout")
	root.PersistentFlags().Bool("debug", false, "Log protocol traffic")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether blocking is on and which sites are listed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return blockCmd(cmd).Status(cmd.Context(), StatusInput{Output: output})
		},
	}
	statusCmd.Flags().StringP("output", "o", "", "Output format (json)")

	onCmd := &cobra.Command{
		Use:   "on",
		Short: "Turn blocking on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockCmd(cmd).SetBlocking(cmd.Context(), true)
		},
	}

	offCmd := &cobra.Command{
		Use:   "off",
		Short: "Turn blocking off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockCmd(cmd).SetBlocking(cmd.Context(), false)
		},
	}

	addCmd := &cobra.Command{
		Use:     "add <domain>...",
		Short:   "Add sites to the block list",
		Example: "  blockctl add facebook.com https://www.reddit.com/r/all",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockCmd(cmd).Add(cmd.Context(), SitesInput{Sites: args})
		},
	}

	removeCmd := &cobra.Command{
		Use:     "remove <domain>...",
		Aliases: []string{"rm"},
		Short:   "Remove sites from the block list",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockCmd(cmd).Remove(cmd.Context(), SitesInput{Sites: args})
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a plain or hosts-format list into the block list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			return blockCmd(cmd).Import(cmd.Context(), ImportInput{
				Path:   args[0],
				Format: format,
				Output: output,
			})
		},
	}
	importCmd.Flags().String("format", "auto", "List format: plain, hosts or auto")
	importCmd.Flags().StringP("output", "o", "", "Output format (json)")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Make the daemon reload settings from its store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockCmd(cmd).Refresh(cmd.Context())
		},
	}

	root.AddCommand(statusCmd, onCmd, offCmd, addCmd, removeCmd, importCmd, refreshCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err.Error())
		stop()
		os.Exit(1)
	}
}
