package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth/remote"
	"github.com/rightvendors/portfolyze/internal/auth/session"
	"github.com/rightvendors/portfolyze/internal/config"
	"github.com/rightvendors/portfolyze/internal/logger"
)

const readyTimeout = 15 * time.Second

// cli holds what every subcommand shares. It is filled in by the root PersistentPreRunE.
type cli struct {
	serverURL   string
	sessionFile string
	region      string
	verbose     bool

	logger   *zap.Logger
	provider *remote.Provider
	sessions *session.Service
}

// execute runs args against a fresh command tree. Shared clients are torn down on every exit path;
// cobra skips post-run hooks when a command fails.
func execute(ctx context.Context, c *cli, args []string, out io.Writer) error {
	defer c.teardown()
	root := newRootCmd(c)
	root.SetArgs(args)
	if out != nil {
		root.SetOut(out)
	}
	return root.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "portfolyze",
		Short:         "Sign in to Portfolyze with your phone number",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", "", "auth server URL (default $PORTFOLYZE_URL or http://localhost:8081)")
	root.PersistentFlags().StringVar(&c.sessionFile, "session-file", "", "where the session is stored between runs")
	root.PersistentFlags().StringVar(&c.region, "region", "", "region used to format domestic numbers (default $PHONE_DEFAULT_REGION or IN)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log provider and flow events to stderr")

	root.AddCommand(
		newSignInCmd(c),
		newSignUpCmd(c),
		newWhoAmICmd(c),
		newSignOutCmd(c),
	)
	return root
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "portfolyze", "session.json")
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadClient(defaultSessionFile())
	if err != nil {
		return err
	}
	if c.serverURL == "" {
		c.serverURL = cfg.ServerURL
	}
	if !cmd.Flags().Changed("session-file") {
		c.sessionFile = cfg.SessionFile
	}
	if c.region == "" {
		c.region = cfg.PhoneDefaultRegion
	}
	level := cfg.LogLevel
	if c.verbose {
		level = "debug"
	}
	if c.logger, err = logger.NewConsole(level); err != nil {
		return err
	}

	c.provider = remote.New(c.serverURL,
		remote.WithSessionFile(c.sessionFile),
		remote.WithLogger(c.logger.Named("provider")))
	c.sessions = session.NewService(c.provider, c.logger.Named("session"))
	c.sessions.Start()
	return nil
}

// teardown releases what setup created. Safe to call more than once.
func (c *cli) teardown() {
	if c.sessions != nil {
		c.sessions.Shutdown()
		c.sessions = nil
	}
	if c.provider != nil {
		c.provider.Close()
		c.provider = nil
	}
	if c.logger != nil {
		_ = c.logger.Sync()
		c.logger = nil
	}
}

// waitReady blocks until the stored session has been restored or rejected.
func (c *cli) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := c.sessions.WaitReady(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("timed out restoring the saved session")
		}
		return err
	}
	return nil
}
