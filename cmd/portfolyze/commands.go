package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rightvendors/portfolyze/internal/auth"
	"github.com/rightvendors/portfolyze/internal/auth/flow"
)

func newSignInCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in with a phone number and a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runFlow(cmd, flow.SignIn, "")
		},
	}
}

func newSignUpCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account: phone number, one-time code and display name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runFlow(cmd, flow.SignUp, name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (prompted when empty)")
	return cmd
}

func (c *cli) runFlow(cmd *cobra.Command, variant flow.Variant, name string) error {
	ctx := cmd.Context()
	if err := c.waitReady(ctx); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if id, ok := c.sessions.Current(); ok {
		fmt.Fprintf(out, "Already signed in as %s. Run `portfolyze signout` first.\n", describe(id))
		return nil
	}

	p := &prompter{
		provider:    c.provider,
		region:      c.region,
		logger:      c.logger,
		in:          cmd.InOrStdin(),
		out:         out,
		variant:     variant,
		displayName: name,
	}
	id, err := p.run(ctx)
	if err != nil {
		if errors.Is(err, errCancelled) {
			fmt.Fprintln(out, "\nCancelled.")
			return nil
		}
		return err
	}
	// The session service has the enrolled display name; the flow's snapshot predates it.
	if cur, ok := c.sessions.Current(); ok {
		id = cur
	}
	fmt.Fprintf(out, "Signed in as %s.\n", describe(id))
	return nil
}

func newWhoAmICmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.waitReady(cmd.Context()); err != nil {
				return err
			}
			id, ok := c.sessions.Current()
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(id))
			fmt.Fprintf(cmd.OutOrStdout(), "uid: %s\n", id.UID)
			return nil
		},
	}
}

func newSignOutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "End the session on the server and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.waitReady(cmd.Context()); err != nil {
				return err
			}
			if _, ok := c.sessions.Current(); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			// The local session is cleared even if the server call fails.
			if err := c.sessions.SignOut(cmd.Context()); err != nil {
				c.logger.Warn("server sign-out failed; local session cleared", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func describe(id auth.UserIdentity) string {
	if id.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", id.DisplayName, id.PhoneNumber)
	}
	return id.PhoneNumber
}
