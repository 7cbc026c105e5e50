package main

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ioc-platform/ioc/internal/config"
	"github.com/ioc-platform/ioc/internal/rail"
)

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the rail control API",
		Long: `Issue an operator token for the rail control API.

The token is signed with rail.jwt_secret and its subject is recorded as
the actor of every action it authorises.

Example:
  ioc token --subject controller.smith --ttl 8h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Rail.JWTSecret == "" {
				return errors.New("rail.jwt_secret is not set; the rail API accepts anonymous actions")
			}
			token, err := rail.IssueToken([]byte(cfg.Rail.JWTSecret), subject, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator name recorded in the audit log")
	cmd.Flags().DurationVar(&ttl, "ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build details",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ver, sha, built, dirty := buildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "ioc %s\n  commit:    %s (%s)\n  built:     %s\n  go:        %s\n  platform:  %s/%s\n",
				ver, sha, dirty, built, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
