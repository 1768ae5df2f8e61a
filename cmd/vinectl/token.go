package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/VineLedger/internal/api"
)

func newTokenCmd() *cobra.Command {
	var (
		tier string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Mint a bearer token signed with VINE_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			secret := os.Getenv("VINE_JWT_SECRET")
			if secret == "" {
				return errors.New("VINE_JWT_SECRET is not set")
			}
			tok, err := api.IssueToken([]byte(secret), args[0], tier, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&tier, "tier", "base", "Account tier claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
