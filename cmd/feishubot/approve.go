package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ie2718/clawdbot-feishu/internal/config"
	"github.com/ie2718/clawdbot-feishu/internal/store"
)

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <account-id> <pairing-code>",
		Short: "Approve a pending pairing request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := store.NewPairingStore(db).Approve(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pairing %s approved for account %s\n", args[1], args[0])
			return nil
		},
	}
}
