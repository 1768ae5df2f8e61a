package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/VineLedger/internal/config"
	"github.com/dharsanguruparan/VineLedger/internal/queue"
)

func newRevalueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revalue <upload-id>...",
		Short: "Queue valuation jobs for uploads on the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			redis := asynq.RedisClientOpt{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}
			client := asynq.NewClient(redis)
			defer client.Close()
			inspector := asynq.NewInspector(redis)
			defer inspector.Close()
			q := queue.NewClient(client, inspector)
			for _, id := range args {
				if err := q.ScheduleValuation(cmd.Context(), id); err != nil {
					return fmt.Errorf("upload %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s\n", id)
			}
			return nil
		},
	}
}
