package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) movementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "Manage the movement history",
	}
	var before string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete movements past their retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now().UTC()
			if before != "" {
				t, err := time.Parse(time.RFC3339, before)
				if err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
				now = t
			}

			ctx := cmd.Context()
			_, svc, closeFn, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			removed, err := svc.Stock.PurgeExpiredMovements(ctx, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d movements\n", removed)
			return nil
		},
	}
	purge.Flags().StringVar(&before, "before", "", "purge as if it were this RFC3339 time")
	cmd.AddCommand(purge)
	return cmd
}
