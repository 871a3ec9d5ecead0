package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stockledger/internal/core/id"
)

func (c *cli) projectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projection",
		Short: "Maintain the per-product quantity projection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resync [product-id...]",
		Short: "Recompute the projection for the given products, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			storage, svc, closeFn, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if len(args) == 0 {
				synced, failed, err := svc.Projection.SyncAll(ctx, storage.Products)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d, failed %d\n", synced, failed)
				if failed > 0 {
					return fmt.Errorf("%d products failed to sync", failed)
				}
				return nil
			}

			ids, err := id.ParseList(args)
			if err != nil {
				return fmt.Errorf("invalid product id: %w", err)
			}
			for _, pid := range ids {
				if err := svc.Projection.Sync(ctx, pid); err != nil {
					return fmt.Errorf("sync %s: %w", pid, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d\n", len(args))
			return nil
		},
	})
	return cmd
}
