package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stockledger/internal/core/numerator"
)

var counterConfigs = map[string]numerator.Config{
	"transfer":      numerator.TransferNumbers,
	"purchase":      numerator.PurchaseNumbers,
	"stock_request": numerator.StockRequestNumbers,
	"supplier":      numerator.SupplierNumbers,
}

func (c *cli) counterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Inspect document number counters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "next <transfer|purchase|stock_request|supplier>",
		Short:     "Issue the next number of a counter",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"transfer", "purchase", "stock_request", "supplier"},
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, ok := counterConfigs[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown counter %q", args[0])
			}
			ctx := cmd.Context()
			_, svc, closeFn, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			number, err := svc.Numerator.GetNextNumber(ctx, nc, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), number)
			return nil
		},
	})
	return cmd
}
