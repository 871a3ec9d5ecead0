package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/registers/stock"
)

type seedProduct struct {
	sku, barcode, name, cost string
	units                    int64
}

var demoProducts = []seedProduct{
	{sku: "TEA-001", barcode: "4820000000011", name: "Black tea 100g", cost: "2.40", units: 120},
	{sku: "COF-001", barcode: "4820000000028", name: "Ground coffee 250g", cost: "5.10", units: 60},
	{sku: "SUG-001", barcode: "4820000000035", name: "Sugar 1kg", cost: "1.15", units: 200},
	{sku: "MLK-001", barcode: "4820000000042", name: "Milk 1l", cost: "0.95", units: 8},
}

func (c *cli) seedCmd() *cobra.Command {
	var subBranches int
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo branches, products and opening stock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			storage, svc, closeFn, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			head := directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice)
			if err := storage.Catalog.SaveBranch(ctx, head); err != nil {
				return fmt.Errorf("save head office: %w", err)
			}
			branches := []*directory.Branch{head}
			for i := 1; i <= subBranches; i++ {
				b := directory.NewBranch(fmt.Sprintf("BR%02d", i), fmt.Sprintf("Branch %d", i), directory.RoleSubBranch)
				if err := storage.Catalog.SaveBranch(ctx, b); err != nil {
					return fmt.Errorf("save branch %s: %w", b.Code, err)
				}
				branches = append(branches, b)
			}

			for _, sp := range demoProducts {
				p := directory.NewProduct(sp.sku, sp.name, types.MustMoney(sp.cost))
				p.Barcode = sp.barcode
				if err := storage.Catalog.SaveProduct(ctx, p); err != nil {
					return fmt.Errorf("save product %s: %w", sp.sku, err)
				}
				// Head office holds the full quantity, branches a tenth each.
				for i, b := range branches {
					units := sp.units
					if i > 0 {
						units = max(sp.units/10, 1)
					}
					if _, err := svc.Stock.SetStock(ctx, stock.SetStockInput{
						ProductID: p.ID,
						BranchID:  b.ID,
						Quantity:  types.NewQuantity(units),
						Reason:    "opening stock",
						ActorID:   "stockctl",
					}); err != nil {
						return fmt.Errorf("opening stock %s at %s: %w", sp.sku, b.Code, err)
					}
				}
			}

			c.log.Infow("seed complete",
				"branches", len(branches),
				"products", len(demoProducts),
				"head_office_id", head.ID,
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&subBranches, "branches", 2, "number of sub branches to create")
	return cmd
}
