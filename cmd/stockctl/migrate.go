package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"stockledger/internal/config"
	"stockledger/internal/infrastructure/storage/postgres"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.migrator()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Up(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return errors.New("steps must be a positive integer")
				}
				steps = n
			}
			m, err := c.migrator()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Down(cmd.Context(), steps)
		},
	})

	return cmd
}

func (c *cli) migrator() (*postgres.Migrator, error) {
	if c.cfg.StorageDriver != config.DriverPostgres {
		return nil, errors.New("migrations need STORAGE_DRIVER=postgres")
	}
	return postgres.NewMigrator(c.cfg.DatabaseURL)
}
