package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/pkg/logger"
)

// cli holds state shared by the subcommands.
type cli struct {
	envFile string
	cfg     *config.Config
	log     *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "stockctl",
		Short:         "Administer the stock ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "load variables from this .env file first")

	root.AddCommand(
		c.migrateCmd(),
		c.seedCmd(),
		c.counterCmd(),
		c.projectionCmd(),
		c.movementsCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment()})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.log = log
	cmd.SetContext(logger.WithLogger(cmd.Context(), log))
	return nil
}

// open connects the configured storage and assembles the services. The
// returned func releases both.
func (c *cli) open(ctx context.Context) (*app.Storage, *app.Services, func(), error) {
	storage, err := app.OpenStorage(ctx, c.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := app.NewServices(storage, app.ServiceOptions{
		LookupCacheSize: c.cfg.LookupCacheSize,
		LookupCacheTTL:  c.cfg.LookupCacheTTL,
		Retention:       c.cfg.MovementRetention,
	})
	svc.Start(ctx)
	return storage, svc, func() {
		svc.Stop()
		storage.Close()
	}, nil
}
