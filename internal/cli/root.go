// Package cli implements rewardctl, the operator tool for the rewards
// service: minting development tokens and inspecting ledgers.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aimerfeng/minerewards/internal/config"
	"github.com/aimerfeng/minerewards/internal/database"
	"github.com/aimerfeng/minerewards/internal/ledger"
	"github.com/aimerfeng/minerewards/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rewardctl",
	Short: "Operate the passive-mining rewards service",
	Long: `rewardctl inspects and seeds reward ledgers and mints access tokens
for local development. It reads the same environment as the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup(&cfg.Logging, cfg.Server.Env)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig and openStore are replaced in tests
var (
	loadConfig = config.Load
	openStore  = openConfiguredStore
)

// openConfiguredStore opens the ledger store selected by STORE_DRIVER. The
// returned func releases it.
func openConfiguredStore(ctx context.Context, cfg *config.Config) (ledger.Store, func(), error) {
	if cfg.Store.Driver == "memory" {
		return ledger.NewMemoryStore(), func() {}, nil
	}
	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	store := ledger.NewPostgresStore(db.Pool, ledger.RetryConfig{
		MaxRetries: uint64(cfg.Database.TxMaxRetries),
		BaseDelay:  cfg.Database.TxRetryBaseWait,
	})
	return store, db.Close, nil
}
