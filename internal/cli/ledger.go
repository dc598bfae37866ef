package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aimerfeng/minerewards/internal/clock"
	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/aimerfeng/minerewards/internal/rewards"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerCreateCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)

	ledgerCreateCmd.Flags().String("username", "", "Profile username")
	ledgerCreateCmd.Flags().String("referral-code", "", "Referral code of the referring user")
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect reward ledgers",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show UID",
	Short: "Print a user's ledger with derived status",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerShow,
}

var ledgerCreateCmd = &cobra.Command{
	Use:   "create UID",
	Short: "Create a ledger for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runLedgerCreate,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate ledger statistics",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStats,
}

// serviceFor opens the store and builds a service acting as uid
func serviceFor(ctx context.Context, uid string) (*rewards.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	resolver := identity.ResolverFunc(func(context.Context) (string, error) { return uid, nil })
	return rewards.NewService(store, resolver, clock.System{}), release, nil
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	svc, release, err := serviceFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer release()

	st, err := svc.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("read ledger %s: %w", args[0], err)
	}
	return printJSON(cmd, st)
}

func runLedgerCreate(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	code, _ := cmd.Flags().GetString("referral-code")

	svc, release, err := serviceFor(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer release()

	l, err := svc.CreateLedger(cmd.Context(), username, code)
	if err != nil {
		return fmt.Errorf("create ledger %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ledger created for %s (referral code %s)\n", l.UID, l.Profile.ReferralCode)
	return nil
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, release, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer release()

	stats, err := store.Stats(cmd.Context(), clock.System{}.Now())
	if err != nil {
		return fmt.Errorf("aggregate ledgers: %w", err)
	}
	return printJSON(cmd, stats)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
