package cli

import (
	"encoding/json"
	"fmt"

	"github.com/aimerfeng/minerewards/internal/identity"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenMintCmd)

	tokenMintCmd.Flags().String("uid", "", "User id to mint the token for")
	tokenMintCmd.Flags().Bool("json", false, "Print the full token pair as JSON")
	_ = tokenMintCmd.MarkFlagRequired("uid")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API access tokens",
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint an access token for a user",
	Long: `Mint an HS256 access token signed with JWT_SECRET. Production tokens
come from the identity provider; this is for local development.`,
	RunE: runTokenMint,
}

func runTokenMint(cmd *cobra.Command, args []string) error {
	uid, _ := cmd.Flags().GetString("uid")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	pair, err := identity.NewIssuer(&cfg.JWT).IssuePair(uid)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(pair)
	}
	fmt.Fprintln(out, pair.AccessToken)
	return nil
}
