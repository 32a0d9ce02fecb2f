package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/knitgrid/tally/internal/sqlite"
)

var (
	apikeyTenant string
	apikeyName   string
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if apikeyTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		db, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		token, err := issueAPIKey(cmd.Context(), db, apikeyTenant, apikeyName)
		if err != nil {
			return err
		}

		fmt.Printf("API key for tenant %s:\n\n    %s\n\n", apikeyTenant, color.GreenString(token))
		fmt.Println(color.YellowString("Only the hash is stored. Save the key now; it cannot be shown again."))
		return nil
	},
}

func init() {
	apikeyIssueCmd.Flags().StringVar(&apikeyTenant, "tenant", "", "tenant the key authenticates as")
	apikeyIssueCmd.Flags().StringVar(&apikeyName, "name", "", "optional description, e.g. the device it lives on")
	apikeyCmd.AddCommand(apikeyIssueCmd)
}

// issueAPIKey mints a random bearer token and stores its hash.
func issueAPIKey(ctx context.Context, db *sqlite.DB, tenantID, name string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	token := "tally_" + hex.EncodeToString(raw)

	var description *string
	if name != "" {
		description = &name
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, tenant_id, description) VALUES (?, ?, ?)`,
		hashToken(token),
		tenantID,
		description,
	)
	if err != nil {
		return "", fmt.Errorf("store key: %w", err)
	}
	return token, nil
}

type apiKeyResolver struct {
	db *sqlite.DB
}

func (r *apiKeyResolver) ResolveTenant(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var tenantID string
	err := r.db.QueryRowContext(ctx, `SELECT tenant_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&tenantID)
	if err != nil || tenantID == "" {
		return "", fmt.Errorf("unauthorized: invalid token")
	}
	return tenantID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
