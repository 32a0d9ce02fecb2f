package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/knitgrid/tally/internal/config"
	"github.com/knitgrid/tally/internal/sqlite"
)

const version = "0.3.0"

// configFile is set by the --config flag.
var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tallyd",
	Short: "tallyd is the knitting counter sync server",
	Long: `tallyd serves shared row counters for knitting and crochet projects:
bounded counters with increment patterns, conditional links that cascade
resets across counters, an append-only history ledger, and a live change
feed over WebSocket.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: $TALLY_CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("tallyd v" + version)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Println("schema is up to date")
		return nil
	},
}

// openDatabase loads config, opens the configured database, and applies the
// schema. Shared by every command that touches storage.
func openDatabase() (*sqlite.DB, config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config: %w", err)
	}

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, config.Config{}, fmt.Errorf("prepare database path: %w", err)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("open database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, config.Config{}, fmt.Errorf("run migrations: %w", err)
	}

	return db, cfg, nil
}
