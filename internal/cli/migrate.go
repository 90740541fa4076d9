package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ehmo/sovi/internal/config"
	"github.com/ehmo/sovi/internal/store"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending store migrations and exit",
	Long: `Connect to the database named by SOVI_DATABASE_URL and run any
pending goose migrations under internal/store/migrations, then exit.
store.Open already runs migrations on every daemon startup — this
subcommand exists for operators who want to apply them out of band
(e.g. before a coordinated rollout) without starting the scheduler.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, store.Config{
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	fmt.Println("migrations applied")
	return nil
}
