package cli

import (
	"fmt"

	"github.com/sbenjam1n/lpms/internal/db"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Set up the PostgreSQL schema and the Redis event stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fmt.Println("Connecting to PostgreSQL...")
		pool, err := connectDB(ctx)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		fmt.Println("Running migrations...")
		applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Printf("PostgreSQL schema ready (%d migration(s) applied)\n", len(applied))

		fmt.Println("Connecting to Redis...")
		rdb, err := connectRedis()
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer rdb.Close()

		if err := queue.New(rdb).EnsureStreams(ctx); err != nil {
			return fmt.Errorf("redis stream setup failed: %w", err)
		}
		fmt.Printf("Redis stream %s ready\n", queue.StreamRoleEvents)

		fmt.Println("\nlpms initialized.")
		fmt.Println("Next steps:")
		fmt.Println("  1. Run: lpms contact add --name <name>")
		fmt.Println("  2. Run: lpms case open --caption <caption>")
		fmt.Println("  3. Run: lpms audit worker   (in its own terminal)")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations, or roll everything back with --down",
	RunE: func(cmd *cobra.Command, args []string) error {
		down, _ := cmd.Flags().GetBool("down")
		ctx := cmd.Context()

		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if down {
			if err := db.Rollback(ctx, pool, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("rollback: %w", err)
			}
			fmt.Println("Rolled back all migrations")
			return nil
		}

		applied, err := db.Migrate(ctx, pool, cfg.MigrationsDir)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("Schema is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Printf("Applied %s\n", v)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("down", false, "Apply the down migrations in reverse order")
}
