package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/asakaida/epiguard/internal/infrastructure/config"
	"github.com/asakaida/epiguard/internal/infrastructure/database"
)

var (
	envFlag  string
	pathFlag string
	pg       *database.Postgres
	logger   = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool for epiguard",
	Long: `Database migration tool for epiguard.
Manages the role and user tables using golang-migrate.
Migrations are embedded in the binary; --path overrides them with a directory.`,
	PersistentPreRunE: setupDatabase,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pg != nil {
			pg.Close()
		}
	},
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Long:  `Apply all pending migrations to the database.`,
	RunE:  runUp,
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Rollback migrations",
	Long:  `Rollback the specified number of migrations (default: 1).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDown,
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate to a specific version",
	Long:  `Migrate to a specific version number.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runGoto,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current migration version",
	Long:  `Display the current migration version of the database.`,
	RunE:  runVersion,
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force set migration version (use with caution)",
	Long:  `Force set the migration version without running migrations. Use with caution.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runForce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use (dev, test, prod)")
	rootCmd.PersistentFlags().StringVarP(&pathFlag, "path", "p", "", "Migrations directory (default: embedded)")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(gotoCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(forceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func setupDatabase(cmd *cobra.Command, args []string) error {
	logger.Info("using environment", "env", envFlag)

	// Initialize configuration from .env.{env} file
	if err := config.InitConfig(envFlag); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pg, err = database.NewPostgres(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("connected to database",
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database,
	)
	return nil
}

func newMigrate() (*migrate.Migrate, error) {
	source := pathFlag
	if source == "" {
		source = "embedded"
	}
	logger.Info("using migrations", "source", source)

	return pg.NewMigrate(pathFlag)
}

func runUp(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	logger.Info("migration up completed")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	steps := 1 // Default: rollback 1 migration
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid steps %q", args[0])
		}
		steps = n
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	logger.Info("migration down completed", "steps", steps)
	return nil
}

func runGoto(cmd *cobra.Command, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Migrate(uint(version))
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("already at version", "version", version)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration goto failed: %w", err)
	}

	logger.Info("migration goto completed", "version", version)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) error {
	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("no migrations applied yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	logger.Info("current version", "version", version, "dirty", dirty)
	return nil
}

func runForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	m, err := newMigrate()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}

	logger.Info("migration forced", "version", version)
	return nil
}
