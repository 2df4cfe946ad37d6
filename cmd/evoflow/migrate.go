package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/evoflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

type migrateFlags struct {
	dbType string
	dbURL  string
}

func migrateCmd(configPath *string) *cobra.Command {
	flags := &migrateFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the tracking database schema",
		Long: `Apply or roll back the SQL migrations that create the run tracking tables.

The database comes from the config file unless --db-type and --db-url are both set.`,
	}
	cmd.PersistentFlags().StringVar(&flags.dbType, "db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&flags.dbURL, "db-url", "", "Database connection URL (default: from config)")

	withCLI := func(fn func(cmd *cobra.Command, cli *migration.CLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := createMigrator(*configPath, flags)
			if err != nil {
				return err
			}
			defer m.Close()

			cli := migration.NewCLI(m)
			cli.SetOutput(cmd.OutOrStdout())
			return fn(cmd, cli, args)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunUp(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunDown(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunStatus(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show current migration version",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunVersion(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show database and migration details",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunInfo(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunGoto(cmd.Context(), uint(v))
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force set migration version (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return cli.RunForce(cmd.Context(), v)
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Roll back all migrations",
			RunE: withCLI(func(cmd *cobra.Command, cli *migration.CLI, args []string) error {
				return cli.RunDownAll(cmd.Context())
			}),
		},
	)
	return cmd
}

// createMigrator 优先使用命令行给出的连接，否则读取配置
func createMigrator(configPath string, flags *migrateFlags) (*migration.DefaultMigrator, error) {
	if flags.dbType != "" && flags.dbURL != "" {
		return migration.NewMigratorFromURL(flags.dbType, flags.dbURL)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if flags.dbType != "" {
		cfg.Database.Driver = flags.dbType
	}
	return migration.NewMigratorFromConfig(cfg)
}
