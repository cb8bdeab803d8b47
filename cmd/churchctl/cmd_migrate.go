package main

import (
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekklesia/commhub/internal/migrate"
	"github.com/ekklesia/commhub/internal/repository/postgres"
	"github.com/ekklesia/commhub/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply and inspect SQL migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up [dir]",
	Short: "Apply pending migrations",
	Long: `Apply every pending .sql file in name order, each in its own transaction.
Without a directory the migrations built into the binary are used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrateUp,
}

var migrateListCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List migrations and the tables in the database",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMigrateList,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateListCmd)
}

func migrationFS(args []string) fs.FS {
	if len(args) == 1 {
		return os.DirFS(args[0])
	}
	return migrations.FS
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := postgres.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := migrate.Up(cmd.Context(), db, migrationFS(args))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", n)
	return nil
}

func runMigrateList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := postgres.Open(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := migrate.Status(cmd.Context(), db, migrationFS(args))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIGRATION\tAPPLIED")
	for _, m := range status {
		fmt.Fprintf(tw, "%s\t%t\n", m.Name, m.Applied)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rows, err := db.QueryContext(cmd.Context(),
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "\nTABLES")
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "  "+name)
	}
	return rows.Err()
}
