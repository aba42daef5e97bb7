// Command migrate applies the database schema and prints its DDL.
//
//	migrate up                    apply columns, indexes and constraints
//	migrate plan --dialect sqlite print the derived DDL
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pavitra93/go-simulation-admin/shared/config"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/schema"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the simulation admin database schema",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.AddCommand(newUpCommand(), newPlanCommand())
	return root
}

func newUpCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create or update every table with its indexes and constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("migrate", "0")
			if err != nil {
				return err
			}
			log := logging.New(cfg.ServiceName, cfg.Log.Level, cfg.Log.Format)

			db, err := config.ConnectDatabase(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := schema.Migrate(ctx, db, log, schema.Registry()...); err != nil {
				log.WithError(err).Error("Migration failed")
				return err
			}
			log.WithFields(logrus.Fields{
				"tables":      len(schema.Registry()),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("Migration complete")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Abort the migration after this long")
	return cmd
}

func newPlanCommand() *cobra.Command {
	var (
		dialect string
		tables  []string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the DDL derived for every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dialect != schema.DialectPostgres && dialect != schema.DialectSQLite {
				return fmt.Errorf("unsupported dialect %q (want %s or %s)", dialect, schema.DialectPostgres, schema.DialectSQLite)
			}
			selected, err := selectTables(schema.Registry(), tables)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), schema.Plan(dialect, selected...))
			return err
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", schema.DialectPostgres, "SQL dialect: postgres or sqlite")
	cmd.Flags().StringSliceVar(&tables, "table", nil, "Only these tables (repeatable)")
	return cmd
}

func selectTables(all []schema.Table, names []string) ([]schema.Table, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]schema.Table, len(all))
	for _, t := range all {
		byName[t.Name] = t
	}
	out := make([]schema.Table, 0, len(names))
	for _, n := range names {
		t, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown table %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}
