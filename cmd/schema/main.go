package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tendant/pgmigrate/internal/cli"
	"github.com/tendant/pgmigrate/internal/logging"
	"github.com/tendant/pgmigrate/internal/migrate"
	"github.com/tendant/pgmigrate/internal/reconcile"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cli.Options{}
	cmd := &cobra.Command{
		Use:          "schema",
		Short:        "Show how source tables and columns map onto the PostgreSQL schema without moving data",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Config(cmd)
			if err != nil {
				return err
			}
			log, logFile, err := logging.New(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer logFile.Close()

			m, err := migrate.Open(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer closeLogged(log, m)

			plan, err := m.Plan(cmd.Context())
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	opts.Register(cmd)
	return cmd
}

func closeLogged(log logrus.FieldLogger, c io.Closer) {
	if err := c.Close(); err != nil {
		log.WithError(err).Warn("Closing connections failed")
	}
}

func printPlan(w io.Writer, plan *migrate.Plan) {
	fmt.Fprintf(w, "Source %s schema '%s': %d tables\n", plan.Source.Engine, plan.Source.Schema, len(plan.Source.Tables))
	fmt.Fprintf(w, "Target %s schema '%s': %d tables\n", plan.Target.Engine, plan.Target.Schema, len(plan.Target.Tables))

	var blobTables, unmatched int
	for _, tm := range plan.Mappings {
		fmt.Fprintf(w, "\nTable: %s -> %s\n", tm.SourceTable, tm.TargetTable)
		for _, p := range tm.Columns {
			src := fmt.Sprintf("%s %s (%s)", p.Source.Name, p.Source.RawType, p.Source.SemanticType)
			if p.Target == nil {
				fmt.Fprintf(w, "  %-40s -> (not migrated)\n", src)
				unmatched++
				continue
			}
			fmt.Fprintf(w, "  %-40s -> %s %s (%s)%s\n", src, p.Target.Name, p.Target.RawType, p.Target.SemanticType, note(p))
		}
		if len(tm.BlobPairs()) > 0 {
			blobTables++
		}
	}

	fmt.Fprintf(w, "\n✅ %d tables reconciled, %d with binary columns, %d source columns not migrated\n",
		len(plan.Mappings), blobTables, unmatched)
}

func note(p reconcile.ColumnPair) string {
	if p.Source.SemanticType != p.Target.SemanticType {
		return " [converted]"
	}
	return ""
}
