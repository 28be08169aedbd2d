package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tendant/pgmigrate/internal/cli"
	"github.com/tendant/pgmigrate/internal/logging"
	"github.com/tendant/pgmigrate/internal/metrics"
	"github.com/tendant/pgmigrate/internal/migrate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cli.Options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every table of a MySQL or SQL Server schema into an existing PostgreSQL schema",
		Long: `Copy every table of a MySQL or SQL Server schema into an existing PostgreSQL schema.

Target tables must already exist. Foreign keys of the target are dropped before loading and
restored afterwards. Each target table is cleared before its rows are copied, so a failed run
can simply be started again.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}
	opts.Register(cmd)
	return cmd
}

func run(cmd *cobra.Command, opts *cli.Options) error {
	cfg, err := opts.Config(cmd)
	if err != nil {
		return err
	}

	log, logFile, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logFile.Close()

	rec := metrics.New()
	defer writeMetrics(log, rec, cfg.Metrics.Textfile)

	ctx := cmd.Context()
	m, err := migrate.Open(ctx, cfg, log, rec)
	if err != nil {
		log.WithError(err).Error("Error connecting to databases")
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.WithError(err).Warn("Closing connections failed")
		}
	}()

	if err := m.Run(ctx); err != nil {
		log.WithError(err).Error("Migration failed")
		return err
	}
	log.Info("✅ Migration completed")
	return nil
}

func writeMetrics(log logrus.FieldLogger, rec *metrics.Recorder, path string) {
	if path == "" {
		return
	}
	if err := rec.WriteTextfile(path); err != nil {
		log.WithError(err).Warn("Writing metrics file failed")
	}
}
