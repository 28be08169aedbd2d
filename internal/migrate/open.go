package migrate

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/tendant/pgmigrate/internal/config"
	"github.com/tendant/pgmigrate/internal/metrics"
	"github.com/tendant/pgmigrate/internal/source"
	"github.com/tendant/pgmigrate/internal/target/postgres"
)

// Open connects both engines named by cfg. The caller closes the returned Migrator.
func Open(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, rec *metrics.Recorder) (*Migrator, error) {
	log.Infof("Connecting to %s source with DSN: %s", cfg.Source.Engine, config.Redact(cfg.Source.DSN))
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Connect)
	src, err := source.Open(connectCtx, cfg.Source.Engine, cfg.Source.DSN, cfg.Source.Schema)
	cancel()
	if err != nil {
		return nil, err
	}
	log.Infof("✅ Connected to %s source database", cfg.Source.Engine)

	log.Infof("Connecting to PostgreSQL target with DSN: %s", config.Redact(cfg.Target.DSN))
	connectCtx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Connect)
	tgt, err := postgres.Connect(connectCtx, cfg.Target.DSN, cfg.Target.Schema)
	cancel()
	if err != nil {
		if closeErr := src.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Closing source connection failed")
		}
		return nil, err
	}
	log.Info("✅ Connected to PostgreSQL target database")

	m := New(src, tgt, log, Options{
		Timeouts:         cfg.Timeouts,
		ProgressInterval: cfg.ProgressInterval,
		Metrics:          rec,
	})
	m.closeFn = func() error {
		return errors.Join(src.Close(), tgt.Close(context.Background()))
	}
	return m, nil
}
