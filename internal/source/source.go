// Package source opens the engine a migration reads from.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/source/mssql"
	"github.com/tendant/pgmigrate/internal/source/mysql"
	"github.com/tendant/pgmigrate/internal/source/sqlsource"
	"github.com/tendant/pgmigrate/internal/transfer"
)

// Engines lists the supported source engine names.
var Engines = []string{mysql.Engine, mssql.Engine}

// DB is an open source engine.
type DB interface {
	schema.Catalog
	transfer.Source
	io.Closer
}

// Open connects to the named engine. An empty schema name selects the engine default.
func Open(ctx context.Context, engine, dsn, schemaName string) (DB, error) {
	var (
		db  *sqlsource.DB
		err error
	)
	switch engine {
	case mysql.Engine:
		db, err = mysql.Open(ctx, dsn, schemaName)
	case mssql.Engine:
		db, err = mssql.Open(ctx, dsn, schemaName)
	default:
		return nil, fmt.Errorf("unsupported source engine %q", engine)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}
