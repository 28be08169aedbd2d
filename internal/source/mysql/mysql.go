// Package mysql is the MySQL source engine.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/source/sqlsource"
)

const Engine = "mysql"

const tablesQuery = `SELECT TABLE_NAME
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

const columnsQuery = `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE, c.ORDINAL_POSITION
	FROM information_schema.COLUMNS c
	INNER JOIN information_schema.TABLES t
		ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE t.TABLE_SCHEMA = ?
		AND t.TABLE_TYPE = 'BASE TABLE'
	ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

// Types is the MySQL raw type dictionary, keyed by information_schema DATA_TYPE.
var Types = schema.TypeMap{
	"datetime":   schema.DateTime,
	"timestamp":  schema.DateTime,
	"date":       schema.DateTime,
	"bigint":     schema.Int64,
	"int":        schema.Int32,
	"integer":    schema.Int32,
	"mediumint":  schema.Int32,
	"smallint":   schema.Int32,
	"tinyint":    schema.Int32, // BOOL and BOOLEAN columns report tinyint
	"tinyblob":   schema.Bytes,
	"blob":       schema.Bytes,
	"mediumblob": schema.Bytes,
	"longblob":   schema.Bytes,
	"binary":     schema.Bytes,
	"varbinary":  schema.Bytes,
	"char":       schema.String,
	"varchar":    schema.String,
	"tinytext":   schema.String,
	"text":       schema.String,
	"mediumtext": schema.String,
	"longtext":   schema.String,
	"decimal":    schema.Decimal,
	"numeric":    schema.Decimal,
}

// QuoteIdentifier quotes a MySQL identifier with backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualifiedName(schemaName, table string) string {
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(table)
}

var Dialect = sqlsource.Dialect{
	Engine:          Engine,
	Types:           Types,
	TablesQuery:     tablesQuery,
	ColumnsQuery:    columnsQuery,
	QualifiedName:   qualifiedName,
	QuoteIdentifier: QuoteIdentifier,
}

// NormalizeDSN makes the driver return DATETIME columns as time.Time and reports the database
// named by the DSN.
func NormalizeDSN(dsn string) (string, string, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), cfg.DBName, nil
}

// Open connects to MySQL. An empty schema name selects the database of the DSN.
func Open(ctx context.Context, dsn, schemaName string) (*sqlsource.DB, error) {
	dsn, dbName, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	if schemaName == "" {
		schemaName = dbName
	}
	if schemaName == "" {
		return nil, fmt.Errorf("no MySQL schema given and the DSN names no database")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to MySQL: %w", err)
	}
	return sqlsource.New(db, schemaName, Dialect), nil
}
