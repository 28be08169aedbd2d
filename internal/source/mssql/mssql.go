// Package mssql is the SQL Server source engine.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"

	"github.com/tendant/pgmigrate/internal/schema"
	"github.com/tendant/pgmigrate/internal/source/sqlsource"
)

const (
	Engine        = "mssql"
	DefaultSchema = "dbo"
)

const tablesQuery = `
	SELECT TABLE_NAME
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_TYPE = 'BASE TABLE'
	AND TABLE_SCHEMA = @p1
	ORDER BY TABLE_NAME`

const columnsQuery = `
	SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE, c.ORDINAL_POSITION
	FROM INFORMATION_SCHEMA.COLUMNS c
	INNER JOIN INFORMATION_SCHEMA.TABLES t
		ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
	WHERE t.TABLE_TYPE = 'BASE TABLE'
	AND t.TABLE_SCHEMA = @p1
	ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

// Types is the SQL Server raw type dictionary.
var Types = schema.TypeMap{
	"datetime":         schema.DateTime,
	"datetime2":        schema.DateTime,
	"smalldatetime":    schema.DateTime,
	"date":             schema.DateTime,
	"bigint":           schema.Int64,
	"int":              schema.Int32,
	"smallint":         schema.Int32,
	"tinyint":          schema.Int32,
	"bit":              schema.Bool,
	"char":             schema.String,
	"varchar":          schema.String,
	"nchar":            schema.String,
	"nvarchar":         schema.String,
	"text":             schema.String,
	"ntext":            schema.String,
	"decimal":          schema.Decimal,
	"numeric":          schema.Decimal,
	"money":            schema.Decimal,
	"smallmoney":       schema.Decimal,
	"float":            schema.Decimal,
	"real":             schema.Decimal,
	"uniqueidentifier": schema.UUID,
	"binary":           schema.Bytes,
	"varbinary":        schema.Bytes,
	"image":            schema.Bytes,
}

// QuoteIdentifier quotes a SQL Server identifier with brackets.
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func qualifiedName(schemaName, table string) string {
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(table)
}

// ParseUUID reads a uniqueidentifier, whose wire bytes are in SQL Server's mixed-endian order.
func ParseUUID(raw any) (uuid.UUID, error) {
	var id mssql.UniqueIdentifier
	if err := id.Scan(raw); err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(id), nil
}

var Dialect = sqlsource.Dialect{
	Engine:          Engine,
	Types:           Types,
	TablesQuery:     tablesQuery,
	ColumnsQuery:    columnsQuery,
	QualifiedName:   qualifiedName,
	QuoteIdentifier: QuoteIdentifier,
	ParseUUID:       ParseUUID,
}

// NormalizeDSN rewrites mssql:// URLs to sqlserver:// and adds the connection parameters
// RDS-hosted instances need. Non-URL connection strings are returned unchanged.
func NormalizeDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mssql://") {
		dsn = "sqlserver://" + strings.TrimPrefix(dsn, "mssql://")
	}
	if !strings.HasPrefix(dsn, "sqlserver://") {
		return dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid SQL Server DSN: %w", err)
	}

	params := u.Query()
	setDefault := func(key, value string) {
		if params.Get(key) == "" {
			params.Set(key, value)
		}
	}
	setDefault("connection timeout", "30")
	setDefault("encrypt", "disable")
	setDefault("browser", "disable")
	setDefault("dial timeout", "10")
	if strings.Contains(u.Hostname(), "rds.amazonaws.com") {
		setDefault("server sni", "disable")
		setDefault("server", u.Hostname())
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

// Open connects to SQL Server. An empty schema name selects dbo.
func Open(ctx context.Context, dsn, schemaName string) (*sqlsource.DB, error) {
	dsn, err := NormalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	if schemaName == "" {
		schemaName = DefaultSchema
	}

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL Server connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL Server: %w", err)
	}
	return sqlsource.New(db, schemaName, Dialect), nil
}
