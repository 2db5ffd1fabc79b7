// Package mssql implements the catalog adapter for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb" // MS SQL Server driver

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// AdapterType is the factory key of the MS SQL Server adapter.
const AdapterType = "mssql"

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	// Register MS SQL Server adapter in factory
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter implements the adapters.Adapter interface for Microsoft SQL Server.
type Adapter struct {
	db     *sql.DB
	schema string
}

// Connect opens the connection and checks it with a ping.
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open("mssql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	// Default schema is "dbo" for MS SQL Server
	a.schema = cfg.Schema
	if a.schema == "" {
		a.schema = "dbo"
	}
	return nil
}

// Close closes the connection.
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ping checks the connection.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.db.PingContext(ctx)
}

// GetDatabaseType returns "mssql".
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetTableNames lists base tables of the configured schema.
func (a *Adapter) GetTableNames(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`, a.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}
	return adapters.ScanNames(rows)
}

// TableExists checks whether the table exists in the configured schema.
func (a *Adapter) TableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
	`, a.schema, tableName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// GetTableColumns reads columns and primary key membership from INFORMATION_SCHEMA.
func (a *Adapter) GetTableColumns(ctx context.Context, tableName string) ([]adapters.ColumnInfo, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CAST(CASE WHEN k.COLUMN_NAME IS NULL THEN 0 ELSE 1 END AS BIT)
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
			  ON ku.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) k
		  ON k.TABLE_SCHEMA = c.TABLE_SCHEMA
		 AND k.TABLE_NAME = c.TABLE_NAME
		 AND k.COLUMN_NAME = c.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`, a.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", err)
	}
	return adapters.ScanColumns(rows)
}

// ColumnType maps a step data type onto the SQL Server column type.
func (a *Adapter) ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.TypeAmount:
		return "DECIMAL(18,2)"
	case schema.TypeDate:
		return "DATE"
	default:
		return "NVARCHAR(255)"
	}
}

// BeginTx starts a transaction.
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	return adapters.BeginSQLTx(ctx, a.db)
}
