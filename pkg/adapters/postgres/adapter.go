// Package postgres - адаптер PostgreSQL на pgx/v5 (connection pool).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// AdapterType идентификатор PostgreSQL адаптера
const AdapterType = "postgres"

var _ adapters.Adapter = (*Adapter)(nil)

func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter реализует adapters.Adapter для PostgreSQL
type Adapter struct {
	pool   *pgxpool.Pool
	schema string
}

// Connect создает connection pool
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.pool = pool
	a.schema = cfg.Schema
	if a.schema == "" {
		a.schema = "public"
	}
	return nil
}

// Close закрывает connection pool
func (a *Adapter) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.pool == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.pool.Ping(ctx)
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// Schema возвращает текущую схему
func (a *Adapter) Schema() string {
	return a.schema
}

// GetTableNames возвращает список всех таблиц в текущей схеме
func (a *Adapter) GetTableNames(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`, a.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan table names: %w", err)
	}
	return names, nil
}

// TableExists проверяет существование таблицы в текущей схеме
func (a *Adapter) TableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := a.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.tables
			WHERE table_schema = $1
			  AND table_name = $2
		)
	`, a.schema, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}

// GetTableColumns читает колонки из information_schema;
// первичный ключ определяется по table_constraints
func (a *Adapter) GetTableColumns(ctx context.Context, tableName string) ([]adapters.ColumnInfo, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage k
				  ON k.constraint_name = tc.constraint_name
				 AND k.table_schema = tc.table_schema
				WHERE tc.constraint_type = 'PRIMARY KEY'
				  AND tc.table_schema = c.table_schema
				  AND tc.table_name = c.table_name
				  AND k.column_name = c.column_name
			)
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		  AND c.table_name = $2
		ORDER BY c.ordinal_position
	`, a.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get table schema: %w", err)
	}

	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (adapters.ColumnInfo, error) {
		var c adapters.ColumnInfo
		err := row.Scan(&c.Name, &c.SQLType, &c.PrimaryKey)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan column info: %w", err)
	}
	return cols, nil
}

// ColumnType возвращает тип PostgreSQL для новой колонки
func (a *Adapter) ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.TypeAmount:
		return "NUMERIC(18,2)"
	case schema.TypeDate:
		return "DATE"
	default:
		return "VARCHAR(255)"
	}
}

// BeginTx начинает транзакцию
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresTx{tx: tx}, nil
}

// postgresTx - обертка для pgx.Tx для реализации adapters.Tx
type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Exec(ctx context.Context, query string) (int64, error) {
	tag, err := t.tx.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
