// Package mysql - адаптер MySQL: каталог колонок и исполнение запросов шагов.
// Запросы шагов строятся в диалекте MySQL, это основной адаптер исполнителя.
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// AdapterType идентификатор MySQL адаптера
const AdapterType = "mysql"

var _ adapters.Adapter = (*Adapter)(nil)

// Adapter реализует adapters.Adapter для MySQL
type Adapter struct {
	db     *sql.DB
	config adapters.Config
}

func init() {
	// Регистрируем MySQL адаптер в фабрике
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Connect подключается к MySQL базе данных
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.config = cfg
	return nil
}

// Close закрывает соединение с базой данных
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ping проверяет соединение с базой данных
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.db.PingContext(ctx)
}

// GetDatabaseType возвращает тип адаптера
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// GetTableNames возвращает список всех таблиц текущей базы
func (a *Adapter) GetTableNames(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}
	return adapters.ScanNames(rows)
}

// TableExists проверяет существование таблицы
func (a *Adapter) TableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?
	`, tableName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// GetTableColumns читает колонки таблицы из information_schema
func (a *Adapter) GetTableColumns(ctx context.Context, tableName string) ([]adapters.ColumnInfo, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			column_name,
			column_type,
			column_key = 'PRI'
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position
	`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query table schema: %w", err)
	}
	return adapters.ScanColumns(rows)
}

// ColumnType возвращает тип MySQL для новой колонки
func (a *Adapter) ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.TypeAmount:
		return "DECIMAL(18,2)"
	case schema.TypeDate:
		return "DATE"
	default:
		return "VARCHAR(255)"
	}
}

// BeginTx начинает транзакцию
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	return adapters.BeginSQLTx(ctx, a.db)
}
