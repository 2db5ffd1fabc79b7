// Package sqlite - адаптер SQLite (modernc.org/sqlite, без CGO).
// Используется для локальной работы и тестов исполнителя.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

const driverSqlite = "sqlite"

// AdapterType идентификатор SQLite адаптера
const AdapterType = "sqlite"

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с SQLite
type Adapter struct {
	db *sql.DB
}

// Connect устанавливает подключение к SQLite
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open(driverSqlite, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Каждое соединение с :memory: открывает отдельную базу
	if cfg.DSN == "" || strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	// Проверяем подключение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	return nil
}

// Close закрывает подключение
func (a *Adapter) Close(ctx context.Context) error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.db.PingContext(ctx)
}

// GetDatabaseType возвращает тип СУБД
func (a *Adapter) GetDatabaseType() string {
	return AdapterType
}

// DB возвращает *sql.DB для прямого доступа
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// GetTableNames возвращает список пользовательских таблиц
func (a *Adapter) GetTableNames(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}
	return adapters.ScanNames(rows)
}

// TableExists проверяет существование таблицы
func (a *Adapter) TableExists(ctx context.Context, tableName string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", tableName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// GetTableColumns читает колонки через pragma_table_info
func (a *Adapter) GetTableColumns(ctx context.Context, tableName string) ([]adapters.ColumnInfo, error) {
	rows, err := a.db.QueryContext(ctx,
		"SELECT name, type, pk > 0 FROM pragma_table_info(?) ORDER BY cid", tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get table info: %w", err)
	}
	return adapters.ScanColumns(rows)
}

// ColumnType возвращает тип SQLite для новой колонки.
// Даты хранятся текстом в формате YYYY-MM-DD.
func (a *Adapter) ColumnType(dt schema.DataType) string {
	switch dt {
	case schema.TypeAmount:
		return "DECIMAL(18,2)"
	case schema.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// BeginTx начинает транзакцию
func (a *Adapter) BeginTx(ctx context.Context) (adapters.Tx, error) {
	return adapters.BeginSQLTx(ctx, a.db)
}
