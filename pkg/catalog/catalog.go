// Package catalog предоставляет таблицы и колонки, из которых
// пользователь собирает условия и формулы шагов.
package catalog

import (
	"context"
	"errors"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// ErrTableNotFound - таблицы нет в каталоге
var ErrTableNotFound = errors.New("table not found")

// TableWithColumns - таблица вместе с колонками
type TableWithColumns struct {
	Table   schema.Table       `json:"table" yaml:",inline"`
	Columns []schema.ColumnRef `json:"columns" yaml:"columns"`
}

// Catalog - источник метаданных таблиц
type Catalog interface {
	// ListTables возвращает все таблицы
	ListTables(ctx context.Context) ([]schema.Table, error)

	// FetchColumns возвращает таблицу с колонками или ErrTableNotFound
	FetchColumns(ctx context.Context, tableID string) (*TableWithColumns, error)

	// FetchColumnsForTables возвращает таблицы в порядке идентификаторов
	FetchColumnsForTables(ctx context.Context, tableIDs []string) ([]TableWithColumns, error)
}

// fetchEach реализует FetchColumnsForTables через FetchColumns
func fetchEach(ctx context.Context, c Catalog, tableIDs []string) ([]TableWithColumns, error) {
	out := make([]TableWithColumns, 0, len(tableIDs))
	for _, id := range tableIDs {
		twc, err := c.FetchColumns(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *twc)
	}
	return out, nil
}

// normalize заполняет поля, которые источник мог не передать:
// имя таблицы в каждой колонке, отображаемые имена и тип по умолчанию
func normalize(twc *TableWithColumns) {
	if twc.Table.DisplayName == "" {
		twc.Table.DisplayName = twc.Table.Name
	}
	for i := range twc.Columns {
		c := &twc.Columns[i]
		c.TableName = twc.Table.Name
		c.DisplayTableName = twc.Table.Label()
		if c.DisplayColumnName == "" {
			c.DisplayColumnName = c.ColumnName
		}
		if c.DataType == "" || !schema.IsValidType(c.DataType) {
			c.DataType = schema.DefaultType
		}
	}
}

// Snapshot - неизменяемый снимок части каталога для поиска колонок по имени.
// Используется при повторном открытии шагов.
type Snapshot struct {
	tables  map[string]schema.Table
	columns map[string]schema.ColumnRef
	order   map[string][]schema.ColumnRef
}

// NewSnapshot строит снимок по таблицам
func NewSnapshot(tables ...TableWithColumns) *Snapshot {
	s := &Snapshot{
		tables:  make(map[string]schema.Table, len(tables)),
		columns: make(map[string]schema.ColumnRef),
		order:   make(map[string][]schema.ColumnRef, len(tables)),
	}
	for _, twc := range tables {
		s.tables[twc.Table.Name] = twc.Table
		s.order[twc.Table.Name] = twc.Columns
		for _, c := range twc.Columns {
			s.columns[key(twc.Table.Name, c.ColumnName)] = c
		}
	}
	return s
}

// Column ищет колонку по имени таблицы и колонки
func (s *Snapshot) Column(table, column string) (schema.ColumnRef, bool) {
	c, ok := s.columns[key(table, column)]
	return c, ok
}

// Table ищет таблицу по имени
func (s *Snapshot) Table(name string) (schema.Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Columns возвращает колонки таблицы в порядке каталога
func (s *Snapshot) Columns(table string) []schema.ColumnRef {
	return s.order[table]
}

func key(table, column string) string {
	return table + "\x00" + column
}
