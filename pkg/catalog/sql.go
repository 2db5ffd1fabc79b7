package catalog

import (
	"context"
	"fmt"

	"github.com/ruslano69/tdtp-steps/pkg/adapters"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// SQL - каталог живой базы данных. Идентификатор таблицы совпадает с ее именем.
type SQL struct {
	adapter   adapters.Adapter
	protected map[string]bool
}

// NewSQL создает каталог поверх адаптера.
// protected - таблицы, которые нельзя удалять шагами.
func NewSQL(adapter adapters.Adapter, protected []string) *SQL {
	p := make(map[string]bool, len(protected))
	for _, name := range protected {
		p[name] = true
	}
	return &SQL{adapter: adapter, protected: p}
}

func (c *SQL) table(name string) schema.Table {
	return schema.Table{ID: name, Name: name, DisplayName: name, Primary: c.protected[name]}
}

// ListTables реализует Catalog
func (c *SQL) ListTables(ctx context.Context) ([]schema.Table, error) {
	names, err := c.adapter.GetTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list tables: %w", err)
	}
	out := make([]schema.Table, 0, len(names))
	for _, name := range names {
		out = append(out, c.table(name))
	}
	return out, nil
}

// FetchColumns реализует Catalog
func (c *SQL) FetchColumns(ctx context.Context, tableID string) (*TableWithColumns, error) {
	cols, err := c.adapter.GetTableColumns(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("catalog: columns of %s: %w", tableID, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}

	twc := &TableWithColumns{Table: c.table(tableID)}
	for _, col := range cols {
		twc.Columns = append(twc.Columns, schema.ColumnRef{
			ColumnName: col.Name,
			DataType:   col.DataType(),
			Primary:    col.PrimaryKey,
		})
	}
	normalize(twc)
	return twc, nil
}

// FetchColumnsForTables реализует Catalog
func (c *SQL) FetchColumnsForTables(ctx context.Context, tableIDs []string) ([]TableWithColumns, error) {
	return fetchEach(ctx, c, tableIDs)
}
