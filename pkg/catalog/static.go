package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// Static - каталог, описанный в YAML-файле
//
//	tables:
//	  - id: t-invoices
//	    name: invoices
//	    display_name: Invoices
//	    columns:
//	      - column_name: amount
//	        data_type: amount
type Static struct {
	tables []TableWithColumns
	byID   map[string]int
}

type staticFile struct {
	Tables []TableWithColumns `yaml:"tables"`
}

// LoadStatic читает каталог из YAML-файла
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	return ParseStatic(data)
}

// ParseStatic разбирает YAML-описание каталога
func ParseStatic(data []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse yaml: %w", err)
	}
	return NewStatic(f.Tables)
}

// NewStatic создает каталог из списка таблиц
func NewStatic(tables []TableWithColumns) (*Static, error) {
	s := &Static{byID: make(map[string]int, len(tables))}
	for i, twc := range tables {
		if twc.Table.Name == "" {
			return nil, fmt.Errorf("catalog: table %d has no name", i+1)
		}
		if twc.Table.ID == "" {
			twc.Table.ID = twc.Table.Name
		}
		if _, dup := s.byID[twc.Table.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate table id %q", twc.Table.ID)
		}
		twc.Columns = append([]schema.ColumnRef(nil), twc.Columns...)
		normalize(&twc)

		s.byID[twc.Table.ID] = len(s.tables)
		s.tables = append(s.tables, twc)
	}
	return s, nil
}

// ListTables реализует Catalog
func (s *Static) ListTables(ctx context.Context) ([]schema.Table, error) {
	out := make([]schema.Table, 0, len(s.tables))
	for _, twc := range s.tables {
		out = append(out, twc.Table)
	}
	return out, nil
}

// FetchColumns реализует Catalog
func (s *Static) FetchColumns(ctx context.Context, tableID string) (*TableWithColumns, error) {
	i, ok := s.byID[tableID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	twc := s.tables[i]
	twc.Columns = append([]schema.ColumnRef(nil), twc.Columns...)
	return &twc, nil
}

// FetchColumnsForTables реализует Catalog
func (s *Static) FetchColumnsForTables(ctx context.Context, tableIDs []string) ([]TableWithColumns, error) {
	return fetchEach(ctx, s, tableIDs)
}
