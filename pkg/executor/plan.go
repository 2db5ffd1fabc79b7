// Package executor превращает дескрипторы шагов в SQL-команды и выполняет
// их в транзакции адаптера с повторами при транзиентных сбоях.
package executor

import (
	"fmt"
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

// TypeMapper отдает тип СУБД для новой колонки (реализуется adapters.Adapter)
type TypeMapper interface {
	ColumnType(dt schema.DataType) string
}

// Statement - одна команда плана
type Statement struct {
	SQL string `json:"sql"`
	DDL bool   `json:"ddl,omitempty"`
}

// Plan - команды одного шага в порядке выполнения
type Plan struct {
	Kind       steps.Kind  `json:"kind"`
	Sequence   int         `json:"sequence"`
	Table      string      `json:"table"`
	TableID    string      `json:"table_id"`
	Statements []Statement `json:"statements"`
}

// HasDDL сообщает, меняет ли план структуру таблиц
func (p *Plan) HasDDL() bool {
	for _, st := range p.Statements {
		if st.DDL {
			return true
		}
	}
	return false
}

func (p *Plan) add(sql string, ddl bool) {
	p.Statements = append(p.Statements, Statement{SQL: sql, DDL: ddl})
}

// BuildPlan разворачивает дескриптор в команды:
// сначала ALTER TABLE ADD COLUMN для new_columns, затем запрос шага.
func BuildPlan(desc *steps.Descriptor, types TypeMapper) (*Plan, error) {
	if desc == nil {
		return nil, fmt.Errorf("descriptor is nil")
	}

	step, err := steps.Decode(desc)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Kind: desc.Kind, Sequence: desc.Sequence, TableID: desc.DestinationTableID}

	switch s := step.(type) {
	case *steps.DeleteStep:
		plan.Table = s.Table.Name
		if err := planDelete(plan, s, desc.Query); err != nil {
			return nil, err
		}

	case *steps.LookupStep:
		plan.Table = s.Target.Name
		addColumns(plan, desc.NewColumns, types)
		plan.add(desc.Query, false)

	case *steps.FormulaStep:
		plan.Table = s.Target.Name
		addColumns(plan, desc.NewColumns, types)
		plan.add(desc.Query, false)

	case *steps.TranslateStep:
		plan.Table = s.Table.Name
		statements, err := steps.TranslateStatements(desc)
		if err != nil {
			return nil, err
		}
		for _, stmt := range statements {
			if strings.TrimSpace(stmt) != "" {
				plan.add(stmt, false)
			}
		}
	}

	if plan.Table == "" {
		return nil, fmt.Errorf("%s step %d: table is not set", desc.Kind, desc.Sequence)
	}
	if len(plan.Statements) == 0 {
		return nil, fmt.Errorf("%s step %d: nothing to execute", desc.Kind, desc.Sequence)
	}
	return plan, nil
}

func planDelete(plan *Plan, s *steps.DeleteStep, query string) error {
	table := schema.QuoteIdent(s.Table.Name)

	switch s.Action {
	case steps.ClearAll:
		plan.add("DELETE FROM "+table, false)

	case steps.DropTable:
		plan.add("DROP TABLE "+table, true)

	case steps.DropColumns:
		for _, col := range s.Columns {
			plan.add("ALTER TABLE "+table+" DROP COLUMN "+col.Quoted(), true)
		}

	case steps.ClearColumns:
		sets := make([]string, 0, len(s.Columns))
		for _, col := range s.Columns {
			sets = append(sets, col.Quoted()+" = NULL")
		}
		plan.add("UPDATE "+table+" SET "+strings.Join(sets, ", "), false)

	case steps.ClearSelected:
		if query == "" {
			return fmt.Errorf("clearSelected step has no condition")
		}
		plan.add("DELETE FROM "+table+" WHERE "+query, false)

	default:
		return fmt.Errorf("unknown delete action %q", s.Action)
	}
	return nil
}

func addColumns(plan *Plan, decls []schema.ColumnDeclaration, types TypeMapper) {
	table := schema.QuoteIdent(plan.Table)
	for _, decl := range decls {
		sql := "ALTER TABLE " + table + " ADD COLUMN " + schema.QuoteIdent(decl.ColumnName) + " " + types.ColumnType(decl.DataType)
		if decl.DefaultValue != "" {
			sql += " DEFAULT " + quoteLiteral(decl.DefaultValue)
		}
		plan.add(sql, true)
	}
}

// quoteLiteral - строковая константа в одинарных кавычках (понимают все СУБД)
func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
