package steps

import (
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// FormulaMode - режим шага формул
type FormulaMode string

const (
	// SingleTable - формулы по колонкам одной таблицы
	SingleTable FormulaMode = "single"
	// MultiTable - формулы по колонкам нескольких таблиц, связанных условием
	MultiTable FormulaMode = "multi"
)

// FormulaStep - вход построителя шага формул
type FormulaStep struct {
	Mode       FormulaMode     `json:"mode"`
	Target     schema.Table    `json:"target"`
	Tables     []schema.Table  `json:"tables,omitempty"` // остальные таблицы (multi)
	Conditions *condition.Tree `json:"conditions,omitempty"`
	Targets    []UpdateTarget  `json:"targets"`
}

// Kind реализует Step
func (s *FormulaStep) Kind() Kind { return KindFormula }

// Build проверяет шаг и формирует запрос
//
//	UPDATE `target`[, `other`][, (SELECT ...) t00] SET `target`.`c` = <expr>[ WHERE <условие>]
//
// Формула i-й цели компилируется в позиции (0, i).
func (s *FormulaStep) Build(opts BuildOptions) (*Descriptor, error) {
	step := opts.stepName()

	if s.Target.Name == "" {
		return nil, messages.New(messages.KindStructural, messages.TableRequired, step, "")
	}

	multi := s.Mode == MultiTable
	if multi {
		if len(s.Tables) == 0 {
			return nil, messages.New(messages.KindStructural, messages.LookupTableRequired, step, "")
		}
		for _, t := range s.Tables {
			if t.Name == "" {
				return nil, messages.New(messages.KindStructural, messages.LookupTableRequired, step, "")
			}
		}
		if !s.Conditions.HasColumnComparison() {
			return nil, messages.New(messages.KindStructural, messages.JoinRequired, step, "")
		}
	}

	where, err := condition.NewCompiler(condition.FormulaDialect).Compile(s.Conditions, condition.Context{Step: step})
	if err != nil {
		return nil, err
	}

	decls, err := checkTargets(s.Targets, opts)
	if err != nil {
		return nil, err
	}

	compiler := formula.NewCompiler()
	validator := schema.NewValidator()

	sets := make([]string, 0, len(s.Targets))
	var selects strings.Builder
	for i, t := range s.Targets {
		lhs := assignment(s.Target.Name, t.Name())

		switch {
		case len(t.Formula) > 0:
			if err := formula.Validate(t.Formula); err != nil {
				return nil, messages.New(messages.KindValue, messages.FormulaInvalid, step, t.Label()).WithDetail(err.Error())
			}
			res := compiler.Compile(t.Formula, formula.Position{Row: 0, Col: i})
			sets = append(sets, lhs+res.Set)
			selects.WriteString(res.Select)

		case t.Value != "":
			if err := validator.ValidateValue(t.Value, schema.ColumnRef{ColumnName: t.Name(), DataType: t.Type()}); err != nil {
				return nil, messages.New(messages.KindValue, messages.InvalidValue, step, t.Label())
			}
			sets = append(sets, lhs+condition.QuoteValue(t.Value))

		default:
			return nil, messages.New(messages.KindValue, messages.FormulaRequired, step, t.Label())
		}
	}

	tables := []string{schema.QuoteIdent(s.Target.Name)}
	if multi {
		for _, t := range s.Tables {
			tables = append(tables, schema.QuoteIdent(t.Name))
		}
	}

	var q strings.Builder
	q.WriteString("UPDATE ")
	q.WriteString(strings.Join(tables, ", "))
	q.WriteString(selects.String())
	q.WriteString(" SET ")
	q.WriteString(strings.Join(sets, ", "))
	if where != "" {
		q.WriteString(" WHERE ")
		q.WriteString(where)
	}

	meta, err := marshalMeta(s)
	if err != nil {
		return nil, err
	}

	desc := newDescriptor(KindFormula, opts)
	desc.Query = q.String()
	desc.QueryMeta = meta
	desc.NewColumns = append(desc.NewColumns, decls...)
	desc.SourceTableID = s.Target.ID
	if multi {
		desc.SourceTableID = s.Tables[0].ID
	}
	desc.DestinationTableID = s.Target.ID
	return desc, nil
}
