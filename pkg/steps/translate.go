package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// StatementSeparator разделяет запросы правил в Query шага трансляции.
// Query предназначен для чтения: значения правил могут содержать разделитель,
// поэтому для выполнения запросы берутся из query_meta (TranslateStatements).
const StatementSeparator = ";\n"

// Роли колонок шага трансляции
const (
	RoleCompare = "compare"
	RoleUpdate  = "update"
)

// Cell - ячейка правила: значение или формула (только для amount-колонок)
type Cell struct {
	Value   string          `json:"value,omitempty"`
	Formula formula.Formula `json:"formula,omitempty"`
}

// Rule - строка правил: первые ячейки сравниваются с CompareColumns,
// остальные присваиваются UpdateColumns
type Rule struct {
	Cells []Cell `json:"cells"`
}

// TranslateStep - вход построителя шага трансляции по правилам
type TranslateStep struct {
	Table          schema.Table       `json:"table"`
	CompareColumns []schema.ColumnRef `json:"compare_columns"`
	UpdateColumns  []schema.ColumnRef `json:"update_columns"`
	Rules          []Rule             `json:"rules"`
}

// translateMeta дополняет вход запросами по правилам и ролями колонок
type translateMeta struct {
	*TranslateStep
	Statements []string          `json:"statements"`
	Roles      map[string]string `json:"roles"`
}

// Kind реализует Step
func (s *TranslateStep) Kind() Kind { return KindTranslate }

// TranslateStatements возвращает запросы правил из query_meta в порядке правил
func TranslateStatements(desc *Descriptor) ([]string, error) {
	if desc.Kind != KindTranslate {
		return nil, fmt.Errorf("%s step has no rule statements", desc.Kind)
	}
	var meta struct {
		Statements []string `json:"statements"`
	}
	if len(desc.QueryMeta) > 0 {
		if err := json.Unmarshal(desc.QueryMeta, &meta); err != nil {
			return nil, fmt.Errorf("translate step: failed to decode query meta: %w", err)
		}
	}
	return meta.Statements, nil
}

// Build проверяет правила и формирует по одному запросу на правило
//
//	UPDATE `t` SET `t`.`u` = "x" WHERE `t`.`c` = "a" AND `t`.`d` = "b"
//
// Пустые ячейки обновления пропускаются.
func (s *TranslateStep) Build(opts BuildOptions) (*Descriptor, error) {
	step := opts.stepName()

	if s.Table.Name == "" {
		return nil, messages.New(messages.KindStructural, messages.TableRequired, step, "")
	}
	if len(s.CompareColumns) == 0 {
		return nil, messages.New(messages.KindStructural, messages.CompareColumnsRequired, step, "")
	}
	if len(s.UpdateColumns) == 0 {
		return nil, messages.New(messages.KindStructural, messages.UpdateColumnsRequired, step, "")
	}

	roles := make(map[string]string, len(s.CompareColumns)+len(s.UpdateColumns))
	for _, col := range s.CompareColumns {
		if col.IsZero() {
			return nil, messages.New(messages.KindStructural, messages.CompareColumnsRequired, step, "")
		}
		roles[col.ColumnName] = RoleCompare
	}
	for _, col := range s.UpdateColumns {
		if col.IsZero() {
			return nil, messages.New(messages.KindStructural, messages.UpdateColumnsRequired, step, "")
		}
		if roles[col.ColumnName] == RoleCompare {
			return nil, messages.New(messages.KindSemantic, messages.ColumnRoleConflict, step, col.Label())
		}
		roles[col.ColumnName] = RoleUpdate
	}

	if len(s.Rules) == 0 {
		return nil, messages.New(messages.KindStructural, messages.RulesRequired, step, "")
	}

	statements := make([]string, 0, len(s.Rules))
	for i, rule := range s.Rules {
		stmt, err := s.compileRule(i, rule, step)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}

	meta, err := marshalMeta(translateMeta{TranslateStep: s, Statements: statements, Roles: roles})
	if err != nil {
		return nil, err
	}

	desc := newDescriptor(KindTranslate, opts)
	desc.Query = strings.Join(statements, StatementSeparator)
	desc.QueryMeta = meta
	desc.SourceTableID = s.Table.ID
	desc.DestinationTableID = s.Table.ID
	return desc, nil
}

func (s *TranslateStep) compileRule(index int, rule Rule, step string) (string, error) {
	field := strconv.Itoa(index + 1)
	if len(rule.Cells) != len(s.CompareColumns)+len(s.UpdateColumns) {
		return "", messages.New(messages.KindStructural, messages.RuleShape, step, field)
	}

	validator := schema.NewValidator()
	table := s.Table.Name

	where := make([]string, 0, len(s.CompareColumns))
	for j, col := range s.CompareColumns {
		v := rule.Cells[j].Value
		if v == "" {
			return "", messages.New(messages.KindValue, messages.RuleValueRequired, step, field)
		}
		if err := validator.ValidateValue(v, col); err != nil {
			return "", messages.New(messages.KindValue, messages.InvalidValue, step, col.Label()).WithDetail("rule " + field)
		}
		where = append(where, assignment(table, col.ColumnName)+condition.QuoteValue(v))
	}

	compiler := formula.NewCompiler()
	sets := make([]string, 0, len(s.UpdateColumns))
	var selects strings.Builder
	for j, col := range s.UpdateColumns {
		cell := rule.Cells[len(s.CompareColumns)+j]
		lhs := assignment(table, col.ColumnName)

		switch {
		case len(cell.Formula) > 0:
			if col.Type() != schema.TypeAmount {
				return "", messages.New(messages.KindValue, messages.FormulaInvalid, step, col.Label()).WithDetail("formula requires an amount column")
			}
			if err := formula.Validate(cell.Formula); err != nil {
				return "", messages.New(messages.KindValue, messages.FormulaInvalid, step, col.Label()).WithDetail(err.Error())
			}
			res := compiler.Compile(cell.Formula, formula.Position{Row: index, Col: j})
			sets = append(sets, lhs+res.Set)
			selects.WriteString(res.Select)

		case cell.Value != "":
			if err := validator.ValidateValue(cell.Value, col); err != nil {
				return "", messages.New(messages.KindValue, messages.InvalidValue, step, col.Label()).WithDetail("rule " + field)
			}
			sets = append(sets, lhs+condition.QuoteValue(cell.Value))
		}
	}

	if len(sets) == 0 {
		return "", messages.New(messages.KindValue, messages.RuleEmpty, step, field)
	}

	return "UPDATE " + schema.QuoteIdent(table) + selects.String() +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(where, " AND "), nil
}
