package steps

import (
	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// ColumnLookup - снимок каталога колонок, по которому обновляются
// ссылки на колонки при повторном открытии шага
type ColumnLookup interface {
	Column(table, column string) (schema.ColumnRef, bool)
}

// DisplayCondition - условие в виде для отображения: к колонкам
// добавлено отображаемое имя таблицы
type DisplayCondition struct {
	Column        string             `json:"column"`
	Operator      operators.Operator `json:"operator,omitempty"`
	OperatorLabel string             `json:"operator_label,omitempty"`
	CompareType   string             `json:"compare_type"`
	Value         string             `json:"value,omitempty"`
	ValueTo       string             `json:"value_to,omitempty"`
	CompareField  string             `json:"compare_field,omitempty"`
	Incomplete    bool               `json:"incomplete,omitempty"`
}

// Denormalize возвращает листья дерева в виде для отображения.
// Отображаемое имя таблицы берется из tables, затем из самой ссылки.
func Denormalize(tree *condition.Tree, tables []schema.Table) []DisplayCondition {
	names := make(map[string]string, len(tables))
	for _, t := range tables {
		names[t.Name] = t.Label()
	}

	label := func(ref schema.ColumnRef) string {
		if ref.IsZero() {
			return ""
		}
		table := names[ref.TableName]
		if table == "" {
			table = ref.DisplayTableName
		}
		if table == "" {
			table = ref.TableName
		}
		return table + "." + ref.Label()
	}

	var out []DisplayCondition
	tree.Walk(func(c *condition.Condition) {
		dc := DisplayCondition{
			Column:        label(c.Column),
			Operator:      c.Operator,
			OperatorLabel: operators.Label(c.Column.Type(), c.Operator),
			CompareType:   string(condition.CompareValue),
			Value:         c.Value,
			ValueTo:       c.ValueTo,
			Incomplete:    c.Column.IsZero() || c.Operator == "",
		}
		if c.ByColumn() {
			dc.CompareType = string(condition.CompareColumn)
			dc.CompareField = label(c.CompareField)
			dc.Value = ""
		}
		out = append(out, dc)
	})
	return out
}

// Rebind приводит дерево к новому выбору таблиц: ссылки на колонки
// обновляются из каталога, условия по таблицам вне выбора удаляются.
// Возвращает удаленные условия в виде для отображения.
func Rebind(tree *condition.Tree, tables []schema.Table, lookup ColumnLookup) []DisplayCondition {
	if tree == nil {
		return nil
	}

	selected := make(map[string]bool, len(tables))
	for _, t := range tables {
		selected[t.Name] = true
	}

	inSelection := func(ref schema.ColumnRef) bool {
		return ref.IsZero() || selected[ref.TableName]
	}

	var dropped []*condition.Condition
	tree.Filter(func(c *condition.Condition) bool {
		keep := inSelection(c.Column)
		if c.ByColumn() {
			keep = keep && inSelection(c.CompareField)
		}
		if !keep {
			dropped = append(dropped, c)
		}
		return keep
	})

	if lookup != nil {
		tree.Walk(func(c *condition.Condition) {
			refresh(&c.Column, lookup)
			refresh(&c.CompareField, lookup)
		})
	}

	return Denormalize(&condition.Tree{Relation: condition.And, Data: conditionNodes(dropped)}, tables)
}

// refresh заменяет ссылку актуальной версией из каталога.
// Возвращает false, если колонки в каталоге нет.
func refresh(ref *schema.ColumnRef, lookup ColumnLookup) bool {
	if ref.IsZero() {
		return true
	}
	fresh, ok := lookup.Column(ref.TableName, ref.ColumnName)
	if !ok {
		return false
	}
	*ref = fresh
	return true
}

func conditionNodes(conds []*condition.Condition) []condition.Node {
	nodes := make([]condition.Node, 0, len(conds))
	for _, c := range conds {
		nodes = append(nodes, c)
	}
	return nodes
}
