package steps

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// ErrUnknownKind - дескриптор неизвестного типа шага
var ErrUnknownKind = errors.New("unknown step kind")

// Warning - предупреждение о ссылке на колонку, которой больше нет в каталоге.
// Узел со ссылкой не удаляется, пользователь исправляет его сам.
type Warning struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Rehydrated - вход построителя, восстановленный из дескриптора
type Rehydrated struct {
	Kind       Kind               `json:"kind"`
	Step       Step               `json:"step"`
	Conditions *condition.Tree    `json:"conditions,omitempty"`
	Formulas   []formula.Formula  `json:"formulas,omitempty"`
	Targets    []UpdateTarget     `json:"targets,omitempty"`
	Warnings   []Warning          `json:"warnings,omitempty"`
	Display    []DisplayCondition `json:"display,omitempty"` // условия в виде для формы
	Dropped    []DisplayCondition `json:"dropped,omitempty"` // удалены при смене выбора таблиц
}

// Rehydrate восстанавливает вход построителя из query_meta дескриптора.
// Ссылки на колонки обновляются из lookup (если задан); отсутствующие
// в каталоге колонки попадают в Warnings.
// Повторная сборка результата при неизменном каталоге дает тот же Query.
func Rehydrate(desc *Descriptor, lookup ColumnLookup, stepName string) (*Rehydrated, error) {
	if desc == nil {
		return nil, fmt.Errorf("rehydrate: descriptor is nil")
	}

	step, err := Decode(desc)
	if err != nil {
		return nil, fmt.Errorf("rehydrate: %w", err)
	}

	if stepName == "" {
		stepName = fmt.Sprintf("Step %d", desc.Sequence)
	}

	r := &Rehydrated{Kind: desc.Kind, Step: step}
	switch s := step.(type) {
	case *DeleteStep:
		r.Conditions = s.Conditions
	case *LookupStep:
		r.Conditions = s.Conditions
		r.Targets = s.Targets
	case *FormulaStep:
		r.Conditions = s.Conditions
		r.Targets = s.Targets
		for _, t := range s.Targets {
			r.Formulas = append(r.Formulas, t.Formula)
		}
	case *TranslateStep:
		for _, rule := range s.Rules {
			for _, cell := range rule.Cells {
				if len(cell.Formula) > 0 {
					r.Formulas = append(r.Formulas, cell.Formula)
				}
			}
		}
	}

	if lookup != nil {
		refs := columnRefs(step)
		seen := make(map[string]bool)
		for _, ref := range refs {
			missing := *ref
			if refresh(ref, lookup) {
				continue
			}
			key := missing.TableName + "." + missing.ColumnName
			if seen[key] {
				continue
			}
			seen[key] = true
			r.Warnings = append(r.Warnings, Warning{
				Table:   missing.TableName,
				Column:  missing.ColumnName,
				Message: messages.New(messages.KindSchemaDrift, messages.ColumnNotFound, stepName, missing.Label()).Error(),
			})
		}
	}

	r.Display = Denormalize(r.Conditions, nil)
	return r, nil
}

// Reselect приводит восстановленный шаг связи или формулы к новому выбору
// таблиц. Целевая таблица остается в выборе всегда. Условия по таблицам
// вне выбора удаляются из дерева и попадают в Dropped.
func (r *Rehydrated) Reselect(tables []schema.Table, lookup ColumnLookup) error {
	var (
		target schema.Table
		others *[]schema.Table
	)
	switch s := r.Step.(type) {
	case *LookupStep:
		target, others = s.Target, &s.Lookups
	case *FormulaStep:
		target, others = s.Target, &s.Tables
	default:
		return fmt.Errorf("%s step has no table selection", r.Kind)
	}

	selection := []schema.Table{target}
	rest := make([]schema.Table, 0, len(tables))
	for _, t := range tables {
		if t.Name == target.Name {
			continue
		}
		rest = append(rest, t)
		selection = append(selection, t)
	}
	*others = rest

	r.Dropped = Rebind(r.Conditions, selection, lookup)
	r.Display = Denormalize(r.Conditions, selection)
	return nil
}

// Decode восстанавливает вход построителя из query_meta без обращения к каталогу
func Decode(desc *Descriptor) (Step, error) {
	var step Step
	switch desc.Kind {
	case KindDelete:
		step = &DeleteStep{}
	case KindLookup:
		step = &LookupStep{}
	case KindFormula:
		step = &FormulaStep{}
	case KindTranslate:
		step = &TranslateStep{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, desc.Kind)
	}

	if len(desc.QueryMeta) > 0 {
		if err := json.Unmarshal(desc.QueryMeta, step); err != nil {
			return nil, fmt.Errorf("%s step: failed to decode query meta: %w", desc.Kind, err)
		}
	}
	return step, nil
}

// columnRefs собирает указатели на все ссылки на колонки во входе шага
func columnRefs(step Step) []*schema.ColumnRef {
	var refs []*schema.ColumnRef

	fromTree := func(tree *condition.Tree) {
		tree.Walk(func(c *condition.Condition) {
			refs = append(refs, &c.Column)
			if c.ByColumn() {
				refs = append(refs, &c.CompareField)
			}
		})
	}
	fromTargets := func(targets []UpdateTarget) {
		for i := range targets {
			t := &targets[i]
			if !t.IsNew() {
				refs = append(refs, &t.Column)
			}
			if t.Source != nil {
				refs = append(refs, t.Source)
			}
			refs = append(refs, t.Formula.Fields()...)
		}
	}

	switch s := step.(type) {
	case *DeleteStep:
		for i := range s.Columns {
			refs = append(refs, &s.Columns[i])
		}
		fromTree(s.Conditions)
	case *LookupStep:
		fromTree(s.Conditions)
		fromTargets(s.Targets)
	case *FormulaStep:
		fromTree(s.Conditions)
		fromTargets(s.Targets)
	case *TranslateStep:
		for i := range s.CompareColumns {
			refs = append(refs, &s.CompareColumns[i])
		}
		for i := range s.UpdateColumns {
			refs = append(refs, &s.UpdateColumns[i])
		}
		for _, rule := range s.Rules {
			for _, cell := range rule.Cells {
				refs = append(refs, cell.Formula.Fields()...)
			}
		}
	}

	var out []*schema.ColumnRef
	for _, ref := range refs {
		if !ref.IsZero() {
			out = append(out, ref)
		}
	}
	return out
}
