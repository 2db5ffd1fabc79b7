// Package steps собирает исполняемые дескрипторы шагов процесса
// (удаление/очистка, lookup, формулы, трансляция по правилам)
// из деревьев условий и формул.
package steps

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// Kind - тип шага
type Kind string

const (
	KindDelete    Kind = "delete"
	KindLookup    Kind = "lookup"
	KindFormula   Kind = "formula"
	KindTranslate Kind = "translate"
)

// Descriptor - исполняемое описание шага, единственный сохраняемый артефакт.
// Имена полей совпадают с ожидаемыми исполнителем процесса.
type Descriptor struct {
	Kind               Kind                       `json:"kind"`
	Query              string                     `json:"query"`
	QueryMeta          json.RawMessage            `json:"query_meta"`
	NewColumns         []schema.ColumnDeclaration `json:"new_columns"`
	SourceTableID      string                     `json:"source_table_id,omitempty"`
	DestinationTableID string                     `json:"destination_table_id,omitempty"`
	Sequence           int                        `json:"sequence"`
}

// BuildOptions - параметры сборки шага
type BuildOptions struct {
	Step     string // имя шага в сообщениях; по умолчанию "Step <Sequence>"
	Sequence int

	// Columns - текущие колонки целевой таблицы.
	// Новая колонка не может совпадать по имени ни с одной из них.
	Columns []schema.ColumnRef
}

func (o BuildOptions) stepName() string {
	if o.Step != "" {
		return o.Step
	}
	return fmt.Sprintf("Step %d", o.Sequence)
}

// Step - входные данные построителя шага
type Step interface {
	Kind() Kind
	Build(opts BuildOptions) (*Descriptor, error)
}

// UpdateTarget - колонка, которую обновляет шаг lookup или формулы.
// Для новой колонки Column пуст, а NewColumn содержит объявление.
type UpdateTarget struct {
	Column    schema.ColumnRef          `json:"column"`
	NewColumn *schema.ColumnDeclaration `json:"new_column,omitempty"`

	Source  *schema.ColumnRef `json:"source,omitempty"`  // lookup: колонка-источник
	Formula formula.Formula   `json:"formula,omitempty"` // формула значения
	Value   string            `json:"value,omitempty"`   // константа вместо формулы
}

// IsNew сообщает, что колонка создается шагом
func (t UpdateTarget) IsNew() bool {
	return t.NewColumn != nil
}

// Name возвращает техническое имя обновляемой колонки
func (t UpdateTarget) Name() string {
	if t.NewColumn != nil {
		return strings.TrimSpace(t.NewColumn.ColumnName)
	}
	return t.Column.ColumnName
}

// Label возвращает отображаемое имя колонки
func (t UpdateTarget) Label() string {
	if t.NewColumn != nil {
		if t.NewColumn.DisplayName != "" {
			return t.NewColumn.DisplayName
		}
		return t.NewColumn.ColumnName
	}
	return t.Column.Label()
}

// Type возвращает тип обновляемой колонки
func (t UpdateTarget) Type() schema.DataType {
	if t.NewColumn != nil {
		if t.NewColumn.DataType == "" {
			return schema.DefaultType
		}
		return t.NewColumn.DataType
	}
	return t.Column.Type()
}

// checkTargets проверяет имена обновляемых колонок: имя задано,
// не повторяется и новая колонка не совпадает с существующей.
// Объявления новых колонок возвращаются в порядке целей.
func checkTargets(targets []UpdateTarget, opts BuildOptions) ([]schema.ColumnDeclaration, error) {
	step := opts.stepName()
	if len(targets) == 0 {
		return nil, messages.New(messages.KindStructural, messages.TargetsRequired, step, "")
	}

	existing := make(map[string]bool, len(opts.Columns))
	for _, col := range opts.Columns {
		existing[strings.ToLower(col.ColumnName)] = true
	}

	seen := make(map[string]bool, len(targets))
	var decls []schema.ColumnDeclaration
	for _, t := range targets {
		name := t.Name()
		if name == "" {
			return nil, messages.New(messages.KindStructural, messages.TargetColumnRequired, step, "")
		}

		key := strings.ToLower(name)
		if seen[key] {
			return nil, messages.New(messages.KindSemantic, messages.DuplicateTarget, step, t.Label())
		}
		seen[key] = true

		if t.IsNew() {
			if existing[key] {
				return nil, messages.New(messages.KindSemantic, messages.ColumnExists, step, t.Label())
			}
			decl := *t.NewColumn
			decl.ColumnName = name
			if decl.DataType == "" {
				decl.DataType = schema.DefaultType
			}
			decls = append(decls, decl)
		}
	}

	if err := schema.NewValidator().ValidateDeclarations(decls, nil); err != nil {
		var ve *schema.ValidationError
		if errors.As(err, &ve) {
			return nil, messages.New(messages.KindValue, messages.InvalidNewColumn, step, ve.Field).WithDetail(ve.Message)
		}
		return nil, messages.New(messages.KindValue, messages.InvalidNewColumn, step, "").WithDetail(err.Error())
	}

	return decls, nil
}

// assignment возвращает "`table`.`column` = "
func assignment(table, column string) string {
	return schema.QuoteIdent(table) + "." + schema.QuoteIdent(column) + " = "
}

func newDescriptor(kind Kind, opts BuildOptions) *Descriptor {
	return &Descriptor{
		Kind:       kind,
		NewColumns: []schema.ColumnDeclaration{},
		Sequence:   opts.Sequence,
	}
}

func marshalMeta(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query meta: %w", err)
	}
	return data, nil
}
