package steps

import (
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// DeleteAction - действие шага удаления/очистки
type DeleteAction string

const (
	ClearAll      DeleteAction = "clearAll"      // удалить все строки
	DropTable     DeleteAction = "dropTable"     // удалить таблицу
	DropColumns   DeleteAction = "dropColumns"   // удалить колонки
	ClearColumns  DeleteAction = "clearColumns"  // очистить значения колонок
	ClearSelected DeleteAction = "clearSelected" // удалить строки по условию
)

// DeleteStep - вход построителя шага удаления/очистки
type DeleteStep struct {
	Action     DeleteAction       `json:"action"`
	Table      schema.Table       `json:"table"`
	Columns    []schema.ColumnRef `json:"columns,omitempty"`
	Conditions *condition.Tree    `json:"conditions,omitempty"`
}

// Kind реализует Step
func (s *DeleteStep) Kind() Kind { return KindDelete }

// Build проверяет шаг и формирует дескриптор.
// Query зависит от действия: пусто для clearAll, имя таблицы для dropTable,
// список колонок для dropColumns/clearColumns, текст условия для clearSelected.
func (s *DeleteStep) Build(opts BuildOptions) (*Descriptor, error) {
	step := opts.stepName()

	if s.Action == "" {
		return nil, messages.New(messages.KindStructural, messages.ActionRequired, step, "")
	}
	if s.Table.Name == "" {
		return nil, messages.New(messages.KindStructural, messages.TableRequired, step, "")
	}

	var query string
	switch s.Action {
	case ClearAll:
		// исполнитель очищает таблицу целиком, запрос не нужен

	case DropTable:
		if s.Table.Primary {
			return nil, messages.New(messages.KindSemantic, messages.ProtectedTable, step, s.Table.Label())
		}
		query = schema.QuoteIdent(s.Table.Name)

	case DropColumns, ClearColumns:
		if len(s.Columns) == 0 {
			return nil, messages.New(messages.KindStructural, messages.ColumnsRequired, step, "")
		}
		quoted := make([]string, 0, len(s.Columns))
		for _, col := range s.Columns {
			if col.IsZero() {
				return nil, messages.New(messages.KindStructural, messages.ColumnsRequired, step, "")
			}
			if col.Primary {
				return nil, messages.New(messages.KindSemantic, messages.ProtectedColumn, step, col.Label())
			}
			quoted = append(quoted, col.Quoted())
		}
		query = strings.Join(quoted, ", ")

	case ClearSelected:
		if s.Conditions.IsEmpty() {
			return nil, messages.New(messages.KindStructural, messages.ConditionsRequired, step, "")
		}
		text, err := condition.NewCompiler(condition.DeleteDialect).Compile(s.Conditions, condition.Context{Step: step})
		if err != nil {
			return nil, err
		}
		query = text

	default:
		return nil, messages.New(messages.KindStructural, messages.ActionRequired, step, "")
	}

	meta, err := marshalMeta(s)
	if err != nil {
		return nil, err
	}

	desc := newDescriptor(KindDelete, opts)
	desc.Query = query
	desc.QueryMeta = meta
	desc.SourceTableID = s.Table.ID
	desc.DestinationTableID = s.Table.ID
	return desc, nil
}
