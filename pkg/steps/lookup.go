package steps

import (
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// LookupStep - вход построителя шага lookup/join: колонки целевой таблицы
// заполняются значениями колонок lookup-таблиц по условию связи
type LookupStep struct {
	Target     schema.Table    `json:"target"`
	Lookups    []schema.Table  `json:"lookups"`
	Conditions *condition.Tree `json:"conditions"`
	Targets    []UpdateTarget  `json:"targets"`
}

// Kind реализует Step
func (s *LookupStep) Kind() Kind { return KindLookup }

// Build проверяет шаг и формирует запрос
//
//	UPDATE `target`, `lookup` SET `target`.`c` = `lookup`.`s` WHERE <условие>
func (s *LookupStep) Build(opts BuildOptions) (*Descriptor, error) {
	step := opts.stepName()

	if s.Target.Name == "" {
		return nil, messages.New(messages.KindStructural, messages.TableRequired, step, "")
	}
	if len(s.Lookups) == 0 {
		return nil, messages.New(messages.KindStructural, messages.LookupTableRequired, step, "")
	}
	for _, t := range s.Lookups {
		if t.Name == "" {
			return nil, messages.New(messages.KindStructural, messages.LookupTableRequired, step, "")
		}
	}
	if s.Conditions.IsEmpty() {
		return nil, messages.New(messages.KindStructural, messages.ConditionsRequired, step, "")
	}
	if !s.Conditions.HasColumnComparison() {
		return nil, messages.New(messages.KindStructural, messages.JoinRequired, step, "")
	}

	where, err := condition.NewCompiler(condition.LookupDialect).Compile(s.Conditions, condition.Context{Step: step})
	if err != nil {
		return nil, err
	}

	decls, err := checkTargets(s.Targets, opts)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(s.Targets))
	for _, t := range s.Targets {
		if t.Source == nil || t.Source.IsZero() {
			return nil, messages.New(messages.KindStructural, messages.SourceColumnRequired, step, t.Label())
		}
		sets = append(sets, assignment(s.Target.Name, t.Name())+t.Source.Qualified())
	}

	tables := make([]string, 0, len(s.Lookups)+1)
	tables = append(tables, schema.QuoteIdent(s.Target.Name))
	for _, t := range s.Lookups {
		tables = append(tables, schema.QuoteIdent(t.Name))
	}

	meta, err := marshalMeta(s)
	if err != nil {
		return nil, err
	}

	desc := newDescriptor(KindLookup, opts)
	desc.Query = "UPDATE " + strings.Join(tables, ", ") +
		" SET " + strings.Join(sets, ", ") +
		" WHERE " + where
	desc.QueryMeta = meta
	desc.NewColumns = append(desc.NewColumns, decls...)
	desc.SourceTableID = s.Lookups[0].ID
	desc.DestinationTableID = s.Target.ID
	return desc, nil
}
