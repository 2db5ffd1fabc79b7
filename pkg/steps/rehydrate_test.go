package steps

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// mapLookup - каталог в памяти: ключ "table.column"
type mapLookup map[string]schema.ColumnRef

func (m mapLookup) Column(table, column string) (schema.ColumnRef, bool) {
	ref, ok := m[table+"."+column]
	return ref, ok
}

func catalogOf(refs ...schema.ColumnRef) mapLookup {
	m := make(mapLookup, len(refs))
	for _, ref := range refs {
		m[ref.TableName+"."+ref.ColumnName] = ref
	}
	return m
}

func fullCatalog() mapLookup {
	return catalogOf(
		col("invoices", "amount", schema.TypeAmount),
		col("invoices", "status", schema.TypeAlphanumeric),
		col("invoices", "issued", schema.TypeDate),
		col("invoices", "country", schema.TypeAlphanumeric),
		col("invoices", "region", schema.TypeAlphanumeric),
		col("invoices", "rate", schema.TypeAmount),
		col("orders", "customer_id", schema.TypeAlphanumeric),
		col("orders", "name", schema.TypeAlphanumeric),
		col("orders", "price", schema.TypeAmount),
		col("customers", "id", schema.TypeAlphanumeric),
		col("customers", "name", schema.TypeAlphanumeric),
		col("customers", "region", schema.TypeAlphanumeric),
	)
}

func TestRehydrate_RoundTrip(t *testing.T) {
	nested := condition.NewTree(condition.And).
		Add(&condition.Condition{Column: col("invoices", "amount", schema.TypeAmount), Operator: operators.Between, Value: "10", ValueTo: "20"}).
		Add(&condition.Group{Relation: condition.Or, Data: []condition.Node{
			&condition.Condition{Column: col("invoices", "status", schema.TypeAlphanumeric), Operator: operators.IsNull},
			&condition.Condition{Column: col("invoices", "issued", schema.TypeDate), Operator: operators.GreaterThan, Value: "2024-01-01"},
			&condition.Condition{Column: col("invoices", "status", schema.TypeAlphanumeric), Operator: operators.NotContains, Value: `"draft"`},
		}})

	multi := formulaStep()
	multi.Mode = MultiTable
	multi.Tables = []schema.Table{customers}
	multi.Conditions = condition.NewTree(condition.And).
		Add(joinOn(col("orders", "customer_id", schema.TypeAlphanumeric), col("customers", "id", schema.TypeAlphanumeric)))

	lookup := lookupStep()
	lookup.Targets[0].Source = &schema.ColumnRef{TableName: "orders", DisplayTableName: "orders", ColumnName: "name", DisplayColumnName: "name", DataType: schema.TypeAlphanumeric}

	tests := []struct {
		name string
		step Step
	}{
		{"delete selected", &DeleteStep{Action: ClearSelected, Table: invoices, Conditions: nested}},
		{"delete columns", &DeleteStep{Action: DropColumns, Table: invoices, Columns: []schema.ColumnRef{col("invoices", "status", schema.TypeAlphanumeric)}}},
		{"lookup", lookup},
		{"formula single", formulaStep()},
		{"formula multi", multi},
		{"translate", translateStep()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := BuildOptions{Step: "Step", Sequence: 3}
			desc := mustBuild(t, tt.step, opts)

			// дескриптор проходит через хранилище
			data, err := json.Marshal(desc)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var stored Descriptor
			if err := json.Unmarshal(data, &stored); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}

			r, err := Rehydrate(&stored, fullCatalog(), "")
			if err != nil {
				t.Fatalf("Rehydrate() error = %v", err)
			}
			if len(r.Warnings) != 0 {
				t.Errorf("Warnings = %+v, want none", r.Warnings)
			}

			again := mustBuild(t, r.Step, opts)
			if again.Query != desc.Query {
				t.Errorf("rebuilt Query =\n%q\nwant\n%q", again.Query, desc.Query)
			}
			if len(again.NewColumns) != len(desc.NewColumns) {
				t.Errorf("rebuilt NewColumns = %+v, want %+v", again.NewColumns, desc.NewColumns)
			}
		})
	}
}

func TestRehydrate_Parts(t *testing.T) {
	desc := mustBuild(t, formulaStep(), BuildOptions{})

	r, err := Rehydrate(desc, nil, "")
	if err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}
	if r.Kind != KindFormula {
		t.Errorf("Kind = %q, want %q", r.Kind, KindFormula)
	}
	if len(r.Targets) != 2 || len(r.Formulas) != 2 {
		t.Fatalf("Targets = %d, Formulas = %d, want 2 and 2", len(r.Targets), len(r.Formulas))
	}
	if _, ok := r.Formulas[1][2].(*formula.AggregateFieldRef); !ok {
		t.Errorf("Formulas[1][2] = %T, want *formula.AggregateFieldRef", r.Formulas[1][2])
	}
}

func TestRehydrate_SchemaDrift(t *testing.T) {
	s := &DeleteStep{
		Action: ClearSelected,
		Table:  invoices,
		Conditions: condition.NewTree(condition.Or).
			Add(&condition.Condition{Column: col("invoices", "amount", schema.TypeAmount), Operator: operators.GreaterThan, Value: "1"}).
			Add(&condition.Condition{Column: col("invoices", "legacy_code", schema.TypeAlphanumeric), Operator: operators.EqualTo, Value: "X"}).
			Add(&condition.Condition{Column: col("invoices", "legacy_code", schema.TypeAlphanumeric), Operator: operators.IsNull}),
	}
	desc := mustBuild(t, s, BuildOptions{})

	r, err := Rehydrate(desc, fullCatalog(), "Cleanup")
	if err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}

	if len(r.Warnings) != 1 {
		t.Fatalf("Warnings = %+v, want one", r.Warnings)
	}
	w := r.Warnings[0]
	if w.Table != "invoices" || w.Column != "legacy_code" {
		t.Errorf("Warning = %+v", w)
	}
	if want := "Cleanup: column legacy_code not found"; w.Message != want {
		t.Errorf("Message = %q, want %q", w.Message, want)
	}

	// узлы с пропавшей колонкой остаются в дереве
	if n := len(r.Conditions.Conditions()); n != 3 {
		t.Errorf("conditions = %d, want 3", n)
	}
}

func TestRehydrate_RefreshesColumns(t *testing.T) {
	s := &DeleteStep{
		Action: ClearSelected,
		Table:  invoices,
		Conditions: condition.NewTree(condition.And).
			Add(&condition.Condition{Column: col("invoices", "status", schema.TypeAlphanumeric), Operator: operators.EqualTo, Value: "new"}),
	}
	desc := mustBuild(t, s, BuildOptions{})

	renamed := col("invoices", "status", schema.TypeAlphanumeric)
	renamed.DisplayColumnName = "State"

	r, err := Rehydrate(desc, catalogOf(renamed), "")
	if err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}
	got := r.Conditions.Conditions()[0].Column.DisplayColumnName
	if got != "State" {
		t.Errorf("DisplayColumnName = %q, want State", got)
	}
}

func TestRehydrate_Errors(t *testing.T) {
	if _, err := Rehydrate(nil, nil, ""); err == nil {
		t.Error("Rehydrate(nil) error = nil, want error")
	}

	_, err := Rehydrate(&Descriptor{Kind: "chart"}, nil, "")
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("error = %v, want ErrUnknownKind", err)
	}

	_, err = Rehydrate(&Descriptor{Kind: KindLookup, QueryMeta: json.RawMessage(`{"targets":"x"}`)}, nil, "")
	if err == nil || !strings.Contains(err.Error(), "query meta") {
		t.Errorf("error = %v, want decode error", err)
	}
}

func TestDenormalize(t *testing.T) {
	tree := condition.NewTree(condition.And).
		Add(joinOn(col("orders", "customer_id", schema.TypeAlphanumeric), col("customers", "id", schema.TypeAlphanumeric))).
		Add(&condition.Condition{Column: col("customers", "region", schema.TypeAlphanumeric)})

	got := Denormalize(tree, []schema.Table{orders, customers})
	if len(got) != 2 {
		t.Fatalf("Denormalize() = %d conditions, want 2", len(got))
	}
	if got[0].Column != "Orders.customer_id" || got[0].CompareField != "Customers.id" || got[0].CompareType != "Column" {
		t.Errorf("join = %+v", got[0])
	}
	if got[0].OperatorLabel == "" {
		t.Error("OperatorLabel is empty")
	}
	if !got[1].Incomplete {
		t.Errorf("condition without operator = %+v, want Incomplete", got[1])
	}
}

func TestRebind(t *testing.T) {
	tree := condition.NewTree(condition.And).
		Add(joinOn(col("orders", "customer_id", schema.TypeAlphanumeric), col("customers", "id", schema.TypeAlphanumeric))).
		Add(&condition.Group{Relation: condition.Or, Data: []condition.Node{
			&condition.Condition{Column: col("orders", "price", schema.TypeAmount), Operator: operators.GreaterThan, Value: "5"},
		}})

	dropped := Rebind(tree, []schema.Table{orders}, fullCatalog())

	if len(dropped) != 1 || dropped[0].Column != "Orders.customer_id" {
		t.Errorf("dropped = %+v, want the join condition", dropped)
	}
	if n := len(tree.Conditions()); n != 1 {
		t.Fatalf("remaining conditions = %d, want 1", n)
	}
	text, err := condition.NewCompiler(condition.FormulaDialect).Compile(tree, condition.Context{Step: "Step"})
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if want := "(`orders`.`price` > \"5\")"; text != want {
		t.Errorf("Compile() = %q, want %q", text, want)
	}
}

func TestRehydrated_Reselect(t *testing.T) {
	s := lookupStep()
	s.Conditions.Add(&condition.Condition{Column: col("customers", "region", schema.TypeAlphanumeric), Operator: operators.EqualTo, Value: "EU"})
	desc := mustBuild(t, s, BuildOptions{Sequence: 1})

	r, err := Rehydrate(desc, fullCatalog(), "")
	if err != nil {
		t.Fatalf("Rehydrate() error = %v", err)
	}
	if len(r.Display) != 2 {
		t.Fatalf("Display = %+v, want 2 conditions", r.Display)
	}

	if err := r.Reselect([]schema.Table{customers}, fullCatalog()); err != nil {
		t.Fatalf("Reselect() error = %v", err)
	}
	if len(r.Dropped) != 1 || r.Dropped[0].CompareType != "Column" {
		t.Errorf("Dropped = %+v, want the join condition", r.Dropped)
	}
	if len(r.Display) != 1 || r.Display[0].Column != "Customers.region" {
		t.Errorf("Display = %+v, want Customers.region", r.Display)
	}
	step := r.Step.(*LookupStep)
	if len(step.Lookups) != 0 {
		t.Errorf("Lookups = %+v, want none", step.Lookups)
	}
	if n := len(step.Conditions.Conditions()); n != 1 {
		t.Errorf("step conditions = %d, want 1", n)
	}

	del, err := Rehydrate(mustBuild(t, &DeleteStep{Action: ClearAll, Table: invoices}, BuildOptions{Sequence: 1}), nil, "")
	if err != nil {
		t.Fatalf("Rehydrate(delete) error = %v", err)
	}
	if err := del.Reselect([]schema.Table{invoices}, nil); err == nil {
		t.Error("Reselect(delete) error = nil, want error")
	}
}
