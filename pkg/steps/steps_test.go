package steps

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ruslano69/tdtp-steps/pkg/core/condition"
	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

var (
	invoices  = schema.Table{ID: "t-invoices", Name: "invoices", DisplayName: "Invoices"}
	orders    = schema.Table{ID: "t-orders", Name: "orders", DisplayName: "Orders"}
	customers = schema.Table{ID: "t-customers", Name: "customers", DisplayName: "Customers"}
)

func col(table, name string, dt schema.DataType) schema.ColumnRef {
	return schema.ColumnRef{
		TableName:         table,
		DisplayTableName:  table,
		ColumnName:        name,
		DisplayColumnName: name,
		DataType:          dt,
	}
}

func joinOn(a, b schema.ColumnRef) *condition.Condition {
	return &condition.Condition{Column: a, Operator: operators.EqualTo, CompareType: condition.CompareColumn, CompareField: b}
}

func mustBuild(t *testing.T, s Step, opts BuildOptions) *Descriptor {
	t.Helper()
	desc, err := s.Build(opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return desc
}

func wantError(t *testing.T, err error, template string) {
	t.Helper()
	var me *messages.Error
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want *messages.Error", err)
	}
	if me.Template != template {
		t.Errorf("error = %q, want template %q", me.Error(), template)
	}
}

func TestDelete_ClearSelected(t *testing.T) {
	s := &DeleteStep{
		Action: ClearSelected,
		Table:  invoices,
		Conditions: condition.NewTree(condition.And).Add(&condition.Condition{
			Column:   col("invoices", "amount", schema.TypeAmount),
			Operator: operators.GreaterThan,
			Value:    "100",
		}),
	}

	desc := mustBuild(t, s, BuildOptions{Sequence: 1})
	if want := "`amount` > \"100\""; desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
	if desc.Kind != KindDelete || desc.DestinationTableID != "t-invoices" {
		t.Errorf("descriptor = %+v", desc)
	}
	if desc.NewColumns == nil {
		t.Error("NewColumns = nil, want empty list")
	}
}

func TestDelete_Actions(t *testing.T) {
	name := col("invoices", "name", schema.TypeAlphanumeric)
	total := col("invoices", "total", schema.TypeAmount)
	id := col("invoices", "id", schema.TypeAlphanumeric)
	id.Primary = true
	protected := invoices
	protected.Primary = true

	tests := []struct {
		name     string
		step     *DeleteStep
		want     string
		template string
	}{
		{"clear all", &DeleteStep{Action: ClearAll, Table: invoices}, "", ""},
		{"drop table", &DeleteStep{Action: DropTable, Table: invoices}, "`invoices`", ""},
		{"drop columns", &DeleteStep{Action: DropColumns, Table: invoices, Columns: []schema.ColumnRef{name, total}}, "`name`, `total`", ""},
		{"clear columns", &DeleteStep{Action: ClearColumns, Table: invoices, Columns: []schema.ColumnRef{total}}, "`total`", ""},
		{"no action", &DeleteStep{Table: invoices}, "", messages.ActionRequired},
		{"no table", &DeleteStep{Action: ClearAll}, "", messages.TableRequired},
		{"protected table", &DeleteStep{Action: DropTable, Table: protected}, "", messages.ProtectedTable},
		{"no columns", &DeleteStep{Action: DropColumns, Table: invoices}, "", messages.ColumnsRequired},
		{"protected column", &DeleteStep{Action: ClearColumns, Table: invoices, Columns: []schema.ColumnRef{name, id}}, "", messages.ProtectedColumn},
		{"no conditions", &DeleteStep{Action: ClearSelected, Table: invoices}, "", messages.ConditionsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := tt.step.Build(BuildOptions{Step: "Delete rows"})
			if tt.template != "" {
				wantError(t, err, tt.template)
				if desc != nil {
					t.Errorf("descriptor = %+v, want nil", desc)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if desc.Query != tt.want {
				t.Errorf("Query = %q, want %q", desc.Query, tt.want)
			}
		})
	}
}

func TestDelete_NotEqualIsNullSafe(t *testing.T) {
	s := &DeleteStep{
		Action: ClearSelected,
		Table:  invoices,
		Conditions: condition.NewTree(condition.And).Add(&condition.Condition{
			Column: col("invoices", "status", schema.TypeAlphanumeric), Operator: operators.NotEqualTo, Value: "paid",
		}),
	}
	desc := mustBuild(t, s, BuildOptions{})
	if want := "!(`status` <=> \"paid\")"; desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
}

func lookupStep() *LookupStep {
	return &LookupStep{
		Target:  customers,
		Lookups: []schema.Table{orders},
		Conditions: condition.NewTree(condition.And).Add(
			joinOn(col("orders", "customer_id", schema.TypeAlphanumeric), col("customers", "id", schema.TypeAlphanumeric)),
		),
		Targets: []UpdateTarget{{
			Column: col("customers", "name", schema.TypeAlphanumeric),
			Source: &schema.ColumnRef{TableName: "orders", ColumnName: "name", DataType: schema.TypeAlphanumeric},
		}},
	}
}

func TestLookup_Join(t *testing.T) {
	desc := mustBuild(t, lookupStep(), BuildOptions{Sequence: 2})

	want := "UPDATE `customers`, `orders` SET `customers`.`name` = `orders`.`name` " +
		"WHERE IFNULL(`orders`.`customer_id`,'--NULL--') = IFNULL(`customers`.`id`,'--NULL--')"
	if desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
	if desc.SourceTableID != "t-orders" || desc.DestinationTableID != "t-customers" {
		t.Errorf("table ids = %q -> %q", desc.SourceTableID, desc.DestinationTableID)
	}
	if desc.Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", desc.Sequence)
	}
}

func TestLookup_NewColumn(t *testing.T) {
	s := lookupStep()
	s.Targets = append(s.Targets, UpdateTarget{
		NewColumn: &schema.ColumnDeclaration{ColumnName: "order_total", DisplayName: "Order total", DataType: schema.TypeAmount, DefaultValue: "0"},
		Source:    &schema.ColumnRef{TableName: "orders", ColumnName: "total", DataType: schema.TypeAmount},
	})

	desc := mustBuild(t, s, BuildOptions{})
	if !strings.Contains(desc.Query, "`customers`.`order_total` = `orders`.`total`") {
		t.Errorf("Query = %q, want new column assignment", desc.Query)
	}
	if len(desc.NewColumns) != 1 || desc.NewColumns[0].ColumnName != "order_total" || desc.NewColumns[0].DataType != schema.TypeAmount {
		t.Errorf("NewColumns = %+v", desc.NewColumns)
	}
}

func TestLookup_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *LookupStep)
		opts     BuildOptions
		template string
	}{
		{"no target", func(s *LookupStep) { s.Target = schema.Table{} }, BuildOptions{}, messages.TableRequired},
		{"no lookups", func(s *LookupStep) { s.Lookups = nil }, BuildOptions{}, messages.LookupTableRequired},
		{"no conditions", func(s *LookupStep) { s.Conditions = nil }, BuildOptions{}, messages.ConditionsRequired},
		{"no join", func(s *LookupStep) {
			s.Conditions = condition.NewTree(condition.And).Add(&condition.Condition{
				Column: col("orders", "name", schema.TypeAlphanumeric), Operator: operators.EqualTo, Value: "x",
			})
		}, BuildOptions{}, messages.JoinRequired},
		{"incomplete condition", func(s *LookupStep) {
			s.Conditions.Add(&condition.Condition{Column: col("orders", "name", schema.TypeAlphanumeric)})
		}, BuildOptions{}, messages.OperatorRequired},
		{"no targets", func(s *LookupStep) { s.Targets = nil }, BuildOptions{}, messages.TargetsRequired},
		{"unnamed target", func(s *LookupStep) { s.Targets[0].Column = schema.ColumnRef{} }, BuildOptions{}, messages.TargetColumnRequired},
		{"no source", func(s *LookupStep) { s.Targets[0].Source = nil }, BuildOptions{}, messages.SourceColumnRequired},
		{"duplicate target", func(s *LookupStep) { s.Targets = append(s.Targets, s.Targets[0]) }, BuildOptions{}, messages.DuplicateTarget},
		{"new column exists", func(s *LookupStep) {
			s.Targets[0] = UpdateTarget{NewColumn: &schema.ColumnDeclaration{ColumnName: "City", DataType: schema.TypeAlphanumeric}, Source: s.Targets[0].Source}
		}, BuildOptions{Columns: []schema.ColumnRef{col("customers", "city", schema.TypeAlphanumeric)}}, messages.ColumnExists},
		{"bad new column", func(s *LookupStep) {
			s.Targets[0] = UpdateTarget{NewColumn: &schema.ColumnDeclaration{ColumnName: "due", DataType: schema.TypeDate, DefaultValue: "soon"}, Source: s.Targets[0].Source}
		}, BuildOptions{}, messages.InvalidNewColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := lookupStep()
			tt.mutate(s)
			_, err := s.Build(tt.opts)
			wantError(t, err, tt.template)
		})
	}
}

func TestLookup_ErrorMessage(t *testing.T) {
	s := lookupStep()
	s.Targets[0].Source = nil

	_, err := s.Build(BuildOptions{Step: "Fill names"})
	if want := "Fill names: please select a lookup column for name"; err == nil || err.Error() != want {
		t.Errorf("error = %v, want %q", err, want)
	}
}

func price() schema.ColumnRef { return col("orders", "price", schema.TypeAmount) }

func formulaStep() *FormulaStep {
	return &FormulaStep{
		Mode:   SingleTable,
		Target: orders,
		Targets: []UpdateTarget{
			{Column: price(), Formula: formula.Formula{&formula.FieldRef{Column: price()}, &formula.Operator{Symbol: "*"}, &formula.Literal{Value: "1.10"}}},
			{
				NewColumn: &schema.ColumnDeclaration{ColumnName: "share", DataType: schema.TypeAmount},
				Formula:   formula.Formula{&formula.FieldRef{Column: price()}, &formula.Operator{Symbol: "/"}, &formula.AggregateFieldRef{Column: price(), Func: "SUM"}},
			},
		},
	}
}

func TestFormula_Single(t *testing.T) {
	desc := mustBuild(t, formulaStep(), BuildOptions{})

	want := "UPDATE `orders`, (SELECT SUM(`price`) AS placeholder01 FROM `orders`) t01 " +
		"SET `orders`.`price` = `orders`.`price` * 1.1, `orders`.`share` = `orders`.`price` / t01.placeholder01"
	if desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
	if len(desc.NewColumns) != 1 || desc.NewColumns[0].ColumnName != "share" {
		t.Errorf("NewColumns = %+v", desc.NewColumns)
	}
}

func TestFormula_AggregateAliasesPerTarget(t *testing.T) {
	s := formulaStep()
	for i := range s.Targets {
		s.Targets[i].Formula = formula.Formula{&formula.AggregateFieldRef{Column: price(), Func: "MAX"}}
	}

	desc := mustBuild(t, s, BuildOptions{})
	for _, alias := range []string{") t00", ") t01", "placeholder00", "placeholder01"} {
		if !strings.Contains(desc.Query, alias) {
			t.Errorf("Query = %q, want %q", desc.Query, alias)
		}
	}
}

func TestFormula_MultiTable(t *testing.T) {
	s := formulaStep()
	s.Mode = MultiTable
	s.Tables = []schema.Table{customers}
	s.Targets = s.Targets[:1]
	s.Conditions = condition.NewTree(condition.And).
		Add(joinOn(col("orders", "customer_id", schema.TypeAlphanumeric), col("customers", "id", schema.TypeAlphanumeric))).
		Add(&condition.Condition{Column: col("customers", "region", schema.TypeAlphanumeric), Operator: operators.NotEqualTo, Value: "EU"})

	desc := mustBuild(t, s, BuildOptions{})
	want := "UPDATE `orders`, `customers` SET `orders`.`price` = `orders`.`price` * 1.1 " +
		"WHERE `orders`.`customer_id` = `customers`.`id` AND `customers`.`region` != \"EU\""
	if desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
	if desc.SourceTableID != "t-customers" {
		t.Errorf("SourceTableID = %q, want t-customers", desc.SourceTableID)
	}
}

func TestFormula_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *FormulaStep)
		template string
	}{
		{"no target", func(s *FormulaStep) { s.Target = schema.Table{} }, messages.TableRequired},
		{"multi without tables", func(s *FormulaStep) { s.Mode = MultiTable }, messages.LookupTableRequired},
		{"multi without join", func(s *FormulaStep) { s.Mode = MultiTable; s.Tables = []schema.Table{customers} }, messages.JoinRequired},
		{"empty formula", func(s *FormulaStep) { s.Targets[0].Formula = nil }, messages.FormulaRequired},
		{"broken formula", func(s *FormulaStep) {
			s.Targets[0].Formula = formula.Formula{&formula.Bracket{Symbol: "("}, &formula.FieldRef{Column: price()}}
		}, messages.FormulaInvalid},
		{"bad literal value", func(s *FormulaStep) { s.Targets[0].Formula = nil; s.Targets[0].Value = "cheap" }, messages.InvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := formulaStep()
			tt.mutate(s)
			_, err := s.Build(BuildOptions{})
			wantError(t, err, tt.template)
		})
	}
}

func TestFormula_LiteralValue(t *testing.T) {
	s := formulaStep()
	s.Targets = s.Targets[:1]
	s.Targets[0].Formula = nil
	s.Targets[0].Value = "9.99"

	desc := mustBuild(t, s, BuildOptions{})
	if want := "UPDATE `orders` SET `orders`.`price` = \"9.99\""; desc.Query != want {
		t.Errorf("Query = %q, want %q", desc.Query, want)
	}
}

func translateStep() *TranslateStep {
	return &TranslateStep{
		Table:          invoices,
		CompareColumns: []schema.ColumnRef{col("invoices", "country", schema.TypeAlphanumeric)},
		UpdateColumns: []schema.ColumnRef{
			col("invoices", "region", schema.TypeAlphanumeric),
			col("invoices", "rate", schema.TypeAmount),
		},
		Rules: []Rule{
			{Cells: []Cell{{Value: "DE"}, {Value: "EU"}, {Value: "0.19"}}},
			{Cells: []Cell{{Value: "US"}, {Value: "NA"}, {}}},
			{Cells: []Cell{{Value: "CH"}, {}, {Formula: formula.Formula{
				&formula.FieldRef{Column: col("invoices", "rate", schema.TypeAmount)}, &formula.Operator{Symbol: "+"}, &formula.Literal{Value: "0.5"},
			}}}},
		},
	}
}

func TestTranslate_Rules(t *testing.T) {
	desc := mustBuild(t, translateStep(), BuildOptions{})

	want := []string{
		"UPDATE `invoices` SET `invoices`.`region` = \"EU\", `invoices`.`rate` = \"0.19\" WHERE `invoices`.`country` = \"DE\"",
		"UPDATE `invoices` SET `invoices`.`region` = \"NA\" WHERE `invoices`.`country` = \"US\"",
		"UPDATE `invoices` SET `invoices`.`rate` = `invoices`.`rate` + 0.5 WHERE `invoices`.`country` = \"CH\"",
	}
	if got := strings.Split(desc.Query, StatementSeparator); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("statements =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}

	var meta translateMeta
	if err := json.Unmarshal(desc.QueryMeta, &meta); err != nil {
		t.Fatalf("Unmarshal(meta) error = %v", err)
	}
	if len(meta.Statements) != 3 {
		t.Errorf("meta statements = %d, want 3", len(meta.Statements))
	}
	if meta.Roles["country"] != RoleCompare || meta.Roles["rate"] != RoleUpdate {
		t.Errorf("meta roles = %v", meta.Roles)
	}
}

func TestTranslate_AggregatePosition(t *testing.T) {
	s := translateStep()
	s.Rules = s.Rules[:2]
	s.Rules[1].Cells[2] = Cell{Formula: formula.Formula{&formula.AggregateFieldRef{Column: col("invoices", "rate", schema.TypeAmount), Func: "AVG"}}}

	desc := mustBuild(t, s, BuildOptions{})
	if !strings.Contains(desc.Query, "UPDATE `invoices`, (SELECT AVG(`rate`) AS placeholder11 FROM `invoices`) t11 SET") {
		t.Errorf("Query = %q, want derived table at rule 1 column 1", desc.Query)
	}
}

func TestTranslate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *TranslateStep)
		template string
		field    string
	}{
		{"no table", func(s *TranslateStep) { s.Table = schema.Table{} }, messages.TableRequired, ""},
		{"no compare columns", func(s *TranslateStep) { s.CompareColumns = nil }, messages.CompareColumnsRequired, ""},
		{"no update columns", func(s *TranslateStep) { s.UpdateColumns = nil }, messages.UpdateColumnsRequired, ""},
		{"role conflict", func(s *TranslateStep) { s.UpdateColumns = append(s.UpdateColumns, s.CompareColumns[0]) }, messages.ColumnRoleConflict, "country"},
		{"no rules", func(s *TranslateStep) { s.Rules = nil }, messages.RulesRequired, ""},
		{"short rule", func(s *TranslateStep) { s.Rules[1].Cells = s.Rules[1].Cells[:2] }, messages.RuleShape, "2"},
		{"empty compare value", func(s *TranslateStep) { s.Rules[2].Cells[0].Value = "" }, messages.RuleValueRequired, "3"},
		{"empty rule", func(s *TranslateStep) { s.Rules[1].Cells[1].Value = "" }, messages.RuleEmpty, "2"},
		{"bad amount", func(s *TranslateStep) { s.Rules[0].Cells[2].Value = "many" }, messages.InvalidValue, "rate"},
		{"formula on text column", func(s *TranslateStep) {
			s.Rules[0].Cells[1] = Cell{Formula: formula.Formula{&formula.Literal{Value: "1"}}}
		}, messages.FormulaInvalid, "region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := translateStep()
			tt.mutate(s)
			_, err := s.Build(BuildOptions{})
			wantError(t, err, tt.template)
			var me *messages.Error
			if errors.As(err, &me) && me.Field != tt.field {
				t.Errorf("Field = %q, want %q", me.Field, tt.field)
			}
		})
	}
}

func TestBuildOptions_DefaultStepName(t *testing.T) {
	_, err := (&DeleteStep{}).Build(BuildOptions{Sequence: 4})
	if want := "Step 4: please select what to delete"; err == nil || err.Error() != want {
		t.Errorf("error = %v, want %q", err, want)
	}
}
