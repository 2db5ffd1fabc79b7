package xlsx

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

var (
	orders    = schema.Table{ID: "t-orders", Name: "orders", DisplayName: "Orders"}
	region    = schema.ColumnRef{TableName: "orders", ColumnName: "region", DisplayColumnName: "Region", DataType: schema.TypeAlphanumeric}
	validFrom = schema.ColumnRef{TableName: "orders", ColumnName: "valid_from", DataType: schema.TypeDate}
	rate      = schema.ColumnRef{TableName: "orders", ColumnName: "rate", DataType: schema.TypeAmount}
	note      = schema.ColumnRef{TableName: "orders", ColumnName: "note", DataType: schema.TypeAlphanumeric}
	price     = schema.ColumnRef{TableName: "orders", ColumnName: "price", DataType: schema.TypeAmount}
	quantity  = schema.ColumnRef{TableName: "items", ColumnName: "quantity", DataType: schema.TypeAmount}

	catalogColumns = []schema.ColumnRef{region, validFrom, rate, note, price, quantity}
)

func rateStep() *steps.TranslateStep {
	return &steps.TranslateStep{
		Table:          orders,
		CompareColumns: []schema.ColumnRef{region, validFrom},
		UpdateColumns:  []schema.ColumnRef{rate, note},
		Rules: []steps.Rule{
			{Cells: []steps.Cell{{Value: "EU"}, {Value: "2024-01-01"}, {Value: "0.2"}, {Value: "vat"}}},
			{Cells: []steps.Cell{
				{Value: "US"}, {Value: "2024-03-15"},
				{Formula: formula.Formula{&formula.FieldRef{Column: price}, &formula.Operator{Symbol: "*"}, &formula.Literal{Value: "2"}}},
				{},
			}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	step := rateStep()

	var buf bytes.Buffer
	if err := WriteXLSX(step, &buf, ""); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}

	got, err := ReadXLSX(&buf, "", ImportOptions{Table: orders, Columns: catalogColumns})
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}

	if !reflect.DeepEqual(got.CompareColumns, step.CompareColumns) {
		t.Errorf("CompareColumns = %+v, want %+v", got.CompareColumns, step.CompareColumns)
	}
	if !reflect.DeepEqual(got.UpdateColumns, step.UpdateColumns) {
		t.Errorf("UpdateColumns = %+v, want %+v", got.UpdateColumns, step.UpdateColumns)
	}
	if !reflect.DeepEqual(got.Rules, step.Rules) {
		t.Errorf("Rules = %+v, want %+v", got.Rules, step.Rules)
	}

	desc, err := got.Build(steps.BuildOptions{Sequence: 1})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if n := len(strings.Split(desc.Query, steps.StatementSeparator)); n != 2 {
		t.Errorf("statements = %d, want 2", n)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.xlsx")
	if err := ToXLSX(rateStep(), path, "Rates"); err != nil {
		t.Fatalf("ToXLSX() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	header, _ := f.GetCellValue("Rates", "A1")
	formulaCell, _ := f.GetCellValue("Rates", "C3")
	f.Close()

	if header != "region (alphanumeric) *" {
		t.Errorf("A1 = %q, want %q", header, "region (alphanumeric) *")
	}
	if formulaCell != "=`orders`.`price` * 2" {
		t.Errorf("C3 = %q, want %q", formulaCell, "=`orders`.`price` * 2")
	}

	got, err := FromXLSX(path, "Rates", ImportOptions{Table: orders, Columns: catalogColumns})
	if err != nil {
		t.Fatalf("FromXLSX() error = %v", err)
	}
	if len(got.Rules) != 2 {
		t.Errorf("rules = %d, want 2", len(got.Rules))
	}

	if _, err := FromXLSX(path, "Missing", ImportOptions{}); err == nil {
		t.Error("FromXLSX() on missing sheet error = nil")
	}
}

func TestReadXLSX_UnknownColumns(t *testing.T) {
	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"code (varchar) *", "amount (DECIMAL)"})
	f.SetSheetRow("Sheet1", "A2", &[]any{"X1", 15})
	f.SetSheetRow("Sheet1", "A3", &[]any{"", ""})
	f.SetSheetRow("Sheet1", "A4", &[]any{"X2", "=SUM(`quantity`) / 2"})
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	got, err := ReadXLSX(&buf, "", ImportOptions{Table: orders, Columns: catalogColumns})
	if err != nil {
		t.Fatalf("ReadXLSX() error = %v", err)
	}

	want := []schema.ColumnRef{{TableName: "orders", DisplayTableName: "Orders", ColumnName: "code", DataType: schema.TypeAlphanumeric}}
	if !reflect.DeepEqual(got.CompareColumns, want) {
		t.Errorf("CompareColumns = %+v, want %+v", got.CompareColumns, want)
	}
	if len(got.UpdateColumns) != 1 || got.UpdateColumns[0].DataType != schema.TypeAmount {
		t.Errorf("UpdateColumns = %+v", got.UpdateColumns)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("rules = %d, want 2 (blank rows skipped)", len(got.Rules))
	}
	if v := got.Rules[0].Cells[1].Value; v != "15" {
		t.Errorf("amount cell = %q, want %q", v, "15")
	}
	agg, ok := got.Rules[1].Cells[1].Formula[0].(*formula.AggregateFieldRef)
	if !ok || agg.Func != "SUM" || agg.Column != quantity {
		t.Errorf("formula[0] = %#v, want SUM(quantity)", got.Rules[1].Cells[1].Formula[0])
	}
}

func TestReadXLSX_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		want string
	}{
		{"header only", [][]any{{"a (alphanumeric) *"}}, "at least one rule row"},
		{"compare after update", [][]any{{"a (amount)", "b (alphanumeric) *"}, {"1", "x"}}, "after update columns"},
		{"unknown formula column", [][]any{{"a (alphanumeric) *", "rate (amount)"}, {"x", "=`missing` + 1"}}, "unknown column missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := excelize.NewFile()
			for i, row := range tt.rows {
				cell, _ := excelize.CoordinatesToCellName(1, i+1)
				f.SetSheetRow("Sheet1", cell, &row)
			}
			var buf bytes.Buffer
			f.WriteTo(&buf)

			_, err := ReadXLSX(&buf, "", ImportOptions{Table: orders, Columns: catalogColumns})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadXLSX() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestParseFormula(t *testing.T) {
	resolve := resolver(ImportOptions{Table: orders, Columns: catalogColumns})

	tests := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{"`orders`.`price` * 2", "`orders`.`price` * 2", false},
		{"(`price` + 1.5) / avg(`quantity`)", "( `orders`.`price` + 1.5 ) / AVG(`quantity`)", false},
		{"`items`.`quantity`-`orders`.`rate`", "`items`.`quantity` - `orders`.`rate`", false},
		{"", "", true},
		{"`price", "", true},
		{"SUM `price`", "", true},
		{"`price` % 2", "", true},
		{"`orders`.`missing`", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := parseFormula(tt.text, resolve)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFormula() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if s := strings.TrimPrefix(formatFormula(got), "="); s != tt.want {
				t.Errorf("parseFormula() = %q, want %q", s, tt.want)
			}
		})
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		header  string
		name    string
		typ     schema.DataType
		compare bool
	}{
		{"region (alphanumeric) *", "region", schema.TypeAlphanumeric, true},
		{"rate (amount)", "rate", schema.TypeAmount, false},
		{"created (DATETIME)", "created", schema.TypeDate, false},
		{"plain", "plain", schema.TypeAlphanumeric, false},
	}

	for _, tt := range tests {
		name, typ, compare := parseHeader(tt.header)
		if name != tt.name || typ != tt.typ || compare != tt.compare {
			t.Errorf("parseHeader(%q) = %q, %q, %v, want %q, %q, %v", tt.header, name, typ, compare, tt.name, tt.typ, tt.compare)
		}
	}
}

func TestColumnName(t *testing.T) {
	for col, want := range map[int]string{1: "A", 26: "Z", 27: "AA", 53: "BA"} {
		if got := columnName(col); got != want {
			t.Errorf("columnName(%d) = %q, want %q", col, got, want)
		}
	}
}
