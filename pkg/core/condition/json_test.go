package condition

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

func TestTreeJSON_RecompilesIdentically(t *testing.T) {
	amount := column("invoices", "amount", schema.TypeAmount)
	due := column("invoices", "due", schema.TypeDate)
	name := column("invoices", "name", schema.TypeAlphanumeric)
	other := column("customers", "name", schema.TypeAlphanumeric)

	tree := &Tree{Relation: Or, Data: []Node{
		cond(amount, operators.GreaterThan, "100"),
		&Group{Relation: And, Data: []Node{
			&Condition{Column: due, Operator: operators.Between, Value: "2024-01-01", ValueTo: "2024-01-31"},
			cond(name, operators.IsNull, ""),
			&Condition{Column: name, Operator: operators.NotEqualTo, CompareType: CompareColumn, CompareField: other},
		}},
	}}

	raw, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Tree
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, d := range []Dialect{DeleteDialect, LookupDialect, FormulaDialect} {
		want := compile(t, d, tree)
		got := compile(t, d, &decoded)
		if got != want {
			t.Errorf("recompiled text differs:\n got: %s\nwant: %s", got, want)
		}
	}
}

func TestConditionJSON_ValueShapes(t *testing.T) {
	amount := column("t", "amount", schema.TypeAmount)

	tests := []struct {
		name string
		cond *Condition
		want string
	}{
		{"scalar", cond(amount, operators.EqualTo, "5"), `"value":"5"`},
		{"range", &Condition{Column: amount, Operator: operators.Between, Value: "1", ValueTo: "2"}, `"value":["1","2"]`},
		{"flag", cond(amount, operators.IsNull, ""), `"value":true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.cond)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if !strings.Contains(string(raw), tt.want) {
				t.Errorf("JSON %s does not contain %s", raw, tt.want)
			}
		})
	}
}

func TestTreeJSON_UntaggedNodes(t *testing.T) {
	raw := `{"relation":"AND","data":[
		{"column":{"table_name":"t","column_name":"a","data_type":"amount"},"operator":"lessThan","value":"3"},
		{"relation":"OR","data":[
			{"column":{"table_name":"t","column_name":"b"},"operator":"equalTo","value":"x"}
		]}
	]}`

	var tree Tree
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	got := compile(t, DeleteDialect, &tree)
	want := "`a` < \"3\" AND (`b` = \"x\")"
	if got != want {
		t.Errorf("Compile() = %s, want %s", got, want)
	}
}

func TestTreeJSON_IncompleteNodeSurvives(t *testing.T) {
	tree := NewTree(And).Add(&Condition{Column: column("t", "a", schema.TypeAmount)})

	raw, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Tree
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded.Conditions()) != 1 {
		t.Fatalf("incomplete node lost in round trip")
	}
	if _, err := NewCompiler(DeleteDialect).Compile(&decoded, Context{Step: "S"}); err == nil {
		t.Error("incomplete node must still fail compilation")
	}
}

func TestTreeJSON_UnknownNodeType(t *testing.T) {
	var tree Tree
	err := json.Unmarshal([]byte(`{"relation":"AND","data":[{"type":"banana"}]}`), &tree)
	if err == nil {
		t.Error("expected error for unknown node type")
	}
}
