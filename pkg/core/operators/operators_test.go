package operators

import (
	"testing"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

func TestOperatorsFor(t *testing.T) {
	tests := []struct {
		dataType schema.DataType
		count    int
	}{
		{schema.TypeAlphanumeric, 6},
		{schema.TypeAmount, 7},
		{schema.TypeDate, 7},
		{schema.DataType("blob"), 0},
	}

	for _, tt := range tests {
		got := OperatorsFor(tt.dataType)
		if len(got) != tt.count {
			t.Errorf("OperatorsFor(%s) returned %d options, want %d", tt.dataType, len(got), tt.count)
		}
	}
}

func TestOperatorsForReturnsCopy(t *testing.T) {
	opts := OperatorsFor(schema.TypeAmount)
	opts[0].Label = "changed"

	if OperatorsFor(schema.TypeAmount)[0].Label == "changed" {
		t.Error("OperatorsFor must not expose the catalog table")
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		dataType schema.DataType
		op       Operator
		want     bool
	}{
		{schema.TypeAlphanumeric, Contains, true},
		{schema.TypeAlphanumeric, Between, false},
		{schema.TypeAlphanumeric, GreaterThan, false},
		{schema.TypeAmount, Between, true},
		{schema.TypeAmount, Contains, false},
		{schema.TypeDate, LessThan, true},
		{schema.TypeDate, NotContains, false},
		{schema.DataType("unknown"), EqualTo, false},
	}

	for _, tt := range tests {
		if got := Allowed(tt.dataType, tt.op); got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.dataType, tt.op, got, tt.want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label(schema.TypeDate, GreaterThan); got != "After" {
		t.Errorf("Label(date, greaterThan) = %s, want After", got)
	}
	if got := Label(schema.TypeAlphanumeric, Between); got != "between" {
		t.Errorf("Label for unknown pair = %s, want raw operator", got)
	}
}
