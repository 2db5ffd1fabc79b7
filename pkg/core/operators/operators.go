// Package operators содержит статический каталог операторов сравнения,
// допустимых для каждого типа данных колонки.
package operators

import "github.com/ruslano69/tdtp-steps/pkg/core/schema"

// Operator - оператор сравнения в условии
type Operator string

const (
	EqualTo     Operator = "equalTo"
	NotEqualTo  Operator = "notEqualTo"
	Contains    Operator = "contains"
	NotContains Operator = "notContains"
	Between     Operator = "between"
	GreaterThan Operator = "greaterThan"
	LessThan    Operator = "lessThan"
	IsNull      Operator = "isNull"
	IsNotNull   Operator = "isNotNull"
)

// Option - пункт выпадающего списка операторов
type Option struct {
	Operator Operator `json:"operator"`
	Label    string   `json:"label"`
}

var catalog = map[schema.DataType][]Option{
	schema.TypeAlphanumeric: {
		{EqualTo, "Equal To"},
		{NotEqualTo, "Not Equal To"},
		{Contains, "Contains"},
		{NotContains, "Does Not Contain"},
		{IsNull, "Is Empty"},
		{IsNotNull, "Is Not Empty"},
	},
	schema.TypeAmount: {
		{EqualTo, "Equal To"},
		{NotEqualTo, "Not Equal To"},
		{GreaterThan, "Greater Than"},
		{LessThan, "Less Than"},
		{Between, "Between"},
		{IsNull, "Is Empty"},
		{IsNotNull, "Is Not Empty"},
	},
	schema.TypeDate: {
		{EqualTo, "On"},
		{NotEqualTo, "Not On"},
		{GreaterThan, "After"},
		{LessThan, "Before"},
		{Between, "Between"},
		{IsNull, "Is Empty"},
		{IsNotNull, "Is Not Empty"},
	},
}

// OperatorsFor возвращает операторы для типа данных.
// Для неизвестного типа возвращается пустой список.
func OperatorsFor(t schema.DataType) []Option {
	opts := catalog[t]
	out := make([]Option, len(opts))
	copy(out, opts)
	return out
}

// Allowed проверяет, входит ли оператор в каталог для типа данных
func Allowed(t schema.DataType, op Operator) bool {
	for _, opt := range catalog[t] {
		if opt.Operator == op {
			return true
		}
	}
	return false
}

// Label возвращает подпись оператора для типа данных
func Label(t schema.DataType, op Operator) string {
	for _, opt := range catalog[t] {
		if opt.Operator == op {
			return opt.Label
		}
	}
	return string(op)
}

// NeedsValue сообщает, требует ли оператор операнд
func (op Operator) NeedsValue() bool {
	return op != IsNull && op != IsNotNull
}

// IsRange сообщает, что оператор принимает пару границ
func (op Operator) IsRange() bool {
	return op == Between
}
