package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayouts - форматы дат, которые принимаются во вводе пользователя
var DateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// TypedValue представляет типизированное значение
type TypedValue struct {
	Type        DataType
	RawValue    string
	IsNull      bool
	AmountValue *decimal.Decimal
	TimeValue   *time.Time
	StringValue *string
}

// Converter разбирает строковые значения в соответствии с типом колонки
type Converter struct{}

// NewConverter создает новый конвертер
func NewConverter() *Converter {
	return &Converter{}
}

// ParseValue парсит строковое значение. Пустая строка - NULL для любого типа.
func (c *Converter) ParseValue(rawValue string, t DataType) (*TypedValue, error) {
	tv := &TypedValue{Type: t, RawValue: rawValue}

	if rawValue == "" {
		tv.IsNull = true
		return tv, nil
	}

	switch t {
	case TypeAmount:
		d, err := decimal.NewFromString(strings.TrimSpace(rawValue))
		if err != nil {
			return nil, fmt.Errorf("invalid amount value: %s", rawValue)
		}
		tv.AmountValue = &d
	case TypeDate:
		for _, layout := range DateLayouts {
			if ts, err := time.Parse(layout, strings.TrimSpace(rawValue)); err == nil {
				tv.TimeValue = &ts
				return tv, nil
			}
		}
		return nil, fmt.Errorf("invalid date value: %s (expected YYYY-MM-DD)", rawValue)
	case TypeAlphanumeric, "":
		s := rawValue
		tv.StringValue = &s
	default:
		return nil, fmt.Errorf("unsupported data type: %s", t)
	}

	return tv, nil
}
