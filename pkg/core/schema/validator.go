package schema

import (
	"fmt"
	"strings"
)

// Validator валидирует объявления новых колонок и значения ячеек
type Validator struct {
	converter *Converter
}

// NewValidator создает новый валидатор
func NewValidator() *Validator {
	return &Validator{
		converter: NewConverter(),
	}
}

// ValidateDeclarations проверяет объявления новых колонок:
// непустое имя, допустимый тип, отсутствие дублей между собой
// и с уже существующими колонками таблицы.
func (v *Validator) ValidateDeclarations(decls []ColumnDeclaration, existing []ColumnRef) error {
	names := make(map[string]bool, len(existing)+len(decls))
	for _, col := range existing {
		names[strings.ToLower(col.ColumnName)] = true
	}

	for i, decl := range decls {
		if strings.TrimSpace(decl.ColumnName) == "" {
			return &ValidationError{Field: fmt.Sprintf("new_columns[%d]", i), Message: "column name is empty"}
		}

		if !IsValidType(decl.DataType) {
			return &ValidationError{Field: decl.ColumnName, Message: "invalid data type", Value: string(decl.DataType)}
		}

		key := strings.ToLower(decl.ColumnName)
		if names[key] {
			return &ValidationError{Field: decl.ColumnName, Message: "duplicate column name", Value: decl.ColumnName}
		}
		names[key] = true

		if decl.DefaultValue != "" {
			if _, err := v.converter.ParseValue(decl.DefaultValue, decl.DataType); err != nil {
				return &ValidationError{Field: decl.ColumnName, Message: "invalid default value", Value: decl.DefaultValue}
			}
		}
	}

	return nil
}

// ValidateValue проверяет, что значение ячейки допустимо для типа колонки
func (v *Validator) ValidateValue(raw string, col ColumnRef) error {
	if _, err := v.converter.ParseValue(raw, col.Type()); err != nil {
		return &ValidationError{Field: col.Label(), Message: err.Error(), Value: raw}
	}
	return nil
}
