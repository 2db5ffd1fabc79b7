package schema

import (
	"fmt"
	"strings"
)

// DataType представляет тип данных колонки в каталоге
type DataType string

// Поддерживаемые типы данных колонок
const (
	TypeAlphanumeric DataType = "alphanumeric"
	TypeAmount       DataType = "amount"
	TypeDate         DataType = "date"
)

// DefaultType используется, когда каталог не сообщил тип колонки
const DefaultType = TypeAlphanumeric

// IsValidType проверяет валидность типа данных
func IsValidType(t DataType) bool {
	switch t {
	case TypeAlphanumeric, TypeAmount, TypeDate:
		return true
	default:
		return false
	}
}

// IsNumericType проверяет является ли тип числовым
func IsNumericType(t DataType) bool {
	return t == TypeAmount
}

// IsDateTimeType проверяет является ли тип временным
func IsDateTimeType(t DataType) bool {
	return t == TypeDate
}

// NormalizeType сводит SQL тип колонки (как его отдает information_schema
// или PRAGMA table_info) к одному из типов каталога.
// Пустой и неизвестный тип дают TypeAlphanumeric.
func NormalizeType(sqlType string) DataType {
	t := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	// MySQL: "bigint unsigned", "int zerofill"
	for _, suffix := range []string{" UNSIGNED", " SIGNED", " ZEROFILL"} {
		t = strings.TrimSuffix(t, suffix)
	}

	switch DataType(strings.ToLower(t)) {
	case TypeAlphanumeric, TypeAmount, TypeDate:
		return DataType(strings.ToLower(t))
	}

	switch t {
	case "INT", "INTEGER", "SMALLINT", "TINYINT", "MEDIUMINT", "BIGINT",
		"REAL", "FLOAT", "DOUBLE", "DOUBLE PRECISION", "DECIMAL", "NUMERIC",
		"MONEY", "SMALLMONEY", "INT2", "INT4", "INT8", "FLOAT4", "FLOAT8":
		return TypeAmount
	case "DATE", "DATETIME", "DATETIME2", "SMALLDATETIME", "TIMESTAMP",
		"TIMESTAMPTZ", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE":
		return TypeDate
	default:
		return DefaultType
	}
}

// Table описывает таблицу каталога
type Table struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Primary     bool   `json:"primary,omitempty" yaml:"primary,omitempty"` // защищенная таблица, не удаляется
}

// Label возвращает отображаемое имя таблицы (или техническое, если отображаемого нет)
func (t Table) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// ColumnRef идентифицирует одну колонку одной таблицы.
// Значение неизменяемо после получения из каталога.
type ColumnRef struct {
	TableName         string   `json:"table_name" yaml:"table_name"`
	DisplayTableName  string   `json:"display_table_name" yaml:"display_table_name"`
	ColumnName        string   `json:"column_name" yaml:"column_name"`
	DisplayColumnName string   `json:"display_column_name" yaml:"display_column_name"`
	DataType          DataType `json:"data_type" yaml:"data_type"`
	Primary           bool     `json:"primary,omitempty" yaml:"primary,omitempty"` // первичная/системная колонка
}

// IsZero сообщает, что колонка не выбрана
func (c ColumnRef) IsZero() bool {
	return c.ColumnName == ""
}

// Label возвращает отображаемое имя колонки для сообщений об ошибках
func (c ColumnRef) Label() string {
	if c.DisplayColumnName != "" {
		return c.DisplayColumnName
	}
	return c.ColumnName
}

// Type возвращает тип колонки с учетом значения по умолчанию
func (c ColumnRef) Type() DataType {
	if c.DataType == "" {
		return DefaultType
	}
	return c.DataType
}

// Quoted возвращает `column`
func (c ColumnRef) Quoted() string {
	return QuoteIdent(c.ColumnName)
}

// Qualified возвращает `table`.`column`
func (c ColumnRef) Qualified() string {
	return QuoteIdent(c.TableName) + "." + QuoteIdent(c.ColumnName)
}

// SameColumn сравнивает ссылки по таблице и имени колонки
func (c ColumnRef) SameColumn(other ColumnRef) bool {
	return c.TableName == other.TableName && c.ColumnName == other.ColumnName
}

// ColumnDeclaration описывает новую колонку, которую исполнитель
// должен создать до выполнения запроса шага
type ColumnDeclaration struct {
	ColumnName   string   `json:"column_name"`
	DisplayName  string   `json:"display_name"`
	DataType     DataType `json:"data_type"`
	DefaultValue string   `json:"default_value,omitempty"`
}

// QuoteIdent оборачивает идентификатор в обратные кавычки
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// ValidationError ошибка валидации
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: '%s')",
		e.Field, e.Message, e.Value)
}
