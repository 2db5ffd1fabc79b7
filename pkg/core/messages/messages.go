// Package messages содержит шаблоны сообщений валидации шагов процесса.
//
// Шаблон содержит плейсхолдеры #STEP# (имя шага) и #FIELD# (отображаемое
// имя колонки или номер правила). Текст ошибки - единственный канал,
// через который результат валидации попадает к пользователю.
package messages

import "strings"

// Kind - категория ошибки валидации
type Kind string

const (
	// KindStructural - не сделан обязательный выбор (колонка, оператор, таблица)
	KindStructural Kind = "structural"
	// KindValue - операнд отсутствует или недопустим
	KindValue Kind = "value"
	// KindSemantic - бизнес-запрет (защищенная колонка/таблица, дубль имени)
	KindSemantic Kind = "semantic"
	// KindSchemaDrift - колонка исчезла из каталога
	KindSchemaDrift Kind = "schema_drift"
)

// Шаблоны сообщений
const (
	ColumnRequired       = "#STEP#: please select a column for every condition"
	OperatorRequired     = "#STEP#: please select an operator for #FIELD#"
	OperatorNotAllowed   = "#STEP#: the selected operator cannot be applied to #FIELD#"
	ValueRequired        = "#STEP#: please enter a value for #FIELD#"
	RangeRequired        = "#STEP#: please enter both values of the range for #FIELD#"
	CompareFieldRequired = "#STEP#: please select a column to compare with #FIELD#"
	EmptyGroup           = "#STEP#: condition group is empty"
	ConditionsRequired   = "#STEP#: please add at least one condition"
	JoinRequired         = "#STEP#: please add at least one condition comparing columns of the joined tables"

	ActionRequired      = "#STEP#: please select what to delete"
	TableRequired       = "#STEP#: please select a table"
	LookupTableRequired = "#STEP#: please select at least one lookup table"
	ColumnsRequired     = "#STEP#: please select at least one column"
	ProtectedTable      = "#STEP#: #FIELD# is a primary table and cannot be deleted"
	ProtectedColumn     = "#STEP#: #FIELD# is a primary column and cannot be deleted or cleared"

	TargetsRequired      = "#STEP#: please add at least one column to update"
	TargetColumnRequired = "#STEP#: please select or name every column to update"
	SourceColumnRequired = "#STEP#: please select a lookup column for #FIELD#"
	DuplicateTarget      = "#STEP#: column #FIELD# is updated more than once"
	ColumnExists         = "#STEP#: column #FIELD# already exists"
	InvalidNewColumn     = "#STEP#: new column #FIELD# is invalid"
	FormulaRequired      = "#STEP#: please enter a formula for #FIELD#"
	FormulaInvalid       = "#STEP#: formula for #FIELD# is invalid"
	InvalidValue         = "#STEP#: value for #FIELD# is invalid"

	CompareColumnsRequired = "#STEP#: please select at least one column to compare"
	UpdateColumnsRequired  = "#STEP#: please select at least one column to translate"
	ColumnRoleConflict     = "#STEP#: #FIELD# cannot be compared and translated at the same time"
	RulesRequired          = "#STEP#: please add at least one rule"
	RuleShape              = "#STEP#: rule #FIELD# does not match the selected columns"
	RuleValueRequired      = "#STEP#: rule #FIELD# has an empty compare value"
	RuleEmpty              = "#STEP#: rule #FIELD# does not translate any column"

	ColumnNotFound = "#STEP#: column #FIELD# not found"
)

// Error - ошибка валидации с неразрешенным шаблоном.
// Текст формируется в Error() подстановкой плейсхолдеров.
type Error struct {
	Kind     Kind
	Template string
	Step     string
	Field    string
	Detail   string // уточнение, добавляется после основного текста
}

// New создает ошибку валидации
func New(kind Kind, template, step, field string) *Error {
	return &Error{Kind: kind, Template: template, Step: step, Field: field}
}

// WithDetail возвращает копию ошибки с уточнением
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

func (e *Error) Error() string {
	msg := strings.NewReplacer("#STEP#", e.Step, "#FIELD#", e.Field).Replace(e.Template)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// First хранит первую зафиксированную ошибку; последующие игнорируются
type First struct {
	err *Error
}

// Set запоминает ошибку, если ошибка еще не установлена
func (f *First) Set(err *Error) {
	if f.err == nil && err != nil {
		f.err = err
	}
}

// Failed сообщает, что ошибка уже зафиксирована
func (f *First) Failed() bool {
	return f.err != nil
}

// Err возвращает зафиксированную ошибку или nil
func (f *First) Err() error {
	if f.err == nil {
		return nil
	}
	return f.err
}
