package condition

import (
	"fmt"
	"strings"

	"github.com/ruslano69/tdtp-steps/pkg/core/messages"
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// NotEqualStyle определяет текст notEqualTo
type NotEqualStyle int

const (
	// NotEqualPlain: col != "v"
	NotEqualPlain NotEqualStyle = iota
	// NotEqualNullSafe: !(col <=> "v")
	NotEqualNullSafe
)

// ColumnEqualStyle определяет текст equalTo при сравнении двух колонок
type ColumnEqualStyle int

const (
	// ColumnEqualPlain: col = other
	ColumnEqualPlain ColumnEqualStyle = iota
	// ColumnEqualNullSafe: IFNULL(col,'--NULL--') = IFNULL(other,'--NULL--')
	ColumnEqualNullSafe
)

// DateFormat - формат приведения дат при сравнении
const DateFormat = "%Y-%m-%d"

// nullSentinel подставляется вместо NULL при null-safe сравнении колонок
const nullSentinel = "'--NULL--'"

// Dialect - особенности текста условий конкретного типа шага.
// Различия между шагами закреплены: исполненные ранее шаги
// должны давать тот же текст запроса.
type Dialect struct {
	Qualify     bool // `table`.`column` вместо `column`
	NotEqual    NotEqualStyle
	ColumnEqual ColumnEqualStyle
}

var (
	// DeleteDialect - условия шага удаления/очистки
	DeleteDialect = Dialect{NotEqual: NotEqualNullSafe, ColumnEqual: ColumnEqualPlain}
	// LookupDialect - условия шага lookup/join
	LookupDialect = Dialect{Qualify: true, NotEqual: NotEqualPlain, ColumnEqual: ColumnEqualNullSafe}
	// FormulaDialect - условия шагов формул и трансляции
	FormulaDialect = Dialect{Qualify: true, NotEqual: NotEqualPlain, ColumnEqual: ColumnEqualPlain}
)

// Context - контекст компиляции для сообщений об ошибках
type Context struct {
	Step string
}

// Compiler переводит дерево условий в текст выражения.
// Не имеет состояния между вызовами.
type Compiler struct {
	dialect Dialect
}

// NewCompiler создает компилятор для диалекта шага
func NewCompiler(d Dialect) *Compiler {
	return &Compiler{dialect: d}
}

// Compile возвращает текст условия.
// Обход всегда проходит дерево целиком; первая найденная ошибка
// возвращается, текст при этом отбрасывается.
func (c *Compiler) Compile(tree *Tree, ctx Context) (string, error) {
	if tree.IsEmpty() {
		return "", nil
	}

	var first messages.First
	text := c.compileNodes(tree.Data, tree.Relation, ctx, &first)
	if err := first.Err(); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Compiler) compileNodes(nodes []Node, rel Relation, ctx Context, first *messages.First) string {
	if rel == "" {
		rel = And
	}

	var b strings.Builder
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(" " + string(rel) + " ")
		}

		switch n := n.(type) {
		case *Group:
			if n == nil {
				first.Set(messages.New(messages.KindStructural, messages.EmptyGroup, ctx.Step, ""))
				continue
			}
			b.WriteString("(" + c.compileGroup(n, ctx, first) + ")")
		case *Condition:
			if n == nil {
				first.Set(messages.New(messages.KindStructural, messages.ColumnRequired, ctx.Step, ""))
				continue
			}
			b.WriteString(c.compileCondition(n, ctx, first))
		default:
			first.Set(messages.New(messages.KindStructural, messages.ColumnRequired, ctx.Step, ""))
		}
	}
	return b.String()
}

func (c *Compiler) compileGroup(g *Group, ctx Context, first *messages.First) string {
	if len(g.Data) == 0 {
		first.Set(messages.New(messages.KindStructural, messages.EmptyGroup, ctx.Step, ""))
		return ""
	}
	return c.compileNodes(g.Data, g.Relation, ctx, first)
}

// compileCondition проверяет лист (колонка, оператор, допустимость оператора,
// операнд) и строит текст сравнения
func (c *Compiler) compileCondition(cond *Condition, ctx Context, first *messages.First) string {
	if cond.Column.IsZero() {
		first.Set(messages.New(messages.KindStructural, messages.ColumnRequired, ctx.Step, ""))
		return ""
	}

	field := cond.Column.Label()
	if cond.Operator == "" {
		first.Set(messages.New(messages.KindStructural, messages.OperatorRequired, ctx.Step, field))
		return ""
	}

	dataType := cond.Column.Type()
	if !operators.Allowed(dataType, cond.Operator) {
		first.Set(messages.New(messages.KindStructural, messages.OperatorNotAllowed, ctx.Step, field))
		return ""
	}

	if err := checkOperand(cond, ctx, field); err != nil {
		first.Set(err)
		return ""
	}

	col := c.column(cond.Column)
	isDate := schema.IsDateTimeType(dataType)

	if cond.ByColumn() {
		return c.compareColumns(cond, col, c.column(cond.CompareField), isDate)
	}

	value := quoteValue(cond.Value)
	switch cond.Operator {
	case operators.EqualTo:
		return fmt.Sprintf("%s = %s", col, value)

	case operators.NotEqualTo:
		if c.dialect.NotEqual == NotEqualNullSafe {
			return fmt.Sprintf("!(%s <=> %s)", col, value)
		}
		return fmt.Sprintf("%s != %s", col, value)

	case operators.Contains:
		return fmt.Sprintf("%s LIKE %s", col, quoteValue("%"+cond.Value+"%"))

	case operators.NotContains:
		return fmt.Sprintf("%s NOT LIKE %s", col, quoteValue("%"+cond.Value+"%"))

	case operators.Between:
		low, high := value, quoteValue(cond.ValueTo)
		if isDate {
			return fmt.Sprintf("%s BETWEEN %s AND %s", dateCast(col), dateCast(low), dateCast(high))
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, low, high)

	case operators.GreaterThan:
		if isDate {
			return fmt.Sprintf("%s > %s", dateCast(col), dateCast(value))
		}
		return fmt.Sprintf("%s > %s", col, value)

	case operators.LessThan:
		if isDate {
			return fmt.Sprintf("%s < %s", dateCast(col), dateCast(value))
		}
		return fmt.Sprintf("%s < %s", col, value)

	case operators.IsNull:
		return fmt.Sprintf("COALESCE(%s,'') = ''", col)

	case operators.IsNotNull:
		return fmt.Sprintf("COALESCE(%s,'') != ''", col)
	}

	first.Set(messages.New(messages.KindStructural, messages.OperatorNotAllowed, ctx.Step, field))
	return ""
}

func (c *Compiler) compareColumns(cond *Condition, col, other string, isDate bool) string {
	switch cond.Operator {
	case operators.EqualTo:
		if c.dialect.ColumnEqual == ColumnEqualNullSafe {
			return fmt.Sprintf("IFNULL(%s,%s) = IFNULL(%s,%s)", col, nullSentinel, other, nullSentinel)
		}
		return fmt.Sprintf("%s = %s", col, other)
	case operators.NotEqualTo:
		if c.dialect.NotEqual == NotEqualNullSafe {
			return fmt.Sprintf("!(%s <=> %s)", col, other)
		}
		return fmt.Sprintf("%s != %s", col, other)
	case operators.Contains:
		return fmt.Sprintf("%s LIKE CONCAT('%%',%s,'%%')", col, other)
	case operators.NotContains:
		return fmt.Sprintf("%s NOT LIKE CONCAT('%%',%s,'%%')", col, other)
	case operators.GreaterThan:
		if isDate {
			return fmt.Sprintf("%s > %s", dateCast(col), dateCast(other))
		}
		return fmt.Sprintf("%s > %s", col, other)
	case operators.LessThan:
		if isDate {
			return fmt.Sprintf("%s < %s", dateCast(col), dateCast(other))
		}
		return fmt.Sprintf("%s < %s", col, other)
	}
	return ""
}

func (c *Compiler) column(ref schema.ColumnRef) string {
	if c.dialect.Qualify {
		return ref.Qualified()
	}
	return ref.Quoted()
}

func checkOperand(cond *Condition, ctx Context, field string) *messages.Error {
	if cond.ByColumn() {
		if cond.CompareField.IsZero() {
			return messages.New(messages.KindStructural, messages.CompareFieldRequired, ctx.Step, field)
		}
		return nil
	}

	switch {
	case cond.Operator.IsRange():
		if blank(cond.Value) || blank(cond.ValueTo) {
			return messages.New(messages.KindValue, messages.RangeRequired, ctx.Step, field)
		}
	case cond.Operator.NeedsValue():
		if blank(cond.Value) {
			return messages.New(messages.KindValue, messages.ValueRequired, ctx.Step, field)
		}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quoteValue оборачивает значение в двойные кавычки.
// Стиль кавычек закреплен: исполнитель ожидает именно его.
func quoteValue(v string) string {
	return `"` + valueEscaper.Replace(v) + `"`
}

// QuoteValue - экспортируемый вариант для построителей шагов
func QuoteValue(v string) string {
	return quoteValue(v)
}

func dateCast(expr string) string {
	return fmt.Sprintf("DATE_FORMAT(%s,'%s')", expr, DateFormat)
}
