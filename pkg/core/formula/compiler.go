package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// Position - позиция формулы в сетке шага (строка правила, колонка).
// Из нее строятся имена производных таблиц агрегатов.
type Position struct {
	Row int
	Col int
}

// Result - результат компиляции формулы
type Result struct {
	// Set - выражение для правой части присваивания
	Set string
	// Select - производные таблицы агрегатов, каждая с ведущей запятой:
	// ", (SELECT SUM(`x`) AS placeholder00 FROM `t`) t00"
	Select string
}

// Compiler компилирует формулы. Не хранит состояние между вызовами.
type Compiler struct{}

// NewCompiler создает компилятор формул
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile проходит токены слева направо.
// Корректность формулы (скобки, чередование) проверяет Validate.
func (c *Compiler) Compile(f Formula, pos Position) Result {
	var set, sel strings.Builder
	aggregates := 0

	for _, tok := range f {
		switch tok := tok.(type) {
		case *Literal:
			if tok != nil {
				set.WriteString(NormalizeNumber(tok.Value))
			}
		case *Operator:
			if tok != nil {
				set.WriteString(" " + tok.Symbol + " ")
			}
		case *Bracket:
			if tok != nil {
				set.WriteString(" " + tok.Symbol + " ")
			}
		case *FieldRef:
			if tok != nil {
				set.WriteString(tok.Column.Qualified())
			}
		case *AggregateFieldRef:
			if tok == nil {
				continue
			}
			suffix := fmt.Sprintf("%d%d", pos.Row, pos.Col)
			if aggregates > 0 {
				suffix += fmt.Sprintf("_%d", aggregates)
			}
			aggregates++

			alias := "t" + suffix
			placeholder := "placeholder" + suffix
			set.WriteString(alias + "." + placeholder)
			sel.WriteString(fmt.Sprintf(", (SELECT %s(%s) AS %s FROM %s) %s",
				tok.Func, tok.Column.Quoted(), placeholder, schema.QuoteIdent(tok.Column.TableName), alias))
		}
	}

	return Result{
		Set:    strings.TrimSpace(set.String()),
		Select: sel.String(),
	}
}

// NormalizeNumber приводит числовую константу к каноническому виду ("2.50" -> "2.5").
// Нечисловое значение дает пустую строку.
func NormalizeNumber(v string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return ""
	}
	return d.String()
}
