package xlsx

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ruslano69/tdtp-steps/pkg/core/formula"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// formatFormula записывает формулу текстом ячейки: "=`t`.`a` * 2 + SUM(`b`)"
func formatFormula(f formula.Formula) string {
	parts := make([]string, len(f))
	for i, tok := range f {
		parts[i] = tok.String()
	}
	return "=" + strings.Join(parts, " ")
}

// columnResolver находит колонку по таблице (может быть пустой) и имени
type columnResolver func(table, column string) (schema.ColumnRef, error)

func resolver(opts ImportOptions) columnResolver {
	return func(table, column string) (schema.ColumnRef, error) {
		for _, c := range opts.Columns {
			if c.ColumnName != column {
				continue
			}
			if table == "" || c.TableName == table || (c.TableName == "" && table == opts.Table.Name) {
				return c, nil
			}
		}
		return schema.ColumnRef{}, fmt.Errorf("unknown column %s", strings.TrimPrefix(table+"."+column, "."))
	}
}

// parseFormula разбирает текст, записанный formatFormula.
// Синтаксис проверяет formula.Validate при сборке шага.
func parseFormula(text string, resolve columnResolver) (formula.Formula, error) {
	var out formula.Formula
	r := []rune(text)

	for i := 0; i < len(r); {
		ch := r[i]
		switch {
		case unicode.IsSpace(ch):
			i++

		case strings.ContainsRune("+-*/", ch):
			out = append(out, &formula.Operator{Symbol: string(ch)})
			i++

		case ch == '(' || ch == ')':
			out = append(out, &formula.Bracket{Symbol: string(ch)})
			i++

		case unicode.IsDigit(ch) || ch == '.':
			start := i
			for i < len(r) && (unicode.IsDigit(r[i]) || r[i] == '.') {
				i++
			}
			out = append(out, &formula.Literal{Value: string(r[start:i])})

		case ch == '`':
			first, next, err := quoted(r, i)
			if err != nil {
				return nil, err
			}
			table, column := "", first
			if next+1 < len(r) && r[next] == '.' && r[next+1] == '`' {
				column, next, err = quoted(r, next+1)
				if err != nil {
					return nil, err
				}
				table = first
			}
			col, err := resolve(table, column)
			if err != nil {
				return nil, err
			}
			out = append(out, &formula.FieldRef{Column: col})
			i = next

		case unicode.IsLetter(ch):
			start := i
			for i < len(r) && (unicode.IsLetter(r[i]) || unicode.IsDigit(r[i]) || r[i] == '_') {
				i++
			}
			fn := string(r[start:i])
			if i+1 >= len(r) || r[i] != '(' || r[i+1] != '`' {
				return nil, fmt.Errorf("aggregate %s: expected (`column`)", fn)
			}
			column, next, err := quoted(r, i+1)
			if err != nil {
				return nil, err
			}
			if next >= len(r) || r[next] != ')' {
				return nil, fmt.Errorf("aggregate %s: missing \")\"", fn)
			}
			col, err := resolve("", column)
			if err != nil {
				return nil, err
			}
			out = append(out, &formula.AggregateFieldRef{Column: col, Func: strings.ToUpper(fn)})
			i = next + 1

		default:
			return nil, fmt.Errorf("unexpected %q at %d", ch, i)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("formula is empty")
	}
	return out, nil
}

// quoted читает `name`, начиная с открывающей кавычки в позиции i.
// Возвращает имя и позицию после закрывающей кавычки.
func quoted(r []rune, i int) (string, int, error) {
	end := i + 1
	for end < len(r) && r[end] != '`' {
		end++
	}
	if end >= len(r) {
		return "", 0, fmt.Errorf("unterminated identifier at %d", i)
	}
	return string(r[i+1 : end]), end + 1, nil
}
