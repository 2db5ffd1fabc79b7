// Package formula описывает арифметическую формулу как последовательность
// токенов и компилирует ее в выражение SET и производные таблицы агрегатов.
package formula

import (
	"encoding/json"
	"fmt"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// Token - элемент формулы
type Token interface {
	token()
	String() string
}

// Literal - числовая константа
type Literal struct {
	Value string
}

func (l *Literal) token()         {}
func (l *Literal) String() string { return l.Value }

// Operator - арифметический оператор (+ - * /)
type Operator struct {
	Symbol string
}

func (o *Operator) token()         {}
func (o *Operator) String() string { return o.Symbol }

// Bracket - скобка. Компилируется так же, как оператор.
type Bracket struct {
	Symbol string
}

func (b *Bracket) token()         {}
func (b *Bracket) String() string { return b.Symbol }

// FieldRef - ссылка на колонку
type FieldRef struct {
	Column schema.ColumnRef
}

func (f *FieldRef) token()         {}
func (f *FieldRef) String() string { return f.Column.Qualified() }

// AggregateFieldRef - агрегат по колонке (SUM, AVG, MIN, MAX, COUNT...).
// Функция приходит из интерфейса и компилятором не интерпретируется.
type AggregateFieldRef struct {
	Column schema.ColumnRef
	Func   string
}

func (a *AggregateFieldRef) token()         {}
func (a *AggregateFieldRef) String() string { return a.Func + "(" + a.Column.Quoted() + ")" }

// Formula - упорядоченная последовательность токенов
type Formula []Token

// Fields возвращает все колонки, на которые ссылается формула
func (f Formula) Fields() []*schema.ColumnRef {
	var out []*schema.ColumnRef
	for _, tok := range f {
		switch tok := tok.(type) {
		case *FieldRef:
			if tok != nil {
				out = append(out, &tok.Column)
			}
		case *AggregateFieldRef:
			if tok != nil {
				out = append(out, &tok.Column)
			}
		}
	}
	return out
}

const (
	tokenLiteral   = "literal"
	tokenOperator  = "operator"
	tokenBracket   = "bracket"
	tokenField     = "field"
	tokenAggregate = "aggregate"
)

type tokenJSON struct {
	Type   string            `json:"type"`
	Value  string            `json:"value,omitempty"`
	Symbol string            `json:"symbol,omitempty"`
	Column *schema.ColumnRef `json:"column,omitempty"`
	Func   string            `json:"func,omitempty"`
}

// MarshalJSON кодирует формулу списком токенов с полем type
func (f Formula) MarshalJSON() ([]byte, error) {
	out := make([]tokenJSON, 0, len(f))
	for i, tok := range f {
		switch tok := tok.(type) {
		case *Literal:
			out = append(out, tokenJSON{Type: tokenLiteral, Value: tok.Value})
		case *Operator:
			out = append(out, tokenJSON{Type: tokenOperator, Symbol: tok.Symbol})
		case *Bracket:
			out = append(out, tokenJSON{Type: tokenBracket, Symbol: tok.Symbol})
		case *FieldRef:
			col := tok.Column
			out = append(out, tokenJSON{Type: tokenField, Column: &col})
		case *AggregateFieldRef:
			col := tok.Column
			out = append(out, tokenJSON{Type: tokenAggregate, Column: &col, Func: tok.Func})
		default:
			return nil, fmt.Errorf("token %d: unsupported type %T", i, tok)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON разбирает формулу
func (f *Formula) UnmarshalJSON(data []byte) error {
	var in []tokenJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	out := make(Formula, 0, len(in))
	for i, tj := range in {
		var col schema.ColumnRef
		if tj.Column != nil {
			col = *tj.Column
		}

		switch tj.Type {
		case tokenLiteral:
			out = append(out, &Literal{Value: tj.Value})
		case tokenOperator:
			out = append(out, &Operator{Symbol: tj.Symbol})
		case tokenBracket:
			out = append(out, &Bracket{Symbol: tj.Symbol})
		case tokenField:
			out = append(out, &FieldRef{Column: col})
		case tokenAggregate:
			out = append(out, &AggregateFieldRef{Column: col, Func: tj.Func})
		default:
			return fmt.Errorf("token %d: unknown type %q", i, tj.Type)
		}
	}

	*f = out
	return nil
}
