package formula

import (
	"fmt"
	"strings"
)

// Операторы формулы
var knownOperators = map[string]bool{
	"+": true,
	"-": true,
	"*": true,
	"/": true,
}

// SyntaxError - ошибка структуры формулы
type SyntaxError struct {
	Position int // индекс токена, -1 для формулы целиком
	Message  string
}

func (e *SyntaxError) Error() string {
	if e.Position < 0 {
		return e.Message
	}
	return fmt.Sprintf("token %d: %s", e.Position+1, e.Message)
}

func syntaxError(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Position: pos, Message: fmt.Sprintf(format, args...)}
}

// Validate проверяет структуру формулы: операнды чередуются с операторами,
// скобки сбалансированы и не пусты, литералы числовые.
func Validate(f Formula) error {
	if len(f) == 0 {
		return syntaxError(-1, "formula is empty")
	}

	expectOperand := true
	depth := 0

	operand := func(i int) error {
		if !expectOperand {
			return syntaxError(i, "operator expected")
		}
		expectOperand = false
		return nil
	}

	for i, tok := range f {
		switch tok := tok.(type) {
		case *Literal:
			if tok == nil || NormalizeNumber(tok.Value) == "" {
				return syntaxError(i, "%q is not a number", literalValue(tok))
			}
			if err := operand(i); err != nil {
				return err
			}

		case *FieldRef:
			if tok == nil || tok.Column.IsZero() {
				return syntaxError(i, "column is not selected")
			}
			if err := operand(i); err != nil {
				return err
			}

		case *AggregateFieldRef:
			if tok == nil || tok.Column.IsZero() {
				return syntaxError(i, "column is not selected")
			}
			if strings.TrimSpace(tok.Func) == "" {
				return syntaxError(i, "aggregate function is not selected")
			}
			if err := operand(i); err != nil {
				return err
			}

		case *Operator:
			if tok == nil || !knownOperators[tok.Symbol] {
				return syntaxError(i, "unknown operator")
			}
			if expectOperand {
				return syntaxError(i, "operand expected before %q", tok.Symbol)
			}
			expectOperand = true

		case *Bracket:
			if tok == nil {
				return syntaxError(i, "unknown bracket")
			}
			switch tok.Symbol {
			case "(":
				if !expectOperand {
					return syntaxError(i, "operator expected before \"(\"")
				}
				depth++
			case ")":
				if expectOperand {
					return syntaxError(i, "operand expected before \")\"")
				}
				depth--
				if depth < 0 {
					return syntaxError(i, "unbalanced brackets")
				}
			default:
				return syntaxError(i, "unknown bracket %q", tok.Symbol)
			}

		default:
			return syntaxError(i, "unsupported token %T", tok)
		}
	}

	if depth != 0 {
		return syntaxError(-1, "unbalanced brackets")
	}
	if expectOperand {
		return syntaxError(len(f)-1, "formula ends with an operator")
	}
	return nil
}

func literalValue(l *Literal) string {
	if l == nil {
		return ""
	}
	return l.Value
}
