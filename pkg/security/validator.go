// Package security проверяет команды шагов перед выполнением
// и права процесса исполнителя.
package security

import (
	"fmt"
	"strings"
)

// allowedPrefixes - команды, которые строят шаги процесса
var allowedPrefixes = []string{
	"UPDATE ",
	"DELETE FROM ",
	"ALTER TABLE ",
	"DROP TABLE ",
}

// forbidden - ключевые слова, которых нет ни в одной команде шага
var forbidden = map[string]bool{
	// DML
	"INSERT": true, "REPLACE": true, "TRUNCATE": true, "MERGE": true, "INTO": true,

	// DDL
	"CREATE": true, "RENAME": true,

	// DCL
	"GRANT": true, "REVOKE": true,

	// Опасные функции и операции
	"EXECUTE": true, "EXEC": true, "CALL": true, "SLEEP": true, "BENCHMARK": true,
	"LOAD_FILE": true, "OUTFILE": true, "DUMPFILE": true, "SHUTDOWN": true,

	// SQLite специфичные команды
	"PRAGMA": true, "ATTACH": true, "DETACH": true,

	// Транзакцией управляет исполнитель
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true,
}

// statementVerbs допустимы только в начале команды (DROP еще и в ALTER TABLE ... DROP COLUMN)
var statementVerbs = map[string]bool{"UPDATE": true, "DELETE": true, "ALTER": true, "DROP": true}

// SQLValidator проверяет команды плана шага.
//
// В strict mode (по умолчанию) разрешены только UPDATE, DELETE FROM,
// ALTER TABLE и DROP TABLE, одна команда без комментариев.
// Содержимое строковых литералов и `идентификаторов` не проверяется.
//
// В non-strict mode все команды разрешены.
type SQLValidator struct {
	strict bool
}

// NewSQLValidator создает валидатор
func NewSQLValidator(strict bool) *SQLValidator {
	return &SQLValidator{strict: strict}
}

// Validate возвращает ошибку, если команда не может быть командой шага
func (v *SQLValidator) Validate(sql string) error {
	if !v.strict {
		return nil
	}

	code, err := stripQuoted(sql)
	if err != nil {
		return err
	}
	normalized := strings.ToUpper(strings.Join(strings.Fields(code), " "))

	// 1. Тип команды
	allowed := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("statement type %s is not allowed", getQueryType(normalized))
	}

	// 2. Одна команда, без комментариев
	if strings.Contains(code, ";") {
		return fmt.Errorf("multiple statements not allowed")
	}
	for _, marker := range []string{"--", "/*", "*/", "#"} {
		if strings.Contains(code, marker) {
			return fmt.Errorf("SQL comments (%s) not allowed", marker)
		}
	}

	// 3. Ключевые слова
	words := splitWords(normalized)
	for i, w := range words {
		if forbidden[w] {
			return fmt.Errorf("forbidden keyword '%s'", w)
		}
		if i > 0 && statementVerbs[w] && !(w == "DROP" && words[0] == "ALTER") {
			return fmt.Errorf("keyword '%s' allowed only at the start of a statement", w)
		}
	}

	return nil
}

// IsStrict возвращает текущий режим валидатора
func (v *SQLValidator) IsStrict() bool {
	return v.strict
}

// stripQuoted заменяет содержимое "строк", 'строк' и `идентификаторов`
// пустыми кавычками. Внутри строк учитывается экранирование \.
func stripQuoted(sql string) (string, error) {
	var b strings.Builder
	b.Grow(len(sql))

	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote == 0 {
			if c == '"' || c == '\'' || c == '`' {
				quote = c
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '\\' && quote != '`':
			i++
		case c == quote:
			// удвоенная кавычка внутри литерала
			if i+1 < len(sql) && sql[i+1] == quote {
				i++
				continue
			}
			quote = 0
			b.WriteByte(c)
		}
	}

	if quote != 0 {
		return "", fmt.Errorf("unterminated %c literal", quote)
	}
	return b.String(), nil
}

// splitWords разбивает текст на слова из букв, цифр и _
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
}

// getQueryType определяет тип SQL запроса для сообщения об ошибке
func getQueryType(sql string) string {
	parts := strings.Fields(sql)
	if len(parts) > 0 {
		return parts[0]
	}
	return "UNKNOWN"
}
