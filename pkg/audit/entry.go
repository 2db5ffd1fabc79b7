package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level - уровень детализации записей
type Level int

const (
	// LevelMinimal - только основная информация
	LevelMinimal Level = iota

	// LevelStandard - с метаданными
	LevelStandard

	// LevelFull - вместе с итогом выполнения
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel разбирает имя уровня. Пустая строка означает LevelStandard.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return LevelMinimal, nil
	case "", "standard":
		return LevelStandard, nil
	case "full":
		return LevelFull, nil
	}
	return LevelStandard, fmt.Errorf("unknown audit level %q", s)
}

// Operation - тип операции
type Operation string

const (
	OpProcess Operation = "process" // выполнение процесса целиком
	OpStep    Operation = "step"    // выполнение одного шага
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial" // часть шагов процесса выполнена
)

// Entry - запись в журнале аудита
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`

	// Node - узел, выполнявший процесс
	Node string `json:"node,omitempty"`

	ProcessID   uuid.UUID `json:"process_id"`
	ProcessName string    `json:"process_name,omitempty"`

	// Step и Kind заполняются только для OpStep
	Step int    `json:"step,omitempty"`
	Kind string `json:"kind,omitempty"`

	// Table - целевая таблица шага
	Table string `json:"table,omitempty"`

	Statements   int           `json:"statements,omitempty"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Data - итог выполнения (только для LevelFull)
	Data interface{} `json:"data,omitempty"`
}

// NewEntry - создать новую запись
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Operation: operation,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

// WithNode - установить узел
func (e *Entry) WithNode(node string) *Entry {
	e.Node = node
	return e
}

// WithProcess - установить процесс
func (e *Entry) WithProcess(id uuid.UUID, name string) *Entry {
	e.ProcessID = id
	e.ProcessName = name
	return e
}

// WithStep - установить номер и вид шага
func (e *Entry) WithStep(sequence int, kind string) *Entry {
	e.Step = sequence
	e.Kind = kind
	return e
}

// WithTable - установить таблицу
func (e *Entry) WithTable(table string) *Entry {
	e.Table = table
	return e
}

// WithStatements - количество выполненных команд
func (e *Entry) WithStatements(n int) *Entry {
	e.Statements = n
	return e
}

// WithRowsAffected - количество затронутых строк
func (e *Entry) WithRowsAffected(count int64) *Entry {
	e.RowsAffected = count
	return e
}

// WithDuration - установить длительность
func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError - установить ошибку. Статус становится StatusFailure,
// если он еще не StatusPartial.
func (e *Entry) WithError(msg string) *Entry {
	if msg == "" {
		return e
	}
	e.ErrorMessage = msg
	if e.Status != StatusPartial {
		e.Status = StatusFailure
	}
	return e
}

// WithMetadata - добавить метаданные
func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithData - установить данные операции
func (e *Entry) WithData(data interface{}) *Entry {
	e.Data = data
	return e
}

// ToJSON - преобразовать в JSON
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление
func (e *Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s process=%s",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.ProcessID,
	)
	if e.Operation == OpStep {
		fmt.Fprintf(&b, " step=%d kind=%s", e.Step, e.Kind)
	}
	fmt.Fprintf(&b, " (table=%s, rows=%d, duration=%v)", e.Table, e.RowsAffected, e.Duration)
	if e.ErrorMessage != "" {
		fmt.Fprintf(&b, " error=%q", e.ErrorMessage)
	}
	return b.String()
}

// Clone - создать копию записи
func (e *Entry) Clone() *Entry {
	clone := *e

	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// FilterByLevel - фильтрация данных по уровню
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.Metadata = nil
		filtered.Data = nil
	case LevelStandard:
		filtered.Data = nil
	}

	return filtered
}
