// Package condition описывает дерево условий шага и компилирует его
// в текст булевого выражения SQL.
package condition

import (
	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

// Relation - логическая связка между соседними элементами
type Relation string

const (
	And Relation = "AND"
	Or  Relation = "OR"
)

// CompareType определяет, с чем сравнивается колонка
type CompareType string

const (
	CompareValue  CompareType = "Value"
	CompareColumn CompareType = "Column"
)

// Node - элемент дерева: *Condition или *Group
type Node interface {
	node()
	String() string
}

// Condition - лист дерева, одно сравнение колонки со значением или другой колонкой.
// Узел без оператора считается незавершенным: он остается в дереве,
// но компиляция такого дерева завершается ошибкой.
type Condition struct {
	Column       schema.ColumnRef
	Operator     operators.Operator
	CompareType  CompareType
	Value        string // единственное значение или нижняя граница для between
	ValueTo      string // верхняя граница для between
	CompareField schema.ColumnRef
}

func (c *Condition) node() {}
func (c *Condition) String() string {
	return "Condition: " + c.Column.ColumnName + " " + string(c.Operator)
}

// ByColumn сообщает, что условие сравнивает две колонки
func (c *Condition) ByColumn() bool {
	return c.CompareType == CompareColumn && columnComparable(c.Operator)
}

// Group - внутренний узел: дочерние элементы, объединенные одной связкой
type Group struct {
	Relation Relation
	Data     []Node
}

func (g *Group) node() {}
func (g *Group) String() string {
	return "Group: " + string(g.Relation)
}

// Tree - корень дерева условий шага.
// Relation применяется между соседними элементами верхнего уровня
// и не зависит от связки внутри групп.
type Tree struct {
	Relation Relation
	Data     []Node
}

// NewTree создает пустое дерево с заданной связкой
func NewTree(rel Relation) *Tree {
	return &Tree{Relation: rel}
}

// Add добавляет элемент верхнего уровня
func (t *Tree) Add(n Node) *Tree {
	t.Data = append(t.Data, n)
	return t
}

// IsEmpty сообщает, что в дереве нет ни одного элемента
func (t *Tree) IsEmpty() bool {
	return t == nil || len(t.Data) == 0
}

// Walk обходит листья дерева слева направо в глубину
func (t *Tree) Walk(fn func(*Condition)) {
	if t == nil {
		return
	}
	walk(t.Data, fn)
}

func walk(nodes []Node, fn func(*Condition)) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Condition:
			if n != nil {
				fn(n)
			}
		case *Group:
			if n != nil {
				walk(n.Data, fn)
			}
		}
	}
}

// Conditions возвращает все листья дерева
func (t *Tree) Conditions() []*Condition {
	var out []*Condition
	t.Walk(func(c *Condition) {
		out = append(out, c)
	})
	return out
}

// HasColumnComparison сообщает, есть ли в дереве условие связи таблиц
// (сравнение колонки с колонкой)
func (t *Tree) HasColumnComparison() bool {
	found := false
	t.Walk(func(c *Condition) {
		if c.ByColumn() && !c.CompareField.IsZero() {
			found = true
		}
	})
	return found
}

// Filter удаляет листья, для которых keep возвращает false.
// Группы, оставшиеся без элементов, удаляются целиком.
// Срезы и группы исходного дерева не изменяются: дерево получает новые.
func (t *Tree) Filter(keep func(*Condition) bool) {
	if t == nil {
		return
	}
	t.Data = filter(t.Data, keep)
}

func filter(nodes []Node, keep func(*Condition) bool) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch n := n.(type) {
		case *Condition:
			if n != nil && keep(n) {
				out = append(out, n)
			}
		case *Group:
			if n == nil {
				continue
			}
			if data := filter(n.Data, keep); len(data) > 0 {
				out = append(out, &Group{Relation: n.Relation, Data: data})
			}
		}
	}
	return out
}

func columnComparable(op operators.Operator) bool {
	switch op {
	case operators.EqualTo, operators.NotEqualTo, operators.Contains, operators.NotContains,
		operators.GreaterThan, operators.LessThan:
		return true
	default:
		return false
	}
}
