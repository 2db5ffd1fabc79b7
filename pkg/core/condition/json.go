package condition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ruslano69/tdtp-steps/pkg/core/operators"
	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

const (
	nodeCondition = "condition"
	nodeGroup     = "group"
)

type conditionJSON struct {
	Type         string             `json:"type"`
	Column       schema.ColumnRef   `json:"column"`
	Operator     operators.Operator `json:"operator,omitempty"`
	CompareType  CompareType        `json:"compare_type,omitempty"`
	Value        json.RawMessage    `json:"value,omitempty"`
	CompareField *schema.ColumnRef  `json:"compare_field,omitempty"`
}

type groupJSON struct {
	Type     string            `json:"type"`
	Relation Relation          `json:"relation"`
	Data     []json.RawMessage `json:"data"`
}

type treeJSON struct {
	Relation Relation          `json:"relation"`
	Data     []json.RawMessage `json:"data"`
}

// MarshalJSON кодирует значение в зависимости от оператора:
// строка, пара [min, max] для between, true для isNull/isNotNull
func (c *Condition) MarshalJSON() ([]byte, error) {
	out := conditionJSON{
		Type:        nodeCondition,
		Column:      c.Column,
		Operator:    c.Operator,
		CompareType: c.CompareType,
	}

	var value any
	switch {
	case c.ByColumn():
		if !c.CompareField.IsZero() {
			field := c.CompareField
			out.CompareField = &field
		}
	case c.Operator.IsRange():
		value = [2]string{c.Value, c.ValueTo}
	case c.Operator != "" && !c.Operator.NeedsValue():
		value = true
	default:
		value = c.Value
	}

	if value != nil {
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		out.Value = raw
	}

	return json.Marshal(out)
}

// UnmarshalJSON разбирает лист дерева
func (c *Condition) UnmarshalJSON(data []byte) error {
	var in conditionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*c = Condition{
		Column:      in.Column,
		Operator:    in.Operator,
		CompareType: in.CompareType,
	}
	if in.CompareField != nil {
		c.CompareField = *in.CompareField
	}

	raw := bytes.TrimSpace(in.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &c.Value)
	case '[':
		var bounds []string
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return fmt.Errorf("invalid range value: %w", err)
		}
		if len(bounds) > 0 {
			c.Value = bounds[0]
		}
		if len(bounds) > 1 {
			c.ValueTo = bounds[1]
		}
	case 't', 'f':
		// флаг isNull/isNotNull не несет данных
	default:
		// числа из старых метаданных сохраняем как текст
		c.Value = string(raw)
	}

	return nil
}

// MarshalJSON кодирует группу
func (g *Group) MarshalJSON() ([]byte, error) {
	data, err := marshalNodes(g.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(groupJSON{Type: nodeGroup, Relation: g.Relation, Data: data})
}

// UnmarshalJSON разбирает группу
func (g *Group) UnmarshalJSON(data []byte) error {
	var in groupJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	nodes, err := unmarshalNodes(in.Data)
	if err != nil {
		return err
	}
	*g = Group{Relation: in.Relation, Data: nodes}
	return nil
}

// MarshalJSON кодирует дерево
func (t *Tree) MarshalJSON() ([]byte, error) {
	data, err := marshalNodes(t.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(treeJSON{Relation: t.Relation, Data: data})
}

// UnmarshalJSON разбирает дерево
func (t *Tree) UnmarshalJSON(data []byte) error {
	var in treeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	nodes, err := unmarshalNodes(in.Data)
	if err != nil {
		return err
	}
	*t = Tree{Relation: in.Relation, Data: nodes}
	return nil
}

func marshalNodes(nodes []Node) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(nodes))
	for i, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("node %d is nil", i)
		}
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func unmarshalNodes(raws []json.RawMessage) ([]Node, error) {
	nodes := make([]Node, 0, len(raws))
	for i, raw := range raws {
		n, err := unmarshalNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// unmarshalNode определяет тип узла по полю type.
// Для метаданных без type группой считается объект с массивом data.
func unmarshalNode(raw json.RawMessage) (Node, error) {
	var probe struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	kind := probe.Type
	if kind == "" {
		kind = nodeCondition
		if len(probe.Data) > 0 && probe.Data[0] == '[' {
			kind = nodeGroup
		}
	}

	switch kind {
	case nodeGroup:
		g := &Group{}
		if err := g.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return g, nil
	case nodeCondition:
		c := &Condition{}
		if err := c.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown node type: %s", kind)
	}
}
