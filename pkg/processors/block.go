// Package processors содержит блочные преобразования тела конверта процесса:
// сжатие zstd, контрольная сумма xxh3 и шифрование AES-256-GCM.
package processors

import (
	"context"
	"fmt"
)

// BlockProcessor преобразует блок данных целиком
type BlockProcessor interface {
	Name() string
	ProcessBlock(ctx context.Context, input []byte) ([]byte, error)
}

// Chain выполняет блочные процессоры последовательно
type Chain struct {
	processors []BlockProcessor
}

// NewChain создает новую цепочку процессоров
func NewChain(processors ...BlockProcessor) *Chain {
	return &Chain{processors: processors}
}

// Add добавляет процессор в конец цепочки
func (c *Chain) Add(p BlockProcessor) {
	c.processors = append(c.processors, p)
}

// Len возвращает количество процессоров в цепочке
func (c *Chain) Len() int {
	return len(c.processors)
}

// Names возвращает имена процессоров в порядке выполнения
func (c *Chain) Names() []string {
	names := make([]string, len(c.processors))
	for i, p := range c.processors {
		names[i] = p.Name()
	}
	return names
}

// ProcessBlock реализует BlockProcessor для всей цепочки
func (c *Chain) ProcessBlock(ctx context.Context, input []byte) ([]byte, error) {
	result := input
	for i, p := range c.processors {
		var err error
		result, err = p.ProcessBlock(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("processor %d (%s) failed: %w", i, p.Name(), err)
		}
	}
	return result, nil
}
