package processors

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"
)

// ChecksumProcessor вычисляет и проверяет xxh3 (64-bit) контрольную сумму блока.
//
//  1. Генерация (expected == ""): хеш передается в callback
//  2. Валидация (expected != ""): несовпадение хеша - ошибка
type ChecksumProcessor struct {
	expected string
	callback func(string)
}

// NewChecksumProcessor создает процессор контрольных сумм
func NewChecksumProcessor(expectedHash string, callback func(string)) *ChecksumProcessor {
	return &ChecksumProcessor{expected: expectedHash, callback: callback}
}

// Name реализует BlockProcessor
func (p *ChecksumProcessor) Name() string { return "xxh3" }

// ProcessBlock не меняет данные
func (p *ChecksumProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	actual := ComputeChecksum(input)
	if p.expected != "" && actual != p.expected {
		return nil, fmt.Errorf("checksum mismatch: expected %s, got %s (data corruption detected)", p.expected, actual)
	}
	if p.callback != nil {
		p.callback(actual)
	}
	return input, nil
}

// ComputeChecksum возвращает xxh3 хеш данных в hex (16 символов)
func ComputeChecksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

// ValidateChecksum проверяет соответствие данных ожидаемому хешу
func ValidateChecksum(data []byte, expectedHash string) error {
	if actual := ComputeChecksum(data); actual != expectedHash {
		return fmt.Errorf("checksum validation failed: expected %s, got %s", expectedHash, actual)
	}
	return nil
}
