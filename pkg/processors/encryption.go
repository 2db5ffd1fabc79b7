package processors

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ruslano69/tdtp-steps/pkg/crypto"
)

// EncryptionProcessor шифрует блок AES-256-GCM с привязкой к ID процесса
type EncryptionProcessor struct {
	key []byte
	id  uuid.UUID
}

// NewEncryptionProcessor создает процессор шифрования
func NewEncryptionProcessor(key []byte, processID uuid.UUID) *EncryptionProcessor {
	return &EncryptionProcessor{key: key, id: processID}
}

// Name реализует BlockProcessor
func (p *EncryptionProcessor) Name() string { return "aes-gcm" }

// ProcessBlock шифрует блок
func (p *EncryptionProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	return crypto.Encrypt(p.key, input, p.id)
}

// DecryptionProcessor расшифровывает блок и проверяет ID процесса
type DecryptionProcessor struct {
	key []byte
	id  uuid.UUID
}

// NewDecryptionProcessor создает процессор расшифровки.
// uuid.Nil отключает проверку ID.
func NewDecryptionProcessor(key []byte, processID uuid.UUID) *DecryptionProcessor {
	return &DecryptionProcessor{key: key, id: processID}
}

// Name реализует BlockProcessor
func (p *DecryptionProcessor) Name() string { return "aes-gcm-open" }

// ProcessBlock расшифровывает блок
func (p *DecryptionProcessor) ProcessBlock(_ context.Context, input []byte) ([]byte, error) {
	id, plaintext, err := crypto.Decrypt(p.key, input)
	if err != nil {
		return nil, err
	}
	if p.id != uuid.Nil && id != p.id {
		return nil, fmt.Errorf("envelope belongs to process %s, want %s", id, p.id)
	}
	return plaintext, nil
}
