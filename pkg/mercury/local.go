package mercury

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Local хранит ключи в памяти процесса с той же семантикой burn-on-read.
// Подходит, когда публикация и исполнение идут в одном процессе (dev-режим).
type Local struct {
	mu   sync.Mutex
	keys map[uuid.UUID][]byte
}

// NewLocal создает пустое хранилище
func NewLocal() *Local {
	return &Local{keys: make(map[uuid.UUID][]byte)}
}

// BindKey генерирует случайный ключ AES-256. Повторная привязка заменяет ключ.
func (l *Local) BindKey(_ context.Context, processID uuid.UUID, _ string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("bind key %s: generate: %w", processID, err)
	}

	l.mu.Lock()
	l.keys[processID] = key
	l.mu.Unlock()

	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

// RetrieveKey возвращает ключ и удаляет его
func (l *Local) RetrieveKey(_ context.Context, processID uuid.UUID) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, ok := l.keys[processID]
	if !ok {
		return nil, fmt.Errorf("retrieve key %s: %w", processID, ErrKeyNotFound)
	}
	delete(l.keys, processID)
	return key, nil
}

// Len - количество непрочитанных ключей
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
