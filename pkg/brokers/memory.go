package brokers

import (
	"context"
	"fmt"
	"sync"
)

// Memory - in-process очередь для dev режима и тестов
type Memory struct {
	mu     sync.Mutex
	queue  chan Message
	closed bool
}

// NewMemory создает in-process очередь
func NewMemory(cfg Config) *Memory {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory{queue: make(chan Message, capacity)}
}

// Connect ничего не делает
func (m *Memory) Connect(ctx context.Context) error {
	return nil
}

// Close закрывает очередь; повторный вызов безопасен
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	return nil
}

// Send кладет сообщение в буфер и блокируется, если буфер заполнен
func (m *Memory) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory broker is closed")
	}
	select {
	case m.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive ждет следующее сообщение
func (m *Memory) Receive(ctx context.Context) (Message, error) {
	select {
	case msg, ok := <-m.queue:
		if !ok {
			return Message{}, fmt.Errorf("memory broker is closed")
		}
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Ack ничего не делает: сообщение удаляется из буфера при получении
func (m *Memory) Ack(ctx context.Context) error {
	return nil
}

// Len возвращает число сообщений в буфере
func (m *Memory) Len() int {
	return len(m.queue)
}

// Ping проверяет, что очередь не закрыта
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("memory broker is closed")
	}
	return nil
}

// GetBrokerType возвращает тип брокера
func (m *Memory) GetBrokerType() string {
	return "memory"
}
