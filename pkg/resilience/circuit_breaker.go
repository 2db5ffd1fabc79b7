// Package resilience защищает вызовы внешних зависимостей (брокеры сообщений)
// от каскадных сбоев с помощью Circuit Breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen - circuit breaker открыт
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyCalls - слишком много одновременных вызовов
	ErrTooManyCalls = errors.New("too many concurrent calls")
)

// ExecuteFunc - функция для выполнения с circuit breaker
type ExecuteFunc func(ctx context.Context) error

// CircuitBreaker - защита от каскадных сбоев
type CircuitBreaker struct {
	config Config
	sm     *stateManager
}

// New создает Circuit Breaker
func New(config Config) (*CircuitBreaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &CircuitBreaker{config: config, sm: newStateManager(config)}, nil
}

// Execute выполняет fn, если circuit не открыт, и учитывает результат
func (cb *CircuitBreaker) Execute(ctx context.Context, fn ExecuteFunc) error {
	if !cb.config.Enabled {
		return fn(ctx)
	}

	generation, err := cb.sm.beforeRequest()
	if err != nil {
		return fmt.Errorf("%s: %w", cb.config.Name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			cb.sm.afterRequest(generation, false)
			panic(r)
		}
	}()

	err = fn(ctx)
	cb.sm.afterRequest(generation, !cb.config.IsFailure(err))
	return err
}

// State возвращает текущее состояние
func (cb *CircuitBreaker) State() State {
	return cb.sm.stats().State
}

// Stats возвращает снимок статистики
func (cb *CircuitBreaker) Stats() Stats {
	return cb.sm.stats()
}

// Reset переводит circuit в Closed
func (cb *CircuitBreaker) Reset() {
	cb.sm.reset()
}

// Name - имя Circuit Breaker
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

func (cb *CircuitBreaker) String() string {
	st := cb.Stats()
	return fmt.Sprintf("CircuitBreaker(%s state=%s failures=%d/%d)",
		cb.config.Name, st.State, st.Counts.ConsecutiveFailures, cb.config.MaxFailures)
}
