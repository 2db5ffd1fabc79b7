package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config - конфигурация Circuit Breaker
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`

	// MaxFailures - число последовательных ошибок для открытия
	MaxFailures uint32 `yaml:"max_failures"`

	// Timeout - время в Open состоянии перед переходом в Half-Open
	Timeout time.Duration `yaml:"timeout"`

	// MaxConcurrentCalls - лимит одновременных вызовов (0 = без ограничений)
	MaxConcurrentCalls uint32 `yaml:"max_concurrent_calls"`

	// SuccessThreshold - успешных вызовов в Half-Open для закрытия
	SuccessThreshold uint32 `yaml:"success_threshold"`

	// OnStateChange вызывается асинхронно при смене состояния
	OnStateChange func(name string, from State, to State) `yaml:"-"`

	// IsFailure решает, считать ли ошибку сбоем зависимости.
	// По умолчанию отмена контекста вызывающим сбоем не считается.
	IsFailure func(err error) bool `yaml:"-"`
}

// Counts - счетчики запросов
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	if c.MaxFailures == 0 {
		return fmt.Errorf("MaxFailures must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be greater than 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Name == "" {
		c.Name = "circuit-breaker"
	}
	if c.IsFailure == nil {
		c.IsFailure = defaultIsFailure
	}
	return nil
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// DefaultConfig - конфигурация по умолчанию
func DefaultConfig(name string) Config {
	return Config{
		Enabled:          true,
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		SuccessThreshold: 2,
	}
}
