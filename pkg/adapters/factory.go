package adapters

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Constructor возвращает новый, еще не подключенный адаптер
type Constructor func() Adapter

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register регистрирует адаптер под типом СУБД.
// Вызывается из init() пакета адаптера:
//
//	func init() {
//	    adapters.Register("mysql", func() adapters.Adapter { return &Adapter{} })
//	}
//
// Повторная регистрация того же типа заменяет конструктор.
func Register(dbType string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[dbType] = constructor
}

// IsRegistered проверяет, подключен ли пакет адаптера для dbType
func IsRegistered(dbType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dbType]
	return ok
}

// GetRegisteredTypes возвращает зарегистрированные типы по алфавиту
func GetRegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	types := make([]string, 0, len(registry))
	for dbType := range registry {
		types = append(types, dbType)
	}
	sort.Strings(types)
	return types
}

// New создает адаптер по cfg.Type и подключает его.
// cfg.Timeout ограничивает только установку соединения.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	registryMu.RLock()
	constructor, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown database type: %q (available types: %v)", cfg.Type, GetRegisteredTypes())
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	adapter := constructor()
	if err := adapter.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
	}
	return adapter, nil
}
