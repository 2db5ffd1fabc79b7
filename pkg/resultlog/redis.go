// Package resultlog публикует итоги выполнения процессов в Redis.
package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/tdtp-steps/pkg/executor"
)

// KeyPrefix - префикс ключей и каналов результатов
const KeyPrefix = "tdtp:process:"

// StateKey возвращает ключ последнего состояния процесса
func StateKey(processID string) string {
	return KeyPrefix + processID + ":state"
}

// Channel возвращает канал событий процесса
func Channel(processID string) string {
	return KeyPrefix + processID
}

// RedisPublisher публикует итог выполнения процесса:
//
//	SET     tdtp:process:<id>:state <JSON> EX <ttl>  - для опроса
//	PUBLISH tdtp:process:<id> <JSON>                 - для подписчиков
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublisher создает publisher поверх готового клиента
func NewRedisPublisher(client *redis.Client, ttl time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, ttl: ttl}
}

// Publish реализует executor.Reporter
func (p *RedisPublisher) Publish(ctx context.Context, report *executor.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	id := report.ProcessID.String()
	if err := p.client.Set(ctx, StateKey(id), payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(id), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Last возвращает последний опубликованный итог процесса (nil, если его нет или он истек)
func (p *RedisPublisher) Last(ctx context.Context, processID string) (*executor.Report, error) {
	data, err := p.client.Get(ctx, StateKey(processID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var report executor.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}
