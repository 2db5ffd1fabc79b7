package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ruslano69/tdtp-steps/pkg/core/schema"
)

const cacheKeyPrefix = "catalog:columns:"

// Cached оборачивает любой Catalog и кэширует колонки таблиц в Redis.
// Ошибки Redis не фатальны: запрос уходит во внутренний каталог.
type Cached struct {
	inner Catalog
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCached создает кэширующий каталог
func NewCached(inner Catalog, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: ttl}
}

// ListTables не кэшируется: список таблиц меняется шагами процесса
func (c *Cached) ListTables(ctx context.Context) ([]schema.Table, error) {
	return c.inner.ListTables(ctx)
}

// FetchColumns реализует Catalog
func (c *Cached) FetchColumns(ctx context.Context, tableID string) (*TableWithColumns, error) {
	cacheKey := cacheKeyPrefix + tableID

	cached, err := c.rdb.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var twc TableWithColumns
		if err := json.Unmarshal(cached, &twc); err == nil {
			return &twc, nil
		}
		log.Warn().Str("table", tableID).Msg("catalog cache: corrupt entry, refetching")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("table", tableID).Msg("catalog cache: redis unavailable")
	}

	twc, err := c.inner.FetchColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(twc); err == nil {
		// запись в кэш best-effort
		_ = c.rdb.Set(ctx, cacheKey, data, c.ttl).Err()
	}
	return twc, nil
}

// FetchColumnsForTables реализует Catalog
func (c *Cached) FetchColumnsForTables(ctx context.Context, tableIDs []string) ([]TableWithColumns, error) {
	return fetchEach(ctx, c, tableIDs)
}

// Invalidate удаляет закэшированные колонки таблиц.
// Вызывается после шагов, меняющих структуру таблиц.
func (c *Cached) Invalidate(ctx context.Context, tableIDs ...string) error {
	if len(tableIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tableIDs))
	for _, id := range tableIDs {
		keys = append(keys, cacheKeyPrefix+id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
