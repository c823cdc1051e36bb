package sync

import (
	"context"
	"encoding/json"

	"kassa/internal/backend"
	"kassa/internal/connectivity"
	"kassa/internal/storage"
)

const cachePrefix = "cache:"

// CacheKey собирает человекочитаемый ключ кэша: ресурс плюс область
// видимости (филиал). Любой параметр, меняющий выборку, обязан попасть
// в ключ, иначе две выборки столкнутся в одном слоте.
func CacheKey(resource, scope string) string {
	if scope == "" {
		scope = "ALL"
	}
	return resource + ":" + scope
}

// ReadResult трёхзначный результат чтения: живые данные, данные из кэша
// или Missing, когда сети нет и кэш пуст. Ошибок наружу нет намеренно —
// вызывающий код различает состояния по полям, а не по try/catch.
type ReadResult struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"from_cache"`
	Missing   bool            `json:"missing"`
}

// Fetcher одно логическое чтение: сначала сеть, при неудаче кэш
type Fetcher struct {
	store  storage.Store
	client *backend.Client
	signal *connectivity.Signal
}

func NewFetcher(store storage.Store, client *backend.Client, signal *connectivity.Signal) *Fetcher {
	return &Fetcher{store: store, client: client, signal: signal}
}

// Read выполняет одно логическое чтение: онлайн — сеть с обновлением кэша,
// офлайн или неудача — последнее удачное значение.
// Неудачное чтение никогда не затирает ранее закэшированное.
func (f *Fetcher) Read(ctx context.Context, key, path string) ReadResult {
	if f.signal.Status() == connectivity.Online {
		res := f.client.Get(ctx, path)
		if res.OK() {
			// кэш обновляется только после успешного ответа
			_ = f.store.Set(ctx, cachePrefix+key, res.Body)
			return ReadResult{Data: res.Body, FromCache: false}
		}
	}
	cached, err := f.store.Get(ctx, cachePrefix+key)
	if err != nil {
		return ReadResult{Missing: true}
	}
	return ReadResult{Data: cached, FromCache: true}
}
