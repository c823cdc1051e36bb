package storage

import (
	"context"
	"errors"
)

// ErrNotFound возвращается, когда ключ отсутствует в хранилище
var ErrNotFound = errors.New("not found")

// Store контракт локального долговременного хранилища. Кэш чтений и
// очередь исходящих операций живут в непересекающихся префиксах ключей.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// ListKeysWithPrefix возвращает ключи в лексикографическом порядке
	ListKeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}
