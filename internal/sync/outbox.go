package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"kassa/internal/backend"
	"kassa/internal/storage"
)

const outboxPrefix = "outbox:"

// Entry одна отложенная мутирующая операция. Тело уже полностью
// материализовано: для повтора не нужно никаких вычислений на клиенте.
// Запись не меняется на месте — повтор либо удаляет её, либо оставляет
// байт-в-байт той же для следующей попытки.
type Entry struct {
	ID        string          `json:"id"`
	Path      string          `json:"path"`
	Method    string          `json:"method"`
	Body      json.RawMessage `json:"body,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// FlushReport итог одного прохода по очереди
type FlushReport struct {
	Delivered int
	Rejected  int
	Remaining int
	Skipped   bool // другой проход уже шёл
}

// Outbox долговременная FIFO-очередь неподтверждённых операций.
// Порядок задаётся нулезаполненным счётчиком в ключе хранилища, поэтому
// лексикографический ListKeysWithPrefix возвращает записи в порядке
// постановки.
type Outbox struct {
	store  storage.Store
	client *backend.Client

	mu       gosync.Mutex
	flushing bool
	nextSeq  uint64

	// OnApplied вызывается после успешной доставки записи (для сверки UI);
	// OnRejected — при окончательном отказе бэкенда. Оба опциональны.
	OnApplied  func(Entry, backend.Result)
	OnRejected func(Entry, backend.Result)
}

// NewOutbox восстанавливает счётчик очереди из уже сохранённых записей
func NewOutbox(ctx context.Context, store storage.Store, client *backend.Client) (*Outbox, error) {
	o := &Outbox{store: store, client: client, nextSeq: 1}
	keys, err := store.ListKeysWithPrefix(ctx, outboxPrefix)
	if err != nil {
		return nil, fmt.Errorf("restore outbox: %w", err)
	}
	for _, k := range keys {
		if seq, ok := parseSeq(k); ok && seq >= o.nextSeq {
			o.nextSeq = seq + 1
		}
	}
	return o, nil
}

func entryKey(seq uint64) string {
	return fmt.Sprintf("%s%012d", outboxPrefix, seq)
}

func parseSeq(key string) (uint64, bool) {
	s := strings.TrimPrefix(key, outboxPrefix)
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Enqueue долговременно дописывает операцию в хвост очереди и сразу
// возвращается; доставку не пытается
func (o *Outbox) Enqueue(ctx context.Context, path, method string, body []byte) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		Path:      path,
		Method:    method,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}

	o.mu.Lock()
	seq := o.nextSeq
	o.nextSeq++
	o.mu.Unlock()

	if err := o.store.Set(ctx, entryKey(seq), data); err != nil {
		return Entry{}, fmt.Errorf("enqueue: %w", err)
	}
	return e, nil
}

// Pending количество записей, ещё ждущих доставки
func (o *Outbox) Pending(ctx context.Context) (int, error) {
	keys, err := o.store.ListKeysWithPrefix(ctx, outboxPrefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Flush один проход по очереди от головы к хвосту:
//   - 2xx — запись удаляется, вызывается OnApplied;
//   - 4xx — запись удаляется и сообщается через OnRejected: ядовитая
//     запись не должна навсегда блокировать те, что стоят за ней;
//   - сетевая ошибка/таймаут/5xx — запись остаётся, проход прекращается,
//     порядок сохранён.
//
// Параллельные вызовы сериализуются флагом flushing: второй триггер
// просто не делает ничего.
func (o *Outbox) Flush(ctx context.Context) (FlushReport, error) {
	o.mu.Lock()
	if o.flushing {
		o.mu.Unlock()
		return FlushReport{Skipped: true}, nil
	}
	o.flushing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.flushing = false
		o.mu.Unlock()
	}()

	var report FlushReport
	keys, err := o.store.ListKeysWithPrefix(ctx, outboxPrefix)
	if err != nil {
		return report, fmt.Errorf("flush: list: %w", err)
	}

	for _, key := range keys {
		data, err := o.store.Get(ctx, key)
		if err != nil {
			if err == storage.ErrNotFound {
				continue
			}
			return report, fmt.Errorf("flush: read %s: %w", key, err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			// нечитаемая запись — тоже ядовитая, удаляем и сообщаем
			log.Printf("outbox: dropping unreadable entry %s: %v", key, err)
			_ = o.store.Delete(ctx, key)
			report.Rejected++
			continue
		}

		res := o.client.Do(ctx, e.Method, e.Path, e.Body)
		switch {
		case res.OK():
			if err := o.store.Delete(ctx, key); err != nil {
				return report, fmt.Errorf("flush: delete %s: %w", key, err)
			}
			report.Delivered++
			if o.OnApplied != nil {
				o.OnApplied(e, res)
			}
		case res.Rejected():
			if err := o.store.Delete(ctx, key); err != nil {
				return report, fmt.Errorf("flush: delete %s: %w", key, err)
			}
			report.Rejected++
			log.Printf("outbox: entry %s %s %s rejected by backend (%d)", e.ID, e.Method, e.Path, res.Status)
			if o.OnRejected != nil {
				o.OnRejected(e, res)
			}
		default:
			// transient: остановиться, не перескакивая вперёд
			pending, perr := o.Pending(ctx)
			if perr == nil {
				report.Remaining = pending
			}
			return report, nil
		}
	}

	pending, err := o.Pending(ctx)
	if err == nil {
		report.Remaining = pending
	}
	return report, nil
}
