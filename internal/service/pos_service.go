package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"kassa/internal/backend"
	"kassa/internal/cart"
	"kassa/internal/connectivity"
	"kassa/internal/domain"
	"kassa/internal/sync"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrCustomerRequired    = errors.New("customer required for credit sale")
	// ErrCreditLimitExceeded превышение кредитного лимита — жёсткий отказ;
	// низкий кредитный рейтинг, напротив, лишь предупреждение
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")
)

// creditScoreFloor ниже этого рейтинга продажа в кредит сопровождается
// предупреждением, но не блокируется
const creditScoreFloor = 500

// Outcome трёхзначный результат мутирующей операции, чтобы вызывающий код
// не мог спутать поставленную в очередь запись с подтверждённой
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeQueued    Outcome = "queued"
	OutcomeRejected  Outcome = "rejected"
)

// MutationResult итог мутирующего вызова: подтверждено бэкендом, отложено
// в очередь до появления связи либо окончательно отвергнуто
type MutationResult struct {
	Outcome  Outcome         `json:"outcome"`
	Response json.RawMessage `json:"response,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

// SyncStatus состояние синхронизации для индикации в UI
type SyncStatus struct {
	Online        bool   `json:"online"`
	Pending       int    `json:"pending"`
	LastRejection string `json:"last_rejection,omitempty"`
}

// POSService операции кассового терминала: чтение каталога через кэш,
// корзина, оформление продажи и складские операции с отложенной доставкой.
//
// Позиция с локальным идентификатором уходит в теле продажи со семантикой
// "создать новую"; клиент не переписывает ссылки корзины задним числом —
// локальная запись вытесняется целиком при следующем успешном обновлении
// списка каталога.
type POSService struct {
	cart    *cart.Cart
	fetcher *sync.Fetcher
	outbox  *sync.Outbox
	client  *backend.Client
	signal  *connectivity.Signal
	branch  string

	mu            gosync.Mutex
	lastRejection string
}

func NewPOSService(c *cart.Cart, fetcher *sync.Fetcher, outbox *sync.Outbox, client *backend.Client, signal *connectivity.Signal, branch string) *POSService {
	s := &POSService{
		cart:    c,
		fetcher: fetcher,
		outbox:  outbox,
		client:  client,
		signal:  signal,
		branch:  branch,
	}
	// окончательный отказ при повторе показывается пользователю,
	// молча он не ретраится
	outbox.OnRejected = func(e sync.Entry, res backend.Result) {
		s.mu.Lock()
		s.lastRejection = fmt.Sprintf("%s %s: %s", e.Method, e.Path, rejectionReason(res))
		s.mu.Unlock()
	}
	// каждый переход offline→online дренирует очередь
	signal.Subscribe(func(st connectivity.Status) {
		if st == connectivity.Online {
			log.Printf("connectivity: online, draining outbox")
			go s.flushQuietly()
		} else {
			log.Printf("connectivity: offline, queuing writes locally")
		}
	})
	return s
}

func (s *POSService) flushQuietly() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := s.outbox.Flush(ctx)
	if err != nil {
		log.Printf("outbox flush: %v", err)
		return
	}
	if !report.Skipped && (report.Delivered > 0 || report.Rejected > 0) {
		log.Printf("outbox flush: delivered=%d rejected=%d remaining=%d",
			report.Delivered, report.Rejected, report.Remaining)
	}
}

// Products список каталога через кэш-сквозное чтение
func (s *POSService) Products(ctx context.Context) sync.ReadResult {
	key := sync.CacheKey("products:list", s.branch)
	return s.fetcher.Read(ctx, key, "/api/v1/products")
}

// Customers список покупателей (нужен кассиру для кредитных продаж)
func (s *POSService) Customers(ctx context.Context) sync.ReadResult {
	key := sync.CacheKey("customers:list", s.branch)
	return s.fetcher.Read(ctx, key, "/api/v1/customers")
}

// AddItem кладёт позицию в корзину; force подтверждает предзаказ при
// исчерпанном запасе
func (s *POSService) AddItem(item domain.CatalogItem, qty float64, force bool) error {
	if item.Ident.IsZero() || item.Name == "" || item.UnitPrice < 0 || item.TaxRate < 0 {
		return ErrInvalidInput
	}
	if force {
		return s.cart.ForceAdd(item, qty)
	}
	return s.cart.Add(item, qty)
}

// AddCustomItem создаёт позицию, которой ещё нет на бэкенде, с локальным
// идентификатором и сразу кладёт её в корзину
func (s *POSService) AddCustomItem(name string, price, taxRate, qty float64, kind domain.ItemKind, unit string) (domain.CatalogItem, error) {
	if name == "" || price < 0 || taxRate < 0 {
		return domain.CatalogItem{}, ErrInvalidInput
	}
	if kind == "" {
		kind = domain.KindProduct
	}
	item := domain.CatalogItem{
		Ident:     domain.NewLocalIdent(),
		Name:      name,
		UnitPrice: price,
		TaxRate:   taxRate,
		Kind:      kind,
		Unit:      unit,
	}
	// запас у локальной позиции не проверяется: её ещё нет на складе
	if err := s.cart.ForceAdd(item, qty); err != nil {
		return domain.CatalogItem{}, err
	}
	return item, nil
}

func (s *POSService) RemoveItem(ident domain.Ident) { s.cart.Remove(ident) }

func (s *POSService) CartLines() []domain.CartLine { return s.cart.Lines() }

func (s *POSService) CartTotal() float64 { return s.cart.Total() }

// CheckoutRequest параметры оформления продажи
type CheckoutRequest struct {
	Payment  domain.PaymentType
	Tendered float64
	Customer *domain.Customer
}

// Checkout собирает тело продажи и отправляет его на бэкенд. При сетевой
// неудаче продажа ставится в очередь, корзина очищается, UI продолжает
// работу оптимистично. Отказ бэкенда по существу (4xx) — единственный
// случай, когда продажа не считается принятой.
func (s *POSService) Checkout(ctx context.Context, req CheckoutRequest) (MutationResult, error) {
	if s.cart.Empty() {
		return MutationResult{}, ErrEmptyCart
	}
	total := s.cart.Total()

	var payment domain.Payment
	var warning string
	switch req.Payment {
	case domain.PaymentCash:
		change := s.cart.ChangeDue(req.Tendered)
		if change < 0 {
			return MutationResult{}, ErrInsufficientPayment
		}
		payment = domain.Payment{Type: domain.PaymentCash, Tendered: req.Tendered, Change: change}
	case domain.PaymentCredit:
		if req.Customer == nil {
			return MutationResult{}, ErrCustomerRequired
		}
		// лимит — жёсткая блокировка, рейтинг — мягкое предупреждение
		if total > req.Customer.CreditLimit {
			return MutationResult{}, ErrCreditLimitExceeded
		}
		if req.Customer.CreditScore < creditScoreFloor {
			warning = fmt.Sprintf("customer credit score %d below %d", req.Customer.CreditScore, creditScoreFloor)
		}
		payment = domain.Payment{Type: domain.PaymentCredit}
	default:
		return MutationResult{}, ErrInvalidInput
	}

	sale := domain.Sale{
		ClientRef: uuid.NewString(),
		BranchID:  s.branch,
		Lines:     saleLines(s.cart.Lines()),
		Total:     total,
		Payment:   payment,
		CreatedAt: time.Now().UTC(),
	}
	if req.Customer != nil {
		sale.CustomerID = req.Customer.ID
	}
	body, err := json.Marshal(sale)
	if err != nil {
		return MutationResult{}, err
	}

	res, err := s.submit(ctx, "/api/v1/sales", http.MethodPost, body)
	if err != nil {
		return MutationResult{}, err
	}
	if res.Outcome != OutcomeRejected {
		// и подтверждённая, и отложенная продажа принята локально
		s.cart.Clear()
	}
	res.Warning = warning
	return res, nil
}

// CreateProduct создаёт товар на бэкенде; при сетевой неудаче операция
// откладывается в очередь
func (s *POSService) CreateProduct(ctx context.Context, item domain.CatalogItem) (MutationResult, error) {
	if item.Name == "" || item.UnitPrice < 0 || item.TaxRate < 0 || item.Stock < 0 {
		return MutationResult{}, ErrInvalidInput
	}
	body, err := json.Marshal(item)
	if err != nil {
		return MutationResult{}, err
	}
	return s.submit(ctx, "/api/v1/products", http.MethodPost, body)
}

// Restock приходует запас существующего товара
func (s *POSService) Restock(ctx context.Context, ident domain.Ident, qty int64) (MutationResult, error) {
	if ident.IsLocal() || ident.IsZero() || qty <= 0 {
		return MutationResult{}, ErrInvalidInput
	}
	body, err := json.Marshal(map[string]int64{"quantity": qty})
	if err != nil {
		return MutationResult{}, err
	}
	path := fmt.Sprintf("/api/v1/products/%d/restock", ident.ServerID)
	return s.submit(ctx, path, http.MethodPost, body)
}

// submit общий путь всех мутаций: попытка доставки, при transient —
// очередь, после успеха — попутный дренаж накопившегося
func (s *POSService) submit(ctx context.Context, path, method string, body []byte) (MutationResult, error) {
	if s.signal.Status() == connectivity.Online {
		res := s.client.Do(ctx, method, path, body)
		switch {
		case res.OK():
			// успешный фоновый вызов — повод дренировать очередь, не
			// дожидаясь следующего переподключения
			go s.flushQuietly()
			return MutationResult{Outcome: OutcomeConfirmed, Response: res.Body}, nil
		case res.Rejected():
			return MutationResult{Outcome: OutcomeRejected, Response: res.Body, Reason: rejectionReason(res)}, nil
		}
	}
	if _, err := s.outbox.Enqueue(ctx, path, method, body); err != nil {
		return MutationResult{}, err
	}
	return MutationResult{Outcome: OutcomeQueued}, nil
}

// Status текущее состояние синхронизации
func (s *POSService) Status(ctx context.Context) (SyncStatus, error) {
	pending, err := s.outbox.Pending(ctx)
	if err != nil {
		return SyncStatus{}, err
	}
	s.mu.Lock()
	rejection := s.lastRejection
	s.mu.Unlock()
	return SyncStatus{
		Online:        s.signal.Status() == connectivity.Online,
		Pending:       pending,
		LastRejection: rejection,
	}, nil
}

// Flush ручной дренаж очереди (кнопка "синхронизировать сейчас")
func (s *POSService) Flush(ctx context.Context) (sync.FlushReport, error) {
	return s.outbox.Flush(ctx)
}

func saleLines(lines []domain.CartLine) []domain.SaleLine {
	out := make([]domain.SaleLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.SaleLine{
			Ident:     l.Item.Ident,
			Name:      l.Item.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.Item.UnitPrice,
			TaxRate:   l.Item.TaxRate,
			Subtotal:  l.Subtotal,
		})
	}
	return out
}

func rejectionReason(res backend.Result) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(res.Body, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("backend rejected with status %d", res.Status)
}
