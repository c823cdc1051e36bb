package cart

import (
	"errors"
	"sync"

	"kassa/internal/domain"
)

var (
	// ErrOutOfStock запас товара исчерпан; это точка решения, а не жёсткий
	// отказ — вызывающий код обязан дать пользователю выбор: добавить в
	// предзаказ через ForceAdd или отменить
	ErrOutOfStock = errors.New("out of stock")
	// ErrInvalidQuantity количество должно быть положительным
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Cart корзина текущей продажи. Мутации синхронны и атомарны с точки
// зрения вызывающего кода; внутри них нет точек ожидания.
type Cart struct {
	mu    sync.Mutex
	lines map[string]*domain.CartLine
	order []string // ключи в порядке первого добавления
}

func New() *Cart {
	return &Cart{lines: make(map[string]*domain.CartLine)}
}

// subtotal единственная формула стоимости строки: налог всегда сверху
// прейскурантной цены, никогда не внутри неё
func subtotal(qty, unitPrice, taxRate float64) float64 {
	return qty * unitPrice * (1 + taxRate)
}

// Add добавляет позицию. Услуги принимаются всегда, запас для них не
// проверяется и не списывается. Для товара с исчерпанным запасом
// возвращается ErrOutOfStock — корзина сама не урезает количество и не
// блокирует добавление молча.
func (c *Cart) Add(item domain.CatalogItem, qty float64) error {
	if item.Kind == domain.KindProduct && item.Stock < 1 {
		return ErrOutOfStock
	}
	return c.ForceAdd(item, qty)
}

// ForceAdd добавляет позицию без проверки запаса (подтверждённый предзаказ).
// Повторное добавление той же позиции сливается в одну строку: количество
// суммируется, Subtotal пересчитывается из актуальных значений.
func (c *Cart) ForceAdd(item domain.CatalogItem, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := item.Ident.Key()
	if line, ok := c.lines[key]; ok {
		line.Quantity += qty
		line.Subtotal = subtotal(line.Quantity, line.Item.UnitPrice, line.Item.TaxRate)
		return nil
	}
	c.lines[key] = &domain.CartLine{
		Item:     item,
		Quantity: qty,
		Subtotal: subtotal(qty, item.UnitPrice, item.TaxRate),
	}
	c.order = append(c.order, key)
	return nil
}

// Remove удаляет строку; отсутствие строки не ошибка
func (c *Cart) Remove(ident domain.Ident) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ident.Key()
	if _, ok := c.lines[key]; !ok {
		return
	}
	delete(c.lines, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// SetQuantity явная правка количества существующей строки
func (c *Cart) SetQuantity(ident domain.Ident, qty float64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	line, ok := c.lines[ident.Key()]
	if !ok {
		return nil
	}
	line.Quantity = qty
	line.Subtotal = subtotal(qty, line.Item.UnitPrice, line.Item.TaxRate)
	return nil
}

// Lines строки корзины в порядке первого добавления (копии)
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CartLine, 0, len(c.order))
	for _, key := range c.order {
		if line, ok := c.lines[key]; ok {
			out = append(out, *line)
		}
	}
	return out
}

// Total сумма всех строк; всегда пересчитывается из текущего состояния
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, line := range c.lines {
		total += line.Subtotal
	}
	return total
}

// ChangeDue сдача при наличной оплате; отрицательное значение означает
// недостаточную оплату и должно блокировать продажу на стороне вызова
func (c *Cart) ChangeDue(tendered float64) float64 {
	return tendered - c.Total()
}

// Clear очищает корзину после успешного оформления продажи
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = make(map[string]*domain.CartLine)
	c.order = nil
}

// Empty пуста ли корзина
func (c *Cart) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines) == 0
}
