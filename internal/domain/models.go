package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ItemKind вид позиции каталога
type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindService ItemKind = "service"
)

// Ident идентификатор позиции каталога: либо серверный ID, либо локальный
// временный тег для позиций, ещё не сохранённых на бэкенде. Заполнено ровно
// одно из двух полей.
type Ident struct {
	ServerID int64  `json:"server_id,omitempty"`
	LocalID  string `json:"local_id,omitempty"`
}

func ServerIdent(id int64) Ident { return Ident{ServerID: id} }

// NewLocalIdent выдаёт свежий локальный идентификатор. Такой идентификатор
// никогда не отправляется на бэкенд как ссылка на существующую запись —
// он означает "создать новую".
func NewLocalIdent() Ident {
	return Ident{LocalID: "local-" + uuid.NewString()}
}

func (i Ident) IsLocal() bool { return i.LocalID != "" }

func (i Ident) IsZero() bool { return i.ServerID == 0 && i.LocalID == "" }

// Key строковый ключ для map и путей API
func (i Ident) Key() string {
	if i.IsLocal() {
		return i.LocalID
	}
	return "srv-" + strconv.FormatInt(i.ServerID, 10)
}

// CatalogItem товар или услуга, доступные к продаже
type CatalogItem struct {
	Ident     Ident    `json:"ident"`
	Name      string   `json:"name"`
	UnitPrice float64  `json:"unit_price"`
	TaxRate   float64  `json:"tax_rate"`
	Kind      ItemKind `json:"kind"`
	Stock     int64    `json:"stock"`
	Unit      string   `json:"unit,omitempty"`
}

// CartLine строка корзины; Subtotal всегда пересчитывается из
// (Quantity, UnitPrice, TaxRate) и никогда не задаётся независимо
type CartLine struct {
	Item     CatalogItem `json:"item"`
	Quantity float64     `json:"quantity"`
	Subtotal float64     `json:"subtotal"`
}

// PaymentType способ оплаты
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

// Payment данные об оплате продажи
type Payment struct {
	Type     PaymentType `json:"type"`
	Tendered float64     `json:"tendered,omitempty"`
	Change   float64     `json:"change,omitempty"`
}

// SaleLine строка в теле продажи, отправляемом на бэкенд
type SaleLine struct {
	Ident     Ident   `json:"ident"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	TaxRate   float64 `json:"tax_rate"`
	Subtotal  float64 `json:"subtotal"`
}

// Sale полностью материализованное тело продажи. ClientRef — клиентский
// uuid для дедупликации на стороне бэкенда; клиент сам по нему ничего не
// подавляет.
type Sale struct {
	ClientRef  string     `json:"client_ref"`
	BranchID   string     `json:"branch_id,omitempty"`
	CustomerID int64      `json:"customer_id,omitempty"`
	Lines      []SaleLine `json:"lines"`
	Total      float64    `json:"total"`
	Payment    Payment    `json:"payment"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Customer данные покупателя для кредитной политики
type Customer struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	CreditLimit float64 `json:"credit_limit"`
	CreditScore int     `json:"credit_score"`
}
