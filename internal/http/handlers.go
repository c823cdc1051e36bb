package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"kassa/internal/cart"
	"kassa/internal/domain"
	"kassa/internal/service"
)

type Server struct {
	engine *gin.Engine
	pos    *service.POSService
}

func NewServer(pos *service.POSService) *Server {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	s := &Server{engine: r, pos: pos}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/catalog", s.listCatalog)
		v1.GET("/customers", s.listCustomers)

		cartGroup := v1.Group("/cart")
		cartGroup.GET("", s.getCart)
		cartGroup.POST("/items", s.addCartItem)
		cartGroup.DELETE("/items/:key", s.removeCartItem)

		v1.POST("/checkout", s.checkout)

		v1.POST("/products", s.createProduct)
		v1.POST("/products/:id/restock", s.restockProduct)

		syncGroup := v1.Group("/sync")
		syncGroup.GET("/status", s.syncStatus)
		syncGroup.POST("/flush", s.syncFlush)
	}
}

// @Summary List catalog (cache-through)
// @Tags catalog
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]string
// @Router /catalog [get]
func (s *Server) listCatalog(c *gin.Context) {
	res := s.pos.Products(c)
	if res.Missing {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline and no cached data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res.Data, "from_cache": res.FromCache})
}

// @Summary List customers (cache-through)
// @Tags catalog
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]string
// @Router /customers [get]
func (s *Server) listCustomers(c *gin.Context) {
	res := s.pos.Customers(c)
	if res.Missing {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "offline and no cached data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res.Data, "from_cache": res.FromCache})
}

type addItemReq struct {
	ServerID int64           `json:"server_id"`
	Custom   bool            `json:"custom"`
	Name     string          `json:"name"`
	Price    float64         `json:"unit_price"`
	TaxRate  float64         `json:"tax_rate"`
	Kind     domain.ItemKind `json:"kind"`
	Stock    int64           `json:"stock"`
	Unit     string          `json:"unit"`
	Quantity float64         `json:"quantity"`
	// Force подтверждает добавление при исчерпанном запасе (предзаказ)
	Force bool `json:"force"`
}

// @Summary Add item to cart
// @Tags cart
// @Accept json
// @Produce json
// @Param input body addItemReq true "Item"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	var req addItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Custom {
		item, err := s.pos.AddCustomItem(req.Name, req.Price, req.TaxRate, req.Quantity, req.Kind, req.Unit)
		if err != nil {
			c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "lines": s.pos.CartLines(), "total": s.pos.CartTotal()})
		return
	}
	item := domain.CatalogItem{
		Ident:     domain.ServerIdent(req.ServerID),
		Name:      req.Name,
		UnitPrice: req.Price,
		TaxRate:   req.TaxRate,
		Kind:      req.Kind,
		Stock:     req.Stock,
		Unit:      req.Unit,
	}
	if err := s.pos.AddItem(item, req.Quantity, req.Force); err != nil {
		if err == cart.ErrOutOfStock {
			// точка решения: клиент может повторить с force=true
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "decision_required": true})
			return
		}
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": s.pos.CartLines(), "total": s.pos.CartTotal()})
}

// @Summary Remove item from cart
// @Tags cart
// @Param key path string true "Item key (srv-<id> or local-<uuid>)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /cart/items/{key} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	ident, err := parseIdentKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item key"})
		return
	}
	s.pos.RemoveItem(ident)
	c.JSON(http.StatusOK, gin.H{"lines": s.pos.CartLines(), "total": s.pos.CartTotal()})
}

// @Summary Current cart
// @Tags cart
// @Produce json
// @Success 200 {object} map[string]any
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": s.pos.CartLines(), "total": s.pos.CartTotal()})
}

type checkoutReq struct {
	Payment  domain.PaymentType `json:"payment"`
	Tendered float64            `json:"tendered"`
	Customer *domain.Customer   `json:"customer,omitempty"`
}

// @Summary Checkout current cart
// @Tags checkout
// @Accept json
// @Produce json
// @Param input body checkoutReq true "Payment"
// @Success 200 {object} service.MutationResult
// @Success 202 {object} service.MutationResult
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /checkout [post]
func (s *Server) checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.pos.Checkout(c, service.CheckoutRequest{
		Payment:  req.Payment,
		Tendered: req.Tendered,
		Customer: req.Customer,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(mutationStatus(res), res)
}

type createProductReq struct {
	Name    string  `json:"name"`
	Price   float64 `json:"unit_price"`
	TaxRate float64 `json:"tax_rate"`
	Stock   int64   `json:"stock"`
	Unit    string  `json:"unit"`
}

// @Summary Create product on the backend
// @Tags products
// @Accept json
// @Produce json
// @Param input body createProductReq true "Product"
// @Success 200 {object} service.MutationResult
// @Success 202 {object} service.MutationResult
// @Failure 400 {object} map[string]string
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req createProductReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.pos.CreateProduct(c, domain.CatalogItem{
		Name:      req.Name,
		UnitPrice: req.Price,
		TaxRate:   req.TaxRate,
		Kind:      domain.KindProduct,
		Stock:     req.Stock,
		Unit:      req.Unit,
	})
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(mutationStatus(res), res)
}

type restockReq struct {
	Quantity int64 `json:"quantity"`
}

// @Summary Restock product
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body restockReq true "Quantity"
// @Success 200 {object} service.MutationResult
// @Success 202 {object} service.MutationResult
// @Failure 400 {object} map[string]string
// @Router /products/{id}/restock [post]
func (s *Server) restockProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req restockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.pos.Restock(c, domain.ServerIdent(id), req.Quantity)
	if err != nil {
		c.JSON(mapErrorToStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(mutationStatus(res), res)
}

// @Summary Sync status
// @Tags sync
// @Produce json
// @Success 200 {object} service.SyncStatus
// @Router /sync/status [get]
func (s *Server) syncStatus(c *gin.Context) {
	st, err := s.pos.Status(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary Drain the outbox now
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]any
// @Router /sync/flush [post]
func (s *Server) syncFlush(c *gin.Context) {
	report, err := s.pos.Flush(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"delivered": report.Delivered,
		"rejected":  report.Rejected,
		"remaining": report.Remaining,
		"skipped":   report.Skipped,
	})
}

func parseIdentKey(key string) (domain.Ident, error) {
	if strings.HasPrefix(key, "local-") {
		return domain.Ident{LocalID: key}, nil
	}
	if strings.HasPrefix(key, "srv-") {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, "srv-"), 10, 64)
		if err != nil || id <= 0 {
			return domain.Ident{}, service.ErrInvalidInput
		}
		return domain.ServerIdent(id), nil
	}
	return domain.Ident{}, service.ErrInvalidInput
}

// mutationStatus отложенная операция отвечает 202, подтверждённая 200,
// отвергнутая 409
func mutationStatus(res service.MutationResult) int {
	switch res.Outcome {
	case service.OutcomeQueued:
		return http.StatusAccepted
	case service.OutcomeRejected:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func mapErrorToStatus(err error) int {
	switch err {
	case service.ErrInvalidInput, service.ErrEmptyCart, service.ErrInsufficientPayment, service.ErrCustomerRequired:
		return http.StatusBadRequest
	case cart.ErrInvalidQuantity:
		return http.StatusBadRequest
	case cart.ErrOutOfStock, service.ErrCreditLimitExceeded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
