// Package api exposes the core contracts over HTTP. Handlers stay thin:
// decode, call the service, map the error kind to a status code.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/cart"
	"github.com/example/tableserve/pkg/checkout"
	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/ledger"
	"github.com/example/tableserve/pkg/models"
	"github.com/example/tableserve/pkg/payment"
	"github.com/example/tableserve/pkg/payout"
	"github.com/example/tableserve/pkg/reservation"
)

// Catalog is the menu collaborator; the core only reads it.
type Catalog interface {
	GetMenuItem(ctx context.Context, id string) (*models.MenuItem, error)
}

type Server struct {
	config       *config.Config
	logger       *zap.Logger
	router       *gin.Engine
	catalog      Catalog
	carts        *cart.Aggregator
	checkout     *checkout.Orchestrator
	ledger       *ledger.Ledger
	payouts      *payout.Aggregator
	reservations *reservation.Service
}

func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	catalog Catalog,
	carts *cart.Aggregator,
	orchestrator *checkout.Orchestrator,
	txnLedger *ledger.Ledger,
	payouts *payout.Aggregator,
	reservations *reservation.Service,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		config:       cfg,
		logger:       logger,
		router:       router,
		catalog:      catalog,
		carts:        carts,
		checkout:     orchestrator,
		ledger:       txnLedger,
		payouts:      payouts,
		reservations: reservations,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		cartRoutes := v1.Group("/cart")
		{
			cartRoutes.GET("", s.getCart)
			cartRoutes.POST("/items", s.addCartItem)
			cartRoutes.PUT("/items/:lineId", s.updateCartLine)
			cartRoutes.DELETE("/items/:lineId", s.removeCartLine)
			cartRoutes.DELETE("", s.clearCart)
		}

		v1.POST("/checkout", s.submitCheckout)

		orders := v1.Group("/orders")
		{
			orders.GET("/:id", s.getOrder)
			orders.POST("/:id/status", s.updateOrderStatus)
		}

		restaurants := v1.Group("/restaurants/:id")
		{
			restaurants.GET("/orders", s.listOrders)
			restaurants.GET("/transactions", s.listTransactions)
			restaurants.GET("/analytics", s.getAnalytics)
			restaurants.GET("/analytics/daily", s.getDayWiseAnalytics)
			restaurants.POST("/payouts", s.createPayout)
			restaurants.GET("/payouts", s.listPayouts)
			restaurants.GET("/reservations/availability", s.getAvailability)
		}

		v1.POST("/payouts/:id/status", s.updatePayoutStatus)

		reservations := v1.Group("/reservations")
		{
			reservations.POST("", s.createReservation)
			reservations.GET("/:id", s.getReservation)
			reservations.POST("/:id/status", s.updateReservationStatus)
			reservations.PUT("/:id/table", s.assignTable)
			reservations.GET("/:id/checkin.png", s.getCheckInCode)
		}
	}

	s.router.POST("/webhooks/payment", s.paymentWebhook)

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
	s.logger.Info("HTTP server starting", zap.String("address", addr))
	return s.router.Run(addr)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// --- cart ---

func sessionID(c *gin.Context) string {
	return c.GetHeader("X-Session-ID")
}

type addCartItemRequest struct {
	ItemID   string   `json:"item_id" binding:"required"`
	Quantity int      `json:"quantity"`
	Variant  string   `json:"variant"`
	Addons   []string `json:"addons"`
}

func (s *Server) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := s.catalog.GetMenuItem(c.Request.Context(), req.ItemID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// switching restaurants requires an explicit replace
	if c.Query("replace") == "true" {
		if err := s.carts.Clear(c.Request.Context(), sessionID(c)); err != nil {
			s.respondError(c, err)
			return
		}
	}

	updated, err := s.carts.Add(c.Request.Context(), cart.AddRequest{
		SessionID:   sessionID(c),
		Item:        item,
		Quantity:    req.Quantity,
		VariantName: req.Variant,
		AddonNames:  req.Addons,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondCart(c, updated)
}

type updateCartLineRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateCartLine(c *gin.Context) {
	var req updateCartLineRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	updated, err := s.carts.UpdateQuantity(c.Request.Context(), sessionID(c), c.Param("lineId"), req.Quantity)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondCart(c, updated)
}

func (s *Server) removeCartLine(c *gin.Context) {
	updated, err := s.carts.Remove(c.Request.Context(), sessionID(c), c.Param("lineId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondCart(c, updated)
}

func (s *Server) getCart(c *gin.Context) {
	current, err := s.carts.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondCart(c, current)
}

func (s *Server) clearCart(c *gin.Context) {
	if err := s.carts.Clear(c.Request.Context(), sessionID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) respondCart(c *gin.Context, current *cart.Cart) {
	c.JSON(http.StatusOK, gin.H{
		"cart":   current,
		"totals": s.carts.Totals(current),
	})
}

// --- checkout and orders ---

type checkoutRequest struct {
	Customer      models.CustomerInfo  `json:"customer"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	OrderID       string               `json:"order_id"`
}

func (s *Server) submitCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current, err := s.carts.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.checkout.Submit(c.Request.Context(), checkout.SubmitRequest{
		Cart:          current,
		Customer:      req.Customer,
		CustomerID:    c.GetHeader("X-Customer-ID"),
		PaymentMethod: req.PaymentMethod,
		OrderID:       req.OrderID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	// the cart served its purpose; a failed clear must not fail the order
	if err := s.carts.Clear(c.Request.Context(), sessionID(c)); err != nil {
		s.logger.Warn("failed to clear cart after checkout",
			zap.String("session_id", sessionID(c)), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":       result.Order,
		"transaction": result.Transaction,
	})
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.checkout.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := s.checkout.UpdateStatus(c.Request.Context(), c.Param("id"), models.OrderStatus(req.Status))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.checkout.OrdersByRestaurant(c.Request.Context(), c.Param("id"), queryInt64(c, "limit", 50))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

// --- ledger ---

func (s *Server) listTransactions(c *gin.Context) {
	txns, err := s.ledger.ByRestaurant(c.Request.Context(), c.Param("id"), queryInt64(c, "limit", 50))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "total": len(txns)})
}

func (s *Server) getAnalytics(c *gin.Context) {
	analytics, err := s.ledger.Analytics(c.Request.Context(), c.Param("id"), int(queryInt64(c, "window_days", 30)))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (s *Server) getDayWiseAnalytics(c *gin.Context) {
	days, err := s.ledger.DayWise(c.Request.Context(), c.Param("id"), int(queryInt64(c, "window_days", 30)))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

func (s *Server) paymentWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	event, err := payment.ParseWebhook(s.config.Gateway.WebhookSecret, payload, c.GetHeader("X-Webhook-Signature"))
	if err != nil {
		s.logger.Warn("rejected payment webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	if err := s.ledger.ConfirmPayment(c.Request.Context(), event); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- payouts ---

type createPayoutRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

func (s *Server) createPayout(c *gin.Context) {
	var req createPayoutRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	// the period is inclusive of the end date
	payoutReq, err := s.payouts.CreateRequest(c.Request.Context(), c.Param("id"), start, end.AddDate(0, 0, 1))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payoutReq)
}

func (s *Server) listPayouts(c *gin.Context) {
	payoutReqs, err := s.payouts.ByRestaurant(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_requests": payoutReqs, "total": len(payoutReqs)})
}

func (s *Server) updatePayoutStatus(c *gin.Context) {
	var req statusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payoutReq, err := s.payouts.Transition(c.Request.Context(), c.Param("id"), models.PayoutStatus(req.Status))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payoutReq)
}

// --- reservations ---

func (s *Server) createReservation(c *gin.Context) {
	var req reservation.CreateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.reservations.Create(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) getReservation(c *gin.Context) {
	r, err := s.reservations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) updateReservationStatus(c *gin.Context) {
	var req statusRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.reservations.Transition(c.Request.Context(), c.Param("id"), models.ReservationStatus(req.Status))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type assignTableRequest struct {
	TableNumber string `json:"table_number" binding:"required"`
}

func (s *Server) assignTable(c *gin.Context) {
	var req assignTableRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.reservations.AssignTable(c.Request.Context(), c.Param("id"), req.TableNumber)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) getAvailability(c *gin.Context) {
	grid, err := s.reservations.Availability(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "slots": grid})
}

func (s *Server) getCheckInCode(c *gin.Context) {
	png, err := s.reservations.CheckInCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// --- shared ---

func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindGateway:
		status = http.StatusPaymentRequired
	case errs.KindConflict:
		status = http.StatusConflict
	case errs.KindNoEligibleFunds:
		status = http.StatusUnprocessableEntity
	case errs.KindNotFound:
		status = http.StatusNotFound
	default:
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "kind": "internal"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": errs.KindOf(err).String()})
}

func queryInt64(c *gin.Context, name string, fallback int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
