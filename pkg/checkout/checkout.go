// Package checkout drives a submission through validate, authorize and
// commit. The order id doubles as the idempotency key: it is generated before
// the gateway call so a retried request lands on the already-created order
// instead of charging twice.
package checkout

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/cart"
	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
	"github.com/example/tableserve/pkg/payment"
	"github.com/example/tableserve/pkg/pricing"
)

// OrderStore persists orders and their linked transactions.
// CreateOrderWithTransaction must be atomic and must return a conflict error
// when an order with the same id already exists.
type OrderStore interface {
	CreateOrderWithTransaction(ctx context.Context, order *models.Order, txn *models.Transaction) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Order, error)
	GetTransactionByOrder(ctx context.Context, orderID string) (*models.Transaction, error)
	// SetOrderStatus updates the status only while the order still holds
	// the expected current status.
	SetOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error
}

type Orchestrator struct {
	store   OrderStore
	gateway payment.Gateway
	rules   pricing.Rules
	cfg     *config.CheckoutConfig
	logger  *zap.Logger
}

func NewOrchestrator(store OrderStore, gw payment.Gateway, cfg *config.CheckoutConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		gateway: gw,
		rules:   pricing.Rules{DeliveryFee: cfg.DeliveryFee, TaxRate: cfg.TaxRate},
		cfg:     cfg,
		logger:  logger,
	}
}

type SubmitRequest struct {
	Cart          *cart.Cart
	Customer      models.CustomerInfo
	CustomerID    string // empty for guests
	PaymentMethod models.PaymentMethod
	// OrderID is the idempotency key. Left empty, a fresh one is generated;
	// retrying clients send the same id back.
	OrderID string
}

type SubmitResult struct {
	Order       *models.Order
	Transaction *models.Transaction
}

var (
	phoneRe = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Submit runs the checkout state machine. A failed validation or
// authorization leaves no order and no transaction behind; a duplicate commit
// returns the already-created pair.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	} else {
		existing, err := o.store.GetOrder(ctx, orderID)
		switch {
		case err == nil:
			return o.existingResult(ctx, existing)
		case !errs.IsNotFound(err):
			// an unreadable store must not lead to a second charge
			return nil, err
		}
	}

	totals := pricing.CartTotals(req.Cart.Lines, o.rules, 0)

	processingFee := 0.0
	if req.PaymentMethod == models.PaymentOnline {
		processingFee = o.cfg.ProcessingFee
	}
	chargeAmount := totals.Total + processingFee

	var gatewayPaymentID string
	var captured bool
	if req.PaymentMethod == models.PaymentOnline {
		result, err := o.gateway.InitiateCharge(ctx, payment.ChargeRequest{
			OrderID:      orderID,
			RestaurantID: req.Cart.RestaurantID,
			Amount:       chargeAmount,
			Currency:     o.cfg.Currency,
			Customer:     req.Customer,
		})
		if err != nil {
			o.logger.Warn("checkout authorization failed",
				zap.String("order_id", orderID), zap.Error(err))
			return nil, err
		}
		gatewayPaymentID = result.PaymentID
		captured = result.Captured
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:           orderID,
		RestaurantID: req.Cart.RestaurantID,
		CustomerID:   req.CustomerID,
		IsGuest:      req.CustomerID == "",
		Customer:     req.Customer,
		Lines:        freezeLines(req.Cart.Lines),
		Subtotal:     totals.Subtotal,
		DeliveryFee:  totals.DeliveryFee,
		Tax:          totals.Tax,
		Discount:     totals.Discount,
		Total:        totals.Total,
		Status:       models.OrderPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	txn := &models.Transaction{
		ID:               uuid.NewString(),
		OrderID:          orderID,
		RestaurantID:     req.Cart.RestaurantID,
		Customer:         req.Customer,
		Amount:           chargeAmount,
		Currency:         o.cfg.Currency,
		PaymentMethod:    req.PaymentMethod,
		ProcessingFee:    processingFee,
		NetAmount:        chargeAmount - processingFee,
		GatewayPaymentID: gatewayPaymentID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.PaymentMethod == models.PaymentOnline {
		txn.TransactionType = models.TransactionOnline
		if captured {
			txn.PaymentStatus = models.PaymentCompleted
		} else {
			// authorized but not captured; the webhook settles it either way
			txn.PaymentStatus = models.PaymentPending
		}
	} else {
		// cash is collected at delivery; the transaction stays a promise
		txn.PaymentStatus = models.PaymentPending
		txn.TransactionType = models.TransactionOffline
	}

	if err := o.store.CreateOrderWithTransaction(ctx, order, txn); err != nil {
		if errs.IsConflict(err) {
			existing, getErr := o.store.GetOrder(ctx, orderID)
			if getErr == nil && existing != nil {
				return o.existingResult(ctx, existing)
			}
		}
		return nil, err
	}

	o.logger.Info("checkout committed",
		zap.String("order_id", order.ID),
		zap.String("restaurant_id", order.RestaurantID),
		zap.String("payment_method", string(req.PaymentMethod)),
		zap.Float64("amount", txn.Amount))

	return &SubmitResult{Order: order, Transaction: txn}, nil
}

// UpdateStatus advances the order through its lifecycle: strictly forward, or
// cancellation from any non-terminal state.
func (o *Orchestrator) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) (*models.Order, error) {
	if !next.Valid() {
		return nil, errs.Field("status", "unknown order status")
	}
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, errs.Newf(errs.KindConflict, "cannot move order from %s to %s", order.Status, next)
	}
	if err := o.store.SetOrderStatus(ctx, orderID, order.Status, next); err != nil {
		return nil, err
	}
	order.Status = next
	return order, nil
}

func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return o.store.GetOrder(ctx, orderID)
}

func (o *Orchestrator) OrdersByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.GetOrdersByRestaurant(ctx, restaurantID, limit)
}

func (o *Orchestrator) validate(req SubmitRequest) error {
	if req.Cart == nil || len(req.Cart.Lines) == 0 {
		return errs.New(errs.KindValidation, "cart is empty")
	}
	if req.Cart.RestaurantID == "" {
		return errs.New(errs.KindValidation, "cart has no restaurant")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return errs.Field("name", "is required")
	}
	if !phoneRe.MatchString(strings.ReplaceAll(req.Customer.Phone, " ", "")) {
		return errs.Field("phone", "must be a valid phone number")
	}
	if req.Customer.Email != "" && !emailRe.MatchString(req.Customer.Email) {
		return errs.Field("email", "must be a valid email address")
	}
	if req.PaymentMethod != models.PaymentOnline && req.PaymentMethod != models.PaymentCash {
		return errs.Field("payment_method", "must be online or cash")
	}
	return nil
}

func (o *Orchestrator) existingResult(ctx context.Context, order *models.Order) (*SubmitResult, error) {
	txn, err := o.store.GetTransactionByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Order: order, Transaction: txn}, nil
}

func freezeLines(lines []models.CartLine) []models.OrderLine {
	frozen := make([]models.OrderLine, len(lines))
	for i, line := range lines {
		frozen[i] = models.OrderLine{
			ItemID:    line.ItemID,
			ItemName:  line.ItemName,
			Variant:   line.Variant,
			Addons:    line.Addons,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: pricing.LineTotal(line),
		}
	}
	return frozen
}
