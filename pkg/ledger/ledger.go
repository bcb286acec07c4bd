// Package ledger is the append-only record of money movement. Terminal
// transactions are never rewritten; corrections arrive as new records that
// reference the original. Analytics are aggregated at read time straight from
// the records, so they cannot drift from the source of truth.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
	"github.com/example/tableserve/pkg/payment"
)

type Store interface {
	InsertTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetTransactionByOrder(ctx context.Context, orderID string) (*models.Transaction, error)
	TransactionsByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Transaction, error)
	TransactionsByRestaurantSince(ctx context.Context, restaurantID string, since time.Time) ([]models.Transaction, error)
	// SettleTransaction moves a still-pending transaction to a terminal
	// status; it must fail with a conflict once the status is terminal.
	SettleTransaction(ctx context.Context, id string, status models.PaymentStatus, gatewayPaymentID string) error
}

type Ledger struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Record appends a transaction, assigning id, timestamps and net amount.
func (l *Ledger) Record(ctx context.Context, txn *models.Transaction) (string, error) {
	if txn.OrderID == "" {
		return "", errs.Field("order_id", "is required")
	}
	if txn.RestaurantID == "" {
		return "", errs.Field("restaurant_id", "is required")
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now
	txn.NetAmount = txn.Amount - txn.ProcessingFee

	if err := l.store.InsertTransaction(ctx, txn); err != nil {
		return "", err
	}
	return txn.ID, nil
}

// Correct appends a new record referencing a terminal original instead of
// mutating it.
func (l *Ledger) Correct(ctx context.Context, originalID string, amount float64, status models.PaymentStatus) (*models.Transaction, error) {
	original, err := l.store.GetTransaction(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if !original.PaymentStatus.Terminal() {
		return nil, errs.New(errs.KindConflict, "only terminal transactions can be corrected")
	}

	correction := *original
	correction.ID = uuid.NewString()
	correction.CorrectsID = original.ID
	correction.Amount = amount
	correction.NetAmount = amount - correction.ProcessingFee
	correction.PaymentStatus = status
	now := time.Now().UTC()
	correction.CreatedAt = now
	correction.UpdatedAt = now

	if err := l.store.InsertTransaction(ctx, &correction); err != nil {
		return nil, err
	}
	l.logger.Info("ledger correction appended",
		zap.String("original_id", original.ID),
		zap.String("correction_id", correction.ID))
	return &correction, nil
}

// ConfirmPayment applies the gateway's out-of-band verdict for an order. The
// webhook is authoritative: it may settle a pending transaction either way,
// but never rewrites one that already reached a terminal state. A redelivered
// webhook matching the recorded outcome is a no-op.
func (l *Ledger) ConfirmPayment(ctx context.Context, event *payment.WebhookEvent) error {
	txn, err := l.store.GetTransactionByOrder(ctx, event.OrderID)
	if err != nil {
		return err
	}

	target := models.PaymentCompleted
	if event.Event == payment.EventPaymentFailed {
		target = models.PaymentFailed
	}

	if txn.PaymentStatus.Terminal() {
		if txn.PaymentStatus == target {
			return nil
		}
		return errs.Newf(errs.KindConflict,
			"transaction %s already settled as %s", txn.ID, txn.PaymentStatus)
	}

	if err := l.store.SettleTransaction(ctx, txn.ID, target, event.PaymentID); err != nil {
		return err
	}
	l.logger.Info("payment confirmed",
		zap.String("order_id", event.OrderID),
		zap.String("transaction_id", txn.ID),
		zap.String("status", string(target)))
	return nil
}

func (l *Ledger) ByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.store.TransactionsByRestaurant(ctx, restaurantID, limit)
}

type Analytics struct {
	TotalRevenue           float64                          `json:"total_revenue"`
	TotalTransactions      int                              `json:"total_transactions"`
	AverageTransaction     float64                          `json:"average_transaction"`
	TotalProcessingFees    float64                          `json:"total_processing_fees"`
	PaymentMethodBreakdown map[models.PaymentMethod]float64 `json:"payment_method_breakdown"`
}

// Analytics aggregates the window at read time. Failed and refunded
// transactions carry no revenue.
func (l *Ledger) Analytics(ctx context.Context, restaurantID string, windowDays int) (*Analytics, error) {
	txns, err := l.window(ctx, restaurantID, windowDays)
	if err != nil {
		return nil, err
	}

	a := &Analytics{PaymentMethodBreakdown: make(map[models.PaymentMethod]float64)}
	counted := 0
	for _, txn := range txns {
		if txn.PaymentStatus == models.PaymentFailed || txn.PaymentStatus == models.PaymentRefunded {
			continue
		}
		counted++
		a.TotalRevenue += txn.Amount
		a.TotalProcessingFees += txn.ProcessingFee
		a.PaymentMethodBreakdown[txn.PaymentMethod] += txn.Amount
	}
	a.TotalTransactions = counted
	if counted > 0 {
		a.AverageTransaction = a.TotalRevenue / float64(counted)
	}
	return a, nil
}

type DayRollup struct {
	Date           string  `json:"date"`
	Revenue        float64 `json:"revenue"`
	Transactions   int     `json:"transactions"`
	ProcessingFees float64 `json:"processing_fees"`
	// PayoutAmount is the day's net from completed online transactions not
	// yet claimed by a payout request.
	PayoutAmount float64 `json:"payout_amount"`
}

func (l *Ledger) DayWise(ctx context.Context, restaurantID string, windowDays int) ([]DayRollup, error) {
	txns, err := l.window(ctx, restaurantID, windowDays)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*DayRollup)
	for _, txn := range txns {
		if txn.PaymentStatus == models.PaymentFailed || txn.PaymentStatus == models.PaymentRefunded {
			continue
		}
		day := txn.CreatedAt.UTC().Format("2006-01-02")
		rollup, ok := byDay[day]
		if !ok {
			rollup = &DayRollup{Date: day}
			byDay[day] = rollup
		}
		rollup.Revenue += txn.Amount
		rollup.Transactions++
		rollup.ProcessingFees += txn.ProcessingFee
		if txn.PaymentMethod == models.PaymentOnline &&
			txn.PaymentStatus == models.PaymentCompleted &&
			txn.PayoutID == "" {
			rollup.PayoutAmount += txn.NetAmount
		}
	}

	days := make([]DayRollup, 0, len(byDay))
	for _, rollup := range byDay {
		days = append(days, *rollup)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (l *Ledger) window(ctx context.Context, restaurantID string, windowDays int) ([]models.Transaction, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	return l.store.TransactionsByRestaurantSince(ctx, restaurantID, since)
}
