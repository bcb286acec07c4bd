package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
	"github.com/example/tableserve/pkg/payment"
)

type memLedgerStore struct {
	mu   sync.Mutex
	txns []*models.Transaction
}

func (s *memLedgerStore) InsertTransaction(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *txn
	s.txns = append(s.txns, &clone)
	return nil
}

func (s *memLedgerStore) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.txns {
		if txn.ID == id {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "transaction not found")
}

func (s *memLedgerStore) GetTransactionByOrder(_ context.Context, orderID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.txns {
		if txn.OrderID == orderID {
			clone := *txn
			return &clone, nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "transaction not found")
}

func (s *memLedgerStore) TransactionsByRestaurant(_ context.Context, restaurantID string, limit int64) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.txns {
		if txn.RestaurantID == restaurantID && int64(len(out)) < limit {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (s *memLedgerStore) TransactionsByRestaurantSince(_ context.Context, restaurantID string, since time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.txns {
		if txn.RestaurantID == restaurantID && !txn.CreatedAt.Before(since) {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (s *memLedgerStore) SettleTransaction(_ context.Context, id string, status models.PaymentStatus, gatewayPaymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.txns {
		if txn.ID == id {
			if txn.PaymentStatus.Terminal() {
				return errs.New(errs.KindConflict, "transaction already settled")
			}
			txn.PaymentStatus = status
			if gatewayPaymentID != "" {
				txn.GatewayPaymentID = gatewayPaymentID
			}
			txn.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return errs.New(errs.KindNotFound, "transaction not found")
}

func seedTxn(id, orderID string, method models.PaymentMethod, status models.PaymentStatus, amount, fee float64, createdAt time.Time) *models.Transaction {
	return &models.Transaction{
		ID:            id,
		OrderID:       orderID,
		RestaurantID:  "rest-1",
		Amount:        amount,
		Currency:      "INR",
		PaymentMethod: method,
		PaymentStatus: status,
		ProcessingFee: fee,
		NetAmount:     amount - fee,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestRecord_AssignsIDAndNetAmount(t *testing.T) {
	store := &memLedgerStore{}
	l := New(store, zap.NewNop())

	id, err := l.Record(context.Background(), &models.Transaction{
		OrderID:       "ord-1",
		RestaurantID:  "rest-1",
		Amount:        750,
		ProcessingFee: 20,
		PaymentMethod: models.PaymentOnline,
		PaymentStatus: models.PaymentCompleted,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := store.GetTransaction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 730.0, stored.NetAmount)
}

func TestConfirmPayment_WebhookIsAuthoritative(t *testing.T) {
	store := &memLedgerStore{}
	l := New(store, zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertTransaction(ctx,
		seedTxn("t1", "ord-1", models.PaymentOnline, models.PaymentPending, 750, 20, now)))

	err := l.ConfirmPayment(ctx, &payment.WebhookEvent{
		Event: payment.EventPaymentFailed, OrderID: "ord-1", PaymentID: "pay_1",
	})
	require.NoError(t, err)

	stored, _ := store.GetTransactionByOrder(ctx, "ord-1")
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)

	// a contradictory late delivery is rejected, not merged
	err = l.ConfirmPayment(ctx, &payment.WebhookEvent{
		Event: payment.EventPaymentCaptured, OrderID: "ord-1", PaymentID: "pay_1",
	})
	assert.True(t, errs.IsConflict(err))

	// a redelivery of the same verdict is an idempotent no-op
	err = l.ConfirmPayment(ctx, &payment.WebhookEvent{
		Event: payment.EventPaymentFailed, OrderID: "ord-1", PaymentID: "pay_1",
	})
	assert.NoError(t, err)
}

func TestTerminalTransactionAmountNeverChanges(t *testing.T) {
	store := &memLedgerStore{}
	_ = New(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx,
		seedTxn("t1", "ord-1", models.PaymentOnline, models.PaymentCompleted, 750, 20, time.Now().UTC())))

	err := store.SettleTransaction(ctx, "t1", models.PaymentRefunded, "")
	assert.True(t, errs.IsConflict(err))

	stored, _ := store.GetTransaction(ctx, "t1")
	assert.Equal(t, 750.0, stored.Amount)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
}

func TestCorrect_AppendsReferencingOriginal(t *testing.T) {
	store := &memLedgerStore{}
	l := New(store, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx,
		seedTxn("t1", "ord-1", models.PaymentOnline, models.PaymentCompleted, 750, 20, time.Now().UTC())))

	correction, err := l.Correct(ctx, "t1", 700, models.PaymentRefunded)
	require.NoError(t, err)
	assert.Equal(t, "t1", correction.CorrectsID)
	assert.Equal(t, 700.0, correction.Amount)
	assert.Equal(t, 680.0, correction.NetAmount)

	// the original stands untouched
	original, _ := store.GetTransaction(ctx, "t1")
	assert.Equal(t, 750.0, original.Amount)
	assert.Equal(t, models.PaymentCompleted, original.PaymentStatus)

	// a pending transaction cannot be "corrected"
	require.NoError(t, store.InsertTransaction(ctx,
		seedTxn("t2", "ord-2", models.PaymentCash, models.PaymentPending, 100, 0, time.Now().UTC())))
	_, err = l.Correct(ctx, "t2", 90, models.PaymentRefunded)
	assert.True(t, errs.IsConflict(err))
}

func TestAnalytics(t *testing.T) {
	store := &memLedgerStore{}
	l := New(store, zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t1", "o1", models.PaymentOnline, models.PaymentCompleted, 750, 20, now)))
	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t2", "o2", models.PaymentCash, models.PaymentPending, 250, 0, now)))
	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t3", "o3", models.PaymentOnline, models.PaymentFailed, 400, 20, now)))
	// outside the window
	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t4", "o4", models.PaymentOnline, models.PaymentCompleted, 999, 20, now.AddDate(0, 0, -60))))

	a, err := l.Analytics(ctx, "rest-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, a.TotalRevenue)
	assert.Equal(t, 2, a.TotalTransactions)
	assert.Equal(t, 500.0, a.AverageTransaction)
	assert.Equal(t, 20.0, a.TotalProcessingFees)
	assert.Equal(t, 750.0, a.PaymentMethodBreakdown[models.PaymentOnline])
	assert.Equal(t, 250.0, a.PaymentMethodBreakdown[models.PaymentCash])
}

func TestDayWise_PayoutAmountSkipsClaimedAndCash(t *testing.T) {
	store := &memLedgerStore{}
	l := New(store, zap.NewNop())
	ctx := context.Background()
	day1 := time.Now().UTC().AddDate(0, 0, -1)
	day2 := time.Now().UTC()

	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t1", "o1", models.PaymentOnline, models.PaymentCompleted, 750, 20, day1)))
	claimed := seedTxn("t2", "o2", models.PaymentOnline, models.PaymentCompleted, 500, 20, day1)
	claimed.PayoutID = "payout-1"
	require.NoError(t, store.InsertTransaction(ctx, claimed))
	require.NoError(t, store.InsertTransaction(ctx, seedTxn("t3", "o3", models.PaymentCash, models.PaymentPending, 250, 0, day2)))

	days, err := l.DayWise(ctx, "rest-1", 7)
	require.NoError(t, err)
	require.Len(t, days, 2)

	first := days[0]
	assert.Equal(t, day1.Format("2006-01-02"), first.Date)
	assert.Equal(t, 1250.0, first.Revenue)
	assert.Equal(t, 2, first.Transactions)
	assert.Equal(t, 730.0, first.PayoutAmount) // claimed t2 excluded

	second := days[1]
	assert.Equal(t, 0.0, second.PayoutAmount) // cash never pays out
}
