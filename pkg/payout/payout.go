// Package payout batches a restaurant's completed online transactions into
// payout requests. A transaction belongs to at most one request; the claim is
// made exclusively inside a store transaction so two overlapping requests can
// never both take the same funds.
package payout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

type Store interface {
	// EligibleTransactions returns completed online transactions in the
	// period that no payout request has claimed yet.
	EligibleTransactions(ctx context.Context, restaurantID string, start, end time.Time) ([]models.Transaction, error)
	// CreatePayoutClaim inserts the request and stamps every claimed
	// transaction in one atomic step. It fails with a conflict if any
	// transaction was claimed concurrently.
	CreatePayoutClaim(ctx context.Context, req *models.PayoutRequest) error
	GetPayoutRequest(ctx context.Context, id string) (*models.PayoutRequest, error)
	PayoutRequestsByRestaurant(ctx context.Context, restaurantID string) ([]models.PayoutRequest, error)
	SetPayoutStatus(ctx context.Context, id string, from, to models.PayoutStatus) error
}

type Aggregator struct {
	store  Store
	logger *zap.Logger
}

func NewAggregator(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// CreateRequest selects the eligible set for the period and claims it.
func (a *Aggregator) CreateRequest(ctx context.Context, restaurantID string, start, end time.Time) (*models.PayoutRequest, error) {
	if restaurantID == "" {
		return nil, errs.Field("restaurant_id", "is required")
	}
	if !end.After(start) {
		return nil, errs.Field("period", "end must be after start")
	}

	eligible, err := a.store.EligibleTransactions(ctx, restaurantID, start, end)
	if err != nil {
		return nil, err
	}

	var amount float64
	ids := make([]string, 0, len(eligible))
	for _, txn := range eligible {
		amount += txn.NetAmount
		ids = append(ids, txn.ID)
	}
	if len(ids) == 0 || amount <= 0 {
		return nil, errs.New(errs.KindNoEligibleFunds, "no eligible funds in the requested period")
	}

	now := time.Now().UTC()
	req := &models.PayoutRequest{
		ID:             uuid.NewString(),
		RestaurantID:   restaurantID,
		Amount:         amount,
		PeriodStart:    start,
		PeriodEnd:      end,
		TransactionIDs: ids,
		Status:         models.PayoutPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := a.store.CreatePayoutClaim(ctx, req); err != nil {
		return nil, err
	}

	a.logger.Info("payout request created",
		zap.String("payout_id", req.ID),
		zap.String("restaurant_id", restaurantID),
		zap.Float64("amount", amount),
		zap.Int("transactions", len(ids)))
	return req, nil
}

// Transition moves a payout request through its approval lifecycle.
func (a *Aggregator) Transition(ctx context.Context, id string, next models.PayoutStatus) (*models.PayoutRequest, error) {
	req, err := a.store.GetPayoutRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(next) {
		return nil, errs.Newf(errs.KindConflict, "cannot move payout from %s to %s", req.Status, next)
	}
	if err := a.store.SetPayoutStatus(ctx, id, req.Status, next); err != nil {
		return nil, err
	}
	req.Status = next
	return req, nil
}

func (a *Aggregator) ByRestaurant(ctx context.Context, restaurantID string) ([]models.PayoutRequest, error) {
	return a.store.PayoutRequestsByRestaurant(ctx, restaurantID)
}
