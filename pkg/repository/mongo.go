package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

const (
	collOrders         = "orders"
	collTransactions   = "transactions"
	collPayoutRequests = "payout_requests"
	collReservations   = "reservations"
)

// MongoRepository owns the lifecycle collections. Invariants spanning more
// than one document are enforced by writes that contend on the documents
// themselves: the order+transaction commit and the payout claim run inside a
// session transaction over conditional updates, and the table-assignment slot
// is guarded by a unique partial index. Plain read-then-write is never enough
// here; snapshot isolation only detects conflicts on overlapping write sets.
type MongoRepository struct {
	client   *mongo.Client
	database *mongo.Database
	config   *config.MongoDBConfig
}

func NewMongoRepository(cfg *config.MongoDBConfig) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}

	return &MongoRepository{
		client:   client,
		database: client.Database(cfg.Database),
		config:   cfg,
	}, nil
}

func (m *MongoRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoRepository) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the conflict checks rely on.
func (m *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := m.database.Collection(collTransactions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "restaurant_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	})
	if err != nil {
		return err
	}
	_, err = m.database.Collection(collPayoutRequests).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "restaurant_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = m.database.Collection(collReservations).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "restaurant_id", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// at most one confirmed reservation per (table, date, time) slot;
			// the partial filter keeps unassigned reservations out of the index
			Keys: bson.D{
				{Key: "restaurant_id", Value: 1},
				{Key: "date", Value: 1},
				{Key: "time", Value: 1},
				{Key: "table_number", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status":       models.ReservationConfirmed,
					"table_number": bson.M{"$exists": true},
				}),
		},
	})
	return err
}

func (m *MongoRepository) withTxn(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// --- orders (checkout.OrderStore) ---

func (m *MongoRepository) CreateOrderWithTransaction(ctx context.Context, order *models.Order, txn *models.Transaction) error {
	return m.withTxn(ctx, func(sc mongo.SessionContext) error {
		if _, err := m.database.Collection(collOrders).InsertOne(sc, order); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errs.New(errs.KindConflict, "order already exists")
			}
			return err
		}
		if _, err := m.database.Collection(collTransactions).InsertOne(sc, txn); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return errs.New(errs.KindConflict, "transaction already exists for order")
			}
			return err
		}
		return nil
	})
}

func (m *MongoRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := m.database.Collection(collOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, errs.New(errs.KindNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (m *MongoRepository) GetOrdersByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := m.database.Collection(collOrders).Find(ctx, bson.M{"restaurant_id": restaurantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (m *MongoRepository) SetOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	result, err := m.database.Collection(collOrders).UpdateOne(ctx,
		bson.M{"_id": orderID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return errs.New(errs.KindConflict, "order status changed concurrently")
	}
	return nil
}

// --- transactions (ledger.Store) ---

func (m *MongoRepository) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	_, err := m.database.Collection(collTransactions).InsertOne(ctx, txn)
	if mongo.IsDuplicateKeyError(err) {
		return errs.New(errs.KindConflict, "transaction already exists for order")
	}
	return err
}

func (m *MongoRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var txn models.Transaction
	err := m.database.Collection(collTransactions).FindOne(ctx, bson.M{"_id": id}).Decode(&txn)
	if err == mongo.ErrNoDocuments {
		return nil, errs.New(errs.KindNotFound, "transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (m *MongoRepository) GetTransactionByOrder(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := m.database.Collection(collTransactions).
		FindOne(ctx, bson.M{"order_id": orderID}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})).
		Decode(&txn)
	if err == mongo.ErrNoDocuments {
		return nil, errs.New(errs.KindNotFound, "transaction not found")
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (m *MongoRepository) TransactionsByRestaurant(ctx context.Context, restaurantID string, limit int64) ([]models.Transaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	return m.findTransactions(ctx, bson.M{"restaurant_id": restaurantID}, opts)
}

func (m *MongoRepository) TransactionsByRestaurantSince(ctx context.Context, restaurantID string, since time.Time) ([]models.Transaction, error) {
	filter := bson.M{
		"restaurant_id": restaurantID,
		"created_at":    bson.M{"$gte": since},
	}
	return m.findTransactions(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (m *MongoRepository) findTransactions(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Transaction, error) {
	cursor, err := m.database.Collection(collTransactions).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var txns []models.Transaction
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// SettleTransaction flips a pending transaction to its terminal status. The
// filter pins the pending state so a terminal record is never rewritten, and
// the amount is never part of the update.
func (m *MongoRepository) SettleTransaction(ctx context.Context, id string, status models.PaymentStatus, gatewayPaymentID string) error {
	update := bson.M{"payment_status": status, "updated_at": time.Now().UTC()}
	if gatewayPaymentID != "" {
		update["gateway_payment_id"] = gatewayPaymentID
	}
	result, err := m.database.Collection(collTransactions).UpdateOne(ctx,
		bson.M{"_id": id, "payment_status": models.PaymentPending},
		bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetTransaction(ctx, id); err != nil {
			return err
		}
		return errs.New(errs.KindConflict, "transaction already settled")
	}
	return nil
}

// --- payouts (payout.Store) ---

func (m *MongoRepository) EligibleTransactions(ctx context.Context, restaurantID string, start, end time.Time) ([]models.Transaction, error) {
	filter := bson.M{
		"restaurant_id":  restaurantID,
		"payment_method": models.PaymentOnline,
		"payment_status": models.PaymentCompleted,
		"payout_id":      bson.M{"$exists": false},
		"created_at":     bson.M{"$gte": start, "$lt": end},
	}
	return m.findTransactions(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

// CreatePayoutClaim stamps every selected transaction and inserts the payout
// request in one transaction. Any transaction claimed in the meantime aborts
// the whole claim.
func (m *MongoRepository) CreatePayoutClaim(ctx context.Context, req *models.PayoutRequest) error {
	return m.withTxn(ctx, func(sc mongo.SessionContext) error {
		txns := m.database.Collection(collTransactions)
		for _, id := range req.TransactionIDs {
			result, err := txns.UpdateOne(sc,
				bson.M{
					"_id":            id,
					"payment_status": models.PaymentCompleted,
					"payout_id":      bson.M{"$exists": false},
				},
				bson.M{"$set": bson.M{"payout_id": req.ID, "updated_at": time.Now().UTC()}})
			if err != nil {
				return err
			}
			if result.ModifiedCount == 0 {
				return errs.New(errs.KindConflict, "transaction already claimed by another payout")
			}
		}
		_, err := m.database.Collection(collPayoutRequests).InsertOne(sc, req)
		return err
	})
}

func (m *MongoRepository) GetPayoutRequest(ctx context.Context, id string) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	err := m.database.Collection(collPayoutRequests).FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if err == mongo.ErrNoDocuments {
		return nil, errs.New(errs.KindNotFound, "payout request not found")
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (m *MongoRepository) PayoutRequestsByRestaurant(ctx context.Context, restaurantID string) ([]models.PayoutRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.database.Collection(collPayoutRequests).Find(ctx, bson.M{"restaurant_id": restaurantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reqs []models.PayoutRequest
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (m *MongoRepository) SetPayoutStatus(ctx context.Context, id string, from, to models.PayoutStatus) error {
	result, err := m.database.Collection(collPayoutRequests).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetPayoutRequest(ctx, id); err != nil {
			return err
		}
		return errs.New(errs.KindConflict, "payout status changed concurrently")
	}
	return nil
}

// --- reservations (reservation.Store) ---

func (m *MongoRepository) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := m.database.Collection(collReservations).InsertOne(ctx, r)
	return err
}

func (m *MongoRepository) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	err := m.database.Collection(collReservations).FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, errs.New(errs.KindNotFound, "reservation not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *MongoRepository) SetReservationStatus(ctx context.Context, id string, from, to models.ReservationStatus) error {
	result, err := m.database.Collection(collReservations).UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetReservation(ctx, id); err != nil {
			return err
		}
		return errs.New(errs.KindConflict, "reservation status changed concurrently")
	}
	return nil
}

// AssignTable claims the slot with a single conditional update. Counting the
// slot's holders first would not survive concurrent assignments — snapshot
// reads see neither writer, and two updates on different reservations never
// collide — so the unique slot index is the arbiter: the losing write comes
// back as a duplicate key. Overwriting the reservation's own table releases
// the old slot in the same write.
func (m *MongoRepository) AssignTable(ctx context.Context, id, tableNumber string) error {
	result, err := m.database.Collection(collReservations).UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReservationConfirmed},
		bson.M{"$set": bson.M{"table_number": tableNumber, "updated_at": time.Now().UTC()}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errs.New(errs.KindConflict, "table already assigned for this slot")
		}
		return err
	}
	if result.MatchedCount == 0 {
		if _, err := m.GetReservation(ctx, id); err != nil {
			return err
		}
		return errs.New(errs.KindConflict, "reservation is not confirmed")
	}
	return nil
}

func (m *MongoRepository) ConfirmedByDate(ctx context.Context, restaurantID, date string) ([]models.Reservation, error) {
	filter := bson.M{
		"restaurant_id": restaurantID,
		"date":          date,
		"status":        models.ReservationConfirmed,
	}
	cursor, err := m.database.Collection(collReservations).Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reservations []models.Reservation
	if err := cursor.All(ctx, &reservations); err != nil {
		return nil, err
	}
	return reservations, nil
}
