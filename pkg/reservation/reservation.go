// Package reservation manages the booking lifecycle and the table assignment
// grid. Status changes go through one transition table instead of being
// trusted to call sites, and a table slot is claimed atomically so two
// confirmed reservations can never hold the same (table, date, time).
package reservation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

type Store interface {
	InsertReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	// SetReservationStatus updates the status only while the reservation
	// still holds the expected current status.
	SetReservationStatus(ctx context.Context, id string, from, to models.ReservationStatus) error
	// AssignTable atomically verifies no other confirmed reservation holds
	// the (table, date, time) triple and writes the assignment. Overwriting
	// the reservation's own previous table releases the old slot in the
	// same step.
	AssignTable(ctx context.Context, id, tableNumber string) error
	ConfirmedByDate(ctx context.Context, restaurantID, date string) ([]models.Reservation, error)
}

// QRGenerator produces check-in codes for confirmed reservations.
type QRGenerator interface {
	Generate(content string) ([]byte, error)
}

type Service struct {
	store  Store
	tables []string
	slots  []string
	qr     QRGenerator
	logger *zap.Logger
}

func NewService(store Store, tables, slots []string, qr QRGenerator, logger *zap.Logger) *Service {
	return &Service{store: store, tables: tables, slots: slots, qr: qr, logger: logger}
}

type CreateRequest struct {
	RestaurantID string              `json:"restaurant_id"`
	Customer     models.CustomerInfo `json:"customer"`
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	PartySize    int                 `json:"party_size"`
	SpecialReq   string              `json:"special_request"`
	PreOrderIDs  []string            `json:"pre_order_ids"`
}

var timeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Reservation, error) {
	if req.RestaurantID == "" {
		return nil, errs.Field("restaurant_id", "is required")
	}
	if strings.TrimSpace(req.Customer.Name) == "" {
		return nil, errs.Field("name", "is required")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, errs.Field("date", "must be YYYY-MM-DD")
	}
	if !timeRe.MatchString(req.Time) {
		return nil, errs.Field("time", "must be HH:MM")
	}
	if len(s.slots) > 0 && !contains(s.slots, req.Time) {
		return nil, errs.Field("time", "is not a bookable slot")
	}
	if req.PartySize < 1 {
		return nil, errs.Field("party_size", "must be at least 1")
	}

	now := time.Now().UTC()
	r := &models.Reservation{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		Customer:     req.Customer,
		Date:         req.Date,
		Time:         req.Time,
		PartySize:    req.PartySize,
		Status:       models.ReservationPending,
		SpecialReq:   req.SpecialReq,
		PreOrderIDs:  req.PreOrderIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertReservation(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("reservation created",
		zap.String("reservation_id", r.ID),
		zap.String("restaurant_id", r.RestaurantID),
		zap.String("slot", r.Date+" "+r.Time))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// Transition moves the reservation along pending → confirmed → completed,
// with cancellation allowed from pending and confirmed. Everything else is
// rejected centrally.
func (s *Service) Transition(ctx context.Context, id string, next models.ReservationStatus) (*models.Reservation, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.Status.CanTransitionTo(next) {
		return nil, errs.Newf(errs.KindConflict, "cannot move reservation from %s to %s", r.Status, next)
	}
	if err := s.store.SetReservationStatus(ctx, id, r.Status, next); err != nil {
		return nil, err
	}
	r.Status = next
	return r, nil
}

// AssignTable binds a table to a confirmed reservation. Reassignment releases
// the old slot and claims the new one in the store's atomic step; a slot held
// by another confirmed reservation rejects with a conflict.
func (s *Service) AssignTable(ctx context.Context, id, tableNumber string) (*models.Reservation, error) {
	if tableNumber == "" {
		return nil, errs.Field("table_number", "is required")
	}
	if len(s.tables) > 0 && !contains(s.tables, tableNumber) {
		return nil, errs.Field("table_number", "unknown table "+tableNumber)
	}

	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReservationConfirmed {
		return nil, errs.Newf(errs.KindConflict, "table can only be assigned while confirmed, reservation is %s", r.Status)
	}

	if err := s.store.AssignTable(ctx, id, tableNumber); err != nil {
		return nil, err
	}
	r.TableNumber = tableNumber
	s.logger.Info("table assigned",
		zap.String("reservation_id", id),
		zap.String("table", tableNumber),
		zap.String("slot", r.Date+" "+r.Time))
	return r, nil
}

// SlotAvailability lists the tables still free at one time slot.
type SlotAvailability struct {
	Time       string   `json:"time"`
	FreeTables []string `json:"free_tables"`
}

// Availability derives the grid for a date: for each configured slot, all
// tables minus those held by confirmed reservations.
func (s *Service) Availability(ctx context.Context, restaurantID, date string) ([]SlotAvailability, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, errs.Field("date", "must be YYYY-MM-DD")
	}
	confirmed, err := s.store.ConfirmedByDate(ctx, restaurantID, date)
	if err != nil {
		return nil, err
	}

	held := make(map[string]map[string]bool) // time -> table -> held
	for _, r := range confirmed {
		if r.TableNumber == "" {
			continue
		}
		if held[r.Time] == nil {
			held[r.Time] = make(map[string]bool)
		}
		held[r.Time][r.TableNumber] = true
	}

	grid := make([]SlotAvailability, 0, len(s.slots))
	for _, slot := range s.slots {
		free := make([]string, 0, len(s.tables))
		for _, table := range s.tables {
			if !held[slot][table] {
				free = append(free, table)
			}
		}
		grid = append(grid, SlotAvailability{Time: slot, FreeTables: free})
	}
	return grid, nil
}

// CheckInCode renders the QR a guest presents at the door. Only confirmed
// reservations have one.
func (s *Service) CheckInCode(ctx context.Context, id string) ([]byte, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ReservationConfirmed {
		return nil, errs.New(errs.KindConflict, "reservation is not confirmed")
	}
	return s.qr.Generate("tableserve:reservation:" + r.ID)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
