package reservation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/tableserve/pkg/errs"
	"github.com/example/tableserve/pkg/models"
)

type memReservationStore struct {
	mu           sync.Mutex
	reservations map[string]*models.Reservation
}

func newMemReservationStore() *memReservationStore {
	return &memReservationStore{reservations: make(map[string]*models.Reservation)}
}

func (s *memReservationStore) InsertReservation(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *r
	s.reservations[r.ID] = &clone
	return nil
}

func (s *memReservationStore) GetReservation(_ context.Context, id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "reservation not found")
	}
	clone := *r
	return &clone, nil
}

func (s *memReservationStore) SetReservationStatus(_ context.Context, id string, from, to models.ReservationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return errs.New(errs.KindNotFound, "reservation not found")
	}
	if r.Status != from {
		return errs.New(errs.KindConflict, "reservation status changed concurrently")
	}
	r.Status = to
	return nil
}

func (s *memReservationStore) AssignTable(_ context.Context, id, tableNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return errs.New(errs.KindNotFound, "reservation not found")
	}
	for _, other := range s.reservations {
		if other.ID != id &&
			other.Status == models.ReservationConfirmed &&
			other.TableNumber == tableNumber &&
			other.Date == r.Date && other.Time == r.Time {
			return errs.New(errs.KindConflict, "table already assigned for this slot")
		}
	}
	r.TableNumber = tableNumber
	return nil
}

func (s *memReservationStore) ConfirmedByDate(_ context.Context, restaurantID, date string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.RestaurantID == restaurantID && r.Date == date && r.Status == models.ReservationConfirmed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newTestService(store Store) *Service {
	return NewService(store,
		[]string{"T-1", "T-2", "T-5"},
		[]string{"18:00", "19:00", "20:00"},
		NewQREncoder(),
		zap.NewNop())
}

func validRequest() CreateRequest {
	return CreateRequest{
		RestaurantID: "rest-1",
		Customer:     models.CustomerInfo{Name: "Asha", Phone: "9876543210"},
		Date:         "2024-07-15",
		Time:         "19:00",
		PartySize:    4,
	}
}

func confirm(t *testing.T, svc *Service, id string) {
	t.Helper()
	_, err := svc.Transition(context.Background(), id, models.ReservationConfirmed)
	require.NoError(t, err)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"missing restaurant", func(r *CreateRequest) { r.RestaurantID = "" }},
		{"missing name", func(r *CreateRequest) { r.Customer.Name = "" }},
		{"bad date", func(r *CreateRequest) { r.Date = "15/07/2024" }},
		{"bad time", func(r *CreateRequest) { r.Time = "7pm" }},
		{"not a slot", func(r *CreateRequest) { r.Time = "19:30" }},
		{"zero party", func(r *CreateRequest) { r.PartySize = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.True(t, errs.IsValidation(err), "got %v", err)
		})
	}
}

func TestTransitionTable(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	r, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	// pending cannot complete directly
	_, err = svc.Transition(ctx, r.ID, models.ReservationCompleted)
	assert.True(t, errs.IsConflict(err))

	confirm(t, svc, r.ID)
	_, err = svc.Transition(ctx, r.ID, models.ReservationCompleted)
	require.NoError(t, err)

	// completed is terminal
	_, err = svc.Transition(ctx, r.ID, models.ReservationCancelled)
	assert.True(t, errs.IsConflict(err))

	// pending may be declined
	r2, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, r2.ID, models.ReservationCancelled)
	assert.NoError(t, err)
}

func TestAssignTable_ConflictLeavesHolderUntouched(t *testing.T) {
	store := newMemReservationStore()
	svc := newTestService(store)
	ctx := context.Background()

	r1, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r1.ID)
	r2, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r2.ID)

	_, err = svc.AssignTable(ctx, r1.ID, "T-5")
	require.NoError(t, err)

	_, err = svc.AssignTable(ctx, r2.ID, "T-5")
	assert.True(t, errs.IsConflict(err))

	held, err := svc.Get(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "T-5", held.TableNumber)

	loser, err := svc.Get(ctx, r2.ID)
	require.NoError(t, err)
	assert.Empty(t, loser.TableNumber)
}

func TestAssignTable_ConcurrentClaimsSingleWinner(t *testing.T) {
	store := newMemReservationStore()
	svc := newTestService(store)
	ctx := context.Background()

	r1, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r1.ID)
	r2, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r2.ID)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{r1.ID, r2.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.AssignTable(ctx, id, "T-5")
			errCh <- err
		}(id)
	}
	wg.Wait()
	close(errCh)

	var conflicts, wins int
	for err := range errCh {
		if err == nil {
			wins++
		} else if errs.IsConflict(err) {
			conflicts++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)

	holders, err := store.ConfirmedByDate(ctx, "rest-1", "2024-07-15")
	require.NoError(t, err)
	var assigned int
	for _, r := range holders {
		if r.TableNumber == "T-5" {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned)
}

func TestAssignTable_ReassignmentReleasesOldSlot(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	r1, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r1.ID)
	_, err = svc.AssignTable(ctx, r1.ID, "T-1")
	require.NoError(t, err)
	_, err = svc.AssignTable(ctx, r1.ID, "T-2")
	require.NoError(t, err)

	// T-1 is free again for the same slot
	r2, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r2.ID)
	_, err = svc.AssignTable(ctx, r2.ID, "T-1")
	assert.NoError(t, err)
}

func TestAssignTable_Guards(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	r, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	// only confirmed reservations take a table
	_, err = svc.AssignTable(ctx, r.ID, "T-1")
	assert.True(t, errs.IsConflict(err))

	confirm(t, svc, r.ID)
	_, err = svc.AssignTable(ctx, r.ID, "T-9")
	assert.True(t, errs.IsValidation(err))
}

func TestAvailability(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	r1, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	confirm(t, svc, r1.ID)
	_, err = svc.AssignTable(ctx, r1.ID, "T-5")
	require.NoError(t, err)

	// pending reservations hold nothing
	req := validRequest()
	req.Time = "20:00"
	_, err = svc.Create(ctx, req)
	require.NoError(t, err)

	grid, err := svc.Availability(ctx, "rest-1", "2024-07-15")
	require.NoError(t, err)
	require.Len(t, grid, 3)

	byTime := make(map[string][]string)
	for _, slot := range grid {
		byTime[slot.Time] = slot.FreeTables
	}
	assert.ElementsMatch(t, []string{"T-1", "T-2"}, byTime["19:00"])
	assert.ElementsMatch(t, []string{"T-1", "T-2", "T-5"}, byTime["18:00"])
	assert.ElementsMatch(t, []string{"T-1", "T-2", "T-5"}, byTime["20:00"])
}

func TestCheckInCode(t *testing.T) {
	svc := newTestService(newMemReservationStore())
	ctx := context.Background()

	r, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	_, err = svc.CheckInCode(ctx, r.ID)
	assert.True(t, errs.IsConflict(err))

	confirm(t, svc, r.ID)
	png, err := svc.CheckInCode(ctx, r.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}
