// Package service implements the reservation lifecycle state machine.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newage31/Ampulse-sub004/internal/availability"
	"github.com/newage31/Ampulse-sub004/internal/model"
	"github.com/newage31/Ampulse-sub004/internal/pricing"
	"github.com/newage31/Ampulse-sub004/internal/validation"
)

// ErrIllegalTransition is returned when a state change is not permitted
// from the reservation's current state. Always a caller bug.
var (
	ErrIllegalTransition = errors.New("illegal reservation state transition")
	// ErrTooEarly is returned when check-in is attempted before the booked date.
	ErrTooEarly = errors.New("check-in before the booked date")
	// ErrRoomRetired is returned when booking a soft-retired room.
	ErrRoomRetired = errors.New("room is retired")
)

// SystemActor is recorded on transitions performed by background jobs.
const SystemActor = "system"

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateRoom(ctx context.Context, room *model.Room) (int64, error)
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context, hotelID int64, category string) ([]model.Room, error)
	UpdateBaseRate(ctx context.Context, id int64, rateCents int64) error
	RetireRoom(ctx context.Context, id int64) error
	CategoryBaseRate(ctx context.Context, category string) (int64, error)
	CreateOperator(ctx context.Context, op *model.SocialOperator) (int64, error)
	GetOperator(ctx context.Context, id int64) (*model.SocialOperator, error)
	CreateClient(ctx context.Context, c *model.Client) (int64, error)
	GetClient(ctx context.Context, id int64) (*model.Client, error)
	CreateConvention(ctx context.Context, conv *model.PriceConvention) (int64, error)
	CreateReservation(ctx context.Context, res *model.Reservation) (int64, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	ConfirmReservation(ctx context.Context, id int64, fromState model.ReservationState, nightlyCents []int64, totalCents int64, actor string) error
	TransitionReservation(ctx context.Context, id int64, from, to model.ReservationState, actor, reason string) error
	ListActiveIntervals(ctx context.Context) ([]availability.Interval, error)
	ListNoShowCandidates(ctx context.Context, asOf time.Time, limit int) ([]model.Reservation, error)
	ListTransitions(ctx context.Context, reservationID int64) ([]model.TransitionRecord, error)
}

// Service owns the reservation lifecycle. The availability index is the
// serialization point for check-and-reserve; the repository commits each
// transition atomically with its audit record.
type Service struct {
	repo     Repository
	index    *availability.Index
	resolver *pricing.Resolver
}

// NewService creates the service over the given repository and
// availability index.
func NewService(repo Repository, index *availability.Index, resolver *pricing.Resolver) *Service {
	return &Service{
		repo:     repo,
		index:    index,
		resolver: resolver,
	}
}

// Close closes the service resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// LoadAvailability rebuilds the availability index from persisted
// CONFIRMED/CHECKED_IN reservations. Called once at startup.
func (s *Service) LoadAvailability(ctx context.Context) error {
	intervals, err := s.repo.ListActiveIntervals(ctx)
	if err != nil {
		return fmt.Errorf("list active intervals: %w", err)
	}
	s.index.Load(intervals)
	return nil
}

// Create validates the request and records a reservation in DRAFT state.
func (s *Service) Create(ctx context.Context, roomID, clientID int64, checkIn, checkOut time.Time, actor string) (*model.Reservation, error) {
	checkIn = validation.NormalizeDay(checkIn)
	checkOut = validation.NormalizeDay(checkOut)

	if err := validation.ValidateRange(checkIn, checkOut, time.Now()); err != nil {
		return nil, err
	}

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Retired {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomRetired)
	}

	if _, err := s.repo.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	res := &model.Reservation{
		Ref:       uuid.New().String(),
		RoomID:    roomID,
		ClientID:  clientID,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		CreatedBy: actor,
	}

	id, err := s.repo.CreateReservation(ctx, res)
	if err != nil {
		return nil, err
	}

	return s.repo.GetReservation(ctx, id)
}

// Book creates a reservation and immediately confirms it. On a lost
// availability race the created reservation ends up REJECTED and the
// conflict is returned to the caller.
func (s *Service) Book(ctx context.Context, roomID, clientID int64, checkIn, checkOut time.Time, actor string) (*model.Reservation, bool, error) {
	res, err := s.Create(ctx, roomID, clientID, checkIn, checkOut, actor)
	if err != nil {
		return nil, false, err
	}
	return s.Confirm(ctx, res.ID, actor)
}

// Submit moves a DRAFT reservation to PENDING_CONFIRMATION.
func (s *Service) Submit(ctx context.Context, id int64, actor string) (*model.Reservation, error) {
	return s.transition(ctx, id, model.StatePendingConfirmation, actor, "")
}

// Confirm attempts to commit the reservation: the room interval is
// claimed atomically, nightly quotes are resolved for every date of the
// stay and summed into the immutable price snapshot, and the commit is
// written in one transaction. When the availability race is lost the
// reservation is parked in REJECTED and availability.ErrConflict is
// returned. The second return value reports whether any night fell back
// to the market rate for an operator-linked client.
func (s *Service) Confirm(ctx context.Context, id int64, actor string) (*model.Reservation, bool, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if !model.CanTransition(res.State, model.StateConfirmed) {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, res.State, model.StateConfirmed)
	}
	fromState := res.State

	room, err := s.repo.GetRoom(ctx, res.RoomID)
	if err != nil {
		return nil, false, err
	}

	if err := s.index.Reserve(res.RoomID, res.CheckIn, res.CheckOut, res.ID); err != nil {
		s.reject(ctx, res.ID, fromState, actor)
		return nil, false, err
	}

	nightly := make([]int64, 0, res.Nights())
	var total int64
	var noConvention bool

	for day := res.CheckIn; day.Before(res.CheckOut); day = day.AddDate(0, 0, 1) {
		quote, flagged, err := s.resolver.Resolve(ctx, res.ClientID, room.Category, room.BaseRateCents, day)
		if err != nil {
			s.index.Release(res.ID)
			return nil, false, fmt.Errorf("resolve price for %s: %w", day.Format("2006-01-02"), err)
		}
		if flagged {
			noConvention = true
		}
		nightly = append(nightly, quote.RateCents)
		total += quote.RateCents
	}

	if err := s.repo.ConfirmReservation(ctx, res.ID, fromState, nightly, total, actor); err != nil {
		s.index.Release(res.ID)
		if errors.Is(err, availability.ErrConflict) {
			s.reject(ctx, res.ID, fromState, actor)
		}
		return nil, false, err
	}

	confirmed, err := s.repo.GetReservation(ctx, res.ID)
	if err != nil {
		return nil, false, err
	}

	return confirmed, noConvention, nil
}

// reject parks a reservation that lost the availability race. A failure
// here is swallowed: the reservation simply stays in its current state.
func (s *Service) reject(ctx context.Context, id int64, from model.ReservationState, actor string) {
	_ = s.repo.TransitionReservation(ctx, id, from, model.StateRejected, actor, "availability conflict")
}

// CheckIn moves a CONFIRMED reservation to CHECKED_IN. Only permitted on
// or after the booked check-in date.
func (s *Service) CheckIn(ctx context.Context, id int64, actor string) (*model.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(res.State, model.StateCheckedIn) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, res.State, model.StateCheckedIn)
	}

	if validation.NormalizeDay(time.Now()).Before(res.CheckIn) {
		return nil, ErrTooEarly
	}

	if err := s.repo.TransitionReservation(ctx, id, res.State, model.StateCheckedIn, actor, ""); err != nil {
		return nil, err
	}

	return s.repo.GetReservation(ctx, id)
}

// CheckOut moves a CHECKED_IN reservation to CHECKED_OUT. The interval
// is not released: the stay remains historically occupied for audit and
// statistics.
func (s *Service) CheckOut(ctx context.Context, id int64, actor string) (*model.Reservation, error) {
	return s.transition(ctx, id, model.StateCheckedOut, actor, "")
}

// Cancel moves a reservation to CANCELLED and releases its interval if
// the reservation had actually consumed one.
func (s *Service) Cancel(ctx context.Context, id int64, actor, reason string) (*model.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(res.State, model.StateCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, res.State, model.StateCancelled)
	}

	if err := s.repo.TransitionReservation(ctx, id, res.State, model.StateCancelled, actor, reason); err != nil {
		return nil, err
	}

	if res.State.HoldsInterval() {
		s.index.Release(res.ID)
	}

	return s.repo.GetReservation(ctx, id)
}

func (s *Service) transition(ctx context.Context, id int64, to model.ReservationState, actor, reason string) (*model.Reservation, error) {
	res, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(res.State, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, res.State, to)
	}

	if err := s.repo.TransitionReservation(ctx, id, res.State, to, actor, reason); err != nil {
		return nil, err
	}

	return s.repo.GetReservation(ctx, id)
}

// GetReservation returns a reservation by id.
func (s *Service) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// Transitions returns the audit trail of a reservation.
func (s *Service) Transitions(ctx context.Context, id int64) ([]model.TransitionRecord, error) {
	if _, err := s.repo.GetReservation(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, id)
}

// IsAvailable reports whether the room is free for [checkIn, checkOut).
func (s *Service) IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	checkIn = validation.NormalizeDay(checkIn)
	checkOut = validation.NormalizeDay(checkOut)

	if !checkIn.Before(checkOut) {
		return false, validation.ErrInvalidRange
	}

	if _, err := s.repo.GetRoom(ctx, roomID); err != nil {
		return false, err
	}

	return s.index.IsAvailable(roomID, checkIn, checkOut), nil
}

// ResolveQuote returns the nightly quote for a (client, category, date)
// triple, for UI price preview before commit. The base rate used is the
// lowest among active rooms of the category.
func (s *Service) ResolveQuote(ctx context.Context, clientID int64, category string, day time.Time) (model.PriceQuote, bool, error) {
	baseRate, err := s.repo.CategoryBaseRate(ctx, category)
	if err != nil {
		return model.PriceQuote{}, false, err
	}
	return s.resolver.Resolve(ctx, clientID, category, baseRate, validation.NormalizeDay(day))
}

// CreateRoom registers a room at onboarding time.
func (s *Service) CreateRoom(ctx context.Context, room *model.Room) (*model.Room, error) {
	id, err := s.repo.CreateRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	return s.repo.GetRoom(ctx, id)
}

// GetRoom returns a room by id.
func (s *Service) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	return s.repo.GetRoom(ctx, id)
}

// RetireRoom soft-retires a room. Existing reservations keep referencing
// it; new bookings are refused.
func (s *Service) RetireRoom(ctx context.Context, id int64) error {
	return s.repo.RetireRoom(ctx, id)
}

// CreateOperator registers a social operator.
func (s *Service) CreateOperator(ctx context.Context, op *model.SocialOperator) (*model.SocialOperator, error) {
	id, err := s.repo.CreateOperator(ctx, op)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOperator(ctx, id)
}

// CreateClient registers a client, optionally linked to an operator.
func (s *Service) CreateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	id, err := s.repo.CreateClient(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.repo.GetClient(ctx, id)
}

// CreateConvention stores a negotiated price convention. The validity
// window is normalized to day granularity before the overlap check.
func (s *Service) CreateConvention(ctx context.Context, conv *model.PriceConvention) (int64, error) {
	conv.ValidFrom = validation.NormalizeDay(conv.ValidFrom)
	conv.ValidTo = validation.NormalizeDay(conv.ValidTo)
	if !conv.ValidFrom.Before(conv.ValidTo) {
		return 0, validation.ErrInvalidRange
	}
	return s.repo.CreateConvention(ctx, conv)
}

// ListRooms returns the rooms of a hotel, optionally filtered by category.
func (s *Service) ListRooms(ctx context.Context, hotelID int64, category string) ([]model.Room, error) {
	return s.repo.ListRooms(ctx, hotelID, category)
}

// UpdateBaseRate changes a room's base nightly rate.
func (s *Service) UpdateBaseRate(ctx context.Context, id int64, rateCents int64) error {
	return s.repo.UpdateBaseRate(ctx, id, rateCents)
}

// StartNoShowSweep launches the background job that moves past-dated
// CONFIRMED reservations to NO_SHOW so they never block future
// availability checks.
func (s *Service) StartNoShowSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processNoShowBatch(ctx)
			}
		}
	}()
}

func (s *Service) processNoShowBatch(ctx context.Context) {
	candidates, err := s.repo.ListNoShowCandidates(ctx, validation.NormalizeDay(time.Now()), 100)
	if err != nil {
		return
	}

	for _, res := range candidates {
		if err := s.repo.TransitionReservation(ctx, res.ID, model.StateConfirmed, model.StateNoShow, SystemActor, "check-in date passed"); err != nil {
			continue
		}
		s.index.Release(res.ID)
	}
}
