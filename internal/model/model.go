// Package model contains the domain entities of the reservation service.
package model

import "time"

// Room describes a bookable room of an establishment. The base rate is
// stored in currency minor units per night.
type Room struct {
	ID            int64
	HotelID       int64
	Category      string
	Capacity      int
	BaseRateCents int64
	Retired       bool
	CreatedAt     time.Time
}

// SocialOperator is an institutional client that negotiates room pricing
// on behalf of end clients.
type SocialOperator struct {
	ID                 int64
	Name               string
	DefaultDiscountPct float64
	CreatedAt          time.Time
}

// Client is an end client of the establishment. OperatorID is nil for
// clients paying the market rate.
type Client struct {
	ID         int64
	Name       string
	OperatorID *int64
	Email      string
	Phone      string
	Deleted    bool
	CreatedAt  time.Time
}

// RateKind discriminates the pricing variant carried by a convention.
type RateKind string

const (
	RateKindFlat    RateKind = "FLAT"
	RateKindPercent RateKind = "PERCENT"
)

// PriceConvention is a negotiated pricing contract between a social
// operator and the property for one room category over [ValidFrom, ValidTo).
// MonthlyOverrides maps a calendar month to an explicit nightly rate that
// wins over the flat rate or discount for dates in that month.
type PriceConvention struct {
	ID               int64
	OperatorID       int64
	Category         string
	ValidFrom        time.Time
	ValidTo          time.Time
	Kind             RateKind
	FlatRateCents    int64
	PercentOff       float64
	MonthlyOverrides map[time.Month]int64
	CreatedAt        time.Time
}

// Covers reports whether the convention's validity window contains day.
func (c *PriceConvention) Covers(day time.Time) bool {
	return !day.Before(c.ValidFrom) && day.Before(c.ValidTo)
}

// QuoteSource tells where a resolved nightly rate came from.
type QuoteSource string

const (
	QuoteSourceBase            QuoteSource = "BASE_RATE"
	QuoteSourceFlat            QuoteSource = "CONVENTION_FLAT"
	QuoteSourcePercent         QuoteSource = "CONVENTION_PERCENT"
	QuoteSourceMonthlyOverride QuoteSource = "MONTHLY_OVERRIDE"
)

// PriceQuote is the resolved nightly rate for one (client, category, date)
// triple. ConventionID is nil when the market rate applied.
type PriceQuote struct {
	RateCents    int64       `json:"rate_cents"`
	Source       QuoteSource `json:"source"`
	ConventionID *int64      `json:"convention_id,omitempty"`
}

// ReservationState is the workflow state of a reservation.
type ReservationState string

const (
	StateDraft               ReservationState = "DRAFT"
	StatePendingConfirmation ReservationState = "PENDING_CONFIRMATION"
	StateConfirmed           ReservationState = "CONFIRMED"
	StateCheckedIn           ReservationState = "CHECKED_IN"
	StateCheckedOut          ReservationState = "CHECKED_OUT"
	StateCancelled           ReservationState = "CANCELLED"
	StateNoShow              ReservationState = "NO_SHOW"
	StateRejected            ReservationState = "REJECTED"
)

var transitions = map[ReservationState][]ReservationState{
	StateDraft:               {StatePendingConfirmation, StateConfirmed, StateCancelled, StateRejected},
	StatePendingConfirmation: {StateConfirmed, StateCancelled, StateRejected},
	StateConfirmed:           {StateCheckedIn, StateCancelled, StateNoShow},
	StateCheckedIn:           {StateCheckedOut},
}

// CanTransition reports whether moving a reservation from one state to
// another is legal.
func CanTransition(from, to ReservationState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the state admits no further transitions.
func (s ReservationState) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// HoldsInterval reports whether a reservation in this state occupies an
// availability interval on its room.
func (s ReservationState) HoldsInterval() bool {
	return s == StateConfirmed || s == StateCheckedIn
}

// Reservation binds a client to a room over the half-open date range
// [CheckIn, CheckOut). NightlyCents and TotalCents form the price
// snapshot captured at confirmation time and never recomputed afterwards.
type Reservation struct {
	ID               int64
	Ref              string
	RoomID           int64
	ClientID         int64
	CheckIn          time.Time
	CheckOut         time.Time
	State            ReservationState
	NightlyCents     []int64
	TotalCents       int64
	CreatedBy        string
	CreatedAt        time.Time
	LastTransitionAt time.Time
}

// Nights returns the number of nights covered by the reservation.
func (r *Reservation) Nights() int {
	return int(r.CheckOut.Sub(r.CheckIn).Hours() / 24)
}

// TransitionRecord is one append-only audit trail entry for a
// reservation state change.
type TransitionRecord struct {
	ID            int64
	ReservationID int64
	FromState     ReservationState
	ToState       ReservationState
	Actor         string
	Reason        string
	OccurredAt    time.Time
}
