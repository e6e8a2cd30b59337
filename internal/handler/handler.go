// Package handler contains the HTTP handlers of the reservation API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newage31/Ampulse-sub004/internal/availability"
	"github.com/newage31/Ampulse-sub004/internal/middleware"
	"github.com/newage31/Ampulse-sub004/internal/model"
	"github.com/newage31/Ampulse-sub004/internal/repository"
	"github.com/newage31/Ampulse-sub004/internal/service"
	"github.com/newage31/Ampulse-sub004/internal/validation"
)

const dateLayout = "2006-01-02"

// Service defines the business logic contract used by the HTTP handlers.
type Service interface {
	Book(ctx context.Context, roomID, clientID int64, checkIn, checkOut time.Time, actor string) (*model.Reservation, bool, error)
	GetReservation(ctx context.Context, id int64) (*model.Reservation, error)
	CheckIn(ctx context.Context, id int64, actor string) (*model.Reservation, error)
	CheckOut(ctx context.Context, id int64, actor string) (*model.Reservation, error)
	Cancel(ctx context.Context, id int64, actor, reason string) (*model.Reservation, error)
	Transitions(ctx context.Context, id int64) ([]model.TransitionRecord, error)
	IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error)
	ResolveQuote(ctx context.Context, clientID int64, category string, day time.Time) (model.PriceQuote, bool, error)
	CreateRoom(ctx context.Context, room *model.Room) (*model.Room, error)
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	ListRooms(ctx context.Context, hotelID int64, category string) ([]model.Room, error)
	UpdateBaseRate(ctx context.Context, id int64, rateCents int64) error
	RetireRoom(ctx context.Context, id int64) error
	CreateOperator(ctx context.Context, op *model.SocialOperator) (*model.SocialOperator, error)
	CreateClient(ctx context.Context, c *model.Client) (*model.Client, error)
	CreateConvention(ctx context.Context, conv *model.PriceConvention) (int64, error)
}

// Handler implements the HTTP handlers of the reservation API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler instance.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// writeError maps domain errors to HTTP statuses. Only availability
// conflicts are expected under normal concurrent load; they carry a
// distinct message so the UI can offer another room or date.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalidRange):
		http.Error(w, "invalid date range", http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrTooEarly):
		http.Error(w, "check-in date not reached", http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrRoomRetired):
		http.Error(w, "room is retired", http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrInvalidRate), errors.Is(err, repository.ErrInvalidCapacity):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrClientNotFound),
		errors.Is(err, repository.ErrReservationNotFound),
		errors.Is(err, repository.ErrOperatorNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, availability.ErrConflict):
		http.Error(w, "room not available for the requested range", http.StatusConflict)
	case errors.Is(err, repository.ErrConventionOverlap):
		http.Error(w, "convention validity window overlaps an existing one", http.StatusConflict)
	case errors.Is(err, service.ErrIllegalTransition), errors.Is(err, repository.ErrStateChanged):
		http.Error(w, "transition not permitted from current state", http.StatusConflict)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func actorFrom(r *http.Request) (string, bool) {
	return middleware.GetActorFromContext(r.Context())
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type loginRequest struct {
	Actor string `json:"actor"`
}

// Login issues the signed staff cookie. The actor is recorded on every
// reservation transition performed with the cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.authMiddleware.SetAuthCookie(w, req.Actor)
	w.WriteHeader(http.StatusOK)
}

type createReservationRequest struct {
	RoomID   int64  `json:"room_id"`
	ClientID int64  `json:"client_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type reservationResponse struct {
	ID           int64   `json:"id"`
	Ref          string  `json:"ref"`
	RoomID       int64   `json:"room_id"`
	ClientID     int64   `json:"client_id"`
	CheckIn      string  `json:"check_in"`
	CheckOut     string  `json:"check_out"`
	State        string  `json:"state"`
	NightlyCents []int64 `json:"nightly_cents,omitempty"`
	TotalCents   int64   `json:"total_cents"`
	NoConvention bool    `json:"no_convention,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func toReservationResponse(res *model.Reservation, noConvention bool) reservationResponse {
	return reservationResponse{
		ID:           res.ID,
		Ref:          res.Ref,
		RoomID:       res.RoomID,
		ClientID:     res.ClientID,
		CheckIn:      res.CheckIn.Format(dateLayout),
		CheckOut:     res.CheckOut.Format(dateLayout),
		State:        string(res.State),
		NightlyCents: res.NightlyCents,
		TotalCents:   res.TotalCents,
		NoConvention: noConvention,
		CreatedAt:    res.CreatedAt.Format(time.RFC3339),
	}
}

// CreateReservation creates and confirms a reservation in one call.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	checkIn, err := time.Parse(dateLayout, req.CheckIn)
	if err != nil {
		http.Error(w, "invalid check_in date", http.StatusUnprocessableEntity)
		return
	}
	checkOut, err := time.Parse(dateLayout, req.CheckOut)
	if err != nil {
		http.Error(w, "invalid check_out date", http.StatusUnprocessableEntity)
		return
	}

	res, noConvention, err := h.service.Book(r.Context(), req.RoomID, req.ClientID, checkIn, checkOut, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReservationResponse(res, noConvention))
}

// GetReservation returns a reservation by id.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationResponse(res, false))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, actor string) (*model.Reservation, error)) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := fn(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationResponse(res, false))
}

// CheckIn moves a reservation to CHECKED_IN.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CheckIn)
}

// CheckOut moves a reservation to CHECKED_OUT.
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.CheckOut)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels a reservation with the given reason.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.Cancel(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationResponse(res, false))
}

type transitionResponse struct {
	FromState  string `json:"from_state"`
	ToState    string `json:"to_state"`
	Actor      string `json:"actor"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// GetTransitions returns the audit trail of a reservation.
func (h *Handler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	records, err := h.service.Transitions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]transitionResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, transitionResponse{
			FromState:  string(rec.FromState),
			ToState:    string(rec.ToState),
			Actor:      rec.Actor,
			Reason:     rec.Reason,
			OccurredAt: rec.OccurredAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAvailability answers whether a room is free for a date range.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(r.URL.Query().Get("roomId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid roomId", http.StatusBadRequest)
		return
	}

	from, err := time.Parse(dateLayout, r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(dateLayout, r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}

	free, err := h.service.IsAvailable(r.Context(), roomID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": free})
}

type quoteResponse struct {
	RateCents    int64  `json:"rate_cents"`
	Source       string `json:"source"`
	ConventionID *int64 `json:"convention_id,omitempty"`
	NoConvention bool   `json:"no_convention,omitempty"`
}

// ResolveConvention returns the nightly quote for a client, category and
// date, for UI price preview before commit.
func (h *Handler) ResolveConvention(w http.ResponseWriter, r *http.Request) {
	clientID, err := strconv.ParseInt(r.URL.Query().Get("clientId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid clientId", http.StatusBadRequest)
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		http.Error(w, "category is required", http.StatusBadRequest)
		return
	}

	day, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	quote, noConvention, err := h.service.ResolveQuote(r.Context(), clientID, category, day)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		RateCents:    quote.RateCents,
		Source:       string(quote.Source),
		ConventionID: quote.ConventionID,
		NoConvention: noConvention,
	})
}

type roomResponse struct {
	ID            int64  `json:"id"`
	HotelID       int64  `json:"hotel_id"`
	Category      string `json:"category"`
	Capacity      int    `json:"capacity"`
	BaseRateCents int64  `json:"base_rate_cents"`
	Retired       bool   `json:"retired,omitempty"`
}

func toRoomResponse(room *model.Room) roomResponse {
	return roomResponse{
		ID:            room.ID,
		HotelID:       room.HotelID,
		Category:      room.Category,
		Capacity:      room.Capacity,
		BaseRateCents: room.BaseRateCents,
		Retired:       room.Retired,
	}
}

// GetRoom returns a room by id.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	room, err := h.service.GetRoom(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

// ListRooms returns the rooms of a hotel, optionally filtered by category.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	hotelID, err := strconv.ParseInt(r.URL.Query().Get("hotelId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid hotelId", http.StatusBadRequest)
		return
	}

	rooms, err := h.service.ListRooms(r.Context(), hotelID, r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := make([]roomResponse, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, toRoomResponse(&rooms[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type updateBaseRateRequest struct {
	BaseRateCents int64 `json:"base_rate_cents"`
}

// UpdateBaseRate changes a room's base nightly rate. Existing price
// snapshots are unaffected.
func (h *Handler) UpdateBaseRate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateBaseRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateBaseRate(r.Context(), id, req.BaseRateCents); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type createRoomRequest struct {
	HotelID       int64  `json:"hotel_id"`
	Category      string `json:"category"`
	Capacity      int    `json:"capacity"`
	BaseRateCents int64  `json:"base_rate_cents"`
}

// CreateRoom registers a room at onboarding time.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	room, err := h.service.CreateRoom(r.Context(), &model.Room{
		HotelID:       req.HotelID,
		Category:      req.Category,
		Capacity:      req.Capacity,
		BaseRateCents: req.BaseRateCents,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoomResponse(room))
}

// RetireRoom soft-retires a room so it stops taking new bookings.
func (h *Handler) RetireRoom(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RetireRoom(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type createOperatorRequest struct {
	Name               string  `json:"name"`
	DefaultDiscountPct float64 `json:"default_discount_pct"`
}

type operatorResponse struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	DefaultDiscountPct float64 `json:"default_discount_pct"`
}

// CreateOperator registers a social operator.
func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req createOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	op, err := h.service.CreateOperator(r.Context(), &model.SocialOperator{
		Name:               req.Name,
		DefaultDiscountPct: req.DefaultDiscountPct,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, operatorResponse{
		ID:                 op.ID,
		Name:               op.Name,
		DefaultDiscountPct: op.DefaultDiscountPct,
	})
}

type createClientRequest struct {
	Name       string `json:"name"`
	OperatorID *int64 `json:"operator_id,omitempty"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

type clientResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	OperatorID *int64 `json:"operator_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// CreateClient registers a client, optionally linked to an operator.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.CreateClient(r.Context(), &model.Client{
		Name:       req.Name,
		OperatorID: req.OperatorID,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, clientResponse{
		ID:         c.ID,
		Name:       c.Name,
		OperatorID: c.OperatorID,
		Email:      c.Email,
		Phone:      c.Phone,
	})
}

type createConventionRequest struct {
	OperatorID       int64         `json:"operator_id"`
	Category         string        `json:"category"`
	ValidFrom        string        `json:"valid_from"`
	ValidTo          string        `json:"valid_to"`
	Kind             string        `json:"kind"`
	FlatRateCents    int64         `json:"flat_rate_cents"`
	PercentOff       float64       `json:"percent_off"`
	MonthlyOverrides map[int]int64 `json:"monthly_overrides,omitempty"`
}

// CreateConvention stores a negotiated price convention.
func (h *Handler) CreateConvention(w http.ResponseWriter, r *http.Request) {
	var req createConventionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	validFrom, err := time.Parse(dateLayout, req.ValidFrom)
	if err != nil {
		http.Error(w, "invalid valid_from date", http.StatusUnprocessableEntity)
		return
	}
	validTo, err := time.Parse(dateLayout, req.ValidTo)
	if err != nil {
		http.Error(w, "invalid valid_to date", http.StatusUnprocessableEntity)
		return
	}

	kind := model.RateKind(req.Kind)
	if kind != model.RateKindFlat && kind != model.RateKindPercent {
		http.Error(w, "kind must be FLAT or PERCENT", http.StatusUnprocessableEntity)
		return
	}

	var overrides map[time.Month]int64
	if len(req.MonthlyOverrides) > 0 {
		overrides = make(map[time.Month]int64, len(req.MonthlyOverrides))
		for m, rate := range req.MonthlyOverrides {
			if m < 1 || m > 12 {
				http.Error(w, "override month out of range", http.StatusUnprocessableEntity)
				return
			}
			overrides[time.Month(m)] = rate
		}
	}

	id, err := h.service.CreateConvention(r.Context(), &model.PriceConvention{
		OperatorID:       req.OperatorID,
		Category:         req.Category,
		ValidFrom:        validFrom,
		ValidTo:          validTo,
		Kind:             kind,
		FlatRateCents:    req.FlatRateCents,
		PercentOff:       req.PercentOff,
		MonthlyOverrides: overrides,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}
