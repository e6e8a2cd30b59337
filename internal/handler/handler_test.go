package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/newage31/Ampulse-sub004/internal/availability"
	"github.com/newage31/Ampulse-sub004/internal/middleware"
	"github.com/newage31/Ampulse-sub004/internal/model"
	"github.com/newage31/Ampulse-sub004/internal/repository"
	"github.com/newage31/Ampulse-sub004/internal/service"
	"github.com/newage31/Ampulse-sub004/internal/validation"
)

type stubService struct {
	bookRes    *model.Reservation
	bookNoConv bool
	bookErr    error

	getRes *model.Reservation
	getErr error

	checkInRes *model.Reservation
	checkInErr error

	checkOutRes *model.Reservation
	checkOutErr error

	cancelRes *model.Reservation
	cancelErr error

	transitionsResp []model.TransitionRecord
	transitionsErr  error

	availableResp bool
	availableErr  error

	quoteResp   model.PriceQuote
	quoteNoConv bool
	quoteErr    error

	roomResp *model.Room
	roomErr  error

	roomsResp []model.Room
	roomsErr  error

	updateRateErr error

	createRoomRes *model.Room
	createRoomErr error

	retireErr error

	createOperatorRes *model.SocialOperator
	createOperatorErr error

	createClientRes *model.Client
	createClientErr error

	createConventionID  int64
	createConventionErr error
}

func (s *stubService) Book(ctx context.Context, roomID, clientID int64, checkIn, checkOut time.Time, actor string) (*model.Reservation, bool, error) {
	return s.bookRes, s.bookNoConv, s.bookErr
}

func (s *stubService) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	return s.getRes, s.getErr
}

func (s *stubService) CheckIn(ctx context.Context, id int64, actor string) (*model.Reservation, error) {
	return s.checkInRes, s.checkInErr
}

func (s *stubService) CheckOut(ctx context.Context, id int64, actor string) (*model.Reservation, error) {
	return s.checkOutRes, s.checkOutErr
}

func (s *stubService) Cancel(ctx context.Context, id int64, actor, reason string) (*model.Reservation, error) {
	return s.cancelRes, s.cancelErr
}

func (s *stubService) Transitions(ctx context.Context, id int64) ([]model.TransitionRecord, error) {
	return s.transitionsResp, s.transitionsErr
}

func (s *stubService) IsAvailable(ctx context.Context, roomID int64, checkIn, checkOut time.Time) (bool, error) {
	return s.availableResp, s.availableErr
}

func (s *stubService) ResolveQuote(ctx context.Context, clientID int64, category string, day time.Time) (model.PriceQuote, bool, error) {
	return s.quoteResp, s.quoteNoConv, s.quoteErr
}

func (s *stubService) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	return s.roomResp, s.roomErr
}

func (s *stubService) ListRooms(ctx context.Context, hotelID int64, category string) ([]model.Room, error) {
	return s.roomsResp, s.roomsErr
}

func (s *stubService) UpdateBaseRate(ctx context.Context, id int64, rateCents int64) error {
	return s.updateRateErr
}

func (s *stubService) CreateRoom(ctx context.Context, room *model.Room) (*model.Room, error) {
	return s.createRoomRes, s.createRoomErr
}

func (s *stubService) RetireRoom(ctx context.Context, id int64) error {
	return s.retireErr
}

func (s *stubService) CreateOperator(ctx context.Context, op *model.SocialOperator) (*model.SocialOperator, error) {
	return s.createOperatorRes, s.createOperatorErr
}

func (s *stubService) CreateClient(ctx context.Context, c *model.Client) (*model.Client, error) {
	return s.createClientRes, s.createClientErr
}

func (s *stubService) CreateConvention(ctx context.Context, conv *model.PriceConvention) (int64, error) {
	return s.createConventionID, s.createConventionErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func staffCookie(h *Handler, actor string) *http.Cookie {
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, actor)
	return rec.Result().Cookies()[0]
}

func sampleReservation(state model.ReservationState) *model.Reservation {
	return &model.Reservation{
		ID:           7,
		Ref:          "c2a9d1f0-0000-0000-0000-000000000007",
		RoomID:       101,
		ClientID:     2,
		CheckIn:      time.Date(2026, time.June, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:     time.Date(2026, time.June, 13, 0, 0, 0, 0, time.UTC),
		State:        state,
		NightlyCents: []int64{4500, 4500, 4500},
		TotalCents:   13500,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCreateReservation_Created(t *testing.T) {
	svc := &stubService{
		bookRes:    sampleReservation(model.StateConfirmed),
		bookNoConv: false,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createReservationRequest{
		RoomID:   101,
		ClientID: 2,
		CheckIn:  "2026-06-10",
		CheckOut: "2026-06-13",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp reservationResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != string(model.StateConfirmed) {
		t.Fatalf("state = %q, want %q", resp.State, model.StateConfirmed)
	}
	if resp.TotalCents != 13500 {
		t.Fatalf("total = %d, want 13500", resp.TotalCents)
	}
}

func TestCreateReservation_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateReservation_ConflictStatus(t *testing.T) {
	svc := &stubService{
		bookErr: availability.ErrConflict,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createReservationRequest{
		RoomID:   101,
		ClientID: 2,
		CheckIn:  "2026-06-10",
		CheckOut: "2026-06-13",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCreateReservation_InvalidRange(t *testing.T) {
	svc := &stubService{
		bookErr: validation.ErrInvalidRange,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createReservationRequest{
		RoomID:   101,
		ClientID: 2,
		CheckIn:  "2026-06-13",
		CheckOut: "2026-06-10",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/reservations", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCheckIn_TooEarly(t *testing.T) {
	svc := &stubService{
		checkInErr: service.ErrTooEarly,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/reservations/7/check-in", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCancel_IllegalTransition(t *testing.T) {
	svc := &stubService{
		cancelErr: service.ErrIllegalTransition,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(cancelRequest{Reason: "client request"})
	req := httptest.NewRequest(http.MethodPost, "/api/reservations/7/cancel", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestGetTransitions_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		transitionsResp: []model.TransitionRecord{
			{
				ReservationID: 7,
				FromState:     model.StateDraft,
				ToState:       model.StateConfirmed,
				Actor:         "desk-1",
				OccurredAt:    now,
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/reservations/7/transitions", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []transitionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].Actor != "desk-1" {
		t.Fatalf("unexpected transitions: %+v", resp)
	}
}

func TestGetAvailability_BadParams(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/availability?roomId=abc&from=2026-06-10&to=2026-06-13", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetAvailability_OK(t *testing.T) {
	svc := &stubService{
		availableResp: true,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/availability?roomId=101&from=2026-06-10&to=2026-06-13", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp map[string]bool
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["available"] {
		t.Fatal("available = false, want true")
	}
}

func TestResolveConvention_NoConventionFlag(t *testing.T) {
	svc := &stubService{
		quoteResp: model.PriceQuote{
			RateCents: 5000,
			Source:    model.QuoteSourceBase,
		},
		quoteNoConv: true,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/conventions/resolve?clientId=2&category=double&date=2026-06-10", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.NoConvention {
		t.Fatal("no_convention = false, want true")
	}
	if resp.RateCents != 5000 {
		t.Fatalf("rate = %d, want 5000", resp.RateCents)
	}
}

func TestLogin_SetsCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(loginRequest{Actor: "desk-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatal("expected auth cookie to be set")
	}
}

func TestLogin_EmptyActor(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestCreateRoom_InvalidCapacity(t *testing.T) {
	svc := &stubService{
		createRoomErr: repository.ErrInvalidCapacity,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createRoomRequest{
		HotelID:       1,
		Category:      "double",
		Capacity:      0,
		BaseRateCents: 5000,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "back-office"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreateConvention_OverlapConflict(t *testing.T) {
	svc := &stubService{
		createConventionErr: repository.ErrConventionOverlap,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createConventionRequest{
		OperatorID: 3,
		Category:   "double",
		ValidFrom:  "2026-01-01",
		ValidTo:    "2027-01-01",
		Kind:       "FLAT",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/conventions", bytes.NewReader(body))
	req.AddCookie(staffCookie(h, "back-office"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	svc := &stubService{
		roomErr: repository.ErrRoomNotFound,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/rooms/9000", nil)
	req.AddCookie(staffCookie(h, "desk-1"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNotFound)
	}
}
