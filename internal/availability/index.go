// Package availability maintains the in-memory index of committed room
// occupancy intervals. The index is rebuilt from persisted reservations
// at startup and is the serialization point for check-and-reserve: all
// mutations for one room run under that room's lock, so concurrent
// bookings of different rooms never contend.
package availability

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/newage31/Ampulse-sub004/internal/validation"
)

// ErrConflict is returned when a requested range overlaps a committed
// interval on the same room.
var ErrConflict = errors.New("room is not available for the requested range")

// Interval is one committed occupancy range [From, To) on a room.
type Interval struct {
	ReservationID int64
	RoomID        int64
	From          time.Time
	To            time.Time
}

type roomIntervals struct {
	mu sync.Mutex
	// sorted by From
	intervals []Interval
}

// Index answers availability queries and atomically claims intervals.
type Index struct {
	mu            sync.RWMutex
	rooms         map[int64]*roomIntervals
	byReservation map[int64]int64 // reservation id -> room id
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		rooms:         make(map[int64]*roomIntervals),
		byReservation: make(map[int64]int64),
	}
}

// Load replaces the index content with the given intervals. Used at
// startup to rebuild state from persisted CONFIRMED/CHECKED_IN
// reservations.
func (ix *Index) Load(intervals []Interval) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.rooms = make(map[int64]*roomIntervals)
	ix.byReservation = make(map[int64]int64)

	for _, iv := range intervals {
		room := ix.rooms[iv.RoomID]
		if room == nil {
			room = &roomIntervals{}
			ix.rooms[iv.RoomID] = room
		}
		room.intervals = append(room.intervals, iv)
		ix.byReservation[iv.ReservationID] = iv.RoomID
	}

	for _, room := range ix.rooms {
		sort.Slice(room.intervals, func(i, j int) bool {
			return room.intervals[i].From.Before(room.intervals[j].From)
		})
	}
}

func (ix *Index) room(roomID int64) *roomIntervals {
	ix.mu.RLock()
	room := ix.rooms[roomID]
	ix.mu.RUnlock()
	if room != nil {
		return room
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if room = ix.rooms[roomID]; room == nil {
		room = &roomIntervals{}
		ix.rooms[roomID] = room
	}
	return room
}

func conflicts(intervals []Interval, from, to time.Time) bool {
	for _, iv := range intervals {
		if !iv.From.Before(to) {
			// intervals are sorted by From, nothing later can overlap
			return false
		}
		if validation.Overlaps(iv.From, iv.To, from, to) {
			return true
		}
	}
	return false
}

// IsAvailable reports whether [from, to) is free of committed intervals
// on the room. Back-to-back ranges are free.
func (ix *Index) IsAvailable(roomID int64, from, to time.Time) bool {
	room := ix.room(roomID)

	room.mu.Lock()
	defer room.mu.Unlock()

	return !conflicts(room.intervals, from, to)
}

// Reserve atomically checks [from, to) and claims it for the
// reservation. Exactly one of two racing calls with overlapping ranges
// succeeds; the loser gets ErrConflict.
func (ix *Index) Reserve(roomID int64, from, to time.Time, reservationID int64) error {
	room := ix.room(roomID)

	room.mu.Lock()
	defer room.mu.Unlock()

	if conflicts(room.intervals, from, to) {
		return ErrConflict
	}

	iv := Interval{ReservationID: reservationID, RoomID: roomID, From: from, To: to}
	pos := sort.Search(len(room.intervals), func(i int) bool {
		return room.intervals[i].From.After(from)
	})
	room.intervals = append(room.intervals, Interval{})
	copy(room.intervals[pos+1:], room.intervals[pos:])
	room.intervals[pos] = iv

	ix.mu.Lock()
	ix.byReservation[reservationID] = roomID
	ix.mu.Unlock()

	return nil
}

// Release removes the interval claimed by the reservation. Releasing an
// unknown or already-released reservation is a no-op.
func (ix *Index) Release(reservationID int64) {
	ix.mu.Lock()
	roomID, ok := ix.byReservation[reservationID]
	if ok {
		delete(ix.byReservation, reservationID)
	}
	ix.mu.Unlock()

	if !ok {
		return
	}

	room := ix.room(roomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	for i, iv := range room.intervals {
		if iv.ReservationID == reservationID {
			room.intervals = append(room.intervals[:i], room.intervals[i+1:]...)
			return
		}
	}
}
