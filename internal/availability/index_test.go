package availability

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func TestReserve_RejectsOverlap(t *testing.T) {
	ix := NewIndex()

	if err := ix.Reserve(101, day(10), day(12), 1); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	err := ix.Reserve(101, day(11), day(13), 2)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestReserve_BackToBackAllowed(t *testing.T) {
	ix := NewIndex()

	if err := ix.Reserve(101, day(10), day(12), 1); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := ix.Reserve(101, day(12), day(14), 2); err != nil {
		t.Fatalf("back-to-back reserve: %v", err)
	}
	if err := ix.Reserve(101, day(8), day(10), 3); err != nil {
		t.Fatalf("back-to-back reserve before: %v", err)
	}
}

func TestReserve_DifferentRoomsIndependent(t *testing.T) {
	ix := NewIndex()

	if err := ix.Reserve(101, day(10), day(12), 1); err != nil {
		t.Fatalf("reserve room 101: %v", err)
	}
	if err := ix.Reserve(102, day(10), day(12), 2); err != nil {
		t.Fatalf("reserve room 102: %v", err)
	}
}

func TestIsAvailable(t *testing.T) {
	ix := NewIndex()

	if !ix.IsAvailable(101, day(10), day(12)) {
		t.Fatalf("empty index must be available")
	}

	if err := ix.Reserve(101, day(10), day(12), 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if ix.IsAvailable(101, day(11), day(13)) {
		t.Fatalf("overlapping range must not be available")
	}
	if !ix.IsAvailable(101, day(12), day(14)) {
		t.Fatalf("back-to-back range must be available")
	}
}

func TestRelease_FreesRangeAndIsIdempotent(t *testing.T) {
	ix := NewIndex()

	if err := ix.Reserve(101, day(10), day(12), 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	ix.Release(1)
	ix.Release(1) // no-op

	if err := ix.Reserve(101, day(10), day(12), 2); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestLoad_RebuildsFromPersistedIntervals(t *testing.T) {
	ix := NewIndex()
	ix.Load([]Interval{
		{ReservationID: 5, RoomID: 101, From: day(20), To: day(22)},
		{ReservationID: 4, RoomID: 101, From: day(10), To: day(12)},
		{ReservationID: 6, RoomID: 102, From: day(10), To: day(12)},
	})

	if ix.IsAvailable(101, day(11), day(13)) {
		t.Fatalf("loaded interval must block overlapping range")
	}
	if !ix.IsAvailable(101, day(12), day(20)) {
		t.Fatalf("gap between loaded intervals must be available")
	}

	ix.Release(4)
	if !ix.IsAvailable(101, day(10), day(12)) {
		t.Fatalf("released loaded interval must be available")
	}
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	ix := NewIndex()

	const attempts = 50

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			results <- ix.Reserve(101, day(10), day(12), id)
		}(int64(i + 1))
	}

	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ok != 1 {
		t.Fatalf("winners = %d, want exactly 1", ok)
	}
	if conflicts != attempts-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, attempts-1)
	}
}
