package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/newage31/Ampulse-sub004/internal/availability"
	"github.com/newage31/Ampulse-sub004/internal/model"
)

// CreateReservation inserts a reservation in DRAFT state together with
// its first audit record.
func (r *PostgresRepository) CreateReservation(ctx context.Context, res *model.Reservation) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		err = tx.QueryRow(ctx,
			`INSERT INTO reservations (ref, room_id, client_id, check_in, check_out, state, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			res.Ref, res.RoomID, res.ClientID, res.CheckIn, res.CheckOut,
			string(model.StateDraft), res.CreatedBy,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO reservation_transitions (reservation_id, from_state, to_state, actor)
			 VALUES ($1, '', $2, $3)`,
			id, string(model.StateDraft), res.CreatedBy,
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetReservation returns a reservation by id.
func (r *PostgresRepository) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, ref, room_id, client_id, check_in, check_out, state,
		        COALESCE(nightly_cents, '{}'), COALESCE(total_cents, 0),
		        created_by, created_at, last_transition_at
		 FROM reservations WHERE id = $1`,
		id,
	)

	var res model.Reservation
	var state string
	err := row.Scan(&res.ID, &res.Ref, &res.RoomID, &res.ClientID, &res.CheckIn, &res.CheckOut,
		&state, &res.NightlyCents, &res.TotalCents, &res.CreatedBy, &res.CreatedAt, &res.LastTransitionAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	res.State = model.ReservationState(state)

	return &res, nil
}

// ConfirmReservation commits a confirmation in one transaction: the room
// row is locked to serialize the overlap check against concurrent
// confirmations, the price snapshot is written and the audit record is
// appended. Returns availability.ErrConflict when the range collides with
// another committed reservation, ErrStateChanged when the reservation is
// no longer in fromState.
func (r *PostgresRepository) ConfirmReservation(ctx context.Context, id int64, fromState model.ReservationState, nightlyCents []int64, totalCents int64, actor string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var roomID int64
		var checkIn, checkOut time.Time
		err = tx.QueryRow(ctx,
			`SELECT room_id, check_in, check_out FROM reservations WHERE id = $1`,
			id,
		).Scan(&roomID, &checkIn, &checkOut)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReservationNotFound
			}
			return fmt.Errorf("select reservation: %w", err)
		}

		// one writer per room: the check-then-confirm sequence below is
		// atomic with respect to other confirmations on the same room
		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("lock room for update: %w", err)
		}

		var overlapping int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM reservations
			 WHERE room_id = $1 AND id <> $2 AND state IN ($3, $4)
			   AND check_in < $6 AND $5 < check_out`,
			roomID, id, string(model.StateConfirmed), string(model.StateCheckedIn),
			checkIn, checkOut,
		).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("check overlapping reservations: %w", err)
		}
		if overlapping > 0 {
			return availability.ErrConflict
		}

		cmdTag, err := tx.Exec(ctx,
			`UPDATE reservations
			 SET state = $2, nightly_cents = $3, total_cents = $4, last_transition_at = now()
			 WHERE id = $1 AND state = $5`,
			id, string(model.StateConfirmed), nightlyCents, totalCents, string(fromState),
		)
		if err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrStateChanged
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO reservation_transitions (reservation_id, from_state, to_state, actor)
			 VALUES ($1, $2, $3, $4)`,
			id, string(fromState), string(model.StateConfirmed), actor,
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// TransitionReservation moves a reservation from one state to another and
// appends the audit record, in one transaction. The update is guarded by
// the expected from-state.
func (r *PostgresRepository) TransitionReservation(ctx context.Context, id int64, from, to model.ReservationState, actor, reason string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		cmdTag, err := tx.Exec(ctx,
			`UPDATE reservations SET state = $2, last_transition_at = now()
			 WHERE id = $1 AND state = $3`,
			id, string(to), string(from),
		)
		if err != nil {
			return fmt.Errorf("update reservation state: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, id,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check reservation exists: %w", err)
			}
			if !exists {
				return ErrReservationNotFound
			}
			return ErrStateChanged
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO reservation_transitions (reservation_id, from_state, to_state, actor, reason)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, string(from), string(to), actor, reason,
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// ListActiveIntervals returns the occupancy intervals of every
// CONFIRMED or CHECKED_IN reservation. Used to rebuild the availability
// index at startup.
func (r *PostgresRepository) ListActiveIntervals(ctx context.Context) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, check_in, check_out
		 FROM reservations
		 WHERE state IN ($1, $2)
		 ORDER BY room_id, check_in`,
		string(model.StateConfirmed), string(model.StateCheckedIn),
	)
	if err != nil {
		return nil, fmt.Errorf("select active intervals: %w", err)
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.ReservationID, &iv.RoomID, &iv.From, &iv.To); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		intervals = append(intervals, iv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return intervals, nil
}

// ListNoShowCandidates returns CONFIRMED reservations whose check-in date
// has passed without a check-in.
func (r *PostgresRepository) ListNoShowCandidates(ctx context.Context, asOf time.Time, limit int) ([]model.Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, ref, room_id, client_id, check_in, check_out, state,
		        COALESCE(nightly_cents, '{}'), COALESCE(total_cents, 0),
		        created_by, created_at, last_transition_at
		 FROM reservations
		 WHERE state = $1 AND check_in < $2
		 ORDER BY check_in
		 LIMIT $3`,
		string(model.StateConfirmed), asOf, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select no-show candidates: %w", err)
	}
	defer rows.Close()

	var res []model.Reservation
	for rows.Next() {
		var rv model.Reservation
		var state string
		if err := rows.Scan(&rv.ID, &rv.Ref, &rv.RoomID, &rv.ClientID, &rv.CheckIn, &rv.CheckOut,
			&state, &rv.NightlyCents, &rv.TotalCents, &rv.CreatedBy, &rv.CreatedAt, &rv.LastTransitionAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		rv.State = model.ReservationState(state)
		res = append(res, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListTransitions returns the audit trail of a reservation, oldest first.
func (r *PostgresRepository) ListTransitions(ctx context.Context, reservationID int64) ([]model.TransitionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reservation_id, from_state, to_state, actor, reason, occurred_at
		 FROM reservation_transitions
		 WHERE reservation_id = $1
		 ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transitions: %w", err)
	}
	defer rows.Close()

	var records []model.TransitionRecord
	for rows.Next() {
		var rec model.TransitionRecord
		var from, to string
		if err := rows.Scan(&rec.ID, &rec.ReservationID, &from, &to, &rec.Actor, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		rec.FromState = model.ReservationState(from)
		rec.ToState = model.ReservationState(to)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}
