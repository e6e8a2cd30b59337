// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/newage31/Ampulse-sub004/internal/model"
	"github.com/newage31/Ampulse-sub004/internal/pricing"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRoomNotFound is returned when the room id is unknown.
var (
	ErrRoomNotFound = errors.New("room not found")
	// ErrClientNotFound is returned when the client is unknown or soft-deleted.
	ErrClientNotFound = errors.New("client not found")
	// ErrOperatorNotFound is returned when the operator id is unknown.
	ErrOperatorNotFound = errors.New("operator not found")
	// ErrReservationNotFound is returned when the reservation id is unknown.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrConventionOverlap is returned when a new convention's validity window
	// overlaps an existing one for the same operator and category.
	ErrConventionOverlap = errors.New("convention validity window overlaps an existing convention")
	// ErrInvalidCapacity is returned for a non-positive room capacity.
	ErrInvalidCapacity = errors.New("room capacity must be positive")
	// ErrInvalidRate is returned for a non-positive nightly rate.
	ErrInvalidRate = errors.New("nightly rate must be positive")
	// ErrStateChanged is returned when a guarded transition finds the
	// reservation in a different state than expected.
	ErrStateChanged = errors.New("reservation state changed concurrently")
)

// PostgresRepository provides access to the reservation data store.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository and initializes the schema
// through embedded migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateRoom registers a room at onboarding time.
func (r *PostgresRepository) CreateRoom(ctx context.Context, room *model.Room) (int64, error) {
	if room.Capacity <= 0 {
		return 0, ErrInvalidCapacity
	}
	if room.BaseRateCents <= 0 {
		return 0, ErrInvalidRate
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO rooms (hotel_id, category, capacity, base_rate_cents)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		room.HotelID, room.Category, room.Capacity, room.BaseRateCents,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create room: %w", err)
	}
	return id, nil
}

// GetRoom returns a room by id, including retired rooms because
// historical reservations still reference them.
func (r *PostgresRepository) GetRoom(ctx context.Context, id int64) (*model.Room, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, hotel_id, category, capacity, base_rate_cents, retired, created_at
		 FROM rooms WHERE id = $1`,
		id,
	)

	var room model.Room
	err := row.Scan(&room.ID, &room.HotelID, &room.Category, &room.Capacity,
		&room.BaseRateCents, &room.Retired, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	return &room, nil
}

// ListRooms returns the non-retired rooms of a hotel, optionally
// filtered by category.
func (r *PostgresRepository) ListRooms(ctx context.Context, hotelID int64, category string) ([]model.Room, error) {
	query := `SELECT id, hotel_id, category, capacity, base_rate_cents, retired, created_at
		 FROM rooms
		 WHERE hotel_id = $1 AND NOT retired`
	args := []any{hotelID}

	if category != "" {
		query += ` AND category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		if err := rows.Scan(&room.ID, &room.HotelID, &room.Category, &room.Capacity,
			&room.BaseRateCents, &room.Retired, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

// UpdateBaseRate changes a room's base nightly rate. Existing price
// snapshots are never touched.
func (r *PostgresRepository) UpdateBaseRate(ctx context.Context, id int64, rateCents int64) error {
	if rateCents <= 0 {
		return ErrInvalidRate
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET base_rate_cents = $2 WHERE id = $1`,
		id, rateCents,
	)
	if err != nil {
		return fmt.Errorf("update base rate: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// RetireRoom soft-retires a room. The row is kept because historical
// reservations reference it.
func (r *PostgresRepository) RetireRoom(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE rooms SET retired = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("retire room: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// CreateOperator registers a social operator.
func (r *PostgresRepository) CreateOperator(ctx context.Context, op *model.SocialOperator) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO operators (name, default_discount_pct) VALUES ($1, $2) RETURNING id`,
		op.Name, op.DefaultDiscountPct,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create operator: %w", err)
	}
	return id, nil
}

// GetOperator returns a social operator by id.
func (r *PostgresRepository) GetOperator(ctx context.Context, id int64) (*model.SocialOperator, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, default_discount_pct, created_at FROM operators WHERE id = $1`,
		id,
	)

	var op model.SocialOperator
	err := row.Scan(&op.ID, &op.Name, &op.DefaultDiscountPct, &op.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("get operator: %w", err)
	}

	return &op, nil
}

// CreateClient registers a client at intake.
func (r *PostgresRepository) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clients (name, operator_id, email, phone) VALUES ($1, $2, $3, $4) RETURNING id`,
		c.Name, c.OperatorID, c.Email, c.Phone,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return 0, ErrOperatorNotFound
		}
		return 0, fmt.Errorf("create client: %w", err)
	}
	return id, nil
}

// GetClient returns a client by id. Soft-deleted clients are reported
// as not found.
func (r *PostgresRepository) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, operator_id, email, phone, deleted, created_at
		 FROM clients WHERE id = $1 AND NOT deleted`,
		id,
	)

	var c model.Client
	err := row.Scan(&c.ID, &c.Name, &c.OperatorID, &c.Email, &c.Phone, &c.Deleted, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}

	return &c, nil
}

// CreateConvention stores a negotiated convention. Overlapping validity
// windows for the same (operator, category) are rejected; existing
// windows are checked under a row lock so two concurrent creations
// cannot both pass.
func (r *PostgresRepository) CreateConvention(ctx context.Context, conv *model.PriceConvention) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// serialize convention creation per operator
		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM operators WHERE id = $1 FOR UPDATE`, conv.OperatorID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOperatorNotFound
			}
			return fmt.Errorf("lock operator for update: %w", err)
		}

		var overlapping int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM conventions
			 WHERE operator_id = $1 AND category = $2 AND valid_from < $4 AND $3 < valid_to`,
			conv.OperatorID, conv.Category, conv.ValidFrom, conv.ValidTo,
		).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("check overlapping conventions: %w", err)
		}
		if overlapping > 0 {
			return ErrConventionOverlap
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO conventions (operator_id, category, valid_from, valid_to, rate_kind, flat_rate_cents, percent_off)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			conv.OperatorID, conv.Category, conv.ValidFrom, conv.ValidTo,
			string(conv.Kind), conv.FlatRateCents, conv.PercentOff,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert convention: %w", err)
		}

		for month, rate := range conv.MonthlyOverrides {
			if _, err := tx.Exec(ctx,
				`INSERT INTO convention_month_rates (convention_id, month, rate_cents) VALUES ($1, $2, $3)`,
				id, int(month), rate,
			); err != nil {
				return fmt.Errorf("insert month rate: %w", err)
			}
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

// GetConventionAt returns the convention applicable to the operator,
// category and date. The creation-time overlap check guarantees at most
// one match. Returns pricing.ErrNoConvention when there is none.
func (r *PostgresRepository) GetConventionAt(ctx context.Context, operatorID int64, category string, day time.Time) (*model.PriceConvention, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, operator_id, category, valid_from, valid_to, rate_kind, flat_rate_cents, percent_off, created_at
		 FROM conventions
		 WHERE operator_id = $1 AND category = $2 AND valid_from <= $3 AND $3 < valid_to`,
		operatorID, category, day,
	)

	var conv model.PriceConvention
	var kind string
	err := row.Scan(&conv.ID, &conv.OperatorID, &conv.Category, &conv.ValidFrom, &conv.ValidTo,
		&kind, &conv.FlatRateCents, &conv.PercentOff, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pricing.ErrNoConvention
		}
		return nil, fmt.Errorf("get convention: %w", err)
	}
	conv.Kind = model.RateKind(kind)

	rows, err := r.pool.Query(ctx,
		`SELECT month, rate_cents FROM convention_month_rates WHERE convention_id = $1`,
		conv.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select month rates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var month int
		var rate int64
		if err := rows.Scan(&month, &rate); err != nil {
			return nil, fmt.Errorf("scan month rate: %w", err)
		}
		if conv.MonthlyOverrides == nil {
			conv.MonthlyOverrides = make(map[time.Month]int64)
		}
		conv.MonthlyOverrides[time.Month(month)] = rate
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &conv, nil
}

// CategoryBaseRate returns the lowest base rate among the hotel's active
// rooms of the category. Used for price previews where no concrete room
// is chosen yet.
func (r *PostgresRepository) CategoryBaseRate(ctx context.Context, category string) (int64, error) {
	var rate *int64
	err := r.pool.QueryRow(ctx,
		`SELECT MIN(base_rate_cents) FROM rooms WHERE category = $1 AND NOT retired`,
		category,
	).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("select category base rate: %w", err)
	}
	if rate == nil {
		return 0, ErrRoomNotFound
	}
	return *rate, nil
}
