package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// memberQuery returns the member's role for a class, if any.
const memberQuery = `SELECT role FROM class_members WHERE class_id = $1 AND user_id = $2`

// Rows is the subset of pgxpool.Pool used by PostgresChecker.
type Rows interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresChecker admits users listed in the class_members table. Users
// joining as instructors must hold the instructor role.
type PostgresChecker struct {
	db   Rows
	pool *pgxpool.Pool
}

// NewPostgresChecker connects to databaseURL and verifies the connection.
func NewPostgresChecker(ctx context.Context, databaseURL string) (*PostgresChecker, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return &PostgresChecker{db: pool, pool: pool}, nil
}

// NewChecker wraps an existing query source.
func NewChecker(db Rows) *PostgresChecker {
	return &PostgresChecker{db: db}
}

func (p *PostgresChecker) Admit(ctx context.Context, req Request) error {
	if req.RoomID == "" || req.UserID == "" {
		return ErrMissingIdentity
	}

	var role string
	err := p.db.QueryRow(ctx, memberQuery, req.RoomID, req.UserID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotEnrolled
	}
	if err != nil {
		return fmt.Errorf("admission query: %w", err)
	}
	if req.Instructor && role != "instructor" {
		return ErrNotInstructor
	}
	return nil
}

// Close releases the pool when the checker owns one.
func (p *PostgresChecker) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
