package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttemptRepository interface {
	UpsertAttempt(ctx context.Context, attempt *PaymentAttempt) error
	GetAttempt(ctx context.Context, sessionID string) (*PaymentAttempt, error)
}

type postgresAttemptRepository struct {
	db *pgxpool.Pool
}

func NewAttemptRepository(db *pgxpool.Pool) AttemptRepository {
	return &postgresAttemptRepository{db: db}
}

func (r *postgresAttemptRepository) UpsertAttempt(ctx context.Context, attempt *PaymentAttempt) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_attempts (session_id, order_id, started)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (session_id, order_id) DO UPDATE SET started = TRUE
		RETURNING created_at`,
		attempt.SessionID, attempt.OrderID,
	).Scan(&attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to upsert payment attempt: %w", err)
	}
	attempt.Started = true
	return nil
}

// GetAttempt returns the most recent attempt for the session, or nil when
// the session never declared one.
func (r *postgresAttemptRepository) GetAttempt(ctx context.Context, sessionID string) (*PaymentAttempt, error) {
	var attempt PaymentAttempt
	err := r.db.QueryRow(ctx, `
		SELECT session_id, order_id, started, created_at
		FROM payment_attempts
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, sessionID).Scan(
		&attempt.SessionID, &attempt.OrderID, &attempt.Started, &attempt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select payment attempt: %w", err)
	}
	return &attempt, nil
}
