package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Repository interface {
	AddLine(ctx context.Context, owner Owner, line *CartLine) (*CartLine, error)
	RemoveLine(ctx context.Context, owner Owner, lineID uuid.UUID) error
	ListLines(ctx context.Context, owner Owner) ([]Line, error)
	CountLines(ctx context.Context, owner Owner) (int, error)
	MergeSessionIntoUser(ctx context.Context, sessionID string, userID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const upsertUserLine = `
	INSERT INTO cart_lines (id, user_id, product_id, variant_id, quantity, selected_length, selected_color, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (user_id, product_id, variant_id, selected_length, selected_color) WHERE user_id IS NOT NULL
	DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
	RETURNING id, quantity, created_at`

const upsertSessionLine = `
	INSERT INTO cart_lines (id, session_id, product_id, variant_id, quantity, selected_length, selected_color, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (session_id, product_id, variant_id, selected_length, selected_color) WHERE session_id IS NOT NULL
	DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
	RETURNING id, quantity, created_at`

// AddLine inserts a new line or, when the owner already has a line with the
// identical configuration tuple, atomically adds to its quantity. The upsert
// rides the partial unique indexes, so concurrent adds for the same tuple
// can never produce two rows.
func (r *postgresRepository) AddLine(ctx context.Context, owner Owner, line *CartLine) (*CartLine, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	newID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("repository: failed to generate cart line ID: %w", err)
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}

	query := upsertSessionLine
	var ownerArg any = owner.SessionID()
	if owner.IsUser() {
		query = upsertUserLine
		ownerArg = owner.UserID()
	}

	err = r.db.QueryRow(ctx, query,
		newID,
		ownerArg,
		line.ProductID,
		line.VariantID,
		line.Quantity,
		line.SelectedLength,
		line.SelectedColor,
		line.CreatedAt,
	).Scan(&line.ID, &line.Quantity, &line.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to upsert cart line: %w", err)
	}

	if owner.IsUser() {
		line.UserID = uuid.NullUUID{UUID: owner.UserID(), Valid: true}
	} else {
		sid := owner.SessionID()
		line.SessionID = &sid
	}
	return line, nil
}

// RemoveLine deletes a line if it still exists. Deleting an absent line is
// not an error.
func (r *postgresRepository) RemoveLine(ctx context.Context, owner Owner, lineID uuid.UUID) error {
	if !owner.Valid() {
		return ErrInvalidOwner
	}

	where, arg := ownerFilter(owner, 2)
	_, err := r.db.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND `+where, lineID, arg)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart line %s: %w", lineID, err)
	}
	return nil
}

func (r *postgresRepository) ListLines(ctx context.Context, owner Owner) ([]Line, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	where, arg := ownerFilter(owner, 1)
	rows, err := r.db.Query(ctx, `
		SELECT cl.id, cl.user_id, cl.session_id, cl.product_id, cl.variant_id, cl.quantity,
		       cl.selected_length, cl.selected_color, cl.created_at,
		       p.name, p.slug, p.image_url,
		       COALESCE(v.price, p.price) AS unit_price
		FROM cart_lines cl
		JOIN products p ON p.id = cl.product_id
		LEFT JOIN product_variants v ON v.id = cl.variant_id
		WHERE `+where+`
		ORDER BY cl.created_at DESC`, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		var l Line
		err := rows.Scan(
			&l.ID, &l.UserID, &l.SessionID, &l.ProductID, &l.VariantID, &l.Quantity,
			&l.SelectedLength, &l.SelectedColor, &l.CreatedAt,
			&l.ProductName, &l.ProductSlug, &l.ProductImage,
			&l.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line: %w", err)
		}
		l.LineTotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating cart lines: %w", err)
	}
	return lines, nil
}

func (r *postgresRepository) CountLines(ctx context.Context, owner Owner) (int, error) {
	if !owner.Valid() {
		return 0, ErrInvalidOwner
	}

	where, arg := ownerFilter(owner, 1)
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cart_lines WHERE `+where, arg).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count cart lines: %w", err)
	}
	return count, nil
}

// MergeSessionIntoUser transfers every session-owned line to the user. Lines
// whose configuration the user already has are summed into the user's line;
// the rest are re-created under the user's ownership. Each line moves in its
// own transaction, so a crash mid-merge leaves the remainder still owned by
// the session and a re-run simply finishes the job. Once no session lines
// remain the call is a no-op.
func (r *postgresRepository) MergeSessionIntoUser(ctx context.Context, sessionID string, userID uuid.UUID) error {
	if sessionID == "" || userID == uuid.Nil {
		return ErrInvalidOwner
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, product_id, variant_id, quantity, selected_length, selected_color, created_at
		FROM cart_lines
		WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("repository: failed to query session cart lines: %w", err)
	}

	var sessionLines []CartLine
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.Quantity, &l.SelectedLength, &l.SelectedColor, &l.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("repository: failed to scan session cart line: %w", err)
		}
		sessionLines = append(sessionLines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating session cart lines: %w", err)
	}

	for i := range sessionLines {
		if err := r.mergeLine(ctx, &sessionLines[i], userID); err != nil {
			return err
		}
	}

	if len(sessionLines) > 0 {
		log.Info().
			Str("session_id", sessionID).
			Stringer("user_id", userID).
			Int("lines", len(sessionLines)).
			Msg("repository: session cart merged into user cart")
	}
	return nil
}

// mergeLine moves one session line under the user's ownership: an upsert
// into the user cart plus the delete of the session row, in one transaction.
// A concurrent duplicate run finds the session row already gone.
func (r *postgresRepository) mergeLine(ctx context.Context, line *CartLine, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	newID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate cart line ID: %w", err)
	}

	// The session row may already be gone if another merge beat us to it;
	// deleting first (and checking) keeps the quantity from being added twice.
	tag, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND session_id IS NOT NULL`, line.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete session cart line %s: %w", line.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	_, err = tx.Exec(ctx, upsertUserLine,
		newID,
		userID,
		line.ProductID,
		line.VariantID,
		line.Quantity,
		line.SelectedLength,
		line.SelectedColor,
		line.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to merge cart line %s into user cart: %w", line.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit merge transaction: %w", err)
	}
	return nil
}

// ownerFilter renders the owner predicate for the given placeholder
// position.
func ownerFilter(owner Owner, position int) (string, any) {
	if owner.IsUser() {
		return fmt.Sprintf("user_id = $%d", position), owner.UserID()
	}
	return fmt.Sprintf("session_id = $%d", position), owner.SessionID()
}
