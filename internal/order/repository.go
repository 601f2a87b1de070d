package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

type Repository interface {
	// CreateOrder persists the order with its lines, decrements stock, and
	// consumes the converted cart lines, all in one transaction.
	// cartLineIDs[i] is the cart line ord.Lines[i] was built from.
	CreateOrder(ctx context.Context, ord *Order, cartLineIDs []uuid.UUID) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	// UpdateStatus applies the transition only if the order is still in the
	// expected status; reports whether a row changed.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status) (bool, error)
	// SetPaymentProof records the proof and moves the order to
	// payment_pending, but only while it is still payable.
	SetPaymentProof(ctx context.Context, orderID uuid.UUID, proofURL string) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, ord *Order, cartLineIDs []uuid.UUID) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", ord.ID).Msg("repository: rollback after panic failed")
			}
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", ord.ID).Msg("repository: rollback failed")
			}
		}
	}()

	now := time.Now().UTC()
	ord.CreatedAt = now
	ord.UpdatedAt = now

	// Conditional decrement doubles as the authoritative stock check: two
	// concurrent checkouts against the same scarce stock cannot both pass.
	for i := range ord.Lines {
		line := &ord.Lines[i]
		if err = r.decrementStock(ctx, tx, line); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, subtotal, shipping_fee, total_amount,
		                    shipping_address, billing_address, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ord.ID, ord.OrderNumber, ord.UserID, string(ord.Status),
		ord.Subtotal, ord.ShippingFee, ord.TotalAmount,
		ord.ShippingAddress, ord.BillingAddress, ord.Notes,
		ord.CreatedAt, ord.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrOrderNumberTaken
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i := range ord.Lines {
		line := &ord.Lines[i]
		line.OrderID = ord.ID
		line.CreatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, variant_id, quantity, unit_price,
			                         selected_length, selected_color, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			line.ID, line.OrderID, line.ProductID, line.VariantID, line.Quantity,
			line.UnitPrice, line.SelectedLength, line.SelectedColor, line.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order line for order %s: %w", ord.ID, err)
		}
	}

	// The cart clear rides the same transaction: a crash cannot leave both
	// an active order and a stale cart believed unconverted. Only the
	// converted quantity comes off each line, so quantity added concurrently
	// after the checkout snapshot survives as a remainder instead of being
	// dropped with the line.
	for i, lineID := range cartLineIDs {
		converted := ord.Lines[i].Quantity
		var tag pgconn.CommandTag
		tag, err = tx.Exec(ctx, `
			UPDATE cart_lines SET quantity = quantity - $2
			WHERE id = $1 AND quantity > $2`, lineID, converted)
		if err != nil {
			return fmt.Errorf("repository: failed to consume cart line %s for order %s: %w", lineID, ord.ID, err)
		}
		if tag.RowsAffected() == 0 {
			if _, err = tx.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID); err != nil {
				return fmt.Errorf("repository: failed to clear cart line %s for order %s: %w", lineID, ord.ID, err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository: failed to commit order transaction: %w", err)
	}
	return nil
}

func (r *postgresRepository) decrementStock(ctx context.Context, tx pgx.Tx, line *OrderLine) error {
	var tag pgconn.CommandTag
	var err error
	if line.VariantID.Valid {
		tag, err = tx.Exec(ctx, `
			UPDATE product_variants SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1`, line.Quantity, line.VariantID.UUID)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND stock >= $1`, line.Quantity, line.ProductID)
	}
	if err != nil {
		return fmt.Errorf("repository: failed to decrement stock for product %s: %w", line.ProductID, err)
	}
	if tag.RowsAffected() == 0 {
		available := 0
		var readErr error
		if line.VariantID.Valid {
			readErr = r.db.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id = $1`, line.VariantID.UUID).Scan(&available)
		} else {
			readErr = r.db.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, line.ProductID).Scan(&available)
		}
		if readErr != nil {
			log.Warn().Err(readErr).Stringer("product_id", line.ProductID).Msg("repository: failed to read available stock for rejection message")
		}
		return &StockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
	}
	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	var ord Order
	err := r.db.QueryRow(ctx, `
		SELECT id, order_number, user_id, status, subtotal, shipping_fee, total_amount,
		       shipping_address, billing_address, notes, payment_proof_url, created_at, updated_at
		FROM orders
		WHERE id = $1`, orderID).Scan(
		&ord.ID, &ord.OrderNumber, &ord.UserID, &ord.Status,
		&ord.Subtotal, &ord.ShippingFee, &ord.TotalAmount,
		&ord.ShippingAddress, &ord.BillingAddress, &ord.Notes,
		&ord.PaymentProofURL, &ord.CreatedAt, &ord.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price,
		       selected_length, selected_color, created_at
		FROM order_lines
		WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines for order %s: %w", orderID, err)
	}
	defer rows.Close()

	lines := make([]OrderLine, 0)
	for rows.Next() {
		var line OrderLine
		err := rows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.VariantID, &line.Quantity,
			&line.UnitPrice, &line.SelectedLength, &line.SelectedColor, &line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line for order %s: %w", orderID, err)
		}
		lines = append(lines, line)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines for order %s: %w", orderID, err)
	}

	ord.Lines = lines
	return &ord, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, order_number, user_id, status, subtotal, shipping_fee, total_amount,
		       shipping_address, billing_address, notes, payment_proof_url, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID
	for rows.Next() {
		var ord Order
		err := rows.Scan(
			&ord.ID, &ord.OrderNumber, &ord.UserID, &ord.Status,
			&ord.Subtotal, &ord.ShippingFee, &ord.TotalAmount,
			&ord.ShippingAddress, &ord.BillingAddress, &ord.Notes,
			&ord.PaymentProofURL, &ord.CreatedAt, &ord.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		ord.Lines = make([]OrderLine, 0)
		ordersMap[ord.ID] = &ord
		orderIDs = append(orderIDs, ord.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	lineRows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price,
		       selected_length, selected_color, created_at
		FROM order_lines
		WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order lines for user %s: %w", userID, err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line OrderLine
		err := lineRows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.VariantID, &line.Quantity,
			&line.UnitPrice, &line.SelectedLength, &line.SelectedColor, &line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order line for user %s: %w", userID, err)
		}
		if ord, ok := ordersMap[line.OrderID]; ok {
			ord.Lines = append(ord.Lines, line)
		}
	}
	if err = lineRows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order lines for user %s: %w", userID, err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to Status) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("repository: failed to begin status transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), orderID, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to update status for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	// Cancelling returns the stock taken at checkout; the restock rides the
	// same transaction as the status flip so the two cannot diverge.
	if to == StatusCancelled {
		if err := r.restockLines(ctx, tx, orderID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("repository: failed to commit status transaction: %w", err)
	}
	return true, nil
}

func (r *postgresRepository) restockLines(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE product_variants v SET stock = v.stock + l.quantity, updated_at = now()
		FROM order_lines l
		WHERE l.order_id = $1 AND l.variant_id = v.id`, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to restock variants for order %s: %w", orderID, err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE products p SET stock = p.stock + l.quantity, updated_at = now()
		FROM order_lines l
		WHERE l.order_id = $1 AND l.variant_id IS NULL AND l.product_id = p.id`, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to restock products for order %s: %w", orderID, err)
	}
	return nil
}

func (r *postgresRepository) SetPaymentProof(ctx context.Context, orderID uuid.UUID, proofURL string) (bool, error) {
	// A repeat submission simply overwrites the previous proof; only the
	// most recent one matters.
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $1, payment_proof_url = $2, updated_at = $3
		WHERE id = $4 AND status = ANY($5)`,
		string(StatusPaymentPending), proofURL, time.Now().UTC(), orderID,
		[]string{string(StatusPending), string(StatusPaymentPending)},
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to set payment proof for order %s: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}
