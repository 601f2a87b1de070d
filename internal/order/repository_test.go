package order_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/storefront/internal/order"
)

var db *pgxpool.Pool

// The repository tests need a migrated Postgres database; point
// TEST_DATABASE_URL at one to run them. Without it the package still runs
// its service and model tests.
func TestMain(m *testing.M) {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		os.Exit(m.Run())
	}

	var err error
	db, err = pgxpool.New(context.Background(), connStr)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	exitCode := m.Run()

	db.Close()

	os.Exit(exitCode)
}

func setupRepo(t *testing.T) order.Repository {
	if db == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	truncate := "TRUNCATE TABLE order_lines, orders, cart_lines, product_variants, products, categories CASCADE"
	if _, err := db.Exec(ctx, truncate); err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	_, err := db.Exec(ctx, `
		INSERT INTO products (id, name, slug, price, stock, lengths, colors)
		VALUES ($1, 'Raw Donor Bundle', 'raw-donor-bundle', 12000, 50, '{"18 inches"}', '{"natural black"}')`,
		testProductID)
	if err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO product_variants (id, product_id, length, color, price, stock)
		VALUES ($1, $2, '18 inches', 'natural black', 15000, 5)`,
		testVariantID, testProductID)
	if err != nil {
		t.Fatalf("Failed to seed variant: %v", err)
	}

	repo := order.NewRepository(db)

	t.Cleanup(func() {
		if _, err := db.Exec(context.Background(), truncate); err != nil {
			t.Fatalf("Failed to truncate tables after test: %v", err)
		}
	})

	return repo
}

func seedCartLine(t *testing.T, qty int) uuid.UUID {
	t.Helper()
	lineID := uuid.Must(uuid.NewV4())
	_, err := db.Exec(context.Background(), `
		INSERT INTO cart_lines (id, user_id, product_id, variant_id, quantity, selected_length, selected_color)
		VALUES ($1, $2, $3, $4, $5, '18 inches', 'natural black')`,
		lineID, testUserID, testProductID, testVariantID, qty)
	if err != nil {
		t.Fatalf("Failed to seed cart line: %v", err)
	}
	return lineID
}

func buildOrder(orderNumber string, qty int) *order.Order {
	unitPrice := decimal.NewFromInt(15000)
	subtotal := unitPrice.Mul(decimal.NewFromInt(int64(qty)))
	fee := decimal.NewFromInt(2500)
	return &order.Order{
		ID:              uuid.Must(uuid.NewV4()),
		OrderNumber:     orderNumber,
		UserID:          testUserID,
		Status:          order.StatusPending,
		Subtotal:        subtotal,
		ShippingFee:     fee,
		TotalAmount:     subtotal.Add(fee),
		ShippingAddress: "Ada Obi, 14 Adeola Odeku St, Lagos, +2348012345678",
		BillingAddress:  "Ada Obi, 14 Adeola Odeku St, Lagos, +2348012345678",
		Lines: []order.OrderLine{
			{
				ID:        uuid.Must(uuid.NewV4()),
				ProductID: testProductID,
				VariantID: uuid.NullUUID{UUID: testVariantID, Valid: true},
				Quantity:  qty,
				UnitPrice: unitPrice,
			},
		},
	}
}

func variantStock(t *testing.T) int {
	t.Helper()
	var stock int
	if err := db.QueryRow(context.Background(), `SELECT stock FROM product_variants WHERE id = $1`, testVariantID).Scan(&stock); err != nil {
		t.Fatalf("Failed to read variant stock: %v", err)
	}
	return stock
}

func countRows(t *testing.T, table string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(context.Background(), fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		t.Fatalf("Failed to count %s rows: %v", table, err)
	}
	return count
}

func TestPostgresRepository_CreateOrder(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	cartLineID := seedCartLine(t, 2)
	ord := buildOrder("BT-20260828-CREATE", 2)

	err := repo.CreateOrder(ctx, ord, []uuid.UUID{cartLineID})
	assert.NoError(t, err, "CreateOrder should not return an error")

	assert.Equal(t, 3, variantStock(t), "variant stock should drop by the ordered quantity")
	assert.Equal(t, 0, countRows(t, "cart_lines"), "the converted cart line should be consumed")

	saved, err := repo.GetOrderByID(ctx, ord.ID)
	assert.NoError(t, err)
	assert.Equal(t, "BT-20260828-CREATE", saved.OrderNumber)
	assert.Equal(t, order.StatusPending, saved.Status)
	if assert.Len(t, saved.Lines, 1) {
		assert.Equal(t, 2, saved.Lines[0].Quantity)
	}
}

func TestPostgresRepository_CreateOrder_PriceSnapshot(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	cartLineID := seedCartLine(t, 1)
	ord := buildOrder("BT-20260828-SNAP", 1)

	err := repo.CreateOrder(ctx, ord, []uuid.UUID{cartLineID})
	assert.NoError(t, err)

	// Reprice the catalog after the order exists; the stored line must keep
	// the price it was sold at.
	_, err = db.Exec(ctx, `UPDATE product_variants SET price = 99000 WHERE id = $1`, testVariantID)
	assert.NoError(t, err)
	_, err = db.Exec(ctx, `UPDATE products SET price = 99000 WHERE id = $1`, testProductID)
	assert.NoError(t, err)

	saved, err := repo.GetOrderByID(ctx, ord.ID)
	assert.NoError(t, err)
	if assert.Len(t, saved.Lines, 1) {
		assert.True(t, decimal.NewFromInt(15000).Equal(saved.Lines[0].UnitPrice),
			"unit price must stay at the sold price, got %s", saved.Lines[0].UnitPrice)
	}
	assert.True(t, decimal.NewFromInt(17500).Equal(saved.TotalAmount))
}

func TestPostgresRepository_CreateOrder_InsufficientStock(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	cartLineID := seedCartLine(t, 7)
	ord := buildOrder("BT-20260828-STOCK", 7)

	err := repo.CreateOrder(ctx, ord, []uuid.UUID{cartLineID})

	var stockErr *order.StockError
	if assert.ErrorAs(t, err, &stockErr) {
		assert.Equal(t, 7, stockErr.Requested)
		assert.Equal(t, 5, stockErr.Available)
	}

	// The whole conversion rolls back: no order, no lines, stock and cart
	// untouched.
	assert.Equal(t, 0, countRows(t, "orders"))
	assert.Equal(t, 0, countRows(t, "order_lines"))
	assert.Equal(t, 1, countRows(t, "cart_lines"))
	assert.Equal(t, 5, variantStock(t))
}

func TestPostgresRepository_CreateOrder_DuplicateOrderNumber(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first := buildOrder("BT-20260828-DUPE", 1)
	assert.NoError(t, repo.CreateOrder(ctx, first, nil))
	assert.Equal(t, 4, variantStock(t))

	second := buildOrder("BT-20260828-DUPE", 1)
	err := repo.CreateOrder(ctx, second, nil)
	assert.ErrorIs(t, err, order.ErrOrderNumberTaken)

	// The failed attempt's stock decrement rolls back with it.
	assert.Equal(t, 4, variantStock(t))
	assert.Equal(t, 1, countRows(t, "orders"))
}

func TestPostgresRepository_CreateOrder_PartialCartConsumption(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	// The customer added 3 more after the checkout snapshot saw 2; only the
	// converted 2 come off the line.
	cartLineID := seedCartLine(t, 5)
	ord := buildOrder("BT-20260828-PART", 2)

	err := repo.CreateOrder(ctx, ord, []uuid.UUID{cartLineID})
	assert.NoError(t, err)

	var remaining int
	err = db.QueryRow(ctx, `SELECT quantity FROM cart_lines WHERE id = $1`, cartLineID).Scan(&remaining)
	assert.NoError(t, err, "the cart line should survive with the remainder")
	assert.Equal(t, 3, remaining)
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ord := buildOrder("BT-20260828-STAT", 1)
	assert.NoError(t, repo.CreateOrder(ctx, ord, nil))

	t.Run("stale_expected_status_does_not_apply", func(t *testing.T) {
		applied, err := repo.UpdateStatus(ctx, ord.ID, order.StatusProcessing, order.StatusConfirmed)
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("matching_expected_status_applies", func(t *testing.T) {
		applied, err := repo.UpdateStatus(ctx, ord.ID, order.StatusPending, order.StatusPaymentPending)
		assert.NoError(t, err)
		assert.True(t, applied)

		saved, err := repo.GetOrderByID(ctx, ord.ID)
		assert.NoError(t, err)
		assert.Equal(t, order.StatusPaymentPending, saved.Status)
	})
}

func TestPostgresRepository_UpdateStatus_CancelRestocks(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ord := buildOrder("BT-20260828-CANC", 2)
	assert.NoError(t, repo.CreateOrder(ctx, ord, nil))
	assert.Equal(t, 3, variantStock(t))

	applied, err := repo.UpdateStatus(ctx, ord.ID, order.StatusPending, order.StatusCancelled)
	assert.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, 5, variantStock(t), "cancellation should return the ordered quantity to stock")
}

func TestPostgresRepository_SetPaymentProof(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	ord := buildOrder("BT-20260828-PROF", 1)
	assert.NoError(t, repo.CreateOrder(ctx, ord, nil))

	applied, err := repo.SetPaymentProof(ctx, ord.ID, "https://proofs.example.com/abc.jpg")
	assert.NoError(t, err)
	assert.True(t, applied)

	saved, err := repo.GetOrderByID(ctx, ord.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusPaymentPending, saved.Status)
	if assert.NotNil(t, saved.PaymentProofURL) {
		assert.Equal(t, "https://proofs.example.com/abc.jpg", *saved.PaymentProofURL)
	}

	// Still payable: a resubmission overwrites the proof.
	applied, err = repo.SetPaymentProof(ctx, ord.ID, order.ProofManual)
	assert.NoError(t, err)
	assert.True(t, applied)

	// Once an operator moves it on, proof is no longer writable.
	applied, err = repo.UpdateStatus(ctx, ord.ID, order.StatusPaymentPending, order.StatusProcessing)
	assert.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.SetPaymentProof(ctx, ord.ID, "https://proofs.example.com/late.jpg")
	assert.NoError(t, err)
	assert.False(t, applied)

	saved, err = repo.GetOrderByID(ctx, ord.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, saved.Status)
	if assert.NotNil(t, saved.PaymentProofURL) {
		assert.Equal(t, order.ProofManual, *saved.PaymentProofURL)
	}
}
