package cart_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/storefront/internal/cart"
)

var db *pgxpool.Pool

// The repository tests need a migrated Postgres database; point
// TEST_DATABASE_URL at one to run them. Without it the package still runs
// its service tests.
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

func setup(t *testing.T) cart.Repository {
	if db == nil {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	_, err := db.Exec(ctx, "TRUNCATE TABLE cart_lines, product_variants, products, categories CASCADE")
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	_, err = db.Exec(ctx, `
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

	repo := cart.NewRepository(db)

	t.Cleanup(func() {
		_, err := db.Exec(context.Background(), "TRUNCATE TABLE cart_lines, product_variants, products, categories CASCADE")
		if err != nil {
			t.Fatalf("Failed to truncate tables after test: %v", err)
		}
	})

	return repo
}

func stringPtr(s string) *string { return &s }

func variantLine(qty int) *cart.CartLine {
	return &cart.CartLine{
		ProductID:      testProductID,
		VariantID:      uuidNull(testVariantID),
		Quantity:       qty,
		SelectedLength: stringPtr("18 inches"),
		SelectedColor:  stringPtr("natural black"),
	}
}

func TestPostgresRepository_AddLine_Upsert(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	owner := cart.UserOwner(testUserID)

	first, err := repo.AddLine(ctx, owner, variantLine(1))
	assert.NoError(t, err, "AddLine should not return an error")
	assert.Equal(t, 1, first.Quantity)

	// Same configuration tuple again: one row, summed quantity.
	second, err := repo.AddLine(ctx, owner, variantLine(2))
	assert.NoError(t, err, "Second AddLine should not return an error")
	assert.Equal(t, first.ID, second.ID, "Identical tuples must collapse into one line")
	assert.Equal(t, 3, second.Quantity)

	count, err := repo.CountLines(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	// A different configuration of the same product is a separate line.
	bare := &cart.CartLine{ProductID: testProductID, Quantity: 1}
	third, err := repo.AddLine(ctx, owner, bare)
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	count, err = repo.CountLines(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPostgresRepository_AddLine_NullTuplesCollide(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	owner := cart.SessionOwner("sess-upsert")

	first, err := repo.AddLine(ctx, owner, &cart.CartLine{ProductID: testProductID, Quantity: 1})
	assert.NoError(t, err)

	// No variant, no selections: the NULL columns must still dedupe.
	second, err := repo.AddLine(ctx, owner, &cart.CartLine{ProductID: testProductID, Quantity: 1})
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Quantity)
}

func TestPostgresRepository_ListLines_ResolvesCurrentPrice(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	owner := cart.UserOwner(testUserID)

	_, err := repo.AddLine(ctx, owner, variantLine(2))
	assert.NoError(t, err)

	lines, err := repo.ListLines(ctx, owner)
	assert.NoError(t, err)
	if assert.Len(t, lines, 1) {
		assert.Equal(t, "Raw Donor Bundle", lines[0].ProductName)
		assert.True(t, decimal.NewFromInt(15000).Equal(lines[0].UnitPrice), "variant price should win, got %s", lines[0].UnitPrice)
		assert.True(t, decimal.NewFromInt(30000).Equal(lines[0].LineTotal))
	}

	// Variant repricing is visible on the next read; nothing is cached.
	_, err = db.Exec(ctx, "UPDATE product_variants SET price = 18000 WHERE id = $1", testVariantID)
	assert.NoError(t, err)

	lines, err = repo.ListLines(ctx, owner)
	assert.NoError(t, err)
	if assert.Len(t, lines, 1) {
		assert.True(t, decimal.NewFromInt(18000).Equal(lines[0].UnitPrice))
	}
}

func TestPostgresRepository_RemoveLine(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	owner := cart.UserOwner(testUserID)

	added, err := repo.AddLine(ctx, owner, variantLine(1))
	assert.NoError(t, err)

	// Another owner's delete must not touch the line.
	err = repo.RemoveLine(ctx, cart.SessionOwner("sess-other"), added.ID)
	assert.NoError(t, err)
	count, err := repo.CountLines(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	err = repo.RemoveLine(ctx, owner, added.ID)
	assert.NoError(t, err)
	count, err = repo.CountLines(ctx, owner)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	// Removing an already-removed line is a no-op.
	assert.NoError(t, repo.RemoveLine(ctx, owner, added.ID))
}

func TestPostgresRepository_MergeSessionIntoUser(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()
	sessionOwner := cart.SessionOwner("sess-merge")
	userOwner := cart.UserOwner(testUserID)

	// User already holds 1 of the variant; the session holds 2 of the same
	// tuple plus a bare product line the user does not have.
	_, err := repo.AddLine(ctx, userOwner, variantLine(1))
	assert.NoError(t, err)
	_, err = repo.AddLine(ctx, sessionOwner, variantLine(2))
	assert.NoError(t, err)
	_, err = repo.AddLine(ctx, sessionOwner, &cart.CartLine{ProductID: testProductID, Quantity: 4})
	assert.NoError(t, err)

	err = repo.MergeSessionIntoUser(ctx, "sess-merge", testUserID)
	assert.NoError(t, err, "MergeSessionIntoUser should not return an error")

	sessionCount, err := repo.CountLines(ctx, sessionOwner)
	assert.NoError(t, err)
	assert.Equal(t, 0, sessionCount, "the session cart should be empty after the merge")

	lines, err := repo.ListLines(ctx, userOwner)
	assert.NoError(t, err)
	assert.Len(t, lines, 2)

	quantities := map[bool]int{}
	for _, l := range lines {
		quantities[l.VariantID.Valid] = l.Quantity
	}
	assert.Equal(t, 3, quantities[true], "matching tuples should sum quantities")
	assert.Equal(t, 4, quantities[false], "unmatched session lines should move over unchanged")

	// Merging again finds nothing to do.
	err = repo.MergeSessionIntoUser(ctx, "sess-merge", testUserID)
	assert.NoError(t, err)

	lines, err = repo.ListLines(ctx, userOwner)
	assert.NoError(t, err)
	assert.Len(t, lines, 2)
	for _, l := range lines {
		if l.VariantID.Valid {
			assert.Equal(t, 3, l.Quantity, "a repeated merge must not double quantities")
		}
	}
}

func uuidNull(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
