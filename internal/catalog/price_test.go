package catalog_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

func TestResolvePrice(t *testing.T) {
	productID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	variantID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))

	product := &catalog.Product{
		ID:    productID,
		Price: decimal.NewFromInt(12000),
		Stock: 10,
	}
	variants := []catalog.ProductVariant{
		{
			ID:        variantID,
			ProductID: productID,
			Length:    "18 inches",
			Color:     "natural black",
			Price:     decimal.NewFromInt(15000),
			Stock:     5,
		},
		{
			ID:        uuid.Must(uuid.NewV4()),
			ProductID: productID,
			Length:    "22 inches",
			Color:     "burgundy",
			Price:     decimal.NewFromInt(18500),
			Stock:     2,
		},
	}

	tests := []struct {
		name           string
		variants       []catalog.ProductVariant
		selectedLength string
		selectedColor  string
		wantPrice      decimal.Decimal
		wantStock      int
		wantVariantID  uuid.NullUUID
	}{
		{
			name:      "no_variants_uses_product",
			variants:  nil,
			wantPrice: decimal.NewFromInt(12000),
			wantStock: 10,
		},
		{
			name:           "exact_variant_match",
			variants:       variants,
			selectedLength: "18 inches",
			selectedColor:  "natural black",
			wantPrice:      decimal.NewFromInt(15000),
			wantStock:      5,
			wantVariantID:  uuid.NullUUID{UUID: variantID, Valid: true},
		},
		{
			name:           "no_matching_variant_falls_back_to_product",
			variants:       variants,
			selectedLength: "30 inches",
			selectedColor:  "natural black",
			wantPrice:      decimal.NewFromInt(12000),
			wantStock:      10,
		},
		{
			name:           "only_length_selected_falls_back_to_product",
			variants:       variants,
			selectedLength: "18 inches",
			wantPrice:      decimal.NewFromInt(12000),
			wantStock:      10,
		},
		{
			name:          "only_color_selected_falls_back_to_product",
			variants:      variants,
			selectedColor: "natural black",
			wantPrice:     decimal.NewFromInt(12000),
			wantStock:     10,
		},
		{
			name:      "nothing_selected_with_variants_falls_back_to_product",
			variants:  variants,
			wantPrice: decimal.NewFromInt(12000),
			wantStock: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.ResolvePrice(product, tt.variants, tt.selectedLength, tt.selectedColor)

			assert.True(t, tt.wantPrice.Equal(got.UnitPrice), "unit price should be %s, got %s", tt.wantPrice, got.UnitPrice)
			assert.Equal(t, tt.wantStock, got.AvailableStock)
			assert.Equal(t, tt.wantVariantID, got.MatchedVariantID)
		})
	}
}
