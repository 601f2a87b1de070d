package catalog

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// PriceResolution is the authoritative answer for what one unit of a
// configuration costs and how many units are sellable right now.
type PriceResolution struct {
	UnitPrice        decimal.Decimal
	AvailableStock   int
	MatchedVariantID uuid.NullUUID
}

// ResolvePrice determines the unit price and available stock for a product
// given an optional length/color selection.
//
// A variant's price and stock are authoritative only when both length and
// color are selected and a variant matches them exactly. Anything else falls
// back to the product's own price and stock, including the case where
// variants exist but none matches the selection: a product with partial
// variant coverage stays purchasable at its base price.
//
// The function is pure. Cart listing and checkout must both go through it so
// they can never disagree about a price.
func ResolvePrice(product *Product, variants []ProductVariant, selectedLength, selectedColor string) PriceResolution {
	if selectedLength != "" && selectedColor != "" {
		for i := range variants {
			v := &variants[i]
			if v.Length == selectedLength && v.Color == selectedColor {
				return PriceResolution{
					UnitPrice:        v.Price,
					AvailableStock:   v.Stock,
					MatchedVariantID: uuid.NullUUID{UUID: v.ID, Valid: true},
				}
			}
		}
	}

	return PriceResolution{
		UnitPrice:      product.Price,
		AvailableStock: product.Stock,
	}
}
