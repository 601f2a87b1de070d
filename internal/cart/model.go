package cart

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var ErrInvalidOwner = errors.New("cart owner must be a user or a session")

// Owner identifies who a cart belongs to: an authenticated user or an
// anonymous session, never both. The zero value is invalid; the constructors
// are the only way to build a usable Owner.
type Owner struct {
	userID    uuid.UUID
	sessionID string
}

func UserOwner(userID uuid.UUID) Owner {
	return Owner{userID: userID}
}

func SessionOwner(sessionID string) Owner {
	return Owner{sessionID: sessionID}
}

func (o Owner) IsUser() bool {
	return o.userID != uuid.Nil
}

func (o Owner) UserID() uuid.UUID { return o.userID }

func (o Owner) SessionID() string { return o.sessionID }

func (o Owner) Valid() bool {
	return (o.userID != uuid.Nil) != (o.sessionID != "")
}

// CartLine is one distinct purchasable configuration in a cart. For a given
// owner the (product, variant, length, color) tuple is unique; repeat adds
// increment Quantity instead of inserting a second row.
type CartLine struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.NullUUID `json:"user_id,omitempty"`
	SessionID      *string       `json:"session_id,omitempty"`
	ProductID      uuid.UUID     `json:"product_id"`
	VariantID      uuid.NullUUID `json:"variant_id,omitempty"`
	Quantity       int           `json:"quantity"`
	SelectedLength *string       `json:"selected_length,omitempty"`
	SelectedColor  *string       `json:"selected_color,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Line is a CartLine decorated for display with catalog data and the
// resolved price. The decoration is a read-time join, never stored.
type Line struct {
	CartLine
	ProductName  string          `json:"product_name"`
	ProductSlug  string          `json:"product_slug"`
	ProductImage string          `json:"product_image"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

// AddLineInput carries one "add to cart" request. Length and color are empty
// strings when not selected.
type AddLineInput struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int       `json:"quantity"`
	SelectedLength string    `json:"selected_length"`
	SelectedColor  string    `json:"selected_color"`
}
