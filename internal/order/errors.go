package order

import (
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidAddress    = errors.New("address is missing required fields")
	ErrOrderNumberTaken  = errors.New("order number already taken")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// StockError names the line whose requested quantity exceeds current stock.
// The cart is left untouched so the customer can adjust and retry.
type StockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
