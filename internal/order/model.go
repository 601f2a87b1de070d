package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusPaymentPending Status = "payment_pending"
	StatusProcessing     Status = "processing"
	StatusConfirmed      Status = "confirmed"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Payable reports whether the payment page may render for an order in this
// status. Anything later than payment_pending has already been acted on by
// an operator and must not be re-payable.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusPaymentPending
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusPaymentPending: true,
		StatusCancelled:      true,
	},
	StatusPaymentPending: {
		StatusPaymentPending: true, // proof resubmission
		StatusProcessing:     true,
		StatusCancelled:      true,
	},
	StatusProcessing: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// ProofManual is stored instead of a URL when the customer marks an order as
// paid without uploading proof; operators reconcile those manually.
const ProofManual = "manual"

// OrderLine is a snapshot of a cart line at order-creation time. UnitPrice
// is copied, never referenced: later catalog price changes must not touch
// existing orders.
type OrderLine struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	VariantID      uuid.NullUUID   `json:"variant_id,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SelectedLength *string         `json:"selected_length,omitempty"`
	SelectedColor  *string         `json:"selected_color,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          uuid.UUID       `json:"user_id"`
	Status          Status          `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress string          `json:"shipping_address"`
	BillingAddress  string          `json:"billing_address"`
	Notes           string          `json:"notes"`
	PaymentProofURL *string         `json:"payment_proof_url,omitempty"`
	Lines           []OrderLine     `json:"lines"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Address is the checkout address form. It is snapshotted onto the order as
// formatted text; later edits to a user's saved addresses never touch past
// orders.
type Address struct {
	RecipientName string `json:"recipient_name"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	Phone         string `json:"phone"`
}

func (a Address) Validate() error {
	var missing []string
	if a.RecipientName == "" {
		missing = append(missing, "recipient_name")
	}
	if a.Street == "" {
		missing = append(missing, "street")
	}
	if a.City == "" {
		missing = append(missing, "city")
	}
	if a.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, strings.Join(missing, ", "))
	}
	return nil
}

func (a Address) Format() string {
	parts := []string{a.RecipientName, a.Street, a.City}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	parts = append(parts, a.Phone)
	return strings.Join(parts, ", ")
}
