package payment

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	// ErrAlreadyProcessed means an operator has already acted on the order;
	// proof is not re-enterable past that point.
	ErrAlreadyProcessed = errors.New("order has already been processed")
	// ErrNotYourOrder distinguishes "exists but belongs to someone else"
	// from not-found so the caller can present an accurate message.
	ErrNotYourOrder = errors.New("order belongs to a different user")
)

// PaymentAttempt is an ephemeral resume marker: the customer said "I started
// a bank transfer". It carries no authority over order state and may be lost
// without corrupting anything.
type PaymentAttempt struct {
	SessionID string    `json:"session_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Started   bool      `json:"started"`
	CreatedAt time.Time `json:"created_at"`
}

// ProofUpload is one proof-of-payment file submission.
type ProofUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}
