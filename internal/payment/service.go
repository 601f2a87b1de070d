package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/order"
)

// FileStore is the external storage collaborator for proof uploads. The
// implementation enforces the size ceiling and content-type allowlist.
type FileStore interface {
	Store(ctx context.Context, data []byte, filename, contentType string) (string, error)
}

type Service interface {
	// GetPayableOrder is the payment-page guard: it renders only for the
	// owner's order while it is still pending or payment_pending.
	GetPayableOrder(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error)
	SubmitProof(ctx context.Context, userID, orderID uuid.UUID, upload ProofUpload) (*order.Order, error)
	MarkAsPaid(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error)
	StartAttempt(ctx context.Context, sessionID string, orderID uuid.UUID) (*PaymentAttempt, error)
	GetAttempt(ctx context.Context, sessionID string) (*PaymentAttempt, error)
}

type service struct {
	orders   order.Repository
	attempts AttemptRepository
	files    FileStore
	notifier order.Notifier
}

func NewService(orders order.Repository, attempts AttemptRepository, files FileStore, notifier order.Notifier) Service {
	return &service{
		orders:   orders,
		attempts: attempts,
		files:    files,
		notifier: notifier,
	}
}

func (s *service) GetPayableOrder(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	ord, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order for payment: %w", err)
	}
	if ord.UserID != userID {
		return nil, ErrNotYourOrder
	}
	if !ord.Status.Payable() {
		return nil, ErrAlreadyProcessed
	}
	return ord, nil
}

// SubmitProof uploads the file first and only then transitions the order.
// A failed upload leaves the order state untouched so the customer can
// retry; a repeat upload after a crash simply overwrites the earlier proof.
func (s *service) SubmitProof(ctx context.Context, userID, orderID uuid.UUID, upload ProofUpload) (*order.Order, error) {
	ord, err := s.GetPayableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	url, err := s.files.Store(ctx, upload.Data, upload.Filename, upload.ContentType)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: proof upload failed, order state unchanged")
		return nil, err
	}

	return s.recordProof(ctx, ord, url)
}

// MarkAsPaid is the escape hatch for customers who cannot upload a file: the
// same guard and target state as SubmitProof, with a sentinel recorded in
// place of a URL so operators know manual follow-up is needed.
func (s *service) MarkAsPaid(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	ord, err := s.GetPayableOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.recordProof(ctx, ord, order.ProofManual)
}

func (s *service) recordProof(ctx context.Context, ord *order.Order, proofURL string) (*order.Order, error) {
	applied, err := s.orders.SetPaymentProof(ctx, ord.ID, proofURL)
	if err != nil {
		return nil, fmt.Errorf("service: failed to record payment proof: %w", err)
	}
	if !applied {
		// Lost a race with an operator transition between the guard read and
		// the conditional update.
		return nil, ErrAlreadyProcessed
	}

	oldStatus := ord.Status
	ord.Status = order.StatusPaymentPending
	ord.PaymentProofURL = &proofURL

	log.Info().
		Stringer("order_id", ord.ID).
		Stringer("old_status", oldStatus).
		Bool("manual", proofURL == order.ProofManual).
		Msg("service: payment proof recorded")

	if oldStatus != order.StatusPaymentPending {
		s.notifier.NotifyStatusChange(ctx, ord, oldStatus, order.StatusPaymentPending)
	}
	return ord, nil
}

func (s *service) StartAttempt(ctx context.Context, sessionID string, orderID uuid.UUID) (*PaymentAttempt, error) {
	if sessionID == "" || orderID == uuid.Nil {
		return nil, fmt.Errorf("service: payment attempt requires a session and an order")
	}
	attempt := &PaymentAttempt{SessionID: sessionID, OrderID: orderID}
	if err := s.attempts.UpsertAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("service: failed to record payment attempt: %w", err)
	}
	return attempt, nil
}

func (s *service) GetAttempt(ctx context.Context, sessionID string) (*PaymentAttempt, error) {
	if sessionID == "" {
		return nil, nil
	}
	return s.attempts.GetAttempt(ctx, sessionID)
}
