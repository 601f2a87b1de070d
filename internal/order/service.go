package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/config"
)

const orderNumberAttempts = 5

// Notifier receives status-change notifications. Delivery is best-effort:
// implementations log failures and never surface them to the state machine.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, ord *Order, oldStatus, newStatus Status)
}

type CheckoutInput struct {
	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`
	Notes           string  `json:"notes"`
}

type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*Order, error)
	GetOrderByID(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error)
	AdvanceStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error
}

type service struct {
	repo     Repository
	cartRepo cart.Repository
	catalog  catalog.Reader
	shipping config.ShippingConfig
	notifier Notifier
}

func NewService(repo Repository, cartRepo cart.Repository, catalogReader catalog.Reader, shipping config.ShippingConfig, notifier Notifier) Service {
	return &service{
		repo:     repo,
		cartRepo: cartRepo,
		catalog:  catalogReader,
		shipping: shipping,
		notifier: notifier,
	}
}

// Checkout converts the user's cart into an order. Prices are re-resolved
// against current catalog state, never trusted from the cart or the client;
// stock is re-validated and the whole conversion (order insert, stock
// decrement, cart clear) is one transaction.
func (s *service) Checkout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*Order, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("service: checkout requires an authenticated user")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, err
	}
	if err := input.BillingAddress.Validate(); err != nil {
		return nil, err
	}

	cartLines, err := s.cartRepo.ListLines(ctx, cart.UserOwner(userID))
	if err != nil {
		return nil, fmt.Errorf("service: failed to load cart for checkout: %w", err)
	}
	if len(cartLines) == 0 {
		log.Warn().Stringer("user_id", userID).Msg("service: checkout attempted with empty cart")
		return nil, ErrEmptyCart
	}

	lines := make([]OrderLine, 0, len(cartLines))
	cartLineIDs := make([]uuid.UUID, 0, len(cartLines))
	subtotal := decimal.Zero

	for i := range cartLines {
		cl := &cartLines[i]

		product, err := s.catalog.GetProduct(ctx, cl.ProductID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to fetch product %s for checkout: %w", cl.ProductID, err)
		}
		variants, err := s.catalog.GetVariants(ctx, product.ID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to fetch variants for checkout: %w", err)
		}

		resolution := catalog.ResolvePrice(product, variants,
			deref(cl.SelectedLength), deref(cl.SelectedColor))

		if resolution.AvailableStock < cl.Quantity {
			return nil, &StockError{
				ProductID: product.ID,
				Requested: cl.Quantity,
				Available: resolution.AvailableStock,
			}
		}

		lineID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order line ID: %w", err)
		}

		lines = append(lines, OrderLine{
			ID:             lineID,
			ProductID:      product.ID,
			VariantID:      resolution.MatchedVariantID,
			Quantity:       cl.Quantity,
			UnitPrice:      resolution.UnitPrice,
			SelectedLength: cl.SelectedLength,
			SelectedColor:  cl.SelectedColor,
		})
		cartLineIDs = append(cartLineIDs, cl.ID)
		subtotal = subtotal.Add(resolution.UnitPrice.Mul(decimal.NewFromInt(int64(cl.Quantity))))
	}

	shippingFee := s.shipping.FlatFee
	if subtotal.GreaterThan(s.shipping.FreeShippingThreshold) {
		shippingFee = decimal.Zero
	}

	ord := &Order{
		UserID:          userID,
		Status:          StatusPending,
		Subtotal:        subtotal,
		ShippingFee:     shippingFee,
		TotalAmount:     subtotal.Add(shippingFee),
		ShippingAddress: input.ShippingAddress.Format(),
		BillingAddress:  input.BillingAddress.Format(),
		Notes:           input.Notes,
		Lines:           lines,
	}

	// Order-number collisions regenerate rather than fail, bounded so an
	// exhausted numbering scheme cannot loop forever.
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		ord.ID, err = uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order ID: %w", err)
		}
		ord.OrderNumber, err = generateOrderNumber()
		if err != nil {
			return nil, fmt.Errorf("service: failed to generate order number: %w", err)
		}

		err = s.repo.CreateOrder(ctx, ord, cartLineIDs)
		if err == nil {
			log.Info().
				Stringer("order_id", ord.ID).
				Str("order_number", ord.OrderNumber).
				Stringer("user_id", userID).
				Str("total", ord.TotalAmount.String()).
				Msg("service: order created")
			return ord, nil
		}
		if errors.Is(err, ErrOrderNumberTaken) {
			log.Warn().Str("order_number", ord.OrderNumber).Msg("service: order number collision, regenerating")
			continue
		}
		var stockErr *StockError
		if errors.As(err, &stockErr) {
			log.Warn().Err(stockErr).Stringer("user_id", userID).Msg("service: checkout rejected on stock")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}
	return nil, fmt.Errorf("service: failed to create order: %w", ErrOrderNumberTaken)
}

func (s *service) GetOrderByID(ctx context.Context, userID, orderID uuid.UUID) (*Order, error) {
	ord, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	// Orders are visible only to their owner; anyone else sees not-found.
	if ord.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

// AdvanceStatus is the operator path: payment_pending → processing →
// confirmed → shipped → delivered in order, or cancelled from any
// non-terminal state. Every applied transition notifies the customer.
func (s *service) AdvanceStatus(ctx context.Context, orderID uuid.UUID, newStatus Status) error {
	ord, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to fetch order for status update: %w", err)
	}

	if ord.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order already in requested status")
		return nil
	}
	if !CanTransition(ord.Status, newStatus) {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", ord.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ord.Status, newStatus)
	}

	applied, err := s.repo.UpdateStatus(ctx, orderID, ord.Status, newStatus)
	if err != nil {
		return fmt.Errorf("service: failed to update order status: %w", err)
	}
	if !applied {
		// Lost a race with a concurrent transition; the conditional update
		// kept the state machine consistent.
		return fmt.Errorf("%w: order %s changed concurrently", ErrInvalidTransition, orderID)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", ord.Status).
		Stringer("new_status", newStatus).
		Msg("service: order status updated")

	s.notifier.NotifyStatusChange(ctx, ord, ord.Status, newStatus)
	return nil
}

const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func generateOrderNumber() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("BT-%s-%s", time.Now().UTC().Format("20060102"), string(buf)), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
