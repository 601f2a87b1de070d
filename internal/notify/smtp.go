package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var statusSubjects = map[order.Status]string{
	order.StatusPaymentPending: "We received your payment details",
	order.StatusProcessing:     "Your payment is being verified",
	order.StatusConfirmed:      "Your payment is confirmed",
	order.StatusShipped:        "Your order is on its way",
	order.StatusDelivered:      "Your order has been delivered",
	order.StatusCancelled:      "Your order was cancelled",
}

// SMTPNotifier emails the customer on order status changes. Delivery is
// best-effort: a send failure is logged and never fails the transition that
// triggered it.
type SMTPNotifier struct {
	cfg     config.SMTPConfig
	lookup  RecipientLookup
	enabled bool
}

// RecipientLookup resolves a user id to an email address; identity data
// lives with the external identity provider, not in this service.
type RecipientLookup func(ctx context.Context, userID string) (string, error)

// StaticRecipientLookup routes every notification to one mailbox, the
// operator address that handles bank-transfer reconciliation. Replace with
// the identity provider's lookup once its endpoint is available.
func StaticRecipientLookup(addr string) RecipientLookup {
	return func(ctx context.Context, userID string) (string, error) {
		if addr == "" {
			return "", fmt.Errorf("no notification recipient configured")
		}
		return addr, nil
	}
}

func NewSMTPNotifier(cfg config.SMTPConfig, lookup RecipientLookup) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:     cfg,
		lookup:  lookup,
		enabled: cfg.Host != "",
	}
}

func (n *SMTPNotifier) NotifyStatusChange(ctx context.Context, ord *order.Order, oldStatus, newStatus order.Status) {
	if !n.enabled {
		log.Debug().Stringer("order_id", ord.ID).Msg("notify: SMTP not configured, skipping status email")
		return
	}

	to, err := n.lookup(ctx, ord.UserID.String())
	if err != nil {
		log.Error().Err(err).Stringer("order_id", ord.ID).Msg("notify: failed to resolve recipient, status email dropped")
		return
	}

	subject, ok := statusSubjects[newStatus]
	if !ok {
		subject = fmt.Sprintf("Order %s update", ord.OrderNumber)
	}

	body := fmt.Sprintf(
		"Hello,\r\n\r\nYour order %s has moved from %s to %s.\r\nOrder total: %s\r\n\r\nThank you for shopping with us.",
		ord.OrderNumber, oldStatus, newStatus, ord.TotalAmount.StringFixed(2),
	)

	if err := n.send(to, subject, body); err != nil {
		log.Error().Err(err).
			Stringer("order_id", ord.ID).
			Stringer("new_status", newStatus).
			Msg("notify: failed to send status email")
		return
	}

	log.Info().
		Stringer("order_id", ord.ID).
		Stringer("new_status", newStatus).
		Msg("notify: status email sent")
}

func (n *SMTPNotifier) send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", n.cfg.Host, n.cfg.Port)
	auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Host)

	msg := []byte(
		"From: " + n.cfg.From + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}
