package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

var ErrInvalidQuantity = errors.New("quantity must be greater than zero")

type Service interface {
	AddLine(ctx context.Context, owner Owner, input AddLineInput) (*CartLine, error)
	RemoveLine(ctx context.Context, owner Owner, lineID uuid.UUID) error
	ListLines(ctx context.Context, owner Owner) ([]Line, error)
	CountLines(ctx context.Context, owner Owner) (int, error)
	MergeSessionIntoUser(ctx context.Context, sessionID string, userID uuid.UUID) error
}

type service struct {
	repo    Repository
	catalog catalog.Reader
}

func NewService(repo Repository, catalogReader catalog.Reader) Service {
	return &service{repo: repo, catalog: catalogReader}
}

// AddLine validates the request, resolves the variant for the selection the
// same way checkout will, and upserts the line. Stock is not capped here;
// checkout re-validates it against current catalog state.
func (s *service) AddLine(ctx context.Context, owner Owner, input AddLineInput) (*CartLine, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}
	if input.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if input.ProductID == uuid.Nil {
		return nil, catalog.ErrProductNotFound
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch product for cart add: %w", err)
	}

	variants, err := s.catalog.GetVariants(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch variants for cart add: %w", err)
	}

	resolution := catalog.ResolvePrice(product, variants, input.SelectedLength, input.SelectedColor)

	line := &CartLine{
		ProductID:      product.ID,
		VariantID:      resolution.MatchedVariantID,
		Quantity:       input.Quantity,
		SelectedLength: nilIfEmpty(input.SelectedLength),
		SelectedColor:  nilIfEmpty(input.SelectedColor),
	}

	added, err := s.repo.AddLine(ctx, owner, line)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", product.ID).Msg("service: failed to add cart line")
		return nil, err
	}

	log.Info().
		Stringer("line_id", added.ID).
		Stringer("product_id", product.ID).
		Int("quantity", added.Quantity).
		Msg("service: cart line added")
	return added, nil
}

func (s *service) RemoveLine(ctx context.Context, owner Owner, lineID uuid.UUID) error {
	return s.repo.RemoveLine(ctx, owner, lineID)
}

func (s *service) ListLines(ctx context.Context, owner Owner) ([]Line, error) {
	return s.repo.ListLines(ctx, owner)
}

func (s *service) CountLines(ctx context.Context, owner Owner) (int, error) {
	return s.repo.CountLines(ctx, owner)
}

// MergeSessionIntoUser runs at the moment an anonymous session
// authenticates, before the user's cart is first displayed. Safe to call
// again: a second run finds no session lines left.
func (s *service) MergeSessionIntoUser(ctx context.Context, sessionID string, userID uuid.UUID) error {
	if sessionID == "" || userID == uuid.Nil {
		return ErrInvalidOwner
	}
	if err := s.repo.MergeSessionIntoUser(ctx, sessionID, userID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Stringer("user_id", userID).Msg("service: cart merge failed")
		return fmt.Errorf("service: failed to merge session cart: %w", err)
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
