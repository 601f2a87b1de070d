package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/storage"
)

const (
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
)

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to marshal response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	var stockErr *order.StockError
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidOwner),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.As(err, &stockErr),
		errors.Is(err, payment.ErrAlreadyProcessed),
		errors.Is(err, order.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, payment.ErrNotYourOrder):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// ownerFromRequest builds the cart owner from the identity headers. The
// identity provider upstream guarantees at most one of them; a request
// carrying both (or neither) is malformed.
func ownerFromRequest(r *http.Request) (cart.Owner, error) {
	userHeader := r.Header.Get(headerUserID)
	sessionHeader := r.Header.Get(headerSessionID)

	if userHeader != "" && sessionHeader != "" {
		return cart.Owner{}, cart.ErrInvalidOwner
	}
	if userHeader != "" {
		userID, err := uuid.FromString(userHeader)
		if err != nil {
			return cart.Owner{}, cart.ErrInvalidOwner
		}
		return cart.UserOwner(userID), nil
	}
	if sessionHeader != "" {
		return cart.SessionOwner(sessionHeader), nil
	}
	return cart.Owner{}, cart.ErrInvalidOwner
}

func userIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	userID, err := uuid.FromString(r.Header.Get(headerUserID))
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}
