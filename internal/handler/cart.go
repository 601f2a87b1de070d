package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/cart"
)

type AddItemRequest struct {
	ProductID      string `json:"product_id" validate:"required,uuid4"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	SelectedLength string `json:"selected_length"`
	SelectedColor  string `json:"selected_color"`
}

type MergeCartRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

type cartResponse struct {
	Lines []cart.Line `json:"lines"`
	Count int         `json:"count"`
}

type CartHandler struct {
	svc      cart.Service
	validate *validator.Validate
}

func NewCartHandler(svc cart.Service) *CartHandler {
	return &CartHandler{svc: svc, validate: validator.New()}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Delete("/cart/items/{id}", h.handleRemoveItem)
	router.Post("/cart/merge", h.handleMerge)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "a user or session identity is required")
		return
	}

	lines, err := h.svc.ListLines(r.Context(), owner)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list cart lines")
		respondWithError(w, mapErrorToStatusCode(err), "failed to load cart")
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse{Lines: lines, Count: len(lines)})
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "a user or session identity is required")
		return
	}

	var req AddItemRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	productID, err := uuid.FromString(req.ProductID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	line, err := h.svc.AddLine(r.Context(), owner, cart.AddLineInput{
		ProductID:      productID,
		Quantity:       req.Quantity,
		SelectedLength: req.SelectedLength,
		SelectedColor:  req.SelectedColor,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusCreated, line)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "a user or session identity is required")
		return
	}

	lineID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid line id")
		return
	}

	if err := h.svc.RemoveLine(r.Context(), owner, lineID); err != nil {
		log.Error().Err(err).Stringer("line_id", lineID).Msg("handler: failed to remove cart line")
		respondWithError(w, mapErrorToStatusCode(err), "failed to remove cart line")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMerge runs at login: the freshly authenticated user's identity comes
// from the header, the pre-login session from the body.
func (h *CartHandler) handleMerge(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "an authenticated user is required")
		return
	}

	var req MergeCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.MergeSessionIntoUser(r.Context(), req.SessionID, userID); err != nil {
		respondWithError(w, mapErrorToStatusCode(err), "failed to merge cart")
		return
	}

	lines, err := h.svc.ListLines(r.Context(), cart.UserOwner(userID))
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to list cart after merge")
		respondWithError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}
	respondWithJSON(w, http.StatusOK, cartResponse{Lines: lines, Count: len(lines)})
}
