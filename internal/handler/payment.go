package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/payment"
)

type PaymentHandler struct {
	svc      payment.Service
	maxBytes int64
}

func NewPaymentHandler(svc payment.Service, maxUploadBytes int64) *PaymentHandler {
	return &PaymentHandler{svc: svc, maxBytes: maxUploadBytes}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders/{id}/payment", h.handleGetPayment)
	router.Post("/orders/{id}/payment/proof", h.handleSubmitProof)
	router.Post("/orders/{id}/payment/mark-paid", h.handleMarkAsPaid)
	router.Post("/orders/{id}/payment/attempt", h.handleStartAttempt)
	router.Get("/payment/attempt", h.handleGetAttempt)
}

// handleGetPayment guards the payment page: a non-payable order redirects to
// its read-only detail view instead, so a customer can never re-pay an order
// an operator has already acted on.
func (h *PaymentHandler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	ord, err := h.svc.GetPayableOrder(r.Context(), userID, orderID)
	if err != nil {
		if errors.Is(err, payment.ErrAlreadyProcessed) {
			http.Redirect(w, r, fmt.Sprintf("/orders/%s", orderID), http.StatusSeeOther)
			return
		}
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ord)
}

func (h *PaymentHandler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
		return
	}

	file, header, err := r.FormFile("proof")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "a proof file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("handler: failed to read proof upload")
		respondWithError(w, http.StatusInternalServerError, "failed to read uploaded file")
		return
	}

	ord, err := h.svc.SubmitProof(r.Context(), userID, orderID, payment.ProofUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ord)
}

func (h *PaymentHandler) handleMarkAsPaid(w http.ResponseWriter, r *http.Request) {
	userID, orderID, ok := h.identify(w, r)
	if !ok {
		return
	}

	ord, err := h.svc.MarkAsPaid(r.Context(), userID, orderID)
	if err != nil {
		respondWithError(w, mapErrorToStatusCode(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, ord)
}

func (h *PaymentHandler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "a session identity is required")
		return
	}

	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	attempt, err := h.svc.StartAttempt(r.Context(), sessionID, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("handler: failed to record payment attempt")
		respondWithError(w, mapErrorToStatusCode(err), "failed to record payment attempt")
		return
	}
	respondWithJSON(w, http.StatusCreated, attempt)
}

func (h *PaymentHandler) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "a session identity is required")
		return
	}

	attempt, err := h.svc.GetAttempt(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to fetch payment attempt")
		respondWithError(w, http.StatusInternalServerError, "failed to fetch payment attempt")
		return
	}
	if attempt == nil {
		respondWithError(w, http.StatusNotFound, "no payment attempt for this session")
		return
	}
	respondWithJSON(w, http.StatusOK, attempt)
}

func (h *PaymentHandler) identify(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := userIDFromRequest(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "an authenticated user is required")
		return uuid.Nil, uuid.Nil, false
	}
	orderID, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, orderID, true
}
