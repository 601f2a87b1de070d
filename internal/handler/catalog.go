package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type CatalogHandler struct {
	catalog catalog.Reader
}

func NewCatalogHandler(catalogReader catalog.Reader) *CatalogHandler {
	return &CatalogHandler{catalog: catalogReader}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/categories", h.handleListCategories)
	router.Get("/products", h.handleListProducts)
	router.Get("/products/{slug}", h.handleGetProduct)
}

func (h *CatalogHandler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list categories")
		respondWithError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

func (h *CatalogHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	onlyFeatured := r.URL.Query().Get("featured") == "true"

	products, err := h.catalog.ListProducts(r.Context(), onlyFeatured)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list products")
		respondWithError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	respondWithJSON(w, http.StatusOK, products)
}

type productResponse struct {
	catalog.Product
	Variants []catalog.ProductVariant `json:"variants"`
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	product, err := h.catalog.GetProductBySlug(r.Context(), slug)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "product not found")
			return
		}
		log.Error().Err(err).Str("slug", slug).Msg("handler: failed to get product")
		respondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	variants, err := h.catalog.GetVariants(r.Context(), product.ID)
	if err != nil {
		log.Error().Err(err).Stringer("product_id", product.ID).Msg("handler: failed to get variants")
		respondWithError(w, http.StatusInternalServerError, "failed to get product")
		return
	}

	respondWithJSON(w, http.StatusOK, productResponse{Product: *product, Variants: variants})
}
