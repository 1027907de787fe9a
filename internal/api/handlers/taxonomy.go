package handlers

import (
	"net/http"

	"github.com/presslens/presslens/internal/domain"
)

type TaxonomyHandler struct {
	taxonomy *domain.Taxonomy
}

func NewTaxonomyHandler(taxonomy *domain.Taxonomy) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomy: taxonomy}
}

func (h *TaxonomyHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.taxonomy)
}
