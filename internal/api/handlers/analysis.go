package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/presslens/presslens/internal/domain"
	"github.com/presslens/presslens/internal/service"
)

type AnalysisHandler struct {
	svc *service.AnalysisService
}

func NewAnalysisHandler(svc *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

type createAnalysisRequest struct {
	Title    string                 `json:"title,omitempty"`
	Lede     string                 `json:"lede,omitempty"`
	Text     string                 `json:"text,omitempty"`
	Metadata domain.ArticleMetadata `json:"metadata,omitempty"`
}

type createAnalysisResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	ArticleID uuid.UUID `json:"article_id"`
	Status    string    `json:"status"`
}

func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	article := &domain.Article{
		Title:    req.Title,
		Lede:     req.Lede,
		Text:     req.Text,
		Metadata: req.Metadata,
	}

	runID, err := h.svc.Submit(article)
	if err != nil {
		if errors.Is(err, service.ErrArticleEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to submit analysis")
		return
	}

	writeJSON(w, http.StatusAccepted, createAnalysisResponse{
		RunID:     runID,
		ArticleID: article.ID,
		Status:    string(domain.RunPending),
	})
}

func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	view, err := h.svc.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get analysis")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Delete cancels a running analysis; an already finished run is removed
// from the registry and the archive instead.
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	err = h.svc.Cancel(id)
	if errors.Is(err, service.ErrRunNotCancellable) {
		err = h.svc.Forget(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete analysis")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AnalysisHandler) Similar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	topK := 5
	if s := r.URL.Query().Get("top_k"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil || k < 1 || k > 50 {
			writeError(w, http.StatusBadRequest, "top_k must be between 1 and 50")
			return
		}
		topK = k
	}

	results, err := h.svc.Similar(r.Context(), id, topK)
	if err != nil {
		if errors.Is(err, service.ErrArchiveDisabled) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to find similar critiques")
		return
	}
	if results == nil {
		results = []domain.CritiqueWithScore{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
