package handlers

import (
	"errors"
	"net/http"

	"litisdraft-backend/courts"
	"litisdraft-backend/service"

	"github.com/gin-gonic/gin"
)

// PrecedentHandler handles manual precedent lookups
type PrecedentHandler struct {
	draftService *service.DraftService
}

// NewPrecedentHandler creates a new precedent handler
func NewPrecedentHandler(draftService *service.DraftService) *PrecedentHandler {
	return &PrecedentHandler{draftService: draftService}
}

// SearchRequest is the request body for POST /api/precedents/search
type SearchRequest struct {
	Terms          string   `json:"terms" binding:"required"`
	Sources        []string `json:"sources" binding:"required"`
	PerSourceLimit int      `json:"per_source_limit"`
}

// Search handles POST /api/precedents/search. Partial source failures
// surface only as a failed-source count; the search itself succeeds.
func (h *PrecedentHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if req.PerSourceLimit <= 0 {
		req.PerSourceLimit = 5
	}

	sourceIDs := make([]courts.SourceID, 0, len(req.Sources))
	for _, s := range req.Sources {
		sourceIDs = append(sourceIDs, courts.SourceID(s))
	}

	result, err := h.draftService.SearchPrecedents(c.Request.Context(), req.Terms, sourceIDs, req.PerSourceLimit)
	if err != nil {
		switch {
		case errors.Is(err, courts.ErrEmptyTerms),
			errors.Is(err, courts.ErrNoSources),
			errors.Is(err, courts.ErrInvalidLimit),
			errors.Is(err, courts.ErrUnknownSource):
			errorResponse(c, http.StatusBadRequest, "INVALID_SEARCH", err.Error())
		default:
			errorResponse(c, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
