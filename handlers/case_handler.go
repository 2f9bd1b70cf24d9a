package handlers

import (
	"net/http"

	"litisdraft-backend/models"
	"litisdraft-backend/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CaseHandler exposes the minimal case surface the pipeline needs:
// intake, read and document attachment. The rest of case management
// lives in the surrounding application.
type CaseHandler struct {
	caseRepo  *repository.CaseRepository
	docRepo   *repository.DocumentRepository
	pieceRepo *repository.PieceRepository
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(caseRepo *repository.CaseRepository, docRepo *repository.DocumentRepository, pieceRepo *repository.PieceRepository) *CaseHandler {
	return &CaseHandler{caseRepo: caseRepo, docRepo: docRepo, pieceRepo: pieceRepo}
}

// CreateCaseRequest is the request body for POST /api/cases
type CreateCaseRequest struct {
	UserID          string  `json:"user_id" binding:"required"`
	ClientName      string  `json:"client_name" binding:"required"`
	Narrative       string  `json:"narrative" binding:"required"`
	SpecificRequest string  `json:"specific_request" binding:"required"`
	Municipality    *string `json:"municipality,omitempty"`
	Region          *string `json:"region,omitempty"`
}

// CreateCase handles POST /api/cases
func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user_id format")
		return
	}

	kase := &models.Case{
		UserID:          userID,
		Status:          models.CaseStatusNew,
		ClientName:      req.ClientName,
		Narrative:       req.Narrative,
		SpecificRequest: req.SpecificRequest,
		Municipality:    req.Municipality,
		Region:          req.Region,
	}

	if err := h.caseRepo.Create(c.Request.Context(), kase); err != nil {
		errorResponse(c, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": kase})
}

// GetCase handles GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid case ID format")
		return
	}

	kase, err := h.caseRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, http.StatusNotFound, "CASE_NOT_FOUND", "Case not found")
		return
	}

	docs, err := h.docRepo.ListByCaseID(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "DOCUMENTS_FAILED", err.Error())
		return
	}

	// Most recent generated piece, if the case has one
	latest, err := h.pieceRepo.GetLatestByCaseID(c.Request.Context(), id)
	if err != nil {
		latest = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"case":         kase,
			"documents":    docs,
			"latest_piece": latest,
		},
	})
}

// AddDocumentRequest is the request body for POST /api/cases/:id/documents
type AddDocumentRequest struct {
	Tag           string `json:"tag" binding:"required"`
	ExtractedText string `json:"extracted_text"`
}

// AddDocument handles POST /api/cases/:id/documents. Text extraction
// happens upstream; this endpoint only records the result.
func (h *CaseHandler) AddDocument(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid case ID format")
		return
	}

	var req AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if _, err := h.caseRepo.GetByID(c.Request.Context(), caseID); err != nil {
		errorResponse(c, http.StatusNotFound, "CASE_NOT_FOUND", "Case not found")
		return
	}

	doc := &models.Document{
		CaseID:        caseID,
		Tag:           req.Tag,
		ExtractedText: req.ExtractedText,
	}

	if err := h.docRepo.Create(c.Request.Context(), doc); err != nil {
		errorResponse(c, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": doc})
}
