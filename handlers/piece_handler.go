package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"litisdraft-backend/models"
	"litisdraft-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PieceHandler handles HTTP requests for generation and the piece
// review lifecycle
type PieceHandler struct {
	draftService *service.DraftService
	pieceService *service.PieceService
}

// NewPieceHandler creates a new piece handler
func NewPieceHandler(draftService *service.DraftService, pieceService *service.PieceService) *PieceHandler {
	return &PieceHandler{
		draftService: draftService,
		pieceService: pieceService,
	}
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// lifecycleStatus maps service errors to HTTP codes
func lifecycleStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrPieceNotFound):
		return http.StatusNotFound, "PIECE_NOT_FOUND"
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, service.ErrIllegalTransition):
		return http.StatusConflict, "ILLEGAL_TRANSITION"
	case errors.Is(err, service.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT"
	case errors.Is(err, service.ErrEmptyRejectReason), errors.Is(err, service.ErrEmptyContent):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// GenerateRequest is the request body for POST /api/cases/:id/generate
type GenerateRequest struct {
	DocumentType      string                   `json:"document_type" binding:"required"`
	ActorID           string                   `json:"actor_id" binding:"required"`
	ActorRole         string                   `json:"actor_role" binding:"required"`
	CuratedPrecedents []models.PrecedentRecord `json:"curated_precedents,omitempty"`
}

// sseEvent is one frame written to the client stream
type sseEvent struct {
	name string
	data any
}

// Generate handles POST /api/cases/:id/generate. Partial output is
// streamed to the client as SSE delta events while the backend stream
// runs; the final event carries the committed piece, or the error
// together with whatever text had arrived.
func (h *PieceHandler) Generate(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid case ID format")
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ACTOR_ID", "Invalid actor_id format")
		return
	}

	events := make(chan sseEvent, 32)
	go func() {
		defer close(events)

		result, genErr := h.draftService.GeneratePiece(c.Request.Context(), service.GeneratePieceRequest{
			CaseID:            caseID,
			DocumentType:      models.DocumentTypeKey(req.DocumentType),
			ActorID:           actorID,
			ActorRole:         models.Role(req.ActorRole),
			CuratedPrecedents: req.CuratedPrecedents,
			OnDelta: func(delta string) {
				// Non-blocking: a disconnected client must not stall the
				// pipeline, and the final event carries the full text anyway
				select {
				case events <- sseEvent{name: "delta", data: gin.H{"text": delta}}:
				default:
				}
			},
		})

		var final sseEvent
		switch {
		case genErr == nil:
			final = sseEvent{name: "done", data: gin.H{"piece": result.Piece}}
		case errors.Is(genErr, service.ErrGenerationCancelled):
			final = sseEvent{name: "cancelled", data: gin.H{"partial_text": result.PartialText}}
		default:
			data := gin.H{"message": genErr.Error()}
			if result != nil {
				data["partial_text"] = result.PartialText
			}
			final = sseEvent{name: "error", data: data}
		}

		select {
		case events <- final:
		case <-c.Request.Context().Done():
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-events
		if !ok {
			return false
		}
		payload, err := json.Marshal(event.data)
		if err != nil {
			return false
		}
		c.SSEvent(event.name, string(payload))
		return true
	})
}

// CancelGenerate handles POST /api/cases/:id/generate/cancel
func (h *PieceHandler) CancelGenerate(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid case ID format")
		return
	}

	h.draftService.CancelGeneration(caseID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPiece handles GET /api/pieces/:id
func (h *PieceHandler) GetPiece(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid piece ID format")
		return
	}

	piece, err := h.pieceService.Get(c.Request.Context(), id)
	if err != nil {
		status, code := lifecycleStatus(err)
		errorResponse(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": piece})
}

// ListVersions handles GET /api/pieces/:id/versions
func (h *PieceHandler) ListVersions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid piece ID format")
		return
	}

	versions, err := h.pieceService.Versions(c.Request.Context(), id)
	if err != nil {
		status, code := lifecycleStatus(err)
		errorResponse(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": versions})
}

// DownloadArtifact handles GET /api/pieces/:id/artifact, streaming the
// exported document text to the client.
func (h *PieceHandler) DownloadArtifact(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid piece ID format")
		return
	}

	reader, err := h.pieceService.Artifact(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNoArtifact) {
			errorResponse(c, http.StatusNotFound, "NO_ARTIFACT", "Piece has no exported artifact")
			return
		}
		status, code := lifecycleStatus(err)
		errorResponse(c, status, code, err.Error())
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	io.Copy(c.Writer, reader)
}

// ReplaceContentRequest is the request body for PUT /api/pieces/:id/content
type ReplaceContentRequest struct {
	Content         string `json:"content" binding:"required"`
	ExpectedVersion int    `json:"expected_version" binding:"required"`
	ActorID         string `json:"actor_id" binding:"required"`
	ActorRole       string `json:"actor_role" binding:"required"`
}

// ReplaceContent handles PUT /api/pieces/:id/content
func (h *PieceHandler) ReplaceContent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid piece ID format")
		return
	}

	var req ReplaceContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ACTOR_ID", "Invalid actor_id format")
		return
	}

	piece, err := h.pieceService.ReplaceContent(c.Request.Context(), service.ReplaceContentRequest{
		PieceID:         id,
		ExpectedVersion: req.ExpectedVersion,
		NewContent:      req.Content,
		EditorID:        actorID,
		EditorRole:      models.Role(req.ActorRole),
	})
	if err != nil {
		status, code := lifecycleStatus(err)
		errorResponse(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": piece})
}

// TransitionRequest is the request body for lifecycle transitions
type TransitionRequest struct {
	ActorRole string `json:"actor_role" binding:"required"`
	Reason    string `json:"reason,omitempty"`
}

func (h *PieceHandler) transition(c *gin.Context, fn func(id uuid.UUID, role models.Role, reason string) (*models.Piece, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid piece ID format")
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	piece, err := fn(id, models.Role(req.ActorRole), req.Reason)
	if err != nil {
		status, code := lifecycleStatus(err)
		errorResponse(c, status, code, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": piece})
}

// SubmitForReview handles POST /api/pieces/:id/submit
func (h *PieceHandler) SubmitForReview(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, role models.Role, _ string) (*models.Piece, error) {
		return h.pieceService.SubmitForReview(c.Request.Context(), id, role)
	})
}

// Approve handles POST /api/pieces/:id/approve
func (h *PieceHandler) Approve(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, role models.Role, _ string) (*models.Piece, error) {
		return h.pieceService.Approve(c.Request.Context(), id, role)
	})
}

// Reject handles POST /api/pieces/:id/reject
func (h *PieceHandler) Reject(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, role models.Role, reason string) (*models.Piece, error) {
		return h.pieceService.Reject(c.Request.Context(), id, role, reason)
	})
}

// Export handles POST /api/pieces/:id/export
func (h *PieceHandler) Export(c *gin.Context) {
	h.transition(c, func(id uuid.UUID, role models.Role, _ string) (*models.Piece, error) {
		return h.pieceService.Export(c.Request.Context(), id, role)
	})
}
