package models

import (
	"time"

	"github.com/google/uuid"
)

// PieceStatus represents the review status of a generated piece
type PieceStatus string

const (
	PieceStatusDraft         PieceStatus = "draft"
	PieceStatusPendingReview PieceStatus = "pending_review"
	PieceStatusApproved      PieceStatus = "approved"
	PieceStatusRejected      PieceStatus = "rejected"
	PieceStatusExported      PieceStatus = "exported"
)

// DocumentTypeKey identifies the template used for a generated piece
type DocumentTypeKey string

const (
	DocTypeInitialPetition DocumentTypeKey = "initial_petition"
	DocTypeAppealBrief     DocumentTypeKey = "appeal_brief"
	DocTypeReplyBrief      DocumentTypeKey = "reply_brief"
)

// Piece represents a generated legal document with versioned content
type Piece struct {
	ID              uuid.UUID       `json:"id"`
	CaseID          uuid.UUID       `json:"case_id"`
	DocumentType    DocumentTypeKey `json:"document_type"`
	Content         string          `json:"content"`
	Version         int             `json:"version"`
	Status          PieceStatus     `json:"status"`
	CreatedBy       uuid.UUID       `json:"created_by"`
	CreatedByRole   Role            `json:"created_by_role"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ExportPath      *string         `json:"export_path,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PieceVersion is an append-only snapshot of a piece's content taken
// immediately before a content replacement. Never mutated or deleted.
type PieceVersion struct {
	ID        uuid.UUID `json:"id"`
	PieceID   uuid.UUID `json:"piece_id"`
	Version   int       `json:"version"` // version number at the time of the snapshot
	Content   string    `json:"content"`
	ChangedBy uuid.UUID `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}
