package models

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus represents the status of a case
type CaseStatus string

const (
	CaseStatusNew               CaseStatus = "new"
	CaseStatusDocumentGenerated CaseStatus = "document_generated"
	CaseStatusClosed            CaseStatus = "closed"
)

// Case represents a client matter under active work
type Case struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Status          CaseStatus `json:"status"`
	ClientName      string     `json:"client_name"`
	Narrative       string     `json:"narrative"`
	SpecificRequest string     `json:"specific_request"`
	Municipality    *string    `json:"municipality,omitempty"`
	Region          *string    `json:"region,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}
