package models

import (
	"time"

	"github.com/google/uuid"
)

// Document represents a supporting document attached to a case.
// Documents are immutable once stored; extraction happens upstream.
type Document struct {
	ID            uuid.UUID `json:"id"`
	CaseID        uuid.UUID `json:"case_id"`
	Tag           string    `json:"tag"` // e.g. "contract", "proof_of_payment", "medical_report"
	ExtractedText string    `json:"extracted_text"`
	CreatedAt     time.Time `json:"created_at"`
}
