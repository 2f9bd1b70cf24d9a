package repository

import (
	"context"

	"litisdraft-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for case documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document record
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO case_documents (case_id, tag, extracted_text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		doc.CaseID,
		doc.Tag,
		doc.ExtractedText,
	).Scan(&doc.ID, &doc.CreatedAt)

	return err
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	query := `
		SELECT id, case_id, tag, extracted_text, created_at
		FROM case_documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.CaseID,
		&doc.Tag,
		&doc.ExtractedText,
		&doc.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	return doc, nil
}

// ListByCaseID retrieves all documents attached to a case
func (r *DocumentRepository) ListByCaseID(ctx context.Context, caseID uuid.UUID) ([]models.Document, error) {
	query := `
		SELECT id, case_id, tag, extracted_text, created_at
		FROM case_documents
		WHERE case_id = $1
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc := models.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.CaseID,
			&doc.Tag,
			&doc.ExtractedText,
			&doc.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
