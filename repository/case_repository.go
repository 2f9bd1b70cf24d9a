package repository

import (
	"context"

	"litisdraft-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseRepository handles database operations for cases
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

// Create creates a new case
func (r *CaseRepository) Create(ctx context.Context, kase *models.Case) error {
	query := `
		INSERT INTO cases (
			user_id, status, client_name, narrative, specific_request,
			municipality, region
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		kase.UserID,
		kase.Status,
		kase.ClientName,
		kase.Narrative,
		kase.SpecificRequest,
		kase.Municipality,
		kase.Region,
	).Scan(&kase.ID, &kase.CreatedAt, &kase.UpdatedAt)

	return err
}

// GetByID retrieves a case by ID
func (r *CaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	kase := &models.Case{}
	query := `
		SELECT id, user_id, status, client_name, narrative, specific_request,
			municipality, region, created_at, updated_at, closed_at
		FROM cases
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&kase.ID,
		&kase.UserID,
		&kase.Status,
		&kase.ClientName,
		&kase.Narrative,
		&kase.SpecificRequest,
		&kase.Municipality,
		&kase.Region,
		&kase.CreatedAt,
		&kase.UpdatedAt,
		&kase.ClosedAt,
	)

	if err != nil {
		return nil, err
	}

	return kase, nil
}

// UpdateStatus updates the status of a case
func (r *CaseRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CaseStatus) error {
	query := `
		UPDATE cases SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status)
	return err
}
