package repository

import (
	"context"
	"errors"
	"fmt"

	"litisdraft-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionMismatch is returned when a conditional write finds a stored
// version different from the caller's expected version.
var ErrVersionMismatch = errors.New("piece version mismatch")

// PieceRepository handles database operations for pieces and their
// version snapshots
type PieceRepository struct {
	db *pgxpool.Pool
}

// NewPieceRepository creates a new piece repository
func NewPieceRepository(db *pgxpool.Pool) *PieceRepository {
	return &PieceRepository{db: db}
}

// Create creates a new piece at version 1
func (r *PieceRepository) Create(ctx context.Context, piece *models.Piece) error {
	query := `
		INSERT INTO pieces (
			case_id, document_type, content, version, status,
			created_by, created_by_role
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		piece.CaseID,
		piece.DocumentType,
		piece.Content,
		piece.Version,
		piece.Status,
		piece.CreatedBy,
		piece.CreatedByRole,
	).Scan(&piece.ID, &piece.CreatedAt, &piece.UpdatedAt)

	return err
}

// GetByID retrieves a piece by ID
func (r *PieceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Piece, error) {
	piece := &models.Piece{}
	query := `
		SELECT id, case_id, document_type, content, version, status,
			created_by, created_by_role, rejection_reason, export_path,
			created_at, updated_at
		FROM pieces
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&piece.ID,
		&piece.CaseID,
		&piece.DocumentType,
		&piece.Content,
		&piece.Version,
		&piece.Status,
		&piece.CreatedBy,
		&piece.CreatedByRole,
		&piece.RejectionReason,
		&piece.ExportPath,
		&piece.CreatedAt,
		&piece.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return piece, nil
}

// ReplaceContent snapshots the current content into piece_versions and
// replaces it with newContent in a single transaction. The write only
// succeeds if the stored version still equals expectedVersion; otherwise
// ErrVersionMismatch is returned and nothing is changed. When snapshot is
// false (empty prior content) the content is filled in without a version
// bump or snapshot row, preserving version = 1 + snapshot count.
func (r *PieceRepository) ReplaceContent(
	ctx context.Context,
	pieceID uuid.UUID,
	expectedVersion int,
	newContent string,
	changedBy uuid.UUID,
	snapshot bool,
) (*models.Piece, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var oldContent string
	var version int
	err = tx.QueryRow(ctx,
		`SELECT content, version FROM pieces WHERE id = $1 FOR UPDATE`,
		pieceID,
	).Scan(&oldContent, &version)
	if err != nil {
		return nil, err
	}

	if version != expectedVersion {
		return nil, ErrVersionMismatch
	}

	if snapshot {
		_, err = tx.Exec(ctx, `
			INSERT INTO piece_versions (piece_id, version, content, changed_by)
			VALUES ($1, $2, $3, $4)`,
			pieceID, version, oldContent, changedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot piece version: %w", err)
		}
		version++
	}

	piece := &models.Piece{}
	err = tx.QueryRow(ctx, `
		UPDATE pieces SET
			content = $2,
			version = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING id, case_id, document_type, content, version, status,
			created_by, created_by_role, rejection_reason, export_path,
			created_at, updated_at`,
		pieceID, newContent, version,
	).Scan(
		&piece.ID,
		&piece.CaseID,
		&piece.DocumentType,
		&piece.Content,
		&piece.Version,
		&piece.Status,
		&piece.CreatedBy,
		&piece.CreatedByRole,
		&piece.RejectionReason,
		&piece.ExportPath,
		&piece.CreatedAt,
		&piece.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit content replacement: %w", err)
	}

	return piece, nil
}

// UpdateStatus updates the review status of a piece. The write is
// conditional on the current status so concurrent transitions cannot
// both succeed; zero rows affected means the piece moved underneath us.
func (r *PieceRepository) UpdateStatus(
	ctx context.Context,
	pieceID uuid.UUID,
	from, to models.PieceStatus,
	reason *string,
) (*models.Piece, error) {
	piece := &models.Piece{}
	query := `
		UPDATE pieces SET
			status = $3,
			rejection_reason = $4,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING id, case_id, document_type, content, version, status,
			created_by, created_by_role, rejection_reason, export_path,
			created_at, updated_at`

	err := r.db.QueryRow(ctx, query, pieceID, from, to, reason).Scan(
		&piece.ID,
		&piece.CaseID,
		&piece.DocumentType,
		&piece.Content,
		&piece.Version,
		&piece.Status,
		&piece.CreatedBy,
		&piece.CreatedByRole,
		&piece.RejectionReason,
		&piece.ExportPath,
		&piece.CreatedAt,
		&piece.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return piece, nil
}

// SetExportPath records the storage path of an exported artifact
func (r *PieceRepository) SetExportPath(ctx context.Context, pieceID uuid.UUID, path string) error {
	query := `
		UPDATE pieces SET
			export_path = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, pieceID, path)
	return err
}

// ListVersions retrieves the snapshot history of a piece, oldest first
func (r *PieceRepository) ListVersions(ctx context.Context, pieceID uuid.UUID) ([]models.PieceVersion, error) {
	query := `
		SELECT id, piece_id, version, content, changed_by, changed_at
		FROM piece_versions
		WHERE piece_id = $1
		ORDER BY version`

	rows, err := r.db.Query(ctx, query, pieceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []models.PieceVersion
	for rows.Next() {
		v := models.PieceVersion{}
		err := rows.Scan(
			&v.ID,
			&v.PieceID,
			&v.Version,
			&v.Content,
			&v.ChangedBy,
			&v.ChangedAt,
		)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// GetLatestByCaseID retrieves the most recently created piece for a case
func (r *PieceRepository) GetLatestByCaseID(ctx context.Context, caseID uuid.UUID) (*models.Piece, error) {
	piece := &models.Piece{}
	query := `
		SELECT id, case_id, document_type, content, version, status,
			created_by, created_by_role, rejection_reason, export_path,
			created_at, updated_at
		FROM pieces
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.QueryRow(ctx, query, caseID).Scan(
		&piece.ID,
		&piece.CaseID,
		&piece.DocumentType,
		&piece.Content,
		&piece.Version,
		&piece.Status,
		&piece.CreatedBy,
		&piece.CreatedByRole,
		&piece.RejectionReason,
		&piece.ExportPath,
		&piece.CreatedAt,
		&piece.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return piece, nil
}
