package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"litisdraft-backend/models"
	"litisdraft-backend/repository"
	"litisdraft-backend/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	ErrPieceNotFound     = errors.New("piece not found")
	ErrIllegalTransition = errors.New("illegal piece status transition")
	ErrPermissionDenied  = errors.New("role not permitted to perform this operation")
	ErrVersionConflict   = errors.New("piece was modified concurrently, refetch and retry")
	ErrEmptyRejectReason = errors.New("rejection requires a non-empty reason")
	ErrEmptyContent      = errors.New("piece content must not be empty")
	ErrNoArtifact        = errors.New("piece has no exported artifact")
)

// PieceStore is the persistence surface the lifecycle manager needs.
// *repository.PieceRepository satisfies it.
type PieceStore interface {
	Create(ctx context.Context, piece *models.Piece) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Piece, error)
	ReplaceContent(ctx context.Context, pieceID uuid.UUID, expectedVersion int, newContent string, changedBy uuid.UUID, snapshot bool) (*models.Piece, error)
	UpdateStatus(ctx context.Context, pieceID uuid.UUID, from, to models.PieceStatus, reason *string) (*models.Piece, error)
	SetExportPath(ctx context.Context, pieceID uuid.UUID, path string) error
	ListVersions(ctx context.Context, pieceID uuid.UUID) ([]models.PieceVersion, error)
}

// PieceService owns the review lifecycle of generated pieces: creation,
// versioned content replacement and the role-gated status machine.
type PieceService struct {
	pieces  PieceStore
	storage storage.Storage
	logger  *zap.SugaredLogger
}

// PieceServiceOption is a functional option for PieceService
type PieceServiceOption func(*PieceService)

// PieceWithStore sets the piece store
func PieceWithStore(store PieceStore) PieceServiceOption {
	return func(s *PieceService) {
		s.pieces = store
	}
}

// PieceWithStorage sets the artifact storage used by Export
func PieceWithStorage(st storage.Storage) PieceServiceOption {
	return func(s *PieceService) {
		s.storage = st
	}
}

// PieceWithLogger sets the logger
func PieceWithLogger(logger *zap.SugaredLogger) PieceServiceOption {
	return func(s *PieceService) {
		s.logger = logger
	}
}

// NewPieceService creates a new piece service
func NewPieceService(opts ...PieceServiceOption) *PieceService {
	s := &PieceService{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pieceOp enumerates the gated lifecycle operations
type pieceOp int

const (
	opCreate pieceOp = iota
	opEdit
	opSubmit
	opApprove
	opReject
	opExport
)

// authorize is the single role gate every transition goes through
func authorize(op pieceOp, role models.Role) error {
	switch role {
	case models.RoleParalegal, models.RoleLawyer, models.RoleAdmin:
	default:
		return ErrPermissionDenied
	}

	switch op {
	case opApprove, opReject, opExport:
		if !role.Elevated() {
			return ErrPermissionDenied
		}
	}
	return nil
}

// transitionStatus runs a conditional status write. Zero rows affected
// means the piece moved concurrently, which is an illegal transition
// from the caller's point of view; any other failure is a storage
// error and surfaces as one.
func (s *PieceService) transitionStatus(ctx context.Context, pieceID uuid.UUID, from, to models.PieceStatus, reason *string) (*models.Piece, error) {
	updated, err := s.pieces.UpdateStatus(ctx, pieceID, from, to, reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIllegalTransition
		}
		return nil, fmt.Errorf("failed to update piece status: %w", err)
	}
	return updated, nil
}

// CreatePieceRequest represents a request to create a piece
type CreatePieceRequest struct {
	CaseID       uuid.UUID
	DocumentType models.DocumentTypeKey
	Content      string
	CreatedBy    uuid.UUID
	CreatorRole  models.Role
}

// Create creates a piece at version 1. Pieces authored by the lowest
// authoring role go straight to pending review; elevated authors keep
// a private draft.
func (s *PieceService) Create(ctx context.Context, req CreatePieceRequest) (*models.Piece, error) {
	if err := authorize(opCreate, req.CreatorRole); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	status := models.PieceStatusDraft
	if req.CreatorRole == models.RoleParalegal {
		status = models.PieceStatusPendingReview
	}

	piece := &models.Piece{
		CaseID:        req.CaseID,
		DocumentType:  req.DocumentType,
		Content:       req.Content,
		Version:       1,
		Status:        status,
		CreatedBy:     req.CreatedBy,
		CreatedByRole: req.CreatorRole,
	}

	if err := s.pieces.Create(ctx, piece); err != nil {
		return nil, fmt.Errorf("failed to create piece: %w", err)
	}

	s.logger.Infow("piece created",
		"piece_id", piece.ID, "case_id", piece.CaseID, "status", piece.Status)
	return piece, nil
}

// ReplaceContentRequest represents a versioned content replacement
type ReplaceContentRequest struct {
	PieceID         uuid.UUID
	ExpectedVersion int
	NewContent      string
	EditorID        uuid.UUID
	EditorRole      models.Role
}

// ReplaceContent replaces a piece's content, snapshotting the prior
// content into the version history. The write is conditional on
// ExpectedVersion; a concurrent editor surfaces as ErrVersionConflict.
// Status is never changed by a content edit.
func (s *PieceService) ReplaceContent(ctx context.Context, req ReplaceContentRequest) (*models.Piece, error) {
	if err := authorize(opEdit, req.EditorRole); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.NewContent) == "" {
		return nil, ErrEmptyContent
	}

	piece, err := s.pieces.GetByID(ctx, req.PieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	if piece.Content == req.NewContent {
		return piece, nil
	}

	// Empty prior content is filled in without a snapshot or version
	// bump, preserving version = 1 + snapshot count
	snapshot := piece.Content != ""

	updated, err := s.pieces.ReplaceContent(ctx, req.PieceID, req.ExpectedVersion, req.NewContent, req.EditorID, snapshot)
	if err != nil {
		if errors.Is(err, repository.ErrVersionMismatch) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to replace content: %w", err)
	}

	s.logger.Infow("piece content replaced",
		"piece_id", updated.ID, "version", updated.Version)
	return updated, nil
}

// SubmitForReview moves a draft or rejected piece back into the review
// queue. This is the only way out of the rejected state.
func (s *PieceService) SubmitForReview(ctx context.Context, pieceID uuid.UUID, actorRole models.Role) (*models.Piece, error) {
	if err := authorize(opSubmit, actorRole); err != nil {
		return nil, err
	}

	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	switch piece.Status {
	case models.PieceStatusDraft, models.PieceStatusRejected:
	default:
		return nil, ErrIllegalTransition
	}

	return s.transitionStatus(ctx, pieceID, piece.Status, models.PieceStatusPendingReview, nil)
}

// Approve marks a piece approved. Only elevated roles; only from
// pending review or draft. Rejected pieces must be resubmitted first.
func (s *PieceService) Approve(ctx context.Context, pieceID uuid.UUID, actorRole models.Role) (*models.Piece, error) {
	if err := authorize(opApprove, actorRole); err != nil {
		return nil, err
	}

	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	switch piece.Status {
	case models.PieceStatusPendingReview, models.PieceStatusDraft:
	default:
		return nil, ErrIllegalTransition
	}

	updated, err := s.transitionStatus(ctx, pieceID, piece.Status, models.PieceStatusApproved, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("piece approved", "piece_id", pieceID)
	return updated, nil
}

// Reject sends a pending piece back with a mandatory reason
func (s *PieceService) Reject(ctx context.Context, pieceID uuid.UUID, actorRole models.Role, reason string) (*models.Piece, error) {
	if err := authorize(opReject, actorRole); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, ErrEmptyRejectReason
	}

	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	if piece.Status != models.PieceStatusPendingReview {
		return nil, ErrIllegalTransition
	}

	updated, err := s.transitionStatus(ctx, pieceID, piece.Status, models.PieceStatusRejected, &reason)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("piece rejected", "piece_id", pieceID, "reason", reason)
	return updated, nil
}

// Export finalizes an approved piece and writes the artifact to
// storage. Re-exporting an already exported piece is a no-op success.
func (s *PieceService) Export(ctx context.Context, pieceID uuid.UUID, actorRole models.Role) (*models.Piece, error) {
	if err := authorize(opExport, actorRole); err != nil {
		return nil, err
	}

	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	if piece.Status == models.PieceStatusExported {
		if piece.ExportPath == nil {
			// Earlier artifact write failed; retry it
			return s.writeArtifact(ctx, piece)
		}
		return piece, nil
	}

	if piece.Status != models.PieceStatusApproved {
		return nil, ErrIllegalTransition
	}

	updated, err := s.transitionStatus(ctx, pieceID, piece.Status, models.PieceStatusExported, piece.RejectionReason)
	if err != nil {
		return nil, err
	}

	return s.writeArtifact(ctx, updated)
}

func (s *PieceService) writeArtifact(ctx context.Context, piece *models.Piece) (*models.Piece, error) {
	if s.storage == nil {
		return piece, nil
	}

	name := fmt.Sprintf("%s-v%d.txt", piece.DocumentType, piece.Version)
	path, err := s.storage.Put(ctx, piece.ID, name, strings.NewReader(piece.Content))
	if err != nil {
		s.logger.Errorw("failed to write export artifact", "piece_id", piece.ID, "error", err)
		return nil, fmt.Errorf("failed to write export artifact: %w", err)
	}

	if err := s.pieces.SetExportPath(ctx, piece.ID, path); err != nil {
		return nil, fmt.Errorf("failed to record export path: %w", err)
	}
	piece.ExportPath = &path

	s.logger.Infow("piece exported", "piece_id", piece.ID, "path", path)
	return piece, nil
}

// Artifact opens the exported artifact of a piece for reading. Only
// exported pieces with a recorded artifact path have one.
func (s *PieceService) Artifact(ctx context.Context, pieceID uuid.UUID) (io.ReadCloser, error) {
	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}

	if piece.Status != models.PieceStatusExported || piece.ExportPath == nil || s.storage == nil {
		return nil, ErrNoArtifact
	}

	reader, err := s.storage.Get(ctx, *piece.ExportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open export artifact: %w", err)
	}
	return reader, nil
}

// Get retrieves a piece
func (s *PieceService) Get(ctx context.Context, pieceID uuid.UUID) (*models.Piece, error) {
	piece, err := s.pieces.GetByID(ctx, pieceID)
	if err != nil {
		return nil, ErrPieceNotFound
	}
	return piece, nil
}

// Versions retrieves a piece's snapshot history, oldest first
func (s *PieceService) Versions(ctx context.Context, pieceID uuid.UUID) ([]models.PieceVersion, error) {
	return s.pieces.ListVersions(ctx, pieceID)
}
