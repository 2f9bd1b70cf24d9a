package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"litisdraft-backend/courts"
	"litisdraft-backend/llm"
	"litisdraft-backend/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrCaseNotFound        = errors.New("case not found")
	ErrMissingRequiredData = errors.New("case missing required data for generation")
	ErrGenerationFailed    = errors.New("failed to generate piece content")
	ErrGenerationCancelled = llm.ErrSessionCancelled
)

const defaultPerSourceLimit = 5

// CaseStore is the case persistence surface the pipeline needs.
// *repository.CaseRepository satisfies it.
type CaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CaseStatus) error
}

// DocumentStore lists a case's supporting documents.
// *repository.DocumentRepository satisfies it.
type DocumentStore interface {
	ListByCaseID(ctx context.Context, caseID uuid.UUID) ([]models.Document, error)
}

// StreamingBackend opens streamed generation calls. *llm.Client
// satisfies it.
type StreamingBackend interface {
	StreamGenerate(ctx context.Context, req llm.GenerationRequest) (llm.FrameDecoder, error)
}

// PrecedentSearcher runs the fan-out precedent search.
// *courts.FanoutSearcher satisfies it.
type PrecedentSearcher interface {
	Search(ctx context.Context, terms string, sourceIDs []courts.SourceID, perSourceLimit int) (*courts.SearchResult, error)
	SourceIDs() []courts.SourceID
}

// DraftService drives the document-generation pipeline: relevance
// triage and precedent fan-out feed the context assembler, whose
// request is streamed through a generation session and committed as a
// piece on success.
type DraftService struct {
	cases      CaseStore
	documents  DocumentStore
	precedents PrecedentSearcher
	backend    StreamingBackend
	triage     *RelevanceTriage
	pieces     *PieceService
	logger     *zap.SugaredLogger

	mu    sync.Mutex
	slots map[uuid.UUID]*llm.Slot
}

// DraftServiceOption is a functional option for DraftService
type DraftServiceOption func(*DraftService)

// DraftWithCaseStore sets the case store
func DraftWithCaseStore(store CaseStore) DraftServiceOption {
	return func(s *DraftService) {
		s.cases = store
	}
}

// DraftWithDocumentStore sets the document store
func DraftWithDocumentStore(store DocumentStore) DraftServiceOption {
	return func(s *DraftService) {
		s.documents = store
	}
}

// DraftWithPrecedentSearcher sets the precedent fan-out searcher
func DraftWithPrecedentSearcher(searcher PrecedentSearcher) DraftServiceOption {
	return func(s *DraftService) {
		s.precedents = searcher
	}
}

// DraftWithBackend sets the streaming generation backend
func DraftWithBackend(backend StreamingBackend) DraftServiceOption {
	return func(s *DraftService) {
		s.backend = backend
	}
}

// DraftWithTriage sets the relevance triage stage
func DraftWithTriage(triage *RelevanceTriage) DraftServiceOption {
	return func(s *DraftService) {
		s.triage = triage
	}
}

// DraftWithPieceService sets the piece lifecycle service
func DraftWithPieceService(pieces *PieceService) DraftServiceOption {
	return func(s *DraftService) {
		s.pieces = pieces
	}
}

// DraftWithLogger sets the logger
func DraftWithLogger(logger *zap.SugaredLogger) DraftServiceOption {
	return func(s *DraftService) {
		s.logger = logger
	}
}

// NewDraftService creates a new draft service
func NewDraftService(opts ...DraftServiceOption) *DraftService {
	s := &DraftService{
		logger: zap.NewNop().Sugar(),
		slots:  make(map[uuid.UUID]*llm.Slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GeneratePieceRequest represents one generation attempt
type GeneratePieceRequest struct {
	CaseID       uuid.UUID
	DocumentType models.DocumentTypeKey
	ActorID      uuid.UUID
	ActorRole    models.Role

	// CuratedPrecedents, when non-nil, bypasses the automatic fan-out
	// search. An empty non-nil slice means "use no precedents".
	CuratedPrecedents []models.PrecedentRecord

	// OnDelta, when set, receives each text fragment as it arrives
	OnDelta func(delta string)
}

// GeneratePieceResult carries the committed piece on success, and the
// partial text on every outcome. Text already generated is never
// discarded: a failed or cancelled attempt still returns what streamed
// in before the interruption.
type GeneratePieceResult struct {
	Piece       *models.Piece
	PartialText string
}

// GeneratePiece runs the full pipeline for one case
func (s *DraftService) GeneratePiece(ctx context.Context, req GeneratePieceRequest) (*GeneratePieceResult, error) {
	if s.cases == nil || s.documents == nil || s.backend == nil || s.pieces == nil {
		return nil, errors.New("draft service not fully configured")
	}

	kase, err := s.cases.GetByID(ctx, req.CaseID)
	if err != nil {
		return nil, ErrCaseNotFound
	}
	if strings.TrimSpace(kase.Narrative) == "" {
		return nil, ErrMissingRequiredData
	}
	if strings.TrimSpace(kase.SpecificRequest) == "" {
		return nil, ErrMissingRequiredData
	}

	documents, err := s.documents.ListByCaseID(ctx, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case documents: %w", err)
	}

	caseContext := kase.Narrative + "\n\n" + kase.SpecificRequest
	if s.triage != nil {
		documents = s.triage.Filter(ctx, caseContext, documents)
	}

	precedents := req.CuratedPrecedents
	if precedents == nil {
		precedents = s.autoSearchPrecedents(ctx, kase)
	}

	genReq := AssembleContext(kase, documents, precedents, req.DocumentType)

	decoder, err := s.backend.StreamGenerate(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	session := s.slot(req.CaseID).Start(decoder)
	for delta := range session.Deltas() {
		if req.OnDelta != nil {
			req.OnDelta(delta)
		}
	}

	text, state, sessionErr := session.Wait()
	result := &GeneratePieceResult{PartialText: text}

	switch state {
	case llm.StateCompleted:
		if strings.TrimSpace(text) == "" {
			return result, ErrGenerationFailed
		}
	case llm.StateCancelled:
		s.logger.Infow("generation cancelled", "case_id", req.CaseID, "partial_chars", len(text))
		return result, ErrGenerationCancelled
	default:
		s.logger.Errorw("generation failed", "case_id", req.CaseID, "partial_chars", len(text), "error", sessionErr)
		return result, fmt.Errorf("%w: %v", ErrGenerationFailed, sessionErr)
	}

	piece, err := s.pieces.Create(ctx, CreatePieceRequest{
		CaseID:       req.CaseID,
		DocumentType: req.DocumentType,
		Content:      text,
		CreatedBy:    req.ActorID,
		CreatorRole:  req.ActorRole,
	})
	if err != nil {
		return result, fmt.Errorf("failed to commit generated piece: %w", err)
	}
	result.Piece = piece

	if err := s.cases.UpdateStatus(ctx, req.CaseID, models.CaseStatusDocumentGenerated); err != nil {
		// The piece is committed; a failed case transition is recoverable
		s.logger.Errorw("failed to transition case status", "case_id", req.CaseID, "error", err)
	}

	s.logger.Infow("piece generated",
		"case_id", req.CaseID, "piece_id", piece.ID, "chars", len(text))
	return result, nil
}

// CancelGeneration cancels the active generation session for a case,
// if any. The session keeps its partial text.
func (s *DraftService) CancelGeneration(caseID uuid.UUID) {
	s.mu.Lock()
	slot, ok := s.slots[caseID]
	s.mu.Unlock()
	if ok {
		slot.Cancel()
	}
}

// SearchPrecedents runs a manual, curated precedent lookup
func (s *DraftService) SearchPrecedents(ctx context.Context, terms string, sourceIDs []courts.SourceID, perSourceLimit int) (*courts.SearchResult, error) {
	if s.precedents == nil {
		return nil, errors.New("precedent searcher not configured")
	}
	return s.precedents.Search(ctx, terms, sourceIDs, perSourceLimit)
}

// slot returns the logical session slot for a case, creating it on
// first use. One slot per case enforces single-flight generation.
func (s *DraftService) slot(caseID uuid.UUID) *llm.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[caseID]
	if !ok {
		slot = &llm.Slot{}
		s.slots[caseID] = slot
	}
	return slot
}

// autoSearchPrecedents runs the fan-out across every configured source.
// Failures degrade to an empty precedent block, never to a pipeline
// error.
func (s *DraftService) autoSearchPrecedents(ctx context.Context, kase *models.Case) []models.PrecedentRecord {
	if s.precedents == nil {
		return nil
	}

	terms := buildSearchTerms(kase)
	if terms == "" {
		return nil
	}

	result, err := s.precedents.Search(ctx, terms, s.precedents.SourceIDs(), defaultPerSourceLimit)
	if err != nil {
		s.logger.Warnw("precedent fan-out skipped", "case_id", kase.ID, "error", err)
		return nil
	}
	if result.FailedSources > 0 {
		s.logger.Warnw("some precedent sources failed",
			"case_id", kase.ID, "failed_sources", result.FailedSources)
	}
	return result.Records
}

// buildSearchTerms derives a free-text query from the case. The
// specific request is the best signal; the narrative opening is the
// fallback.
func buildSearchTerms(kase *models.Case) string {
	terms := strings.TrimSpace(kase.SpecificRequest)
	if terms == "" {
		terms = strings.TrimSpace(kase.Narrative)
	}

	words := strings.Fields(terms)
	if len(words) > 12 {
		words = words[:12]
	}
	return strings.Join(words, " ")
}
