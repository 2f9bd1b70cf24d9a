package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"litisdraft-backend/courts"
	"litisdraft-backend/llm"
	"litisdraft-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCaseStore struct {
	mu    sync.Mutex
	cases map[uuid.UUID]*models.Case
}

func newMemCaseStore() *memCaseStore {
	return &memCaseStore{cases: make(map[uuid.UUID]*models.Case)}
}

func (m *memCaseStore) add(kase *models.Case) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kase.ID == uuid.Nil {
		kase.ID = uuid.New()
	}
	m.cases[kase.ID] = kase
}

func (m *memCaseStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kase, ok := m.cases[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	copied := *kase
	return &copied, nil
}

func (m *memCaseStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CaseStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kase, ok := m.cases[id]
	if !ok {
		return errors.New("no rows in result set")
	}
	kase.Status = status
	return nil
}

type memDocumentStore struct {
	docs map[uuid.UUID][]models.Document
}

func (m *memDocumentStore) ListByCaseID(ctx context.Context, caseID uuid.UUID) ([]models.Document, error) {
	return m.docs[caseID], nil
}

// scriptedBackend serves a fixed stream of frames per call
type scriptedBackend struct {
	mu      sync.Mutex
	frames  []llm.Frame
	err     error
	prompts []string
}

func (b *scriptedBackend) StreamGenerate(ctx context.Context, req llm.GenerationRequest) (llm.FrameDecoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	b.prompts = append(b.prompts, req.Prompt)
	return &sliceDecoder{frames: b.frames}, nil
}

type sliceDecoder struct {
	mu     sync.Mutex
	frames []llm.Frame
	pos    int
	closed bool
}

func (d *sliceDecoder) Next() (llm.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.pos >= len(d.frames) {
		return llm.Frame{}, io.EOF
	}
	frame := d.frames[d.pos]
	d.pos++
	return frame, nil
}

func (d *sliceDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type stubSearcher struct {
	mu      sync.Mutex
	records []models.PrecedentRecord
	err     error
	calls   int
	terms   string
}

func (s *stubSearcher) Search(ctx context.Context, terms string, sourceIDs []courts.SourceID, perSourceLimit int) (*courts.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.terms = terms
	if s.err != nil {
		return nil, s.err
	}
	return &courts.SearchResult{Records: s.records}, nil
}

func (s *stubSearcher) SourceIDs() []courts.SourceID {
	return []courts.SourceID{"tjsp", "tjrj"}
}

func draftFixture(backend StreamingBackend, searcher PrecedentSearcher) (*DraftService, *memCaseStore, *models.Case) {
	cases := newMemCaseStore()
	kase := &models.Case{
		Status:          models.CaseStatusNew,
		ClientName:      "João Santos",
		Narrative:       "Cobrança indevida em fatura de cartão de crédito.",
		SpecificRequest: "Repetição de indébito em dobro e dano moral.",
	}
	cases.add(kase)

	docs := &memDocumentStore{docs: map[uuid.UUID][]models.Document{
		kase.ID: {{ID: uuid.New(), CaseID: kase.ID, Tag: "fatura", ExtractedText: "Fatura com lançamento não reconhecido"}},
	}}

	s := NewDraftService(
		DraftWithCaseStore(cases),
		DraftWithDocumentStore(docs),
		DraftWithBackend(backend),
		DraftWithPrecedentSearcher(searcher),
		DraftWithPieceService(NewPieceService(PieceWithStore(newMemPieceStore()))),
	)
	return s, cases, kase
}

func deltaFrames(parts ...string) []llm.Frame {
	frames := make([]llm.Frame, 0, len(parts)+1)
	for _, p := range parts {
		frames = append(frames, llm.Frame{Type: llm.FrameDelta, Text: p})
	}
	return append(frames, llm.Frame{Type: llm.FrameDone})
}

func TestGeneratePieceHappyPath(t *testing.T) {
	backend := &scriptedBackend{frames: deltaFrames("EXCELENTÍSSIMO SENHOR ", "DOUTOR JUIZ DE DIREITO")}
	searcher := &stubSearcher{records: []models.PrecedentRecord{{Court: "TJSP", CaseNumber: "123"}}}
	s, cases, kase := draftFixture(backend, searcher)

	var streamed strings.Builder
	result, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:       kase.ID,
		DocumentType: models.DocTypeInitialPetition,
		ActorID:      uuid.New(),
		ActorRole:    models.RoleLawyer,
		OnDelta:      func(delta string) { streamed.WriteString(delta) },
	})
	require.NoError(t, err)
	require.NotNil(t, result.Piece)

	assert.Equal(t, "EXCELENTÍSSIMO SENHOR DOUTOR JUIZ DE DIREITO", result.PartialText)
	assert.Equal(t, result.PartialText, streamed.String())
	assert.Equal(t, result.PartialText, result.Piece.Content)
	assert.Equal(t, 1, result.Piece.Version)
	assert.Equal(t, models.PieceStatusDraft, result.Piece.Status)

	// Auto fan-out ran and its records reached the prompt
	assert.Equal(t, 1, searcher.calls)
	require.Len(t, backend.prompts, 1)
	assert.Contains(t, backend.prompts[0], "PRECEDENTS FROM COURT RECORDS:")

	updated, err := cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusDocumentGenerated, updated.Status)
}

func TestGeneratePieceCuratedPrecedentsSkipSearch(t *testing.T) {
	backend := &scriptedBackend{frames: deltaFrames("texto")}
	searcher := &stubSearcher{}
	s, _, kase := draftFixture(backend, searcher)

	// Empty non-nil slice means no precedents at all
	_, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:            kase.ID,
		DocumentType:      models.DocTypeInitialPetition,
		ActorID:           uuid.New(),
		ActorRole:         models.RoleLawyer,
		CuratedPrecedents: []models.PrecedentRecord{},
	})
	require.NoError(t, err)
	assert.Zero(t, searcher.calls)
	assert.NotContains(t, backend.prompts[0], "PRECEDENTS FROM COURT RECORDS:")
}

func TestGeneratePieceSearchFailureDegrades(t *testing.T) {
	backend := &scriptedBackend{frames: deltaFrames("texto gerado")}
	searcher := &stubSearcher{err: errors.New("all courts down")}
	s, _, kase := draftFixture(backend, searcher)

	result, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:       kase.ID,
		DocumentType: models.DocTypeInitialPetition,
		ActorID:      uuid.New(),
		ActorRole:    models.RoleLawyer,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Piece)
	assert.NotContains(t, backend.prompts[0], "PRECEDENTS FROM COURT RECORDS:")
}

func TestGeneratePieceBackendErrorKeepsPartialText(t *testing.T) {
	backend := &scriptedBackend{frames: []llm.Frame{
		{Type: llm.FrameDelta, Text: "parcial antes da falha"},
		{Type: llm.FrameError, Text: "quota exceeded"},
	}}
	s, cases, kase := draftFixture(backend, &stubSearcher{})

	result, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:       kase.ID,
		DocumentType: models.DocTypeInitialPetition,
		ActorID:      uuid.New(),
		ActorRole:    models.RoleLawyer,
	})
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.NotNil(t, result)
	assert.Nil(t, result.Piece)
	assert.Equal(t, "parcial antes da falha", result.PartialText)

	// No piece committed, case untouched
	updated, getErr := cases.GetByID(context.Background(), kase.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.CaseStatusNew, updated.Status)
}

func TestGeneratePieceEmptyOutputFails(t *testing.T) {
	backend := &scriptedBackend{frames: []llm.Frame{{Type: llm.FrameDone}}}
	s, _, kase := draftFixture(backend, &stubSearcher{})

	result, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:       kase.ID,
		DocumentType: models.DocTypeInitialPetition,
		ActorID:      uuid.New(),
		ActorRole:    models.RoleLawyer,
	})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Nil(t, result.Piece)
}

func TestGeneratePieceValidation(t *testing.T) {
	backend := &scriptedBackend{frames: deltaFrames("x")}
	s, cases, _ := draftFixture(backend, &stubSearcher{})

	_, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:    uuid.New(),
		ActorRole: models.RoleLawyer,
	})
	assert.ErrorIs(t, err, ErrCaseNotFound)

	empty := &models.Case{ClientName: "X", Narrative: "  ", SpecificRequest: "pedido"}
	cases.add(empty)
	_, err = s.GeneratePiece(context.Background(), GeneratePieceRequest{
		CaseID:    empty.ID,
		ActorRole: models.RoleLawyer,
	})
	assert.ErrorIs(t, err, ErrMissingRequiredData)
}

func TestCancelGenerationKeepsPartialText(t *testing.T) {
	// Decoder that delivers one delta then blocks until closed
	decoder := &blockingDecoder{
		first:  llm.Frame{Type: llm.FrameDelta, Text: "início da petição"},
		closed: make(chan struct{}),
	}
	backend := &decoderBackend{decoder: decoder}
	s, _, kase := draftFixture(backend, &stubSearcher{})

	delivered := make(chan struct{})
	type outcome struct {
		result *GeneratePieceResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.GeneratePiece(context.Background(), GeneratePieceRequest{
			CaseID:       kase.ID,
			DocumentType: models.DocTypeInitialPetition,
			ActorID:      uuid.New(),
			ActorRole:    models.RoleLawyer,
			OnDelta:      func(string) { close(delivered) },
		})
		done <- outcome{result, err}
	}()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("first delta never arrived")
	}

	s.CancelGeneration(kase.ID)

	select {
	case out := <-done:
		require.ErrorIs(t, out.err, ErrGenerationCancelled)
		require.NotNil(t, out.result)
		assert.Nil(t, out.result.Piece)
		assert.Equal(t, "início da petição", out.result.PartialText)
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not unblock after cancel")
	}
}

func TestCancelGenerationUnknownCaseIsNoOp(t *testing.T) {
	s := NewDraftService()
	s.CancelGeneration(uuid.New())
}

func TestBuildSearchTerms(t *testing.T) {
	kase := &models.Case{
		Narrative:       "Uma narrativa longa sobre o ocorrido.",
		SpecificRequest: "Indenização por dano moral",
	}
	assert.Equal(t, "Indenização por dano moral", buildSearchTerms(kase))

	kase.SpecificRequest = "   "
	assert.Equal(t, "Uma narrativa longa sobre o ocorrido.", buildSearchTerms(kase))

	kase.Narrative = strings.Repeat("palavra ", 30)
	assert.Len(t, strings.Fields(buildSearchTerms(kase)), 12)
}

type decoderBackend struct {
	decoder llm.FrameDecoder
}

func (b *decoderBackend) StreamGenerate(ctx context.Context, req llm.GenerationRequest) (llm.FrameDecoder, error) {
	return b.decoder, nil
}

type blockingDecoder struct {
	mu     sync.Mutex
	first  llm.Frame
	sent   bool
	closed chan struct{}

	closeOnce sync.Once
}

func (d *blockingDecoder) Next() (llm.Frame, error) {
	d.mu.Lock()
	if !d.sent {
		d.sent = true
		d.mu.Unlock()
		return d.first, nil
	}
	d.mu.Unlock()
	<-d.closed
	return llm.Frame{}, io.ErrClosedPipe
}

func (d *blockingDecoder) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}
