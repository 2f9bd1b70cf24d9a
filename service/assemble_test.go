package service

import (
	"testing"
	"time"

	"litisdraft-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCase() *models.Case {
	municipality := "São Paulo"
	region := "SP"
	return &models.Case{
		ID:              uuid.New(),
		ClientName:      "Maria Silva",
		Narrative:       "Client purchased a defective appliance and the seller refuses repair.",
		SpecificRequest: "Initial petition for replacement and moral damages.",
		Municipality:    &municipality,
		Region:          &region,
	}
}

func sampleDocuments() []models.Document {
	return []models.Document{
		{ID: uuid.New(), Tag: "invoice", ExtractedText: "NF 1234, valor R$ 2.500,00"},
		{ID: uuid.New(), Tag: "warranty", ExtractedText: "Garantia de 12 meses a partir da compra"},
	}
}

func samplePrecedents() []models.PrecedentRecord {
	return []models.PrecedentRecord{
		{
			Court:       "TJSP",
			CaseNumber:  "1000000-11.2024.8.26.0100",
			Class:       "Procedimento Comum Cível",
			Subjects:    []string{"Direito do Consumidor", "Dano Moral"},
			IssuingBody: "3ª Vara Cível",
			FilingDate:  time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			Movements: []models.Movement{
				{Code: 193, Description: "Procedência", Date: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)},
			},
		},
	}
}

func TestAssembleContextIsDeterministic(t *testing.T) {
	kase := sampleCase()
	docs := sampleDocuments()
	precedents := samplePrecedents()

	first := AssembleContext(kase, docs, precedents, models.DocTypeInitialPetition)
	second := AssembleContext(kase, docs, precedents, models.DocTypeInitialPetition)

	assert.Equal(t, first, second)
}

func TestAssembleContextIncludesAllSections(t *testing.T) {
	req := AssembleContext(sampleCase(), sampleDocuments(), samplePrecedents(), models.DocTypeInitialPetition)

	assert.NotEmpty(t, req.SystemInstruction)
	assert.Contains(t, req.Prompt, "CLIENT INTERVIEW NARRATIVE:")
	assert.Contains(t, req.Prompt, "defective appliance")
	assert.Contains(t, req.Prompt, "SPECIFIC REQUEST:")
	assert.Contains(t, req.Prompt, "JURISDICTION: São Paulo / SP")
	assert.Contains(t, req.Prompt, "Document 1 (invoice):")
	assert.Contains(t, req.Prompt, "Document 2 (warranty):")
	assert.Contains(t, req.Prompt, "PRECEDENTS FROM COURT RECORDS:")
	assert.Contains(t, req.Prompt, "1000000-11.2024.8.26.0100")
	assert.Contains(t, req.Prompt, "initial petition")
}

func TestAssembleContextOmitsEmptySections(t *testing.T) {
	kase := sampleCase()
	kase.Municipality = nil
	kase.Region = nil

	req := AssembleContext(kase, nil, nil, models.DocTypeAppealBrief)

	assert.NotContains(t, req.Prompt, "JURISDICTION:")
	assert.NotContains(t, req.Prompt, "SUPPORTING DOCUMENTS:")
	assert.NotContains(t, req.Prompt, "PRECEDENTS FROM COURT RECORDS:")
	assert.Contains(t, req.Prompt, "appeal brief")
}

func TestAssembleContextUnknownDocumentType(t *testing.T) {
	req := AssembleContext(sampleCase(), nil, nil, models.DocumentTypeKey("habeas_data"))

	assert.Contains(t, req.Prompt, "Draft the requested legal document in full.")
}

func TestFormatPrecedentBlock(t *testing.T) {
	block := FormatPrecedentBlock(samplePrecedents())

	require.NotEmpty(t, block)
	assert.Contains(t, block, "1. TJSP - case 1000000-11.2024.8.26.0100")
	assert.Contains(t, block, "Subjects: Direito do Consumidor; Dano Moral")
	assert.Contains(t, block, "Filed: 2024-03-10")
	assert.Contains(t, block, "Latest movement: Procedência (2025-01-20)")
}

func TestFormatPrecedentBlockEmpty(t *testing.T) {
	assert.Empty(t, FormatPrecedentBlock(nil))
	assert.Empty(t, FormatPrecedentBlock([]models.PrecedentRecord{}))
}
