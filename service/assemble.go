package service

import (
	"fmt"
	"strings"

	"litisdraft-backend/llm"
	"litisdraft-backend/models"
)

const (
	defaultMaxOutputTokens = 8192
	generationTemperature  = 0.2

	systemInstruction = "You are an experienced litigation attorney drafting formal court filings. " +
		"Use formal legal language. Avoid flowery adjectives and hyperbole. " +
		"Use only facts present in the material provided."
)

// documentTypeInstructions maps template keys to drafting instructions
var documentTypeInstructions = map[models.DocumentTypeKey]string{
	models.DocTypeInitialPetition: "Draft a complete initial petition: addressing, qualification of the parties, statement of facts, legal grounds, requests, and value of the claim.",
	models.DocTypeAppealBrief:     "Draft a complete appeal brief: admissibility, summary of the decision under appeal, grounds for reform, and requests.",
	models.DocTypeReplyBrief:      "Draft a complete reply brief responding point by point to the opposing party's arguments.",
}

// AssembleContext composes a case, its filtered documents and any
// precedent results into one generation request. Pure and deterministic:
// identical inputs always produce an identical request, so the exact
// prompt sent for any piece can be reconstructed for audit.
func AssembleContext(
	kase *models.Case,
	documents []models.Document,
	precedents []models.PrecedentRecord,
	documentType models.DocumentTypeKey,
) llm.GenerationRequest {
	var b strings.Builder

	b.WriteString("CLIENT INTERVIEW NARRATIVE:\n")
	b.WriteString(kase.Narrative)
	b.WriteString("\n\nSPECIFIC REQUEST:\n")
	b.WriteString(kase.SpecificRequest)
	b.WriteString("\n")

	if kase.Municipality != nil || kase.Region != nil {
		b.WriteString("\nJURISDICTION:")
		if kase.Municipality != nil {
			b.WriteString(" " + *kase.Municipality)
		}
		if kase.Region != nil {
			b.WriteString(" / " + *kase.Region)
		}
		b.WriteString("\n")
	}

	if len(documents) > 0 {
		b.WriteString("\nSUPPORTING DOCUMENTS:\n")
		for i, doc := range documents {
			b.WriteString(fmt.Sprintf("\nDocument %d (%s):\n", i+1, doc.Tag))
			b.WriteString(doc.ExtractedText)
			b.WriteString("\n")
		}
	}

	if block := FormatPrecedentBlock(precedents); block != "" {
		b.WriteString("\n")
		b.WriteString(block)
	}

	instruction, ok := documentTypeInstructions[documentType]
	if !ok {
		instruction = "Draft the requested legal document in full."
	}
	b.WriteString("\nTASK:\n")
	b.WriteString(instruction)
	b.WriteString("\nWrite the document now, in plain text without markdown formatting.")

	return llm.GenerationRequest{
		SystemInstruction: systemInstruction,
		Prompt:            b.String(),
		MaxOutputTokens:   defaultMaxOutputTokens,
		Temperature:       generationTemperature,
	}
}

// FormatPrecedentBlock renders precedent records as a numbered list.
// Returns the empty string when there are no records, so the caller can
// omit the section entirely.
func FormatPrecedentBlock(precedents []models.PrecedentRecord) string {
	if len(precedents) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("PRECEDENTS FROM COURT RECORDS:\n")
	for i, p := range precedents {
		b.WriteString(fmt.Sprintf("%d. %s - case %s, %s, %s\n", i+1, p.Court, p.CaseNumber, p.Class, p.IssuingBody))
		if len(p.Subjects) > 0 {
			b.WriteString("   Subjects: " + strings.Join(p.Subjects, "; ") + "\n")
		}
		b.WriteString("   Filed: " + p.FilingDate.Format("2006-01-02") + "\n")
		if m := p.LatestMovement(); m != nil {
			b.WriteString(fmt.Sprintf("   Latest movement: %s (%s)\n", m.Description, m.Date.Format("2006-01-02")))
		}
	}
	b.WriteString("Cite these precedents where they support the argument.\n")
	return b.String()
}
