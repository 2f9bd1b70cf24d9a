package service

import (
	"context"
	"time"

	"litisdraft-backend/llm"
	"litisdraft-backend/models"

	"go.uber.org/zap"
)

const (
	// Documents shorter than this are OCR husks with nothing to triage;
	// they are always kept
	minTriageTextLen = 200

	// Excerpt sent to the classifier per candidate
	maxExcerptLen = 2000

	triageMaxRetries     = 3
	triageInitialBackoff = time.Second
)

// RelevanceClassifier partitions candidate documents by relevance.
// *llm.Client satisfies it.
type RelevanceClassifier interface {
	ClassifyRelevance(ctx context.Context, caseContext string, candidates []llm.Candidate) (*llm.RelevancePartition, error)
}

// RelevanceTriage filters a case's supporting documents through the
// generation backend before assembly. It is strictly best-effort: any
// backend failure returns the input untouched, so triage can never
// block or fail a generation attempt.
type RelevanceTriage struct {
	classifier RelevanceClassifier
	logger     *zap.SugaredLogger
}

// NewRelevanceTriage creates a relevance triage stage
func NewRelevanceTriage(classifier RelevanceClassifier, logger *zap.SugaredLogger) *RelevanceTriage {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RelevanceTriage{classifier: classifier, logger: logger}
}

// Filter returns the documents worth sending to generation. Documents
// below the text-length threshold are kept automatically; a single
// candidate (or fewer than two documents overall) is never excluded.
func (t *RelevanceTriage) Filter(ctx context.Context, caseContext string, documents []models.Document) []models.Document {
	if len(documents) < 2 {
		return documents
	}

	var candidates []llm.Candidate
	for _, doc := range documents {
		if len(doc.ExtractedText) < minTriageTextLen {
			continue
		}
		excerpt := doc.ExtractedText
		if len(excerpt) > maxExcerptLen {
			excerpt = excerpt[:maxExcerptLen]
		}
		candidates = append(candidates, llm.Candidate{
			ID:      doc.ID.String(),
			Tag:     doc.Tag,
			Excerpt: excerpt,
		})
	}

	if len(candidates) < 2 {
		return documents
	}

	partition, err := t.classify(ctx, caseContext, candidates)
	if err != nil {
		t.logger.Warnw("relevance triage unavailable, keeping all documents", "error", err)
		return documents
	}

	irrelevant := make(map[string]string, len(partition.Irrelevant))
	for _, verdict := range partition.Irrelevant {
		irrelevant[verdict.ID] = verdict.Justification
	}

	// Never let the classifier empty the candidate set entirely
	if len(irrelevant) >= len(candidates) {
		t.logger.Warnw("classifier flagged every candidate irrelevant, keeping all documents")
		return documents
	}

	kept := make([]models.Document, 0, len(documents))
	for _, doc := range documents {
		if reason, excluded := irrelevant[doc.ID.String()]; excluded {
			t.logger.Infow("document excluded by triage",
				"document_id", doc.ID, "tag", doc.Tag, "justification", reason)
			continue
		}
		kept = append(kept, doc)
	}
	return kept
}

func (t *RelevanceTriage) classify(ctx context.Context, caseContext string, candidates []llm.Candidate) (*llm.RelevancePartition, error) {
	var partition *llm.RelevancePartition
	var err error

	backoff := triageInitialBackoff
	for attempt := 0; attempt < triageMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		partition, err = t.classifier.ClassifyRelevance(ctx, caseContext, candidates)
		if err == nil {
			return partition, nil
		}
	}

	return nil, err
}
