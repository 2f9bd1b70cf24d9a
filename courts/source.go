package courts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"litisdraft-backend/models"
)

// SourceID identifies a court index (e.g. "tjsp", "tjrj", "trf3")
type SourceID string

// Searcher performs a free-text query against one court index
type Searcher interface {
	ID() SourceID
	Search(ctx context.Context, terms string, limit int) ([]models.PrecedentRecord, error)
}

// maxMovements bounds the trailing movement list kept per record
const maxMovements = 5

// HTTPSource queries a public tribunal search endpoint over HTTP
type HTTPSource struct {
	id      SourceID
	court   string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a search client for one court endpoint
func NewHTTPSource(id SourceID, court, baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSource{
		id:      id,
		court:   court,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ID returns the source identifier
func (s *HTTPSource) ID() SourceID {
	return s.id
}

// searchRequest is the query body accepted by the tribunal endpoints
type searchRequest struct {
	Query searchQuery `json:"query"`
	Size  int         `json:"size"`
}

type searchQuery struct {
	QueryString queryString `json:"query_string"`
}

type queryString struct {
	Query string `json:"query"`
}

// searchResponse mirrors the endpoint's result envelope
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source recordPayload `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

type recordPayload struct {
	Tribunal       string `json:"tribunal"`
	NumeroProcesso string `json:"numeroProcesso"`
	Classe         struct {
		Nome string `json:"nome"`
	} `json:"classe"`
	Assuntos []struct {
		Nome string `json:"nome"`
	} `json:"assuntos"`
	OrgaoJulgador struct {
		Nome string `json:"nome"`
	} `json:"orgaoJulgador"`
	DataAjuizamento   time.Time `json:"dataAjuizamento"`
	UltimaAtualizacao time.Time `json:"dataHoraUltimaAtualizacao"`
	Movimentos        []struct {
		Codigo   int       `json:"codigo"`
		Nome     string    `json:"nome"`
		DataHora time.Time `json:"dataHora"`
	} `json:"movimentos"`
}

// Search issues one bounded query against the court endpoint
func (s *HTTPSource) Search(ctx context.Context, terms string, limit int) ([]models.PrecedentRecord, error) {
	body := searchRequest{
		Query: searchQuery{QueryString: queryString{Query: terms}},
		Size:  limit,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/_search", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "APIKey "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("court %s unavailable: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("court %s returned status %d", s.id, resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("court %s returned malformed body: %w", s.id, err)
	}

	records := make([]models.PrecedentRecord, 0, len(payload.Hits.Hits))
	for _, hit := range payload.Hits.Hits {
		records = append(records, toRecord(s.court, hit.Source))
	}
	return records, nil
}

func toRecord(court string, p recordPayload) models.PrecedentRecord {
	if p.Tribunal != "" {
		court = p.Tribunal
	}

	subjects := make([]string, 0, len(p.Assuntos))
	for _, a := range p.Assuntos {
		subjects = append(subjects, a.Nome)
	}

	movements := make([]models.Movement, 0, len(p.Movimentos))
	// Endpoints return movements oldest first; keep the trailing window
	start := 0
	if len(p.Movimentos) > maxMovements {
		start = len(p.Movimentos) - maxMovements
	}
	for _, m := range p.Movimentos[start:] {
		movements = append(movements, models.Movement{
			Code:        m.Codigo,
			Description: m.Nome,
			Date:        m.DataHora,
		})
	}

	return models.PrecedentRecord{
		Court:       court,
		CaseNumber:  p.NumeroProcesso,
		Class:       p.Classe.Nome,
		Subjects:    subjects,
		IssuingBody: p.OrgaoJulgador.Nome,
		FilingDate:  p.DataAjuizamento,
		LastUpdate:  p.UltimaAtualizacao,
		Movements:   movements,
	}
}
