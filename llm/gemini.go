package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultModel  = "gemini-3-pro-preview"
	generationAPI = "https://generativelanguage.googleapis.com/v1beta/models"
)

// GenerationRequest is the immutable value handed to the backend for
// one generation attempt. It has no identity and is recomputed per
// attempt by the context assembler.
type GenerationRequest struct {
	SystemInstruction string
	Prompt            string
	MaxOutputTokens   int
	Temperature       float64
}

// Candidate is one document offered to the relevance classifier
type Candidate struct {
	ID      string `json:"id"`
	Tag     string `json:"tag"`
	Excerpt string `json:"excerpt"`
}

// RelevanceVerdict carries the classifier's decision for one document
type RelevanceVerdict struct {
	ID            string `json:"id"`
	Justification string `json:"justification"`
}

// RelevancePartition splits candidates into relevant and irrelevant
type RelevancePartition struct {
	Relevant   []RelevanceVerdict `json:"relevant"`
	Irrelevant []RelevanceVerdict `json:"irrelevant"`
}

// Client talks to the Gemini generation API. Streaming calls go through
// the HTTP streaming endpoint and are decoded incrementally; the
// relevance classification call uses the SDK client with a structured
// JSON response.
type Client struct {
	apiKey string
	model  string
	http   *http.Client
	genai  *genai.Client
	logger *zap.SugaredLogger
}

// NewClient creates a generation backend client
func NewClient(ctx context.Context, apiKey, model string, logger *zap.SugaredLogger) (*Client, error) {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	sdk, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &Client{
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: 180 * time.Second},
		genai:  sdk,
		logger: logger,
	}, nil
}

// Close releases the SDK client
func (c *Client) Close() error {
	return c.genai.Close()
}

// streamBody is the request payload for the streaming endpoint
type streamBody struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
	GenerationConfig  genConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// StreamGenerate opens a streamed generation call and returns a frame
// decoder over the response. The caller owns the decoder and must close
// it; cancelling the session does so.
func (c *Client) StreamGenerate(ctx context.Context, req GenerationRequest) (FrameDecoder, error) {
	body := streamBody{
		Contents:         []content{{Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: genConfig{Temperature: req.Temperature, MaxOutputTokens: req.MaxOutputTokens},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:streamGenerateContent?alt=sse", generationAPI, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open generation stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Errorw("generation API rejected stream", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("generation API error: %d", resp.StatusCode)
	}

	return NewSSEDecoder(resp.Body), nil
}

// ClassifyRelevance asks the backend to partition candidate documents
// into relevant and irrelevant for the given case context.
func (c *Client) ClassifyRelevance(ctx context.Context, caseContext string, candidates []Candidate) (*RelevancePartition, error) {
	candidateJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal candidates: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("You are reviewing supporting documents for a legal filing.\n\n")
	prompt.WriteString("CASE CONTEXT:\n")
	prompt.WriteString(caseContext)
	prompt.WriteString("\n\nCANDIDATE DOCUMENTS (JSON):\n")
	prompt.Write(candidateJSON)
	prompt.WriteString("\n\nPartition the candidates by whether their content is relevant to drafting this filing. ")
	prompt.WriteString("Respond with JSON only, shaped as ")
	prompt.WriteString(`{"relevant":[{"id":"...","justification":"..."}],"irrelevant":[{"id":"...","justification":"..."}]}. `)
	prompt.WriteString("Every candidate id must appear in exactly one list.")

	model := c.genai.GenerativeModel(c.model)
	model.GenerationConfig.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return nil, fmt.Errorf("relevance classification failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("relevance classification returned no candidates")
	}

	var raw strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if text, ok := p.(genai.Text); ok {
			raw.WriteString(string(text))
		}
	}

	partition := &RelevancePartition{}
	if err := json.Unmarshal([]byte(raw.String()), partition); err != nil {
		return nil, fmt.Errorf("malformed classification response: %w", err)
	}

	return partition, nil
}
