package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragsync/ai"
	"github.com/tmc/langchaingo/embeddings"
)

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 1024

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// errorResponse covers the error shapes returned by OpenAI-compatible servers.
type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// client posts batches to an OpenAI-compatible /embeddings endpoint.
// It satisfies langchaingo's embeddings.EmbedderClient.
type client struct {
	backend    string
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	http       *http.Client
}

var _ embeddings.EmbedderClient = (*client)(nil)

func newClient(cfg *ai.Config, hc *http.Client) *client {
	backend := cfg.Backend
	if backend == "" {
		backend = "custom"
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{
		backend:    backend,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings",
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		http:       hc,
	}
}

// CreateEmbedding embeds one batch of texts and returns vectors in input order.
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(embeddingRequest{
		Model:          c.model,
		Input:          texts,
		Dimensions:     c.dimensions,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ai.EmbeddingError{Backend: c.backend, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ai.EmbeddingError{Backend: c.backend, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ai.EmbeddingError{Backend: c.backend, StatusCode: resp.StatusCode, Message: errorMessage(body, resp.Status)}
	}

	var out embeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &ai.EmbeddingError{Backend: c.backend, Message: "malformed response body", Err: err}
	}
	if len(out.Data) != len(texts) {
		return nil, &ai.EmbeddingError{
			Backend: c.backend,
			Message: fmt.Sprintf("expected %d embeddings, received %d", len(texts), len(out.Data)),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, &ai.EmbeddingError{Backend: c.backend, Message: fmt.Sprintf("invalid embedding index %d", d.Index)}
		}
		if len(d.Embedding) != c.dimensions {
			return nil, &ai.EmbeddingError{
				Backend: c.backend,
				Message: fmt.Sprintf("embedding %d has %d dimensions, expected %d", d.Index, len(d.Embedding), c.dimensions),
			}
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// errorMessage extracts the backend's message from an error body.
func errorMessage(body []byte, status string) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error != nil && er.Error.Message != "" {
			return er.Error.Message
		}
		if er.Message != "" {
			return er.Message
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return status
	}
	if len(msg) > maxErrorBody {
		// Cut on a rune boundary.
		n := maxErrorBody
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n]
	}
	return msg
}
