package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/luminanexus/chavruta/domain"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

const (
	// DefaultCompletionsURL is the OpenAI chat completions endpoint.
	DefaultCompletionsURL = "https://api.openai.com/v1/chat/completions"

	// DefaultModel is the completion model unless CHAVRUTA_MODEL overrides it.
	DefaultModel = "gpt-4.1-mini"

	// Fixed sampling and output ceiling for every call.
	temperature = 0.6
	maxTokens   = 800

	// maxErrorBody caps how much of an upstream error body is read.
	maxErrorBody = 64 * 1024
)

// OpenAIClient implements domain.Completer against the OpenAI chat
// completions API.
type OpenAIClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
	hasher     domain.Hasher
}

// NewOpenAIClient builds a completer. An empty apiKey is accepted here and
// rejected per call, so a missing credential is a mapped failure at request
// time rather than a crash at startup.
func NewOpenAIClient(apiKey, model, url string, hasher domain.Hasher) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	if url == "" {
		url = DefaultCompletionsURL
	}
	client := &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		url:        url,
		httpClient: http.DefaultClient,
		hasher:     hasher,
	}
	if apiKey != "" && hasher != nil {
		log.With(zap.String("credential_fingerprint", hasher.Hash([]byte(apiKey))[:12])).
			Info("openai completer configured", zap.String("model", model))
	}
	return client
}

type completionRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete calls the upstream completions endpoint. Non-2xx responses map to
// an upstream failure carrying a bounded excerpt; the full body is logged
// here and goes no further. An empty first-choice content degrades to the
// fixed fallback reply.
func (c *OpenAIClient) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if c.apiKey == "" {
		return "", domain.NewFailure(domain.Misconfigured, "missing upstream credential")
	}

	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewFailure(domain.ServerError, "calling upstream").WithExcerpt(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.WithCtx(ctx).Error("upstream error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return "", domain.NewFailure(domain.UpstreamError, "error from upstream").
			WithExcerpt(sanitizeExcerpt(raw))
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", domain.NewFailure(domain.ServerError, "decoding upstream response").WithExcerpt(err.Error())
	}

	if len(decoded.Choices) == 0 {
		return domain.EmptyReplyFallback, nil
	}
	reply := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if reply == "" {
		return domain.EmptyReplyFallback, nil
	}
	return reply, nil
}

// sanitizeExcerpt flattens an upstream error body to a single printable
// line before the excerpt bound applies.
func sanitizeExcerpt(raw []byte) string {
	excerpt := strings.Join(strings.Fields(string(raw)), " ")
	return excerpt
}
