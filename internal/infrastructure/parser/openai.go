// Package parser calls an OpenAI-compatible chat completions service to
// turn raw OCR text into structured business card fields.
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/cardscan/internal/core/domain"
	"github.com/kirillkom/cardscan/internal/core/ports"
	"github.com/kirillkom/cardscan/internal/infrastructure/resilience"
)

const credentialService = "openai"

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Parser implements ports.CardParser: sanitize the input, fetch the
// stored api key, call the service through the resilience executor and
// screen the response before decoding it.
type Parser struct {
	client      *Client
	gate        ports.ContentGate
	credentials ports.CredentialStore
	exec        *resilience.Executor
	clock       ports.Clock
}

func New(client *Client, gate ports.ContentGate, credentials ports.CredentialStore, exec *resilience.Executor) *Parser {
	return &Parser{
		client:      client,
		gate:        gate,
		credentials: credentials,
		exec:        exec,
		clock:       time.Now,
	}
}

func (p *Parser) Parse(ctx context.Context, text string) (*domain.ParsedCardData, error) {
	clean := p.gate.Sanitize(text)
	if strings.TrimSpace(clean) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ai parse", fmt.Errorf("no usable text after sanitization"))
	}

	apiKey, err := p.credentials.Get(ctx, credentialService)
	if err != nil {
		return nil, err
	}

	var raw string
	err = p.exec.Execute(ctx, "ai_parse", func(ctx context.Context) error {
		var callErr error
		raw, callErr = p.client.complete(ctx, apiKey, buildCardPrompt(clean))
		return callErr
	}, classifyParserError)
	if err != nil {
		return nil, wrapParserError("ai parse", err)
	}

	payload := extractJSONObject(raw)
	if err := p.gate.ValidateAPIResponse(payload); err != nil {
		return nil, err
	}

	var data domain.ParsedCardData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "ai parse", err)
	}

	data.Source = domain.SourceAI
	data.ParsedAt = p.clock()
	if data.Confidence < 0 {
		data.Confidence = 0
	}
	if data.Confidence > 1 {
		data.Confidence = 1
	}
	return &data, nil
}

func (c *Client) complete(ctx context.Context, apiKey, prompt string) (string, error) {
	request := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature":     0.1,
		"response_format": map[string]string{"type": "json_object"},
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.postJSON(ctx, "/v1/chat/completions", apiKey, request, &response); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrMalformedResponse, "chat completion", fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
