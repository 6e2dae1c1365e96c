package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 512
	defaultTimeout          = 30 * time.Second
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0 // ~0.83 requests per second
	defaultBurst     = 5           // Allow bursts of up to 5 requests
)

// extractPrompt is the system prompt for meeting fact extraction.
const extractPrompt = `You extract the real company name and person names from a business meeting calendar event.

Rules:
1. Company name: a string carrying a legal suffix (株式会社, Inc., ...) or clearly recognizable as a company. Use null when none is present.
2. Person names: Japanese surnames/full names or clearly recognizable person names, honorifics kept as written. Use [] when none are present.
3. Never invent or guess names that are not in the event.
4. Report your confidence in [0.0, 1.0].

Respond ONLY with a JSON object of this exact shape, no additional text:
{"company_name": "..." or null, "person_names": ["..."], "confidence": 0.85}`

// extractResponse is the expected JSON response schema from LLMs.
type extractResponse struct {
	CompanyName *string  `json:"company_name"`
	PersonNames []string `json:"person_names"`
	Confidence  float64  `json:"confidence"`
}

// anthropicExtractor implements Extractor using Anthropic's Claude API.
type anthropicExtractor struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newAnthropicExtractor creates a new Anthropic extractor.
func newAnthropicExtractor(cfg config.AIConfig) (Extractor, error) {
	if cfg.APIKey.Value() == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &anthropicExtractor{
		model:   model,
		apiKey:  cfg.APIKey.Value(),
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: cfg.MaxRetries,
	}, nil
}

// anthropicRequest represents the request format for Claude API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

// anthropicMessage represents a message in the Claude conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the response from Claude API.
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// anthropicError represents an error response from Claude API.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Extract sends the event to Claude and parses the structured result.
func (a *anthropicExtractor) Extract(ctx context.Context, event calendar.Event) (Candidate, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("rate limiter error: %w", err)
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.1, // Low temperature for consistent extraction
		System:      extractPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildEventPrompt(event)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Candidate{Provenance: ProvenanceAI}, ctx.Err()
			}
		}

		candidate, err := a.doRequest(ctx, req)
		if err == nil {
			return candidate, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return Candidate{Provenance: ProvenanceAI}, err
		}
	}

	return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the Claude API.
func (a *anthropicExtractor) doRequest(ctx context.Context, req anthropicRequest) (Candidate, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Candidate{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return Candidate{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}

	// Handle server errors (retryable)
	if resp.StatusCode >= 500 {
		return Candidate{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return Candidate{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Candidate{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var claudeResp anthropicResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return Candidate{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(claudeResp.Content) == 0 {
		return Candidate{}, fmt.Errorf("%w: empty response from API", ErrValidation)
	}

	return parseCandidateJSON(claudeResp.Content[0].Text)
}

// Available returns true if the extractor is configured.
func (a *anthropicExtractor) Available() bool {
	return a.apiKey != ""
}

// openAIExtractor implements Extractor using OpenAI's Chat API.
type openAIExtractor struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newOpenAIExtractor creates a new OpenAI extractor.
func newOpenAIExtractor(cfg config.AIConfig) (Extractor, error) {
	if cfg.APIKey.Value() == "" {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &openAIExtractor{
		model:   model,
		apiKey:  cfg.APIKey.Value(),
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: cfg.MaxRetries,
	}, nil
}

// openAIRequest represents the request format for OpenAI Chat API.
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

// openAIMessage represents a message in the OpenAI conversation.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIResponse represents the response from OpenAI Chat API.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIError represents an error response from OpenAI API.
type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Extract sends the event to OpenAI and parses the structured result.
func (o *openAIExtractor) Extract(ctx context.Context, event calendar.Event) (Candidate, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("rate limiter error: %w", err)
	}

	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.1, // Low temperature for consistent extraction
		Messages: []openAIMessage{
			{Role: "system", Content: extractPrompt},
			{Role: "user", Content: buildEventPrompt(event)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Candidate{Provenance: ProvenanceAI}, ctx.Err()
			}
		}

		candidate, err := o.doRequest(ctx, req)
		if err == nil {
			return candidate, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return Candidate{Provenance: ProvenanceAI}, err
		}
	}

	return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the OpenAI API.
func (o *openAIExtractor) doRequest(ctx context.Context, req openAIRequest) (Candidate, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return Candidate{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to read response: %w", err)
	}

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return Candidate{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}

	// Handle server errors (retryable)
	if resp.StatusCode >= 500 {
		return Candidate{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return Candidate{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Candidate{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return Candidate{}, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openAIResp.Choices) == 0 {
		return Candidate{}, fmt.Errorf("%w: empty response from API", ErrValidation)
	}

	return parseCandidateJSON(openAIResp.Choices[0].Message.Content)
}

// Available returns true if the extractor is configured.
func (o *openAIExtractor) Available() bool {
	return o.apiKey != ""
}

// buildEventPrompt renders the event facts the model extracts from.
func buildEventPrompt(event calendar.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", event.Title)
	if event.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", event.Description)
	}
	if event.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", event.Location)
	}
	if len(event.Attendees) > 0 {
		names := make([]string, 0, len(event.Attendees))
		for _, a := range event.Attendees {
			if a.DisplayName != "" {
				names = append(names, a.DisplayName)
			} else if a.Email != "" {
				names = append(names, a.Email)
			}
		}
		fmt.Fprintf(&b, "Attendees: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

// parseCandidateJSON parses and validates the LLM response. A response
// that is not the documented schema yields ErrValidation, never a
// partially-trusted candidate.
func parseCandidateJSON(content string) (Candidate, error) {
	// Clean up the response - sometimes LLMs wrap JSON in markdown code blocks
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp extractResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if resp.Confidence < 0 || resp.Confidence > 1 {
		return Candidate{Provenance: ProvenanceAI}, fmt.Errorf("%w: confidence %v out of range", ErrValidation, resp.Confidence)
	}

	company := ""
	if resp.CompanyName != nil {
		company = strings.TrimSpace(*resp.CompanyName)
	}

	persons := make([]string, 0, len(resp.PersonNames))
	for _, p := range resp.PersonNames {
		p = strings.TrimSpace(p)
		if p != "" {
			persons = append(persons, p)
		}
	}
	if len(persons) == 0 {
		persons = nil
	}

	candidate := Candidate{
		Company:    company,
		Persons:    persons,
		Provenance: ProvenanceAI,
	}
	// The model reports one confidence; a field it abstained on
	// contributes zero.
	if company != "" {
		candidate.CompanyConfidence = resp.Confidence
	}
	if len(persons) > 0 {
		candidate.PersonConfidence = resp.Confidence
	}
	return candidate, nil
}

// Ensure interfaces are implemented at compile time.
var _ Extractor = (*anthropicExtractor)(nil)
var _ Extractor = (*openAIExtractor)(nil)
