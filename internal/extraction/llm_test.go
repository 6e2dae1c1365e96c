package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/meetsync/internal/calendar"
	"github.com/fyrsmithlabs/meetsync/internal/config"
)

func testEvent() calendar.Event {
	return calendar.Event{
		ID:    "evt-1",
		Title: "ABC株式会社 / 田中様 / オンライン面談",
		Attendees: []calendar.Attendee{
			{Email: "tanaka@abc.example.co.jp", DisplayName: "田中様"},
		},
	}
}

func anthropicBody(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"content":     []map[string]string{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	})
	require.NoError(t, err)
	return body
}

func openAIBody(t *testing.T, content string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestAnthropicExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("Anthropic-Version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, extractPrompt, req.System)
		assert.Contains(t, req.Messages[0].Content, "ABC株式会社")

		w.Write(anthropicBody(t, `{"company_name": "ABC株式会社", "person_names": ["田中様"], "confidence": 0.9}`))
	}))
	defer server.Close()

	ext, err := newAnthropicExtractor(config.AIConfig{
		APIKey:  config.Secret("test-key"),
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	assert.True(t, ext.Available())

	candidate, err := ext.Extract(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "ABC株式会社", candidate.Company)
	assert.Equal(t, []string{"田中様"}, candidate.Persons)
	assert.InDelta(t, 0.9, candidate.CompanyConfidence, 1e-9)
	assert.InDelta(t, 0.9, candidate.PersonConfidence, 1e-9)
	assert.Equal(t, ProvenanceAI, candidate.Provenance)
}

func TestOpenAIExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		w.Write(openAIBody(t, `{"company_name": "Acme Inc.", "person_names": ["John Smith"], "confidence": 0.8}`))
	}))
	defer server.Close()

	ext, err := newOpenAIExtractor(config.AIConfig{
		APIKey:  config.Secret("test-key"),
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	candidate, err := ext.Extract(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc.", candidate.Company)
	assert.Equal(t, []string{"John Smith"}, candidate.Persons)
}

func TestAnthropicExtractor_RetryOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(anthropicBody(t, `{"company_name": "ABC株式会社", "person_names": [], "confidence": 0.7}`))
	}))
	defer server.Close()

	ext, err := newAnthropicExtractor(config.AIConfig{
		APIKey:     config.Secret("test-key"),
		BaseURL:    server.URL,
		MaxRetries: 2,
	})
	require.NoError(t, err)

	candidate, err := ext.Extract(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Equal(t, "ABC株式会社", candidate.Company)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIExtractor_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ext, err := newOpenAIExtractor(config.AIConfig{
		APIKey:     config.Secret("test-key"),
		BaseURL:    server.URL,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	_, err = ext.Extract(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicExtractor_NonRetryableAPIError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type": "error", "error": {"type": "invalid_request_error", "message": "bad model"}}`)
	}))
	defer server.Close()

	ext, err := newAnthropicExtractor(config.AIConfig{
		APIKey:     config.Secret("test-key"),
		BaseURL:    server.URL,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	_, err = ext.Extract(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestAnthropicExtractor_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ext, err := newAnthropicExtractor(config.AIConfig{
		APIKey:     config.Secret("test-key"),
		BaseURL:    server.URL,
		MaxRetries: 5,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = ext.Extract(ctx, testEvent())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewExtractorRequiresAPIKey(t *testing.T) {
	_, err := newAnthropicExtractor(config.AIConfig{})
	assert.Error(t, err)

	_, err = newOpenAIExtractor(config.AIConfig{})
	assert.Error(t, err)
}

func TestParseCandidateJSON(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantCompany string
		wantPersons []string
		wantConf    float64
		wantErr     bool
	}{
		{
			name:        "plain json",
			content:     `{"company_name": "ABC株式会社", "person_names": ["田中様"], "confidence": 0.9}`,
			wantCompany: "ABC株式会社",
			wantPersons: []string{"田中様"},
			wantConf:    0.9,
		},
		{
			name: "markdown fenced",
			content: "```json\n" +
				`{"company_name": "ABC株式会社", "person_names": ["田中様", "山田様"], "confidence": 0.85}` +
				"\n```",
			wantCompany: "ABC株式会社",
			wantPersons: []string{"田中様", "山田様"},
			wantConf:    0.85,
		},
		{
			name:     "null company abstains",
			content:  `{"company_name": null, "person_names": ["田中様"], "confidence": 0.6}`,
			wantPersons: []string{"田中様"},
			wantConf:    0.6,
		},
		{
			name:    "both fields empty",
			content: `{"company_name": null, "person_names": [], "confidence": 0.3}`,
		},
		{
			name:    "not json",
			content: "I could not find any names in this event.",
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"company_name": "ABC株式会社", "person_names": [], "confidence": 1.5}`,
			wantErr: true,
		},
		{
			name:        "whitespace trimmed",
			content:     `{"company_name": "  ABC株式会社  ", "person_names": ["  田中様 ", ""], "confidence": 0.7}`,
			wantCompany: "ABC株式会社",
			wantPersons: []string{"田中様"},
			wantConf:    0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, err := parseCandidateJSON(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCompany, candidate.Company)
			assert.Equal(t, tt.wantPersons, candidate.Persons)
			assert.Equal(t, ProvenanceAI, candidate.Provenance)
			if tt.wantCompany != "" {
				assert.InDelta(t, tt.wantConf, candidate.CompanyConfidence, 1e-9)
			} else {
				assert.Zero(t, candidate.CompanyConfidence)
			}
			if len(tt.wantPersons) > 0 {
				assert.InDelta(t, tt.wantConf, candidate.PersonConfidence, 1e-9)
			} else {
				assert.Zero(t, candidate.PersonConfidence)
			}
		})
	}
}

func TestNoOpExtractor(t *testing.T) {
	ext := &NoOpExtractor{}
	assert.False(t, ext.Available())

	candidate, err := ext.Extract(context.Background(), testEvent())
	require.NoError(t, err)
	assert.Empty(t, candidate.Company)
	assert.Empty(t, candidate.Persons)
	assert.Equal(t, ProvenanceAI, candidate.Provenance)
}

func TestNewAIExtractor(t *testing.T) {
	t.Run("disabled provider falls back to noop", func(t *testing.T) {
		ext, err := NewAIExtractor(config.AIConfig{Provider: "disabled"})
		require.NoError(t, err)
		assert.False(t, ext.Available())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewAIExtractor(config.AIConfig{Provider: "bard"})
		assert.Error(t, err)
	})

	t.Run("anthropic", func(t *testing.T) {
		ext, err := NewAIExtractor(config.AIConfig{Provider: "anthropic", APIKey: config.Secret("k")})
		require.NoError(t, err)
		assert.True(t, ext.Available())
	})
}
