package gemini

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/form-extractor/internal/llm"
)

func TestExtractPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var body struct {
			Contents []struct {
				Parts []struct {
					Text       string `json:"text"`
					InlineData *struct {
						MIMEType string `json:"mime_type"`
						Data     string `json:"data"`
					} `json:"inline_data"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig map[string]any `json:"generationConfig"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		parts := body.Contents[0].Parts
		require.Len(t, parts, 3)
		assert.Contains(t, parts[0].Text, `"title":"intake"`)
		assert.Contains(t, parts[1].Text, "page 2 of a multi-page form")
		assert.Equal(t, "image/png", parts[2].InlineData.MIMEType)
		assert.Equal(t, "application/json", body.GenerationConfig["responseMimeType"])

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"Demographics\":"},{"text":" {\"name\": \"Jane\"}}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Model: "gemini-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	raw, err := c.ExtractPage(context.Background(), llm.PageRequest{
		Image:      []byte("\x89PNG\r\n\x1a\n"),
		Page:       2,
		SchemaText: `{"title":"intake"}`,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Demographics": {"name": "Jane"}}`, string(raw))
}

func TestExtractPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/down:generateContent":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/models/blocked:generateContent":
			_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
		default:
			_, _ = w.Write([]byte(`{"candidates":[]}`))
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, model := range []string{"down", "blocked", "empty"} {
		c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: model}, logger)
		_, err := c.ExtractPage(context.Background(), llm.PageRequest{Page: 1, Image: []byte{1}})
		assert.Error(t, err, model)
	}

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "down"}, logger)
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Page: 1, Image: []byte{1}})
	assert.True(t, llm.IsRetryable(err))
}
