package openai

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

func TestExtractPageSendsImageAndInstructions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Contains(t, body["instructions"], "handwritten")

		raw, _ := json.Marshal(body["input"])
		assert.Contains(t, string(raw), "data:image/png;base64,")
		assert.Contains(t, string(raw), "page 1 of a multi-page form")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1", "object": "response", "created_at": 1, "model": "gpt-test", "status": "completed",
			"output": [{
				"type": "message", "id": "msg_1", "role": "assistant", "status": "completed",
				"content": [{"type": "output_text", "text": "{\"Vitals\": {\"bp\": \"120/80\"}}", "annotations": []}]
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	raw, err := c.ExtractPage(context.Background(), llm.PageRequest{
		Image: []byte("\x89PNG\r\n\x1a\n"),
		Page:  1,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Vitals": {"bp": "120/80"}}`, string(raw))
}

func TestExtractPageMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "nope", BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.ExtractPage(context.Background(), llm.PageRequest{Page: 1, Image: []byte{1}})
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.False(t, llm.IsRetryable(err))
}
