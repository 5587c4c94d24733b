// Package gemini calls the Generative Language generateContent endpoint with
// the page image inlined.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/form-extractor/internal/llm"
)

// Config for the Gemini vision client.
type Config struct {
	APIKey      string // if empty, falls back to env GEMINI_API_KEY
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // e.g., "gemini-2.0-flash"
	Temperature float32
	TopP        float32
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.9
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// ExtractPage implements llm.VisionExtractor.
func (c *Client) ExtractPage(ctx context.Context, req llm.PageRequest) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"page", req.Page,
		"schema", req.SchemaName,
		"image_bytes", len(req.Image),
	)

	body := map[string]any{
		"contents": []content{{
			Role: "user",
			Parts: []part{
				{Text: llm.BuildSystemPrompt(req.SchemaText)},
				{Text: llm.BuildPagePrompt(req.Page)},
				{InlineData: &inlineData{
					MIMEType: llm.DetectMIME(req.MIMEType, req.Image),
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"topP":             c.cfg.TopP,
			"responseMimeType": "application/json",
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	raw, _, err := llm.SendJSON(ctx, c.http, endpoint, body, map[string]string{"x-goog-api-key": c.cfg.APIKey}, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "page", req.Page, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "page", req.Page, "error", err, "raw_bytes", len(raw),
		)
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini blocked the prompt: %s", gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		c.logger.Error("llm.extract.no_candidates", "req_id", rid, "page", req.Page)
		return nil, fmt.Errorf("no candidates in gemini response")
	}

	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, llm.ErrEmptyAnswer
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"page", req.Page,
		"bytes", len(text),
		"finish_reason", gr.Candidates[0].FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(text), nil
}
