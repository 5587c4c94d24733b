package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"

	"github.com/joseph-ayodele/form-extractor/internal/llm"
)

// ExtractPage implements llm.VisionExtractor using the Responses API with the
// page attached as an input image.
func (c *Client) ExtractPage(ctx context.Context, req llm.PageRequest) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"provider", "openai",
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"page", req.Page,
		"schema", req.SchemaName,
		"image_bytes", len(req.Image),
	)

	resp, err := c.api.Responses.New(ctx, responses.ResponseNewParams{
		Model:        c.cfg.Model,
		Instructions: openai.String(llm.BuildSystemPrompt(req.SchemaText)),
		Temperature:  openai.Float(float64(c.cfg.Temperature)),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						responses.ResponseInputContentParamOfInputText(llm.BuildPagePrompt(req.Page)),
						responses.ResponseInputContentUnionParam{
							OfInputImage: &responses.ResponseInputImageParam{
								ImageURL: openai.String(llm.DataURL(req.MIMEType, req.Image)),
								Detail:   responses.ResponseInputImageDetailHigh,
							},
						},
					},
					"user",
				),
			},
		},
	})
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "page", req.Page, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &llm.StatusError{Status: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, err
	}

	content := strings.TrimSpace(resp.OutputText())
	if content == "" {
		c.logger.Error("llm.extract.empty_output",
			"req_id", rid, "page", req.Page,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, llm.ErrEmptyAnswer
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"page", req.Page,
		"bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return []byte(content), nil
}
