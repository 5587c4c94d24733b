package llm

import "context"

// PageRequest is everything the vision model sees for one page.
type PageRequest struct {
	Image      []byte // raster bytes of the page
	MIMEType   string // image/png unless the rasterizer says otherwise
	Page       int    // 1-based
	SchemaName string
	SchemaText string // forwarded verbatim
}

// VisionExtractor is the collaborator boundary our extraction stage depends on.
// It returns the model's raw text answer; decoding and repair happen in ParsePage.
type VisionExtractor interface {
	ExtractPage(ctx context.Context, req PageRequest) ([]byte, error)
}

// VisionExtractorFunc adapts a plain function to VisionExtractor.
type VisionExtractorFunc func(ctx context.Context, req PageRequest) ([]byte, error)

func (f VisionExtractorFunc) ExtractPage(ctx context.Context, req PageRequest) ([]byte, error) {
	return f(ctx, req)
}
