package scanning

import "context"

// Extractor sends a bill photo to a vision model and returns the raw model answer.
// The answer is decoded by ParseResponse.
type Extractor interface {
	// Extract analyzes an image (or single-page PDF) and returns the model's raw text
	Extract(ctx context.Context, image []byte, contentType string) ([]byte, error)
	// Close releases resources held by the extractor
	Close() error
}
