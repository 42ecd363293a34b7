package scanning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	limiter *rate.Limiter
}

// NewGemini creates a new Gemini extractor. requestsPerMinute <= 0 disables client side limiting.
func NewGemini(apiKey string, modelName string, requestsPerMinute int) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// low temperature keeps numbers stable between retries
	model.SetTemperature(0.1)
	model.SetMaxOutputTokens(4096)
	model.ResponseMIMEType = "application/json"

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
	}

	return &Gemini{
		client:  client,
		model:   model,
		limiter: limiter,
	}, nil
}

// Extract sends the photo to Gemini and returns the raw answer text
func (g *Gemini) Extract(ctx context.Context, image []byte, contentType string) ([]byte, error) {
	png, _, err := normalizeImage(image, contentType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExtractionSchema, "invalid image", err)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, classifyProviderError("gemini", err)
	}

	// genai.ImageData takes the format suffix, not the MIME type
	resp, err := g.model.GenerateContent(ctx,
		genai.ImageData("png", png),
		genai.Text(systemInstruction+"\n\n"+extractionPrompt),
	)
	if err != nil {
		return nil, classifyProviderError("gemini", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, classifyProviderError("gemini", fmt.Errorf("no response from gemini"))
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return []byte(text.String()), nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
