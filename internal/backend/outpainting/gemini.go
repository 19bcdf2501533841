package outpainting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// responseModalities asks the model for image output; image generation
// models reject requests without IMAGE.
var responseModalities = []string{string(genai.ModalityText), string(genai.ModalityImage)}

// GeminiModel synthesizes images through Google Gemini.
type GeminiModel struct {
	client *genai.Client
	name   string
	config *genai.GenerateContentConfig
}

type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float64
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string
}

func NewGeminiModel(ctx context.Context, opts GeminiOptions) (*GeminiModel, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	if opts.Model == "" {
		return nil, errors.New("gemini model name is empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: opts.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &GeminiModel{
		client: client,
		name:   opts.Model,
		config: &genai.GenerateContentConfig{
			Temperature:        genai.Ptr(float32(opts.Temperature)),
			CandidateCount:     1,
			ResponseModalities: responseModalities,
		},
	}, nil
}

func (g *GeminiModel) Synthesize(ctx context.Context, images []ContextImage, instruction string) ([]byte, error) {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(instruction))

	resp, err := g.client.Models.GenerateContent(ctx, g.name,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, g.config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			blob := part.InlineData
			if blob != nil && strings.HasPrefix(blob.MIMEType, "image/") && len(blob.Data) > 0 {
				return blob.Data, nil
			}
		}
	}
	return nil, nil
}

// Close is a no-op; the client holds no resources beyond its HTTP client.
func (g *GeminiModel) Close() error {
	return nil
}
