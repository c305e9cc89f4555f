package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultGeneratorBaseURL is the public image generation endpoint.
const DefaultGeneratorBaseURL = "https://image.pollinations.ai"

// ImageGenerator renders text prompts through a prompt-in-URL image
// generation service. Low quality keeps the rendered payloads small.
type ImageGenerator struct {
	baseURL    string
	httpClient *http.Client
}

// GeneratorOption customizes an ImageGenerator.
type GeneratorOption func(*ImageGenerator)

// WithGeneratorHTTPClient replaces the default HTTP client.
func WithGeneratorHTTPClient(client *http.Client) GeneratorOption {
	return func(g *ImageGenerator) {
		g.httpClient = client
	}
}

// NewImageGenerator returns a generator for the given base URL. An empty
// base URL selects the public service.
func NewImageGenerator(baseURL string, opts ...GeneratorOption) *ImageGenerator {
	if baseURL == "" {
		baseURL = DefaultGeneratorBaseURL
	}

	generator := &ImageGenerator{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(generator)
	}

	return generator
}

// GenerateImage fetches a rendered image for the prompt and returns it
// base64 encoded.
func (g *ImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	target := fmt.Sprintf("%s/prompt/%s?width=256&height=256&quality=low", g.baseURL, url.PathEscape(prompt))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build generation request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate image: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generated image: %w", err)
	}

	return base64.StdEncoding.EncodeToString(raw), nil
}
