// Package imagegen talks to remote image-generation APIs and stores what they
// return.
//
// openai_provider.go implements the OpenAIClient molecule that generates
// images through the OpenAI images API.
//
// This molecule composes:
//   - atoms.go: IsLocalEndpoint, ClassifyAPIError
//   - core.Config: for API configuration
//   - go-openai client: one handle per token secret
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go_batchgen/core"
	"go_batchgen/credentials"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client on top of go-openai.
//
// go-openai binds the API key into the client at construction, so one handle
// is kept per token secret. Rebuild drops handles of tokens that have left the
// pool; it is registered with credentials.Pool.OnChange.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	baseURL    string
	model      string
	httpClient *http.Client

	mu      sync.Mutex
	handles map[string]*openai.Client
}

// OpenAIClientConfig holds configuration specific to the OpenAI client.
type OpenAIClientConfig struct {
	// BaseURL is the API endpoint (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the image model to use (default: dall-e-3)
	Model string

	// HTTPClient is the HTTP client for API calls (optional)
	HTTPClient *http.Client
}

// DefaultOpenAIClientConfig returns sensible defaults for OpenAI image generation.
func DefaultOpenAIClientConfig() OpenAIClientConfig {
	return OpenAIClientConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "dall-e-3",
	}
}

// NewOpenAIClient creates an OpenAI-backed Client.
//
// Returns an error if the endpoint is a local endpoint, which does not serve
// the images API.
func NewOpenAIClient(cfg *core.Config) (*OpenAIClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("imagegen: config cannot be nil")
	}

	endpoint := cfg.OpenAIBaseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	if IsLocalEndpoint(endpoint) {
		return nil, fmt.Errorf("imagegen: local endpoint (%s) does not support image generation; "+
			"configure OPENAI_BASE_URL to use OpenAI", endpoint)
	}

	return NewOpenAIClientWithConfig(OpenAIClientConfig{
		BaseURL:    endpoint,
		Model:      cfg.OpenAIImageModel,
		HTTPClient: core.GetHTTPClient(cfg, cfg.HTTPTimeout),
	}), nil
}

// NewOpenAIClientWithConfig creates an OpenAI client with explicit settings.
// No endpoint validation is done, which lets tests point it at httptest.
func NewOpenAIClientWithConfig(cfg OpenAIClientConfig) *OpenAIClient {
	defaults := DefaultOpenAIClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	return &OpenAIClient{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
		handles:    make(map[string]*openai.Client),
	}
}

func (c *OpenAIClient) handle(token credentials.Token) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.handles[token.Secret]; ok {
		return h
	}

	clientConfig := openai.DefaultConfig(token.Secret)
	clientConfig.BaseURL = c.baseURL
	if c.httpClient != nil {
		clientConfig.HTTPClient = c.httpClient
	}
	h := openai.NewClientWithConfig(clientConfig)
	c.handles[token.Secret] = h
	return h
}

// Rebuild discards every handle whose token is not in tokens.
func (c *OpenAIClient) Rebuild(tokens []credentials.Token) {
	keep := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		keep[t.Secret] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for secret := range c.handles {
		if _, ok := keep[secret]; !ok {
			delete(c.handles, secret)
		}
	}
}

// HandleCount returns the number of cached per-token handles.
func (c *OpenAIClient) HandleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Generate requests base64 image data for the prompt.
//
// *openai.APIError responses become OutcomeAPIError, classified from the HTTP
// status and message. Anything else, including *openai.RequestError for
// non-JSON error pages, is an OutcomeTransportError.
func (c *OpenAIClient) Generate(ctx context.Context, req Request, token credentials.Token) Outcome {
	req.Prepare()

	imageReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          c.model,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
		Size:           req.AspectRatio.OpenAISize(),
	}
	// style is DALL-E 3 only
	if c.model == openai.CreateImageModelDallE3 {
		imageReq.Style = openai.CreateImageStyleVivid
	}

	response, err := c.handle(token).CreateImage(ctx, imageReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			status := ""
			if s, ok := apiErr.Code.(string); ok {
				status = s
			}
			return APIError(ClassifyAPIError(apiErr.HTTPStatusCode, status, apiErr.Message), apiErr.Message)
		}
		return TransportError(err.Error())
	}

	images := make([][]byte, 0, len(response.Data))
	for _, item := range response.Data {
		if item.B64JSON == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			continue
		}
		images = append(images, data)
	}
	return Success(images)
}

// Model returns the configured image model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Ensure OpenAIClient implements Client at compile time.
var _ Client = (*OpenAIClient)(nil)
