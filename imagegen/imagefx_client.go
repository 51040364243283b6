// Package imagegen talks to remote image-generation APIs and stores what they
// return.
//
// imagefx_client.go implements the ImageFXClient molecule: one JSON POST per
// call against the ImageFX generation endpoint.
//
// This molecule composes:
//   - atoms.go: ClassifyAPIError for error bodies
//   - core.GetHTTPClient: transport with optional self-signed TLS
//   - google/uuid: per-client session id
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go_batchgen/core"
	"go_batchgen/credentials"

	"github.com/google/uuid"
)

const (
	imageFXTool          = "PINHOLE"
	imageFXMediaCategory = "MEDIA_CATEGORY_BOARD"

	// cap on error bodies copied into Outcome.Message
	maxErrorBodyBytes = 512
)

// ImageFXClient calls the ImageFX runImageFx endpoint.
//
// Thread Safety: ImageFXClient is safe for concurrent use. It holds no
// per-token state; the token travels with each call.
type ImageFXClient struct {
	url        string
	model      string
	sessionID  string
	httpClient *http.Client
}

// ImageFXConfig holds configuration for NewImageFXClient.
type ImageFXConfig struct {
	// URL is the generation endpoint (default: core.DefaultImageFXURL)
	URL string

	// Model is the imageModel setting (default: IMAGEN_3_1)
	Model string

	// HTTPClient is used for every call. If nil, a client with Timeout is built.
	HTTPClient *http.Client

	// Timeout applies only when HTTPClient is nil.
	Timeout time.Duration
}

// NewImageFXClient creates an ImageFX client.
func NewImageFXClient(cfg ImageFXConfig) *ImageFXClient {
	if cfg.URL == "" {
		cfg.URL = core.DefaultImageFXURL
	}
	if cfg.Model == "" {
		cfg.Model = "IMAGEN_3_1"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &ImageFXClient{
		url:        cfg.URL,
		model:      cfg.Model,
		sessionID:  ";" + uuid.NewString(),
		httpClient: cfg.HTTPClient,
	}
}

// NewImageFXClientFromConfig builds an ImageFX client from the run configuration.
func NewImageFXClientFromConfig(cfg *core.Config) *ImageFXClient {
	return NewImageFXClient(ImageFXConfig{
		URL:        cfg.ImageFXURL,
		Model:      cfg.ImageFXModel,
		HTTPClient: core.GetHTTPClient(cfg, cfg.HTTPTimeout),
	})
}

type imageFXRequest struct {
	ClientContext      imageFXClientContext `json:"clientContext"`
	ImageModelSettings imageFXModelSettings `json:"imageModelSettings"`
	Seed               int64                `json:"seed"`
	Prompt             string               `json:"prompt"`
	MediaCategory      string               `json:"mediaCategory"`
}

type imageFXClientContext struct {
	SessionID  string `json:"sessionId"`
	Tool       string `json:"tool"`
	WorkflowID string `json:"workflowId"`
}

type imageFXModelSettings struct {
	ImageModel  string `json:"imageModel"`
	AspectRatio string `json:"aspectRatio"`
}

type imageFXResponse struct {
	Error       *imageFXError  `json:"error"`
	ImagePanels []imageFXPanel `json:"imagePanels"`
}

type imageFXError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type imageFXPanel struct {
	Prompt          string                  `json:"prompt"`
	GeneratedImages []imageFXGeneratedImage `json:"generatedImages"`
}

type imageFXGeneratedImage struct {
	EncodedImage string `json:"encodedImage"`
	Seed         int64  `json:"seed"`
}

// Generate sends one request with the token as bearer credential.
//
// A network fault or non-2xx status yields OutcomeTransportError. A 2xx body
// carrying an error object yields OutcomeAPIError. Images that fail base64
// decoding are skipped, so a success may carry zero images.
func (c *ImageFXClient) Generate(ctx context.Context, req Request, token credentials.Token) Outcome {
	req.Prepare()

	payload := imageFXRequest{
		ClientContext: imageFXClientContext{
			SessionID:  c.sessionID,
			Tool:       imageFXTool,
			WorkflowID: req.ProjectID,
		},
		ImageModelSettings: imageFXModelSettings{
			ImageModel:  c.model,
			AspectRatio: string(req.AspectRatio),
		},
		Seed:          req.SeedForAttempt(),
		Prompt:        req.Prompt,
		MediaCategory: imageFXMediaCategory,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return TransportError(fmt.Sprintf("failed to encode request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return TransportError(fmt.Sprintf("failed to build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token.Secret)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TransportError(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransportError(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TransportError(fmt.Sprintf("unexpected status %d: %s",
			resp.StatusCode, TruncateText(string(respBody), maxErrorBodyBytes)))
	}

	var parsed imageFXResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return TransportError(fmt.Sprintf("failed to decode response: %v", err))
	}

	if parsed.Error != nil {
		kind := ClassifyAPIError(parsed.Error.Code, parsed.Error.Status, parsed.Error.Message)
		msg := parsed.Error.Message
		if msg == "" {
			msg = parsed.Error.Status
		}
		return APIError(kind, msg)
	}

	var images [][]byte
	for _, panel := range parsed.ImagePanels {
		for _, gen := range panel.GeneratedImages {
			if gen.EncodedImage == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(gen.EncodedImage)
			if err != nil {
				continue
			}
			images = append(images, data)
		}
	}
	return Success(images)
}

// Model returns the configured image model name.
func (c *ImageFXClient) Model() string {
	return c.model
}

// Ensure ImageFXClient implements Client at compile time.
var _ Client = (*ImageFXClient)(nil)
