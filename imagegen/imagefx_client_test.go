package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"go_batchgen/credentials"
)

// testPNG returns a valid 1x1 PNG.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newImageFXTestClient(t *testing.T, handler http.HandlerFunc) *ImageFXClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewImageFXClient(ImageFXConfig{URL: server.URL, HTTPClient: server.Client()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestImageFXClient_Generate_RequestShape(t *testing.T) {
	var captured imageFXRequest
	var auth string

	client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, expected POST", r.Method)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"imagePanels": []interface{}{}})
	})

	seed := int64(42)
	req := Request{Prompt: "a red fox", AspectRatio: AspectPortrait, Seed: &seed, ProjectID: "proj-1"}
	client.Generate(context.Background(), req, credentials.NewToken("main", "ya29.secret"))

	if auth != "Bearer ya29.secret" {
		t.Errorf("Authorization = %q", auth)
	}
	if captured.Prompt != "a red fox" {
		t.Errorf("prompt = %q", captured.Prompt)
	}
	if captured.Seed != 42 {
		t.Errorf("seed = %d, expected 42", captured.Seed)
	}
	if captured.ClientContext.WorkflowID != "proj-1" {
		t.Errorf("workflowId = %q, expected proj-1", captured.ClientContext.WorkflowID)
	}
	if captured.ClientContext.SessionID == "" || captured.ClientContext.Tool == "" {
		t.Errorf("client context incomplete: %+v", captured.ClientContext)
	}
	if captured.ImageModelSettings.AspectRatio != string(AspectPortrait) {
		t.Errorf("aspectRatio = %q", captured.ImageModelSettings.AspectRatio)
	}
	if captured.ImageModelSettings.ImageModel != "IMAGEN_3_1" {
		t.Errorf("imageModel = %q", captured.ImageModelSettings.ImageModel)
	}
	if captured.MediaCategory != imageFXMediaCategory {
		t.Errorf("mediaCategory = %q", captured.MediaCategory)
	}
}

func TestImageFXClient_Generate_Success(t *testing.T) {
	img := testPNG(t)
	encoded := base64.StdEncoding.EncodeToString(img)

	client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"imagePanels": []map[string]interface{}{
				{
					"prompt": "p",
					"generatedImages": []map[string]interface{}{
						{"encodedImage": encoded, "seed": 1},
						{"encodedImage": "!!not base64!!", "seed": 2},
						{"encodedImage": encoded, "seed": 3},
					},
				},
			},
		})
	})

	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, expected success: %s", outcome.Kind, outcome.Message)
	}
	if len(outcome.Images) != 2 {
		t.Fatalf("got %d images, expected 2 (undecodable one skipped)", len(outcome.Images))
	}
	if !bytes.Equal(outcome.Images[0], img) {
		t.Error("decoded image bytes differ")
	}
}

func TestImageFXClient_Generate_ZeroImagesIsSuccess(t *testing.T) {
	client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	})

	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, expected success", outcome.Kind)
	}
	if len(outcome.Images) != 0 {
		t.Errorf("got %d images, expected 0", len(outcome.Images))
	}
}

func TestImageFXClient_Generate_APIErrors(t *testing.T) {
	tests := []struct {
		name     string
		errBody  map[string]interface{}
		expected APIErrorKind
	}{
		{
			name:     "resource exhausted",
			errBody:  map[string]interface{}{"code": 429, "message": "Resource has been exhausted", "status": "RESOURCE_EXHAUSTED"},
			expected: APIErrorRateLimited,
		},
		{
			name:     "unauthenticated",
			errBody:  map[string]interface{}{"code": 401, "message": "Request had invalid authentication credentials.", "status": "UNAUTHENTICATED"},
			expected: APIErrorUnauthorized,
		},
		{
			name:     "other",
			errBody:  map[string]interface{}{"code": 400, "message": "Prompt blocked", "status": "INVALID_ARGUMENT"},
			expected: APIErrorOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{"error": tt.errBody})
			})

			outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
			if outcome.Kind != OutcomeAPIError {
				t.Fatalf("Kind = %v, expected api error", outcome.Kind)
			}
			if outcome.ErrorKind != tt.expected {
				t.Errorf("ErrorKind = %v, expected %v", outcome.ErrorKind, tt.expected)
			}
			if outcome.Message == "" {
				t.Error("expected message to be set")
			}
		})
	}
}

func TestImageFXClient_Generate_Non2xxIsTransport(t *testing.T) {
	client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{"code": 429, "status": "RESOURCE_EXHAUSTED"},
		})
	})

	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
	if outcome.Kind != OutcomeTransportError {
		t.Errorf("Kind = %v, expected transport error", outcome.Kind)
	}
}

func TestImageFXClient_Generate_NetworkFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewImageFXClient(ImageFXConfig{URL: url})
	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
	if outcome.Kind != OutcomeTransportError {
		t.Errorf("Kind = %v, expected transport error", outcome.Kind)
	}
}

func TestImageFXClient_Generate_MalformedBody(t *testing.T) {
	client := newImageFXTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	})

	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "t"))
	if outcome.Kind != OutcomeTransportError {
		t.Errorf("Kind = %v, expected transport error", outcome.Kind)
	}
}
