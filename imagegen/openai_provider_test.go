package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go_batchgen/core"
	"go_batchgen/credentials"
)

func TestNewOpenAIClient_NilConfig(t *testing.T) {
	client, err := NewOpenAIClient(nil)
	if err == nil {
		t.Fatal("expected error for nil config, got nil")
	}
	if client != nil {
		t.Error("expected nil client for nil config")
	}
}

func TestNewOpenAIClient_LocalEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"localhost", "http://localhost:1234"},
		{"127.0.0.1", "http://127.0.0.1:8080"},
		{"192.168.x.x", "http://192.168.1.100:5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &core.Config{OpenAIBaseURL: tt.endpoint}
			client, err := NewOpenAIClient(cfg)
			if err == nil {
				t.Errorf("expected error for local endpoint %s, got nil", tt.endpoint)
			}
			if client != nil {
				t.Errorf("expected nil client for local endpoint %s", tt.endpoint)
			}
		})
	}
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	client, err := NewOpenAIClient(&core.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Model() != "dall-e-3" {
		t.Errorf("Model() = %q, expected dall-e-3", client.Model())
	}
}

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClientWithConfig(OpenAIClientConfig{
		BaseURL:    server.URL + "/v1",
		HTTPClient: server.Client(),
	})
}

func TestOpenAIClient_Generate_Success(t *testing.T) {
	png := testPNG(t)
	var gotAuth, gotFormat, gotSize string

	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotFormat, _ = body["response_format"].(string)
		gotSize, _ = body["size"].(string)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"created": 1,
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(png)},
			},
		})
	})

	outcome := client.Generate(context.Background(), NewRequest("a lighthouse", AspectLandscape), credentials.NewToken("a", "sk-one"))
	if outcome.Kind != OutcomeSuccess {
		t.Fatalf("Kind = %v, expected success (%s)", outcome.Kind, outcome.Message)
	}
	if len(outcome.Images) != 1 || string(outcome.Images[0]) != string(png) {
		t.Errorf("unexpected images: %d", len(outcome.Images))
	}
	if gotAuth != "Bearer sk-one" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotFormat != "b64_json" {
		t.Errorf("response_format = %q, expected b64_json", gotFormat)
	}
	if gotSize != "1792x1024" {
		t.Errorf("size = %q, expected 1792x1024", gotSize)
	}
}

func TestOpenAIClient_Generate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		message  string
		wantKind OutcomeKind
		wantAPI  APIErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, "Rate limit reached", OutcomeAPIError, APIErrorRateLimited},
		{"unauthorized", http.StatusUnauthorized, "Incorrect API key provided", OutcomeAPIError, APIErrorUnauthorized},
		{"bad request", http.StatusBadRequest, "Your request was rejected", OutcomeAPIError, APIErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"message": tt.message,
						"type":    "invalid_request_error",
					},
				})
			})

			outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "sk-x"))
			if outcome.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, expected %v (%s)", outcome.Kind, tt.wantKind, outcome.Message)
			}
			if outcome.ErrorKind != tt.wantAPI {
				t.Errorf("ErrorKind = %v, expected %v", outcome.ErrorKind, tt.wantAPI)
			}
		})
	}
}

func TestOpenAIClient_Generate_NonJSONErrorIsTransport(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	})

	outcome := client.Generate(context.Background(), NewRequest("p", AspectSquare), credentials.NewToken("a", "sk-x"))
	if outcome.Kind != OutcomeTransportError {
		t.Errorf("Kind = %v, expected transport error", outcome.Kind)
	}
}

func TestOpenAIClient_HandlesPerTokenAndRebuild(t *testing.T) {
	var calls int32
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"created":1,"data":[]}`))
	})

	a := credentials.NewToken("a", "sk-a")
	b := credentials.NewToken("b", "sk-b")
	client.Generate(context.Background(), NewRequest("p", AspectSquare), a)
	client.Generate(context.Background(), NewRequest("p", AspectSquare), b)
	client.Generate(context.Background(), NewRequest("p", AspectSquare), a)

	if got := client.HandleCount(); got != 2 {
		t.Fatalf("HandleCount() = %d, expected 2", got)
	}

	client.Rebuild([]credentials.Token{b})
	if got := client.HandleCount(); got != 1 {
		t.Errorf("HandleCount() after Rebuild = %d, expected 1", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("server calls = %d, expected 3", calls)
	}
}

func TestOpenAIClient_RebuildOnPoolChange(t *testing.T) {
	client := NewOpenAIClientWithConfig(OpenAIClientConfig{BaseURL: "http://unused.invalid/v1"})
	pool := credentials.NewPool([]credentials.Token{
		credentials.NewToken("a", "sk-a"),
		credentials.NewToken("b", "sk-b"),
	})
	pool.OnChange(client.Rebuild)

	client.handle(credentials.NewToken("a", "sk-a"))
	client.handle(credentials.NewToken("b", "sk-b"))

	if _, err := pool.Remove(0); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := client.HandleCount(); got != 1 {
		t.Errorf("HandleCount() = %d, expected 1", got)
	}
}
