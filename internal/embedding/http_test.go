package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPEmbedder_EmbedBatch(t *testing.T) {
	var gotAuth string
	var gotReq embeddingsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		// Out of order on purpose; the client sorts by index.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[3,4]}]}`))
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(srv.URL+"/v1/", WithAPIKey("secret"), WithModel("m"), WithDimensions(2), WithRateLimit(0))
	out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth header: %q", gotAuth)
	}
	if gotReq.Model != "m" || len(gotReq.Input) != 2 {
		t.Errorf("request: %+v", gotReq)
	}
	if math.Abs(float64(out[0][0])-0.6) > 1e-6 || math.Abs(float64(out[1][1])-1) > 1e-6 {
		t.Errorf("vectors should be ordered and normalized: %v", out)
	}
}

func TestHTTPEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"message":"overloaded"}}`},
		{"api error body", http.StatusOK, `{"error":{"message":"bad model"}}`},
		{"wrong dimension", http.StatusOK, `{"data":[{"index":0,"embedding":[1,2,3]}]}`},
		{"missing vectors", http.StatusOK, `{"data":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			e := NewHTTPEmbedder(srv.URL, WithDimensions(2), WithRateLimit(0))
			if _, err := e.Embed(context.Background(), "x"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPEmbedder_RateLimiterHonoursContext(t *testing.T) {
	e := NewHTTPEmbedder("http://127.0.0.1:0", WithRateLimit(0.001))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Embed(ctx, "x"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
