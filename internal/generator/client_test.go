package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"content-batch/internal/models"
)

func TestHTTPClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		var in models.GenerationInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if in.Topic != "Go" || in.Model != "gpt-4o-mini" {
			t.Errorf("unexpected input %+v", in)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"title": "Go",
			"body":  "Gophers",
			"usage": map[string]int{"inputTokens": 10, "outputTokens": 20},
			"cost":  map[string]float64{"total": 0.01},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", time.Second)
	res, err := c.GenerateContent(context.Background(), models.GenerationInput{Topic: "Go", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Title != "Go" || res.CharCount != 7 || res.Usage.OutputTokens != 20 || res.Cost.Total != 0.01 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"quota", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"quota exceeded"}`))
		}},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"title":"x","body":"  "}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, "", time.Second).GenerateContent(context.Background(), models.GenerationInput{Topic: "x"})
			if !IsGenerationError(err) {
				t.Fatalf("expected GenerationError, got %v", err)
			}
		})
	}
}

func TestHTTPClient_QuotaMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "", time.Second).GenerateContent(context.Background(), models.GenerationInput{Topic: "x"})
	want := "generation failed (status 429): quota exceeded"
	if err == nil || err.Error() != want {
		t.Errorf("expected %q, got %v", want, err)
	}
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	_, err := NewHTTPClient("", "", 0).GenerateContent(context.Background(), models.GenerationInput{Topic: "x"})
	if !IsGenerationError(err) {
		t.Errorf("expected GenerationError, got %v", err)
	}
}
