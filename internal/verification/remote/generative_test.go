package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) (*httptest.Server, *http.Request) {
	t.Helper()
	captured := &http.Request{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *r.Clone(context.Background())
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "Record: ")

		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestGenerativeVerify(t *testing.T) {
	item := map[string]any{"id": "lead_001", "company": "Acme Realty"}

	t.Run("confident reply is valid", func(t *testing.T) {
		srv, captured := completionServer(t, http.StatusOK, "0.92")
		g := NewGenerativeVerifier(GenerativeConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})

		verdict, err := g.Verify(context.Background(), item)
		require.NoError(t, err)

		assert.Equal(t, "generative", verdict.Verifier)
		assert.True(t, verdict.Valid)
		assert.InDelta(t, 0.92, verdict.Confidence, 1e-9)
		assert.Empty(t, verdict.Reason)
		assert.Equal(t, "Bearer k", captured.Header.Get("Authorization"))
		assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	})

	t.Run("reply below threshold is invalid with a reason", func(t *testing.T) {
		srv, _ := completionServer(t, http.StatusOK, "I would say 0.4 at most.")
		g := NewGenerativeVerifier(GenerativeConfig{APIKey: "k", BaseURL: srv.URL})

		verdict, err := g.Verify(context.Background(), item)
		require.NoError(t, err)

		assert.False(t, verdict.Valid)
		assert.Equal(t, "model confidence 0.40 below 0.70", verdict.Reason)
	})

	t.Run("unparseable reply is bad data", func(t *testing.T) {
		srv, _ := completionServer(t, http.StatusOK, "looks fine")
		g := NewGenerativeVerifier(GenerativeConfig{APIKey: "k", BaseURL: srv.URL})

		_, err := g.Verify(context.Background(), item)
		assert.Equal(t, CategoryBadData, CategoryOf(err))
	})

	t.Run("missing key fails before any request", func(t *testing.T) {
		g := NewGenerativeVerifier(GenerativeConfig{BaseURL: "http://127.0.0.1:1"})

		_, err := g.Verify(context.Background(), item)
		assert.Equal(t, CategoryAuthentication, CategoryOf(err))
	})

	t.Run("status codes map to categories", func(t *testing.T) {
		tests := []struct {
			status int
			want   Category
		}{
			{http.StatusUnauthorized, CategoryAuthentication},
			{http.StatusTooManyRequests, CategoryRateLimited},
			{http.StatusBadGateway, CategoryOutage},
			{http.StatusBadRequest, CategoryBadData},
		}
		for _, tt := range tests {
			srv, _ := completionServer(t, tt.status, "")
			g := NewGenerativeVerifier(GenerativeConfig{APIKey: "k", BaseURL: srv.URL})

			_, err := g.Verify(context.Background(), item)
			assert.Equal(t, tt.want, CategoryOf(err), "status %d", tt.status)
		}
	})

	t.Run("slow service times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		t.Cleanup(srv.Close)
		g := NewGenerativeVerifier(GenerativeConfig{APIKey: "k", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

		_, err := g.Verify(context.Background(), item)
		assert.Equal(t, CategoryTimeout, CategoryOf(err))
	})
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "0.85", want: 0.85},
		{in: " 1 ", want: 1},
		{in: "Confidence: .6", want: 0.6},
		{in: "7", want: 1},
		{in: "-0.2", want: 0},
		{in: "no idea", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseConfidence(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
