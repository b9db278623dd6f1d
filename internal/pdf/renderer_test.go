package pdf

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellaris/backend-crm/internal/deal"
	"github.com/sellaris/backend-crm/internal/resilience"
)

func TestHTTPRendererRender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/render", r.URL.Path)
		var payload struct {
			Deal deal.Deal `json:"deal"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_ = json.NewEncoder(w).Encode(map[string]string{"ref": "renders/" + payload.Deal.QuoteNumber + ".pdf"})
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, time.Second)
	ref, err := r.Render(context.Background(), deal.Deal{ID: uuid.New(), QuoteNumber: "Q2304-0001"})
	require.NoError(t, err)
	assert.Equal(t, "renders/Q2304-0001.pdf", ref)
}

func TestHTTPRendererErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, time.Second)
	_, err := r.Render(context.Background(), deal.Deal{ID: uuid.New()})
	require.Error(t, err)
}

func TestHTTPRendererBreakerShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, time.Second)
	r.Breaker = resilience.NewBreaker("pdf-test", 2, time.Minute, zerolog.Nop())

	_, err := r.Render(context.Background(), deal.Deal{ID: uuid.New()})
	require.Error(t, err)
	_, err = r.Render(context.Background(), deal.Deal{ID: uuid.New()})
	require.Error(t, err)

	_, err = r.Render(context.Background(), deal.Deal{ID: uuid.New()})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	assert.Equal(t, 2, calls, "open breaker must not reach the render service")
}

func TestHTTPRendererEmptyRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ref": ""})
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL, time.Second)
	_, err := r.Render(context.Background(), deal.Deal{ID: uuid.New()})
	require.Error(t, err)
}
