// Package pdf renders quote documents through an external rendering service.
package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sellaris/backend-crm/internal/deal"
	"github.com/sellaris/backend-crm/internal/resilience"
)

// Renderer produces a stored document reference for a deal.
type Renderer interface {
	Render(ctx context.Context, d deal.Deal) (ref string, err error)
}

// HTTPRenderer posts the quote payload to a rendering service and returns the
// reference it replies with.
type HTTPRenderer struct {
	BaseURL string
	Client  *http.Client

	// Breaker, when set, short-circuits calls while the render service is
	// known to be down. Failed renders are retried by the queue anyway.
	Breaker *resilience.Breaker
}

// NewHTTPRenderer constructs a renderer client with a request timeout. Render
// calls are traced through the shared OTel transport.
func NewHTTPRenderer(baseURL string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRenderer{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type renderResponse struct {
	Ref string `json:"ref"`
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, d deal.Deal) (string, error) {
	if r.Breaker != nil && !r.Breaker.Allow() {
		return "", resilience.ErrOpenCircuit
	}
	ref, err := r.render(ctx, d)
	if r.Breaker != nil {
		r.Breaker.Report(err == nil)
	}
	return ref, err
}

func (r *HTTPRenderer) render(ctx context.Context, d deal.Deal) (string, error) {
	payload, err := json.Marshal(map[string]any{"deal": d})
	if err != nil {
		return "", fmt.Errorf("pdf: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("pdf: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pdf: render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pdf: renderer returned %d: %s", resp.StatusCode, body)
	}
	var out renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("pdf: decode response: %w", err)
	}
	if out.Ref == "" {
		return "", fmt.Errorf("pdf: renderer returned empty reference")
	}
	return out.Ref, nil
}

// StaticRenderer returns a deterministic reference without calling out. It
// backs local development and tests.
type StaticRenderer struct{}

// Render implements Renderer.
func (StaticRenderer) Render(_ context.Context, d deal.Deal) (string, error) {
	return "renders/" + d.ID.String() + ".pdf", nil
}
