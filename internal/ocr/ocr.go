// Package ocr implements the OCR Adapter: a circuit-breaker-wrapped HTTP
// JSON client over an external table-extraction service. The adapter is
// stateless and idempotent for a given image.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"jax-trading-assistant/marketwire/internal/domain"
	"jax-trading-assistant/marketwire/internal/resilience"
)

// TableText is the OCR'd table: rows of cells, outer index row, inner index
// column.
type TableText [][]string

// Provider extracts table text from a cropped image.
type Provider interface {
	OCR(ctx context.Context, image []byte, hint string) (TableText, error)
}

type request struct {
	ImageBase64 string `json:"image_base64"`
	Hint        string `json:"hint"`
}

type response struct {
	Rows [][]string `json:"rows"`
}

// HTTPProvider is the production Provider: a single POST per call, 30s
// deadline, JSON in/out.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
}

// NewHTTPProvider builds an HTTPProvider against baseURL (e.g.
// "https://ocr.internal/v1/extract").
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: resilience.New(resilience.DefaultConfig("ocr-provider")),
	}
}

// OCR submits image for table extraction, with hint describing the expected
// table shape (e.g. "crypto-watchlist").
func (p *HTTPProvider) OCR(ctx context.Context, image []byte, hint string) (TableText, error) {
	reqBody, err := json.Marshal(request{
		ImageBase64: base64.StdEncoding.EncodeToString(image),
		Hint:        hint,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ocr request: %v", domain.ErrOcrError, err)
	}

	var result TableText
	err = p.breaker.ExecuteCtx(ctx, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("%w: build request: %v", domain.ErrOcrError, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: request failed: %v", domain.ErrOcrError, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("%w: status %d: %s", domain.ErrOcrError, resp.StatusCode, string(body))
		}

		var out response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: decode response: %v", domain.ErrOcrError, err)
		}
		result = TableText(out.Rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
