package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig configures the HTTP platform client.
type HTTPConfig struct {
	// BaseURL is the platform API root, e.g. "https://api.example.net".
	BaseURL string

	// Token is the bearer credential the client is bound to.
	Token string

	// Timeout bounds each request. Zero means 30 seconds.
	Timeout time.Duration
}

// HTTPClient is a Client backed by the platform's HTTP gateway.
//
// Execute posts to /v1/execute, Probe to /v1/probe, and ListScopes reads
// /v1/scopes. Error payloads are returned verbatim inside *OperationError
// so the diagnosis pipeline can normalize them.
type HTTPClient struct {
	config HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates an HTTP platform client.
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Execute runs an operation against the platform.
func (c *HTTPClient) Execute(ctx context.Context, op Operation) (*RawResult, error) {
	return c.post(ctx, "/v1/execute", op)
}

// Probe runs the non-mutating variant of an operation.
func (c *HTTPClient) Probe(ctx context.Context, op Operation) (*RawResult, error) {
	return c.post(ctx, "/v1/probe", op)
}

// ListScopes returns the scopes visible to the bound credential.
func (c *HTTPClient) ListScopes(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v1/scopes", nil)
	if err != nil {
		return nil, fmt.Errorf("creating scopes request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing scopes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("listing scopes: status %d", resp.StatusCode)
	}

	var body struct {
		Scopes []string `json:"scopes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding scopes response: %w", err)
	}
	return body.Scopes, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, op Operation) (*RawResult, error) {
	payload, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encoding operation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", op.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response for %s: %w", op.Name, err)
	}

	var body any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			// Non-JSON payloads are kept verbatim.
			body = string(raw)
		}
	}

	c.logger.Debug("platform call",
		zap.String("operation", op.Name),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, &OperationError{
			Operation: op.Name,
			Status:    resp.StatusCode,
			Payload:   body,
		}
	}

	return &RawResult{Status: resp.StatusCode, Body: body}, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}
