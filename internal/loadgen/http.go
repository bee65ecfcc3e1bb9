package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/blindfold/internal/adapters/http/api"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/pkg/logger"
)

const maxErrorBody = 4 << 10

// HTTPClient calls the ledger API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type submitBody struct {
	Question      string `json:"question"`
	PortfolioData string `json:"portfolio_data"`
	Deposit       string `json:"deposit"`
}

// SubmitResult is the body of a successful POST /requests.
type SubmitResult struct {
	RequestID uint64 `json:"request_id"`
	Replayed  bool   `json:"replayed"`
}

// Health calls GET /healthz.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil, nil)
}

// Submit posts s as its user and returns the assigned request id.
func (c *HTTPClient) Submit(ctx context.Context, s *Submission, deposit string) (SubmitResult, error) {
	var out SubmitResult
	headers := map[string]string{api.IdempotencyKeyHeader: s.IdempotencyKey}
	body := submitBody{Question: s.Question, PortfolioData: s.PortfolioData, Deposit: deposit}
	err := c.do(ctx, http.MethodPost, "/requests", s.User, headers, body, &out)
	return out, err
}

// Request fetches request id.
func (c *HTTPClient) Request(ctx context.Context, id uint64) (model.AdvisorRequest, error) {
	var out model.AdvisorRequest
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/requests/%d", id), "", nil, nil, &out)
	return out, err
}

// Verification fetches the verification stored for request id.
func (c *HTTPClient) Verification(ctx context.Context, id uint64) (model.Verification, error) {
	var out model.Verification
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/requests/%d/verification", id), "", nil, nil, &out)
	return out, err
}

// LedgerStats fetches the ledger counters.
func (c *HTTPClient) LedgerStats(ctx context.Context) (model.Stats, error) {
	var out model.Stats
	err := c.do(ctx, http.MethodGet, "/ledger/stats", "", nil, nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path, caller string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := marshalJSON(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(api.CallerHeader, caller)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnexpectedResponse, method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
	}
	return nil
}

// marshalJSON marshals a struct to JSON.
func marshalJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
