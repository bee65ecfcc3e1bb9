// Package relaysim is a reference relay for the ledger API. It polls pending
// requests, answers them deterministically, signs the request/response
// hashes and records the verification.
package relaysim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/okian/blindfold/internal/domain/model"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 4 << 10
)

// APIError is a non-2xx ledger API response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsConflict reports whether err is a 409 from the ledger API, e.g. a
// request another relay already took.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Verification is the body of POST /requests/{id}/verification.
type Verification struct {
	RequestHash    string `json:"request_hash"`
	ResponseHash   string `json:"response_hash"`
	Signature      string `json:"signature"`
	SigningAddress string `json:"signing_address"`
	SigningAlgo    string `json:"signing_algo"`
	TEEAttestation string `json:"tee_attestation"`
	ResponseText   string `json:"response_text"`
}

// Client calls the ledger HTTP API as one caller account.
type Client struct {
	baseURL string
	caller  string
	token   string
	http    *http.Client
}

// NewClient creates a client for baseURL acting as caller, authenticated by
// the bearer token. A nil hc uses a client with a 10s timeout.
func NewClient(baseURL, caller, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), caller: caller, token: token, http: hc}
}

// PendingRequests returns the pending requests in id order.
func (c *Client) PendingRequests(ctx context.Context) ([]model.AdvisorRequest, error) {
	var out struct {
		Items []model.AdvisorRequest `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/requests/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// MarkProcessing claims request id.
func (c *Client) MarkProcessing(ctx context.Context, id uint64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%d/processing", id), nil, nil)
}

// MarkFailed fails request id with reason.
func (c *Client) MarkFailed(ctx context.Context, id uint64, reason string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%d/failure", id), map[string]string{"reason": reason}, nil)
}

// SubmitVerification stores v for request id and returns the verification id.
func (c *Client) SubmitVerification(ctx context.Context, id uint64, v Verification) (uint64, error) {
	var out struct {
		VerificationID uint64 `json:"verification_id"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/requests/%d/verification", id), v, &out); err != nil {
		return 0, err
	}
	return out.VerificationID, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("X-Caller-ID", c.caller)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}
	return nil
}
