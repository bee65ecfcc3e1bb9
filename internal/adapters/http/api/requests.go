package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okian/blindfold/internal/domain/ledger"
	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/types"
	"github.com/okian/blindfold/pkg/logger"
)

// RequestHandler serves the ledger endpoints.
type RequestHandler struct {
	deps         LedgerDependencies
	maxListLimit int
	credentials  []Credential
	logger       logger.Logger
}

// NewRequestHandler creates a new request handler. creds authenticate the
// privileged routes; with none, those routes reject every caller.
func NewRequestHandler(deps LedgerDependencies, maxListLimit int, creds []Credential, log logger.Logger) *RequestHandler {
	if maxListLimit < 1 {
		maxListLimit = defaultMaxListLimit
	}
	return &RequestHandler{deps: deps, maxListLimit: maxListLimit, credentials: creds, logger: log}
}

type initRequest struct {
	Owner string `json:"owner"`
}

type submitRequest struct {
	Question      string `json:"question"`
	PortfolioData string `json:"portfolio_data"`
	Deposit       string `json:"deposit"`
}

type submitResponse struct {
	RequestID uint64 `json:"request_id"`
	Replayed  bool   `json:"replayed"`
}

type failureRequest struct {
	Reason string `json:"reason"`
}

type verificationRequest struct {
	RequestHash    string `json:"request_hash"`
	ResponseHash   string `json:"response_hash"`
	Signature      string `json:"signature"`
	SigningAddress string `json:"signing_address"`
	SigningAlgo    string `json:"signing_algo"`
	TEEAttestation string `json:"tee_attestation"`
	ResponseText   string `json:"response_text"`
}

type verificationResponse struct {
	VerificationID uint64 `json:"verification_id"`
	RequestID      uint64 `json:"request_id"`
}

type statusResponse struct {
	RequestID uint64              `json:"request_id"`
	Status    model.RequestStatus `json:"status"`
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// decodeOptional is decode for endpoints whose body may be omitted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// fail writes err and logs server-side failures.
func (h *RequestHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := statusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			logger.String("request_id", RequestIDFrom(r.Context())),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, r, err)
}

// HandleInitialize handles POST /init. The caller must hold a credential;
// the owner defaults to the caller.
func (h *RequestHandler) HandleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r, h.credentials)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req initRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	owner := caller
	if strings.TrimSpace(req.Owner) != "" {
		parsed, err := types.ParseAccountID(req.Owner)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: %w", ErrBadRequest, err))
			return
		}
		owner = parsed
	}
	if err := h.deps.Initialize(r.Context(), owner); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": owner.String()})
}

// HandleSubmitRequest handles POST /requests.
func (h *RequestHandler) HandleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := ledger.RequestInput{
		Question:      req.Question,
		PortfolioData: req.PortfolioData,
		Deposit:       depositFrom(r, req.Deposit),
	}
	id, replayed, err := h.deps.SubmitRequest(r.Context(), caller, in, strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/requests/%d", id))
	writeJSON(w, status, submitResponse{RequestID: id, Replayed: replayed})
}

// HandleGetRequest handles GET /requests/{id}.
func (h *RequestHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.deps.Request(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// HandlePendingRequests handles GET /requests/pending.
func (h *RequestHandler) HandlePendingRequests(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := page(r, h.maxListLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.deps.PendingRequests(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.AdvisorRequest]{
		Items: paginate(items, offset, limit), Total: len(items), Offset: offset, Limit: limit,
	})
}

// HandleUserRequests handles GET /users/{user}/requests.
func (h *RequestHandler) HandleUserRequests(w http.ResponseWriter, r *http.Request) {
	user, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, limit, err := page(r, h.maxListLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.deps.UserRequests(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.AdvisorRequest]{
		Items: paginate(items, offset, limit), Total: len(items), Offset: offset, Limit: limit,
	})
}

// HandleUserVerifications handles GET /users/{user}/verifications.
func (h *RequestHandler) HandleUserVerifications(w http.ResponseWriter, r *http.Request) {
	user, err := userParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, limit, err := page(r, h.maxListLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.deps.UserVerifications(r.Context(), user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.Verification]{
		Items: paginate(items, offset, limit), Total: len(items), Offset: offset, Limit: limit,
	})
}

// HandleMarkProcessing handles POST /requests/{id}/processing.
func (h *RequestHandler) HandleMarkProcessing(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r, h.credentials)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.MarkProcessing(r.Context(), caller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{RequestID: id, Status: model.StatusProcessing})
}

// HandleMarkFailed handles POST /requests/{id}/failure.
func (h *RequestHandler) HandleMarkFailed(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r, h.credentials)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req failureRequest
	if err := decodeOptional(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.deps.MarkFailed(r.Context(), caller, id, req.Reason); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{RequestID: id, Status: model.StatusFailed})
}

// HandleSubmitVerification handles POST /requests/{id}/verification.
func (h *RequestHandler) HandleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	caller, err := authenticate(r, h.credentials)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req verificationRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	vid, err := h.deps.SubmitVerification(r.Context(), caller, ledger.VerificationInput{
		RequestID:      id,
		RequestHash:    req.RequestHash,
		ResponseHash:   req.ResponseHash,
		Signature:      req.Signature,
		SigningAddress: req.SigningAddress,
		SigningAlgo:    req.SigningAlgo,
		TEEAttestation: req.TEEAttestation,
		ResponseText:   req.ResponseText,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/verifications/%d", vid))
	writeJSON(w, http.StatusCreated, verificationResponse{VerificationID: vid, RequestID: id})
}

// HandleVerificationByRequest handles GET /requests/{id}/verification.
func (h *RequestHandler) HandleVerificationByRequest(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.deps.VerificationByRequest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleGetVerification handles GET /verifications/{id}.
func (h *RequestHandler) HandleGetVerification(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	v, err := h.deps.Verification(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleLedgerStats handles GET /ledger/stats.
func (h *RequestHandler) HandleLedgerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.LedgerStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
