package api

import (
	"io"
	"net/http"
)

// RiskHandler serves portfolio risk scoring.
type RiskHandler struct {
	deps RiskDependencies
}

// NewRiskHandler creates a new risk handler.
func NewRiskHandler(deps RiskDependencies) *RiskHandler {
	return &RiskHandler{deps: deps}
}

// HandleScore handles POST /risk. The body is the portfolio payload itself;
// malformed payloads still score, as maximally concentrated.
func (h *RiskHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, ErrBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ScorePortfolio(r.Context(), string(body)))
}
