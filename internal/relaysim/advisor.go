package relaysim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/okian/blindfold/internal/domain/model"
	"github.com/okian/blindfold/internal/domain/risk"
)

// DefaultModel names the model recorded in attestations.
const DefaultModel = "blindfold-sim/deterministic-v1"

const systemPrompt = "You are a private portfolio advisor. Answer using the portfolio provided; " +
	"every response is signed for verification."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Advisor produces deterministic answers from the risk engine. The same
// request always yields the same body and answer, so hashes are stable.
type Advisor struct {
	model string
}

// NewAdvisor creates an advisor that reports model in its request bodies.
func NewAdvisor(model string) *Advisor {
	if model == "" {
		model = DefaultModel
	}
	return &Advisor{model: model}
}

// Model returns the model name.
func (a *Advisor) Model() string { return a.model }

// RequestBody renders the chat request the relay hashes as request_hash.
func (a *Advisor) RequestBody(r model.AdvisorRequest) ([]byte, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Portfolio:\n%s\n\nQuestion: %s", r.PortfolioData, r.Question)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	return body, nil
}

// Answer renders the advisory response for r.
func (a *Advisor) Answer(r model.AdvisorRequest) string {
	s := risk.Evaluate(r.PortfolioData)

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(r.Question))
	fmt.Fprintf(&b, "Risk score: %d/100 (%s)\n", s.Score, s.Tier)
	fmt.Fprintf(&b, "Concentration (HHI): %.0f\n", s.Concentration)
	fmt.Fprintf(&b, "Diversification: %s\n", s.Diversification)
	if s.TopHolding != "" {
		fmt.Fprintf(&b, "Largest holding: %s at %.1f%%\n", s.TopHolding, s.TopHoldingShare)
	}
	fmt.Fprintf(&b, "\n%s", s.Recommendation)
	return b.String()
}
