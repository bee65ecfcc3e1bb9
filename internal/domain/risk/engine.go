// Package risk computes a concentration-risk score for a portfolio payload.
//
// The payload is a JSON object with a "holdings" array; each holding carries
// a "balance" (decimal string or JSON number) and optionally a "token" or
// "symbol". Assets are not priced: balances are compared as-is.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Tier is the concentration band of a portfolio.
type Tier string

// Tiers.
const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

const (
	// MaxConcentration is the index of a single-asset portfolio.
	MaxConcentration = 10000.0

	lowThreshold      = 1500.0
	moderateThreshold = 2500.0

	// Bounds on a balance literal. Arithmetic across holdings rescales every
	// balance to the smallest exponent, so an unbounded exponent would make
	// one holding cost arbitrary time and memory.
	maxBalanceLen      = 64
	maxBalanceExponent = 36
	minBalanceExponent = -36
)

// Score is the result of evaluating a portfolio.
type Score struct {
	Score           uint8   `json:"score"`
	Concentration   float64 `json:"concentration"`
	Diversification string  `json:"diversification"`
	Recommendation  string  `json:"recommendation"`
	Tier            Tier    `json:"tier"`
	TotalHoldings   int     `json:"total_holdings"`
	CountedHoldings int     `json:"counted_holdings"`
	EffectiveAssets float64 `json:"effective_assets"`
	TopHolding      string  `json:"top_holding,omitempty"`
	TopHoldingShare float64 `json:"top_holding_share"`
}

type band struct {
	score          uint8
	label          string
	recommendation string
}

var bands = map[Tier]band{
	TierLow: {
		score:          30,
		label:          "Well diversified (%d assets)",
		recommendation: "Your portfolio shows healthy diversification. Maintain current allocation.",
	},
	TierModerate: {
		score:          55,
		label:          "Moderate concentration (%d assets)",
		recommendation: "Consider rebalancing top holdings to reduce concentration risk.",
	},
	TierHigh: {
		score:          82,
		label:          "High concentration (%d assets)",
		recommendation: "Urgent: Your portfolio is heavily concentrated. Diversify to reduce risk.",
	},
}

// TierFor maps a concentration index to its tier. The upper bound of each
// band is exclusive: 2500 is high.
func TierFor(hhi float64) Tier {
	switch {
	case hhi < lowThreshold:
		return TierLow
	case hhi < moderateThreshold:
		return TierModerate
	default:
		return TierHigh
	}
}

type holding struct {
	token   string
	balance decimal.Decimal
}

// Evaluate scores payload. It never fails: anything it cannot read is
// treated as maximal concentration.
func Evaluate(payload string) (s Score) {
	defer func() {
		if r := recover(); r != nil {
			s = finish(MaxConcentration, 0, 0, holding{}, decimal.Zero)
		}
	}()

	if !gjson.Valid(payload) {
		return finish(MaxConcentration, 0, 0, holding{}, decimal.Zero)
	}
	doc := gjson.Parse(payload)
	if !doc.IsObject() {
		return finish(MaxConcentration, 0, 0, holding{}, decimal.Zero)
	}
	list := doc.Get("holdings")
	if !list.IsArray() {
		return finish(MaxConcentration, 0, 0, holding{}, decimal.Zero)
	}

	items := list.Array()
	counted := make([]holding, 0, len(items))
	total := decimal.Zero
	var top holding
	for _, item := range items {
		bal, ok := parseBalance(item.Get("balance"))
		if !ok {
			continue
		}
		h := holding{token: tokenName(item), balance: bal}
		counted = append(counted, h)
		total = total.Add(bal)
		if len(counted) == 1 || bal.GreaterThan(top.balance) {
			top = h
		}
	}

	if !total.IsPositive() || len(counted) == 0 {
		return finish(MaxConcentration, len(items), len(counted), holding{}, decimal.Zero)
	}

	hhi := 0.0
	for _, h := range counted {
		pct := h.balance.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		hhi += pct * pct
	}
	return finish(hhi, len(items), len(counted), top, total)
}

func finish(hhi float64, total, counted int, top holding, sum decimal.Decimal) Score {
	tier := TierFor(hhi)
	b := bands[tier]
	s := Score{
		Score:           b.score,
		Concentration:   hhi,
		Diversification: fmt.Sprintf(b.label, counted),
		Recommendation:  b.recommendation,
		Tier:            tier,
		TotalHoldings:   total,
		CountedHoldings: counted,
		EffectiveAssets: MaxConcentration / hhi,
		TopHolding:      top.token,
	}
	if sum.IsPositive() {
		s.TopHoldingShare = top.balance.Div(sum).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}

// parseBalance accepts a decimal string or a JSON number. Negative values,
// anything decimal cannot represent (NaN, Inf, garbage) and literals outside
// the length and exponent bounds are rejected.
func parseBalance(v gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch v.Type {
	case gjson.String:
		raw = strings.TrimSpace(v.Str)
	case gjson.Number:
		raw = v.Raw
	default:
		return decimal.Decimal{}, false
	}
	if len(raw) > maxBalanceLen {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	if exp := d.Exponent(); exp > maxBalanceExponent || exp < minBalanceExponent {
		return decimal.Decimal{}, false
	}
	if f := d.InexactFloat64(); math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Decimal{}, false
	}
	return d, true
}

func tokenName(item gjson.Result) string {
	for _, key := range []string{"token", "symbol"} {
		if v := item.Get(key); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
