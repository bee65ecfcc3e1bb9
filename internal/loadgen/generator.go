package loadgen

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/blindfold/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	profileDivisor     = 4
)

// Constants for portfolio shapes.
const (
	caseConcentrated = 0
	caseBalanced     = 1
	caseDominant     = 2
	caseScattered    = 3

	balancedMin     = 4
	balancedRange   = 3
	scatteredMin    = 2
	scatteredRange  = 7
	balanceMin      = 10.0
	balanceRange    = 5000.0
	dominantBalance = 90000.0
)

var tokens = []string{"NEAR", "USDC", "USDT", "ETH", "BTC", "AURORA", "REF", "wNEAR", "SWEAT", "LINEAR"}

var questions = []string{
	"Should I rebalance this portfolio?",
	"How concentrated is my risk?",
	"What would you trim first?",
	"Is this allocation too aggressive for a five year horizon?",
	"Which holding adds the most risk?",
	"Am I diversified enough?",
}

type holding struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type portfolio struct {
	Holdings []holding `json:"holdings"`
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func getRandomInt(n int) int {
	if n <= 1 {
		return 0
	}
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}

// userName returns the account used for the i-th simulated user.
func userName(i int) string {
	return fmt.Sprintf("loadgen-%03d.testnet", i)
}

// generateSubmissions creates config.NumRequests submissions spread over config.Users accounts.
func generateSubmissions(ctx context.Context, config *Config, stats *Stats) ([]*Submission, error) {
	logger.Get().Info(ctx, "generating advisor requests",
		logger.Int("requests", config.NumRequests),
		logger.Int("users", config.Users))

	users := config.Users
	if users < 1 {
		users = 1
	}

	subs := make([]*Submission, config.NumRequests)
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		data, err := generatePortfolio()
		if err != nil {
			return nil, fmt.Errorf("failed to generate portfolio %d: %w", i, err)
		}
		subs[i] = &Submission{
			User:           userName(i % users),
			Question:       questions[getRandomInt(len(questions))],
			PortfolioData:  data,
			IdempotencyKey: uuid.NewString(),
		}
	}

	stats.RequestsGenerated = len(subs)
	logger.Get().Info(ctx, "generated requests successfully", logger.Int("count", len(subs)))
	return subs, nil
}

// generatePortfolio renders a random holdings document. The shape is picked so
// every risk tier shows up in a large enough run.
func generatePortfolio() (string, error) {
	var p portfolio
	pick := func(n int) []string {
		perm, _ := rand.Int(rand.Reader, big.NewInt(int64(len(tokens))))
		start := int(perm.Int64())
		out := make([]string, n)
		for i := range out {
			out[i] = tokens[(start+i)%len(tokens)]
		}
		return out
	}

	switch getRandomInt(profileDivisor) {
	case caseConcentrated:
		p.Holdings = []holding{{Token: pick(1)[0], Balance: formatBalance(balanceMin + getRandomFloat()*balanceRange)}}
	case caseBalanced:
		names := pick(balancedMin + getRandomInt(balancedRange))
		amount := formatBalance(balanceMin + getRandomFloat()*balanceRange)
		for _, name := range names {
			p.Holdings = append(p.Holdings, holding{Token: name, Balance: amount})
		}
	case caseDominant:
		names := pick(3)
		p.Holdings = append(p.Holdings, holding{Token: names[0], Balance: formatBalance(dominantBalance)})
		for _, name := range names[1:] {
			p.Holdings = append(p.Holdings, holding{Token: name, Balance: formatBalance(balanceMin + getRandomFloat()*balanceRange)})
		}
	case caseScattered:
		for _, name := range pick(scatteredMin + getRandomInt(scatteredRange)) {
			p.Holdings = append(p.Holdings, holding{Token: name, Balance: formatBalance(balanceMin + getRandomFloat()*balanceRange)})
		}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func formatBalance(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
