package signal

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/wealthdeck/trading-engine/types"
)

const (
	maxSuggestions = 8

	// Exit thresholds for held positions, in unrealized P/L percent
	takeProfitThreshold = 15.0
	stopLossThreshold   = -10.0

	// Fraction of equity used as the base notional for one new entry
	baseEntryFraction = 0.01
)

// Generator produces trade suggestions from the current portfolio and
// the user's stated preferences. Randomness is injected through a
// rand.Source and an explicit inclusion probability so tests can run
// deterministically.
type Generator struct {
	rng           *rand.Rand
	inclusionProb float64
	now           func() time.Time
}

// NewGenerator creates a generator backed by the given random source.
// inclusionProb is the probability that a qualifying catalog symbol is
// actually suggested; production uses around 0.3, tests use 0 or 1.
func NewGenerator(source rand.Source, inclusionProb float64) *Generator {
	return &Generator{
		rng:           rand.New(source),
		inclusionProb: inclusionProb,
		now:           time.Now,
	}
}

// riskMultiplier returns the sizing multiplier for a risk tolerance
func riskMultiplier(tolerance string) float64 {
	switch tolerance {
	case types.RiskConservative:
		return 0.5
	case types.RiskAggressive:
		return 1.5
	default:
		return 1.0
	}
}

// betaQualifies reports whether a symbol's beta fits the tolerance bucket
func betaQualifies(beta float64, tolerance string) bool {
	switch tolerance {
	case types.RiskConservative:
		return beta < 0.8
	case types.RiskAggressive:
		return beta > 1.0
	default:
		return beta >= 0.7 && beta <= 1.3
	}
}

// sectorQualifies reports whether a symbol matches the sector tilts.
// No tilts set means every sector qualifies.
func sectorQualifies(sector string, tilts []string) bool {
	if len(tilts) == 0 {
		return true
	}
	for _, tilt := range tilts {
		if tilt == sector {
			return true
		}
	}
	return false
}

// Generate produces up to 8 suggestions sorted by confidence
// descending. Entry candidates come from the catalog filtered by
// holdings, sector tilt and beta bucket; exit candidates come from
// held positions crossing the take-profit or stop-loss thresholds and
// bypass the catalog filters entirely.
func (g *Generator) Generate(positions []types.Position, account types.Account, prefs types.Preferences) []types.Suggestion {
	held := make(map[string]types.Position, len(positions))
	for _, pos := range positions {
		held[pos.Symbol] = pos
	}

	mult := riskMultiplier(prefs.RiskTolerance)
	suggestions := []types.Suggestion{}

	// Entry candidates from the catalog
	for _, entry := range catalog {
		if _, ok := held[entry.Symbol]; ok {
			continue
		}
		if !sectorQualifies(entry.Sector, prefs.SectorTilts) {
			continue
		}
		if !betaQualifies(entry.Beta, prefs.RiskTolerance) {
			continue
		}
		if g.rng.Float64() >= g.inclusionProb {
			continue
		}

		qty := math.Floor(account.Equity * baseEntryFraction * mult / entry.RefPrice)
		if qty < 1 {
			qty = 1
		}

		confidence := 65 + g.rng.Intn(30)
		suggestions = append(suggestions, types.Suggestion{
			Symbol:         entry.Symbol,
			Action:         types.ActionBuy,
			Confidence:     confidence,
			Quantity:       qty,
			EstimatedPrice: entry.RefPrice,
			Scores: types.Scores{
				Technical:   confidence,
				Fundamental: 50 + g.rng.Intn(40),
				Sentiment:   50 + g.rng.Intn(40),
				Risk:        int(entry.Beta * 50),
			},
			Reasons: []string{
				fmt.Sprintf("%s (%s) fits the %s risk profile with beta %.2f", entry.Symbol, entry.Industry, prefs.RiskTolerance, entry.Beta),
			},
			Timestamp: g.now(),
		})
	}

	// Exit candidates from held positions
	for _, pos := range positions {
		plPct := pos.UnrealizedPLPercent()
		switch {
		case plPct > takeProfitThreshold:
			suggestions = append(suggestions, g.exitSuggestion(pos, types.ActionTakeProfit,
				fmt.Sprintf("Unrealized gain of %.1f%% exceeds the take-profit threshold", plPct)))
		case plPct < stopLossThreshold:
			suggestions = append(suggestions, g.exitSuggestion(pos, types.ActionStopLoss,
				fmt.Sprintf("Unrealized loss of %.1f%% breaches the stop-loss threshold", plPct)))
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}

	log.Printf("Generated %d suggestions (%d positions held, tolerance %s)", len(suggestions), len(positions), prefs.RiskTolerance)
	return suggestions
}

// exitSuggestion builds a sell-half suggestion for a held position
func (g *Generator) exitSuggestion(pos types.Position, action, reason string) types.Suggestion {
	qty := math.Floor(pos.Quantity / 2)
	if qty < 1 {
		qty = pos.Quantity
	}

	confidence := 80 + g.rng.Intn(15)
	return types.Suggestion{
		Symbol:         pos.Symbol,
		Action:         action,
		Confidence:     confidence,
		Quantity:       qty,
		EstimatedPrice: pos.CurrentPrice,
		Scores: types.Scores{
			Technical: confidence,
			Risk:      90,
		},
		Reasons:   []string{reason},
		Timestamp: g.now(),
	}
}
