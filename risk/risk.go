package risk

import (
	"log"
	"math"
	"time"

	"github.com/wealthdeck/trading-engine/types"
)

// Rejection reasons returned by Admit
const (
	ReasonCircuitBreaker  = "circuit_breaker"
	ReasonQuotaExceeded   = "quota_exceeded"
	ReasonLowConfidence   = "low_confidence"
	ReasonPositionCapZero = "position_cap_zero"
)

// Policy holds the configured risk limits for automatic trading
type Policy struct {
	Enabled               bool    `json:"enabled"`
	ConfidenceThreshold   int     `json:"confidence_threshold"`
	MaxPositionPercent    float64 `json:"max_position_percent"`
	DailyLossLimitPercent float64 `json:"daily_loss_limit_percent"`
	MaxTradesPerDay       int     `json:"max_trades_per_day"`
}

// DefaultPolicy returns the limits applied until the dashboard
// supplies its own
func DefaultPolicy() Policy {
	return Policy{
		Enabled:               true,
		ConfidenceThreshold:   75,
		MaxPositionPercent:    5.0,
		DailyLossLimitPercent: 3.0,
		MaxTradesPerDay:       10,
	}
}

// State holds the mutable risk counters. It is a value threaded
// through every call rather than process-wide state, so the governor
// stays a pure function.
type State struct {
	TradesToday           int     `json:"trades_today"`
	DailyPL               float64 `json:"daily_pl"`
	CircuitBreakerTripped bool    `json:"circuit_breaker_tripped"`
	Day                   string  `json:"day"` // 2006-01-02 key of the counters
}

// Decision is the outcome of offering one suggestion to the governor
type Decision struct {
	Admitted bool
	Quantity float64 // Possibly shrunk to fit the position cap
	Reason   string  // Rejection reason when not admitted
}

// Admit evaluates a suggestion on the automatic path against the
// policy, the current counters and the account. Checks run strictly
// in order: breaker, quota, confidence, position cap. Pure function,
// no side effects. Manual trades never pass through here.
func Admit(sugg types.Suggestion, policy Policy, state State, account types.Account) Decision {
	if state.CircuitBreakerTripped {
		return Decision{Reason: ReasonCircuitBreaker}
	}
	if state.TradesToday >= policy.MaxTradesPerDay {
		return Decision{Reason: ReasonQuotaExceeded}
	}
	if sugg.Confidence < policy.ConfidenceThreshold {
		return Decision{Reason: ReasonLowConfidence}
	}

	qty := sugg.Quantity
	maxNotional := account.Equity * policy.MaxPositionPercent / 100
	if sugg.EstimatedPrice > 0 && qty*sugg.EstimatedPrice > maxNotional {
		qty = math.Floor(maxNotional / sugg.EstimatedPrice)
		if qty < 1 {
			return Decision{Reason: ReasonPositionCapZero}
		}
	}

	return Decision{Admitted: true, Quantity: qty}
}

// CheckBreaker recomputes the daily loss percentage and trips the
// circuit breaker when it falls below the configured limit. The trip
// is sticky: once set it survives until an explicit reset. Invoked
// after every fill, automatic or manual.
func CheckBreaker(state State, policy Policy, equity float64) State {
	if state.CircuitBreakerTripped || equity <= 0 {
		return state
	}

	lossPct := state.DailyPL / equity * 100
	if lossPct < -policy.DailyLossLimitPercent {
		log.Printf("Circuit breaker tripped: daily P/L %.2f (%.2f%% of equity, limit %.2f%%)",
			state.DailyPL, lossPct, policy.DailyLossLimitPercent)
		state.CircuitBreakerTripped = true
	}
	return state
}

// Rollover resets the daily counters when the calendar day has
// changed since they were last touched. There is no timer; callers
// invoke this at the top of every cycle and manual submission, so the
// reset happens on first use each day. The breaker trip is not a
// daily counter and survives rollover.
func Rollover(state State, now time.Time) State {
	day := now.Format("2006-01-02")
	if state.Day == day {
		return state
	}
	if state.Day != "" {
		log.Printf("Risk counters rolled over from %s to %s", state.Day, day)
	}
	state.Day = day
	state.TradesToday = 0
	state.DailyPL = 0
	return state
}
