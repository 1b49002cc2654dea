package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/wealthdeck/trading-engine/execution"
	"github.com/wealthdeck/trading-engine/ledger"
	"github.com/wealthdeck/trading-engine/portfolio"
	"github.com/wealthdeck/trading-engine/risk"
	"github.com/wealthdeck/trading-engine/signal"
	"github.com/wealthdeck/trading-engine/types"
)

// CycleState represents where the engine is in its trade cycle
type CycleState string

const (
	StateIdle       CycleState = "idle"
	StateGenerating CycleState = "generating"
	StateAdmitting  CycleState = "admitting"
	StateExecuting  CycleState = "executing"
	StateSettled    CycleState = "settled"
)

// Config wires an engine together. Backend is required; Live is set
// only in live mode and enables wholesale portfolio resync after
// fills.
type Config struct {
	Portfolio *portfolio.Portfolio
	Ledger    *ledger.Ledger
	Backend   execution.Backend
	Live      *execution.Live
	Generator *signal.Generator
	Policy    risk.Policy
}

// Engine sequences signal generation, risk admission, execution and
// settlement against the shared portfolio and ledger. A single mutex
// serializes automatic cycles and manual trades: the risk counters
// are read-then-written state across iterations, so all execution is
// strictly sequential.
type Engine struct {
	portfolio *portfolio.Portfolio
	ledger    *ledger.Ledger
	backend   execution.Backend
	live      *execution.Live
	generator *signal.Generator

	policy     risk.Policy
	riskState  risk.State
	cycleState CycleState
	onTrade    func(types.TradeRecord)
	now        func() time.Time

	mu sync.Mutex
}

// New creates an engine. A nil backend is a wiring error, not a
// runtime condition, and is rejected here.
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("engine requires an execution backend")
	}
	if cfg.Portfolio == nil || cfg.Ledger == nil || cfg.Generator == nil {
		return nil, errors.New("engine requires portfolio, ledger and generator")
	}
	return &Engine{
		portfolio:  cfg.Portfolio,
		ledger:     cfg.Ledger,
		backend:    cfg.Backend,
		live:       cfg.Live,
		generator:  cfg.Generator,
		policy:     cfg.Policy,
		cycleState: StateIdle,
		now:        time.Now,
	}, nil
}

// OnTrade registers a callback invoked with every resolved trade
// record
func (e *Engine) OnTrade(callback func(types.TradeRecord)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = callback
}

// RunAnalysis generates suggestions from the current portfolio and
// the given preferences. Read-only with respect to portfolio, ledger
// and risk state.
func (e *Engine) RunAnalysis(prefs types.Preferences) []types.Suggestion {
	e.mu.Lock()
	e.cycleState = StateGenerating
	e.mu.Unlock()

	suggestions := e.generator.Generate(e.portfolio.Positions(), e.portfolio.Account(), prefs)

	e.mu.Lock()
	e.cycleState = StateIdle
	e.mu.Unlock()
	return suggestions
}

// RunAutoTradeCycle offers each suggestion to the risk governor and
// executes the admitted ones strictly sequentially, highest
// confidence first. Every attempted suggestion produces exactly one
// trade record, filled or failed; a failure is local to its
// suggestion. A circuit-breaker trip aborts the remainder of the
// cycle immediately. Attempted suggestions are consumed regardless of
// outcome and are not retried.
func (e *Engine) RunAutoTradeCycle(ctx context.Context, suggestions []types.Suggestion) []types.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.riskState = risk.Rollover(e.riskState, e.now())

	if !e.policy.Enabled {
		log.Printf("Auto-trading disabled by policy, skipping %d suggestions", len(suggestions))
		return nil
	}

	queue := make([]types.Suggestion, len(suggestions))
	copy(queue, suggestions)
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].Confidence > queue[j].Confidence
	})

	e.cycleState = StateAdmitting
	records := []types.TradeRecord{}

	for _, sugg := range queue {
		decision := risk.Admit(sugg, e.policy, e.riskState, e.portfolio.Account())
		if !decision.Admitted {
			log.Printf("Suggestion %s %s rejected: %s", sugg.Action, sugg.Symbol, decision.Reason)
			if decision.Reason == risk.ReasonCircuitBreaker {
				break
			}
			continue
		}

		// Sells clamp to the held quantity before ledgering, so the
		// record never overstates the applied fill and the brokerage
		// never sees an oversized order.
		qty := decision.Quantity
		if sugg.Side() == types.SideSell {
			pos, held := e.portfolio.Position(sugg.Symbol)
			if !held {
				log.Printf("Skipping %s %s: no position held", sugg.Action, sugg.Symbol)
				continue
			}
			if qty > pos.Quantity {
				log.Printf("Auto sell of %.4f %s exceeds held %.4f, clamping", qty, sugg.Symbol, pos.Quantity)
				qty = pos.Quantity
			}
		}

		e.cycleState = StateExecuting
		confidence := sugg.Confidence
		record := e.executeLocked(ctx, sugg.Symbol, sugg.Side(), qty, sugg.EstimatedPrice, true, &confidence)
		records = append(records, record)

		if record.Status == types.StatusFilled {
			e.riskState.TradesToday++
		}
		e.riskState = risk.CheckBreaker(e.riskState, e.policy, e.portfolio.Account().Equity)
		if e.riskState.CircuitBreakerTripped {
			log.Printf("Circuit breaker tripped mid-cycle, aborting remaining suggestions")
			break
		}
		e.cycleState = StateAdmitting
	}

	// Settled persists until the next operation so status readers can
	// observe that a cycle completed.
	e.cycleState = StateSettled
	log.Printf("Auto cycle settled: %d of %d suggestions attempted, tradesToday=%d", len(records), len(queue), e.riskState.TradesToday)
	return records
}

// SubmitManualTrade executes a user-specified trade immediately. It
// skips risk admission entirely — quota and confidence gates apply
// only to the automatic path — but the post-fill circuit-breaker
// check still runs, and the trade serializes against any in-flight
// automatic cycle.
func (e *Engine) SubmitManualTrade(ctx context.Context, symbol string, qty float64, side string) (types.TradeRecord, error) {
	if qty <= 0 {
		return types.TradeRecord{}, fmt.Errorf("quantity must be positive, got %.4f", qty)
	}
	if side != types.SideBuy && side != types.SideSell {
		return types.TradeRecord{}, fmt.Errorf("unknown side: %s", side)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.riskState = risk.Rollover(e.riskState, e.now())

	estimate, err := e.estimatePrice(symbol)
	if err != nil {
		return types.TradeRecord{}, err
	}

	if side == types.SideSell {
		pos, held := e.portfolio.Position(symbol)
		if !held {
			return types.TradeRecord{}, fmt.Errorf("no position held in %s", symbol)
		}
		if qty > pos.Quantity {
			log.Printf("Manual sell of %.4f %s exceeds held %.4f, clamping", qty, symbol, pos.Quantity)
			qty = pos.Quantity
		}
	}

	e.cycleState = StateExecuting
	record := e.executeLocked(ctx, symbol, side, qty, estimate, false, nil)
	e.riskState = risk.CheckBreaker(e.riskState, e.policy, e.portfolio.Account().Equity)
	e.cycleState = StateIdle
	return record, nil
}

// estimatePrice resolves a price estimate for a symbol: live quote in
// live mode, otherwise held position price or catalog reference.
// An unresolvable symbol is a validation error.
func (e *Engine) estimatePrice(symbol string) (float64, error) {
	if e.live != nil {
		return e.live.LatestPrice(symbol)
	}
	if pos, held := e.portfolio.Position(symbol); held {
		return pos.CurrentPrice, nil
	}
	for _, entry := range signal.Catalog() {
		if entry.Symbol == symbol {
			return entry.RefPrice, nil
		}
	}
	return 0, fmt.Errorf("unknown symbol: %s", symbol)
}

// executeLocked runs one order to completion: ledger a pending
// record, execute, resolve the outcome, then update portfolio state.
// Callers hold the engine mutex. The order runs to completion and is
// ledgered even if ctx is cancelled mid-flight, so portfolio state is
// never left partially mutated.
func (e *Engine) executeLocked(ctx context.Context, symbol, side string, qty, estimate float64, auto bool, confidence *int) types.TradeRecord {
	record := e.ledger.Append(types.TradeRecord{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Timestamp:  e.now(),
		Auto:       auto,
		Confidence: confidence,
		Status:     types.StatusPending,
	})

	fillPrice, err := e.backend.Execute(ctx, symbol, qty, side, estimate)
	if err != nil {
		log.Printf("Execution failed for %s %s: %v", side, symbol, err)
		resolved, _ := e.ledger.Resolve(record.ID, types.StatusFailed, 0, err.Error())
		e.notify(resolved)
		return resolved
	}

	if e.live != nil {
		// Live fills resync wholesale from the brokerage; the remote
		// account is the source of truth for positions and day P/L.
		positions, account, snapErr := e.live.Snapshot()
		if snapErr != nil {
			log.Printf("Warning: post-fill snapshot failed, portfolio may be stale: %v", snapErr)
		} else {
			e.portfolio.Replace(positions, account)
			e.riskState.DailyPL = account.DayPL()
		}
	} else {
		realized := e.portfolio.ApplyFill(symbol, side, qty, fillPrice)
		account := e.portfolio.Account()
		account.Equity += realized
		e.portfolio.SetAccount(account)
		e.riskState.DailyPL += realized
	}

	resolved, _ := e.ledger.Resolve(record.ID, types.StatusFilled, fillPrice, "")
	e.notify(resolved)
	return resolved
}

// notify invokes the trade callback if one is registered
func (e *Engine) notify(record types.TradeRecord) {
	if e.onTrade != nil {
		e.onTrade(record)
	}
}

// ResetCircuitBreaker clears a tripped breaker. This is the only way
// a trip clears; rollover does not touch it.
func (e *Engine) ResetCircuitBreaker() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.riskState.CircuitBreakerTripped {
		log.Printf("Circuit breaker reset")
	}
	e.riskState.CircuitBreakerTripped = false
}

// Positions returns the current portfolio positions
func (e *Engine) Positions() []types.Position {
	return e.portfolio.Positions()
}

// Account returns the current account snapshot
func (e *Engine) Account() types.Account {
	return e.portfolio.Account()
}

// Records returns the ledger contents, newest first
func (e *Engine) Records() []types.TradeRecord {
	return e.ledger.Records()
}

// Policy returns the active risk policy
func (e *Engine) Policy() risk.Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// SetPolicy replaces the risk policy. Counters and the breaker are
// untouched; limits apply from the next admission.
func (e *Engine) SetPolicy(policy risk.Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
}

// RiskState returns a copy of the current risk counters
func (e *Engine) RiskState() risk.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.riskState
}

// Status is a point-in-time snapshot of the engine for the dashboard
type Status struct {
	CycleState CycleState       `json:"cycle_state"`
	Policy     risk.Policy      `json:"policy"`
	RiskState  risk.State       `json:"risk_state"`
	Account    types.Account    `json:"account"`
	Positions  []types.Position `json:"positions"`
	LedgerSize int              `json:"ledger_size"`
}

// GetStatus returns the current engine status
func (e *Engine) GetStatus() Status {
	e.mu.Lock()
	cycleState := e.cycleState
	policy := e.policy
	riskState := e.riskState
	e.mu.Unlock()

	return Status{
		CycleState: cycleState,
		Policy:     policy,
		RiskState:  riskState,
		Account:    e.portfolio.Account(),
		Positions:  e.portfolio.Positions(),
		LedgerSize: e.ledger.Len(),
	}
}
