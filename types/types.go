package types

import "time"

// Constants for suggestion actions
const (
	ActionBuy        = "buy"
	ActionSell       = "sell"
	ActionTakeProfit = "take_profit"
	ActionStopLoss   = "stop_loss"
)

// Constants for order sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Constants for trade record status
const (
	StatusPending = "pending"
	StatusFilled  = "filled"
	StatusFailed  = "failed"
)

// Constants for risk tolerance levels
const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"
)

// Position represents a single holding in the portfolio
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
}

// MarketValue returns the current market value of the position
func (p Position) MarketValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// UnrealizedPL returns the absolute unrealized profit/loss
func (p Position) UnrealizedPL() float64 {
	return (p.CurrentPrice - p.AvgEntryPrice) * p.Quantity
}

// UnrealizedPLPercent returns the unrealized profit/loss as a percentage
// of the entry cost. Zero entry price yields zero.
func (p Position) UnrealizedPLPercent() float64 {
	if p.AvgEntryPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice * 100
}

// Account represents the account-level figures for the portfolio
type Account struct {
	Equity      float64 `json:"equity"`
	BuyingPower float64 `json:"buying_power"`
	LastEquity  float64 `json:"last_equity"` // Prior day closing equity
}

// DayPL returns the change in equity since the prior day close
func (a Account) DayPL() float64 {
	return a.Equity - a.LastEquity
}

// DayPLPercent returns the day change as a percentage of prior equity
func (a Account) DayPLPercent() float64 {
	if a.LastEquity <= 0 {
		return 0
	}
	return a.DayPL() / a.LastEquity * 100
}

// Scores holds the component scores backing a suggestion
type Scores struct {
	Technical   int `json:"technical"`
	Fundamental int `json:"fundamental"`
	Sentiment   int `json:"sentiment"`
	Risk        int `json:"risk"`
}

// Suggestion represents a candidate trade produced by the signal
// generator. Suggestions are ephemeral: consumed once by the engine.
type Suggestion struct {
	Symbol         string    `json:"symbol"`
	Action         string    `json:"action"` // buy, sell, take_profit, stop_loss
	Confidence     int       `json:"confidence"`
	Quantity       float64   `json:"quantity"`
	EstimatedPrice float64   `json:"estimated_price"`
	Scores         Scores    `json:"scores"`
	Reasons        []string  `json:"reasons"`
	Timestamp      time.Time `json:"timestamp"`
}

// Side maps the suggestion action onto an order side. Take-profit and
// stop-loss actions always close long exposure, so they sell.
func (s Suggestion) Side() string {
	if s.Action == ActionBuy {
		return SideBuy
	}
	return SideSell
}

// TradeRecord represents one attempted execution in the ledger.
// Symbol, side and quantity are fixed at creation; only status, fill
// price and error may change afterwards.
type TradeRecord struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	FillPrice  float64   `json:"fill_price"`
	Timestamp  time.Time `json:"timestamp"`
	Auto       bool      `json:"auto"`
	Confidence *int      `json:"confidence,omitempty"` // nil for manual trades
	Status     string    `json:"status"`               // pending, filled, failed
	Error      string    `json:"error,omitempty"`
}

// Preferences represents the read-only trading preferences supplied by
// the configuration UI
type Preferences struct {
	TradingStyle    string   `json:"trading_style"`
	RiskTolerance   string   `json:"risk_tolerance"` // conservative, moderate, aggressive
	SectorTilts     []string `json:"sector_tilts"`
	MaxPositionSize float64  `json:"max_position_size"`
}
