package portfolio

import (
	"log"
	"sync"

	"github.com/wealthdeck/trading-engine/types"
)

// Portfolio holds the authoritative positions and account figures.
// All mutation goes through fill application or a wholesale refresh;
// reads return copies.
type Portfolio struct {
	positions map[string]types.Position
	account   types.Account
	mu        sync.RWMutex
}

// New creates an empty portfolio with the given starting account
func New(account types.Account) *Portfolio {
	return &Portfolio{
		positions: make(map[string]types.Position),
		account:   account,
	}
}

// Positions returns a copy of all current positions
func (p *Portfolio) Positions() []types.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()

	positions := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		positions = append(positions, pos)
	}
	return positions
}

// Position returns the position for a symbol and whether it exists
func (p *Portfolio) Position(symbol string) (types.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

// Account returns the current account snapshot
func (p *Portfolio) Account() types.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account
}

// SetAccount replaces the account snapshot
func (p *Portfolio) SetAccount(account types.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = account
}

// ApplyFill applies a filled order to the portfolio and returns the
// realized profit/loss of the fill (zero for buys). Buys create or
// extend a position with a weighted average entry price. Sells reduce
// the position, clamped to the held quantity so it never goes
// negative; a position sold to zero is removed.
func (p *Portfolio) ApplyFill(symbol, side string, qty, price float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, held := p.positions[symbol]

	if side == types.SideBuy {
		if !held {
			p.positions[symbol] = types.Position{
				Symbol:        symbol,
				Quantity:      qty,
				AvgEntryPrice: price,
				CurrentPrice:  price,
			}
			return 0
		}
		totalQty := pos.Quantity + qty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Quantity + price*qty) / totalQty
		pos.Quantity = totalQty
		pos.CurrentPrice = price
		p.positions[symbol] = pos
		return 0
	}

	// Sell path
	if !held {
		log.Printf("Warning: sell fill for %s with no position held, ignoring", symbol)
		return 0
	}
	if qty > pos.Quantity {
		log.Printf("Warning: sell quantity %.4f exceeds held %.4f for %s, clamping", qty, pos.Quantity, symbol)
		qty = pos.Quantity
	}

	realized := (price - pos.AvgEntryPrice) * qty
	pos.Quantity -= qty
	pos.CurrentPrice = price
	if pos.Quantity <= 0 {
		delete(p.positions, symbol)
	} else {
		p.positions[symbol] = pos
	}
	return realized
}

// UpdatePrice updates the current price for a held symbol
func (p *Portfolio) UpdatePrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pos, ok := p.positions[symbol]; ok {
		pos.CurrentPrice = price
		p.positions[symbol] = pos
	}
}

// Replace performs a wholesale refresh of positions and account from
// an external snapshot. Used after live fills so local state never
// drifts from the brokerage source of truth.
func (p *Portfolio) Replace(positions []types.Position, account types.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positions = make(map[string]types.Position, len(positions))
	for _, pos := range positions {
		p.positions[pos.Symbol] = pos
	}
	p.account = account
}
