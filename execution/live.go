package execution

import (
	"context"
	"fmt"
	"log"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"github.com/wealthdeck/trading-engine/types"
)

// BrokerageClient is the slice of the Alpaca trading client the live
// backend needs. *alpaca.Client satisfies it; tests supply a stub.
type BrokerageClient interface {
	GetAccount() (*alpaca.Account, error)
	GetPositions() ([]alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

// QuoteClient is the slice of the market data client used for price
// estimates. *marketdata.Client satisfies it.
type QuoteClient interface {
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
}

// Live is the execution backend that places real orders through the
// brokerage. A remote failure maps to an error with no local
// mutation; the engine resynchronizes portfolio state wholesale from
// Snapshot after each successful fill.
type Live struct {
	client BrokerageClient
	quotes QuoteClient
}

// NewLive creates a live backend over the given brokerage clients
func NewLive(client BrokerageClient, quotes QuoteClient) *Live {
	return &Live{client: client, quotes: quotes}
}

// Execute places a market order and returns the average fill price.
// Orders settle synchronously on return per the brokerage contract.
func (l *Live) Execute(ctx context.Context, symbol string, qty float64, side string, estimate float64) (float64, error) {
	qtyDecimal := decimal.NewFromFloat(qty)

	orderRequest := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qtyDecimal,
		Side:        alpaca.Side(side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	// Set PositionIntent explicitly; omitting it can produce a 422
	// from the orders endpoint.
	if side == types.SideBuy {
		orderRequest.PositionIntent = alpaca.BuyToOpen
	} else {
		orderRequest.PositionIntent = alpaca.SellToClose
	}

	order, err := l.client.PlaceOrder(orderRequest)
	if err != nil {
		return 0, fmt.Errorf("failed to place %s order for %s: %w", side, symbol, err)
	}

	fillPrice := estimate
	if order.FilledAvgPrice != nil {
		fillPrice, _ = order.FilledAvgPrice.Float64()
	}
	log.Printf("Live fill: %s %s qty=%s at %.2f (order %s)", side, symbol, qtyDecimal.String(), fillPrice, order.ID)
	return fillPrice, nil
}

// LatestPrice returns a current price estimate for a symbol from the
// latest quote. Used when a manual trade arrives without one.
func (l *Live) LatestPrice(symbol string) (float64, error) {
	if l.quotes == nil {
		return 0, fmt.Errorf("no quote client configured")
	}
	quote, err := l.quotes.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	price := float64(quote.BidPrice)
	if price == 0 {
		price = float64(quote.AskPrice)
	}
	if price == 0 {
		return 0, fmt.Errorf("invalid price (0) for %s", symbol)
	}
	return price, nil
}

// Snapshot fetches the account and all positions from the brokerage
// and converts them to domain types. The engine replaces portfolio
// state wholesale with this snapshot after live fills, never
// incrementally, so local state cannot drift from the remote source
// of truth.
func (l *Live) Snapshot() ([]types.Position, types.Account, error) {
	account, err := l.client.GetAccount()
	if err != nil {
		return nil, types.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	positions, err := l.client.GetPositions()
	if err != nil {
		return nil, types.Account{}, fmt.Errorf("failed to get positions: %w", err)
	}

	equityVal, _ := account.Equity.Float64()
	lastEquityVal, _ := account.LastEquity.Float64()
	buyingPowerVal, _ := account.BuyingPower.Float64()

	acct := types.Account{
		Equity:      equityVal,
		BuyingPower: buyingPowerVal,
		LastEquity:  lastEquityVal,
	}

	converted := make([]types.Position, 0, len(positions))
	for _, pos := range positions {
		qty, _ := pos.Qty.Float64()
		avgPrice, _ := pos.AvgEntryPrice.Float64()
		marketValue := 0.0
		if pos.MarketValue != nil {
			marketValue, _ = pos.MarketValue.Float64()
		}

		currentPrice := avgPrice
		if qty > 0 && marketValue > 0 {
			currentPrice = marketValue / qty
		}

		converted = append(converted, types.Position{
			Symbol:        pos.Symbol,
			Quantity:      qty,
			AvgEntryPrice: avgPrice,
			CurrentPrice:  currentPrice,
		})
	}

	return converted, acct, nil
}
