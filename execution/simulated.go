package execution

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"
)

const (
	// Jitter applied around a supplied price estimate
	simFillJitter = 0.002

	// Bounds of one random-walk step when no estimate is available
	simWalkStep = 0.01

	// Starting price for symbols the simulator has never seen
	simBasePrice = 100.0
)

// Simulated is the ledger-only execution backend. It synthesizes fill
// prices and always succeeds, with an artificial delay so ordering
// under test matches the live backend's request/response rhythm.
type Simulated struct {
	rng   *rand.Rand
	delay time.Duration
	last  map[string]float64
	mu    sync.Mutex
}

// NewSimulated creates a simulated backend. The random source is
// injected so tests get reproducible fills; delay may be zero.
func NewSimulated(source rand.Source, delay time.Duration) *Simulated {
	return &Simulated{
		rng:   rand.New(source),
		delay: delay,
		last:  make(map[string]float64),
	}
}

// Execute synthesizes a fill. With an estimate the fill is the
// estimate plus bounded jitter; without one the price follows a
// bounded pseudo-random walk from the last synthetic fill.
func (s *Simulated) Execute(ctx context.Context, symbol string, qty float64, side string, estimate float64) (float64, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			// An in-flight simulated order still settles; the delay is
			// cosmetic and must not leave the caller without a fill.
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var price float64
	if estimate > 0 {
		price = estimate * (1 + (s.rng.Float64()*2-1)*simFillJitter)
	} else {
		lastPrice, ok := s.last[symbol]
		if !ok {
			lastPrice = simBasePrice
		}
		price = lastPrice * (1 + (s.rng.Float64()*2-1)*simWalkStep)
	}
	s.last[symbol] = price

	log.Printf("Simulated fill: %s %s qty=%.4f at %.2f", side, symbol, qty, price)
	return price, nil
}
