package execution

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/wealthdeck/trading-engine/types"
)

func TestSimulated_FillNearEstimate(t *testing.T) {
	backend := NewSimulated(rand.NewSource(1), 0)

	price, err := backend.Execute(context.Background(), "AAPL", 5, types.SideBuy, 180.00)
	if err != nil {
		t.Fatalf("Execute() error = %v, simulated backend must always succeed", err)
	}

	if math.Abs(price-180.00)/180.00 > simFillJitter {
		t.Errorf("fill price %.4f deviates more than %.2f%% from the estimate", price, simFillJitter*100)
	}
}

func TestSimulated_WalkWithoutEstimateIsBounded(t *testing.T) {
	backend := NewSimulated(rand.NewSource(2), 0)

	last := simBasePrice
	for i := 0; i < 50; i++ {
		price, err := backend.Execute(context.Background(), "AAPL", 1, types.SideBuy, 0)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if math.Abs(price-last)/last > simWalkStep+1e-9 {
			t.Fatalf("walk step from %.4f to %.4f exceeds the %.2f%% bound", last, price, simWalkStep*100)
		}
		last = price
	}
}

func TestSimulated_DeterministicUnderFixedSeed(t *testing.T) {
	first := NewSimulated(rand.NewSource(42), 0)
	second := NewSimulated(rand.NewSource(42), 0)

	for i := 0; i < 10; i++ {
		a, _ := first.Execute(context.Background(), "MSFT", 1, types.SideBuy, 0)
		b, _ := second.Execute(context.Background(), "MSFT", 1, types.SideBuy, 0)
		if a != b {
			t.Fatalf("fills diverge at step %d: %.6f vs %.6f", i, a, b)
		}
	}
}

func TestSimulated_SettlesThroughCancelledContext(t *testing.T) {
	backend := NewSimulated(rand.NewSource(3), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// An in-flight order runs to completion even when the enclosing
	// session is torn down.
	price, err := backend.Execute(ctx, "AAPL", 1, types.SideBuy, 100.00)
	if err != nil {
		t.Fatalf("Execute() error = %v, want fill despite cancelled context", err)
	}
	if price <= 0 {
		t.Errorf("fill price = %.4f, want positive", price)
	}
}
