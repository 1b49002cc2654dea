package execution

import "context"

// Backend is the single execution contract. One suggestion yields
// exactly one call and one outcome: a fill price or an error. A
// backend is bound once per session and never swapped mid-session.
//
// estimate is the caller's price estimate for the order; backends may
// use it as a fill basis (simulated) or ignore it (live). Zero means
// no estimate available.
type Backend interface {
	Execute(ctx context.Context, symbol string, qty float64, side string, estimate float64) (float64, error)
}
