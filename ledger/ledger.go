package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/wealthdeck/trading-engine/types"
)

// DefaultCapacity is the bound on retained trade records
const DefaultCapacity = 50

// Ledger is the bounded, append-mostly execution history. Records are
// kept newest-first; the oldest is evicted when the bound is
// exceeded. Symbol, side and quantity are fixed at append time — only
// status, fill price and error may change afterwards, via Resolve.
type Ledger struct {
	records  []types.TradeRecord
	capacity int
	seq      int
	mutex    sync.RWMutex
}

// New creates a ledger with the given capacity; zero or negative
// falls back to DefaultCapacity
func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		records:  []types.TradeRecord{},
		capacity: capacity,
	}
}

// Append records a new trade attempt and returns it with its assigned
// ID. Records enter with whatever status the caller sets (normally
// pending, before the execution attempt).
func (l *Ledger) Append(record types.TradeRecord) types.TradeRecord {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.seq++
	record.ID = fmt.Sprintf("trade-%d", l.seq)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	// Prepend for reverse chronological order
	l.records = append([]types.TradeRecord{record}, l.records...)

	if len(l.records) > l.capacity {
		l.records = l.records[:l.capacity]
	}
	return record
}

// Resolve updates the outcome of a pending record. Only status, fill
// price and error are touched; core fields stay as appended. Returns
// the updated record and whether the ID was found (it may have been
// evicted).
func (l *Ledger) Resolve(id, status string, fillPrice float64, errMsg string) (types.TradeRecord, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for i := range l.records {
		if l.records[i].ID != id {
			continue
		}
		l.records[i].Status = status
		l.records[i].FillPrice = fillPrice
		l.records[i].Error = errMsg
		return l.records[i], true
	}
	return types.TradeRecord{}, false
}

// Records returns a copy of all retained records, newest first
func (l *Ledger) Records() []types.TradeRecord {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	records := make([]types.TradeRecord, len(l.records))
	copy(records, l.records)
	return records
}

// Len returns the number of retained records
func (l *Ledger) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.records)
}
