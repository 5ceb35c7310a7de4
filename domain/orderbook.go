package domain

import (
	"sort"
	"sync"
)

type bookLevel struct {
	amount   float64
	updateID int64
}

// OrderBook is the locally maintained book for one trading pair. It is
// mutated by exactly one tracking goroutine; reads from consumer code go
// through the RWMutex.
type OrderBook struct {
	tradingPair string

	mu          sync.RWMutex
	bids        map[float64]bookLevel
	asks        map[float64]bookLevel
	snapshotUID int64
	lastDiffUID int64

	resetC chan int64
}

func NewOrderBook(tradingPair string) *OrderBook {
	return &OrderBook{
		tradingPair: tradingPair,
		bids:        make(map[float64]bookLevel),
		asks:        make(map[float64]bookLevel),
		resetC:      make(chan int64, 1),
	}
}

func (ob *OrderBook) TradingPair() string {
	return ob.tradingPair
}

// SnapshotUID is the update id of the last applied snapshot.
func (ob *OrderBook) SnapshotUID() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.snapshotUID
}

// LastDiffUID is the update id of the last applied diff.
func (ob *OrderBook) LastDiffUID() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastDiffUID
}

// ResetNotifications signals every full book replacement with the snapshot
// update id. The channel has capacity one and a pending notification is
// overwritten, so a slow consumer only observes the latest reset.
func (ob *OrderBook) ResetNotifications() <-chan int64 {
	return ob.resetC
}

// ApplySnapshot replaces both sides of the book and moves snapshotUID to
// updateID. Always succeeds. It also starts a fresh diff epoch: lastDiffUID
// is cleared so diffs beyond the snapshot can be replayed even if an earlier
// arrival already applied them to the pre-snapshot book.
func (ob *OrderBook) ApplySnapshot(bids []OrderBookRow, asks []OrderBookRow, updateID int64) {
	ob.mu.Lock()
	ob.bids = make(map[float64]bookLevel, len(bids))
	ob.asks = make(map[float64]bookLevel, len(asks))
	for _, row := range bids {
		ob.bids[row.Price] = bookLevel{amount: row.Amount, updateID: updateID}
	}
	for _, row := range asks {
		ob.asks[row.Price] = bookLevel{amount: row.Amount, updateID: updateID}
	}
	ob.snapshotUID = updateID
	ob.lastDiffUID = 0
	ob.mu.Unlock()

	ob.notifyReset(updateID)
}

func (ob *OrderBook) notifyReset(updateID int64) {
	for {
		select {
		case ob.resetC <- updateID:
			return
		default:
		}
		select {
		case <-ob.resetC:
		default:
		}
	}
}

// ApplyDiffs upserts the given levels, removing any level whose amount is
// zero, and moves lastDiffUID to updateID. A diff whose update id is not
// newer than the book state is a no-op. The router already filters stale
// diffs against snapshotUID, but the book defends on its own as well.
func (ob *OrderBook) ApplyDiffs(bids []OrderBookRow, asks []OrderBookRow, updateID int64) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if updateID <= ob.lastDiffUID || updateID <= ob.snapshotUID {
		return
	}

	applyRows(ob.bids, bids, updateID)
	applyRows(ob.asks, asks, updateID)
	ob.lastDiffUID = updateID
}

func applyRows(side map[float64]bookLevel, rows []OrderBookRow, updateID int64) {
	for _, row := range rows {
		if row.Amount == 0 {
			delete(side, row.Price)
			continue
		}
		side[row.Price] = bookLevel{amount: row.Amount, updateID: updateID}
	}
}

// CheckDiffContinuity reports whether a diff covering the sequence range
// starting at firstUpdateID can be applied without a gap. The first id of a
// contiguous diff is at most one past the id the book has already seen
// (lastDiffUID, or snapshotUID right after a reset). Books with no state yet
// and venues that report no range (firstUpdateID zero) are never gapped.
func (ob *OrderBook) CheckDiffContinuity(firstUpdateID int64) error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	last := ob.lastDiffUID
	if last == 0 {
		last = ob.snapshotUID
	}
	if last == 0 || firstUpdateID == 0 {
		return nil
	}
	if firstUpdateID > last+1 {
		return ErrUpdateOutOfSequence
	}
	return nil
}

// RestoreFromSnapshotAndDiffs resets the book from the snapshot message and
// replays every buffered diff with an update id beyond the snapshot, in
// ascending update id order. This folds in diffs that arrived before the
// snapshot existed.
func (ob *OrderBook) RestoreFromSnapshotAndDiffs(snapshot *OrderBookMessage, pastDiffs []*OrderBookMessage) error {
	if snapshot == nil || snapshot.Type != OrderBookMessageTypeSnapshot || snapshot.Snapshot == nil {
		return &ParseError{Venue: ob.tradingPair, Err: ErrNotASnapshot}
	}

	replay := make([]*OrderBookMessage, 0, len(pastDiffs))
	for _, diff := range pastDiffs {
		if diff == nil || diff.Type != OrderBookMessageTypeDiff || diff.Diff == nil {
			continue
		}
		if diff.UpdateID() > snapshot.UpdateID() {
			replay = append(replay, diff)
		}
	}
	sort.Slice(replay, func(i, j int) bool {
		return replay[i].UpdateID() < replay[j].UpdateID()
	})

	ob.ApplySnapshot(snapshot.Bids(), snapshot.Asks(), snapshot.UpdateID())
	for _, diff := range replay {
		ob.ApplyDiffs(diff.Bids(), diff.Asks(), diff.UpdateID())
	}
	return nil
}

// BidEntries returns the bid side in descending price order. Each row keeps
// the update id of the message that last touched its level.
func (ob *OrderBook) BidEntries() []OrderBookRow {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	rows := levelsToRows(ob.bids)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Price > rows[j].Price })
	return rows
}

// AskEntries returns the ask side in ascending price order.
func (ob *OrderBook) AskEntries() []OrderBookRow {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	rows := levelsToRows(ob.asks)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Price < rows[j].Price })
	return rows
}

func (ob *OrderBook) BestBid() (OrderBookRow, bool) {
	rows := ob.BidEntries()
	if len(rows) == 0 {
		return OrderBookRow{}, false
	}
	return rows[0], true
}

func (ob *OrderBook) BestAsk() (OrderBookRow, bool) {
	rows := ob.AskEntries()
	if len(rows) == 0 {
		return OrderBookRow{}, false
	}
	return rows[0], true
}

func levelsToRows(side map[float64]bookLevel) []OrderBookRow {
	rows := make([]OrderBookRow, 0, len(side))
	for price, level := range side {
		rows = append(rows, OrderBookRow{Price: price, Amount: level.amount, UpdateID: level.updateID})
	}
	return rows
}
