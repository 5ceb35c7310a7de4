package tracker

import (
	"context"

	"github.com/gammazero/deque"

	"github.com/finbeat/go-orderbook-tracker/domain"
	promclient "github.com/finbeat/go-orderbook-tracker/infrastructure/prometheus"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

// orderBookDiffRouter drains the shared diff channel and fans messages out
// to per-pair tracking queues. Diffs for pairs without a tracking queue are
// saved in a bounded buffer instead of being discarded; diffs already
// covered by the pair's snapshot are rejected as stale.
func (t *OrderBookTracker) orderBookDiffRouter(ctx context.Context) {
	log := t.log.WithComponent("diff-router")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.diffC:
			t.routeDiff(ctx, log, msg)
		}
	}
}

func (t *OrderBookTracker) routeDiff(ctx context.Context, log *logger.Entry, msg *domain.OrderBookMessage) {
	if msg == nil || msg.Type != domain.OrderBookMessageTypeDiff || msg.Diff == nil {
		log.Warn("dropping malformed diff message")
		return
	}

	pair := msg.TradingPair()
	queue, book, tracked := t.lookupPair(pair)

	switch {
	case !tracked:
		t.saveMessage(pair, msg)
		t.noteAndMaybeLog(log, outcomeSaved)
		promclient.DiffMessagesTotal.WithLabelValues(t.exchange, promclient.OutcomeSaved).Inc()

	case msg.UpdateID() <= book.SnapshotUID():
		// The book's snapshot is already newer than this diff.
		t.noteAndMaybeLog(log, outcomeRejected)
		promclient.DiffMessagesTotal.WithLabelValues(t.exchange, promclient.OutcomeRejected).Inc()

	default:
		select {
		case queue <- msg:
			t.noteAndMaybeLog(log, outcomeRouted)
			promclient.DiffMessagesTotal.WithLabelValues(t.exchange, promclient.OutcomeRouted).Inc()
		case <-ctx.Done():
		}
	}
}

// orderBookSnapshotRouter routes snapshot messages to the pair's tracking
// queue, initializing the pair on first sight.
func (t *OrderBookTracker) orderBookSnapshotRouter(ctx context.Context) {
	log := t.log.WithComponent("snapshot-router")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.snapshotC:
			if msg == nil || msg.Type != domain.OrderBookMessageTypeSnapshot || msg.Snapshot == nil {
				log.Warn("dropping malformed snapshot message")
				continue
			}

			pair := msg.TradingPair()
			t.initPair(ctx, pair)
			queue, _, _ := t.lookupPair(pair)

			select {
			case queue <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// tradeRouter forwards normalized trades to the consumer-facing channel.
// Trades never touch books, and the forward is lossy drop-oldest so a slow
// consumer cannot stall the pipeline.
func (t *OrderBookTracker) tradeRouter(ctx context.Context) {
	log := t.log.WithComponent("trade-router")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-t.tradeC:
			if msg == nil || msg.Type != domain.OrderBookMessageTypeTrade || msg.Trade == nil {
				log.Warn("dropping malformed trade message")
				continue
			}
			for {
				select {
				case t.tradeOut <- msg:
					promclient.TradeMessagesTotal.WithLabelValues(t.exchange).Inc()
				default:
					select {
					case <-t.tradeOut:
					default:
					}
					continue
				}
				break
			}
		}
	}
}

func (t *OrderBookTracker) noteAndMaybeLog(log *logger.Entry, outcome routeOutcome) {
	if window, rolled := t.stats.note(outcome); rolled {
		log.WithFields(logger.Fields{
			"routed":   window.routed,
			"rejected": window.rejected,
			"saved":    window.saved,
		}).Info("diff routing totals for the last minute")
	}
}

func (t *OrderBookTracker) saveMessage(tradingPair string, msg *domain.OrderBookMessage) {
	t.savedMu.Lock()
	defer t.savedMu.Unlock()

	dq, ok := t.saved[tradingPair]
	if !ok {
		dq = &deque.Deque[*domain.OrderBookMessage]{}
		t.saved[tradingPair] = dq
	}
	if dq.Len() >= t.conf.SavedQueueSize {
		dq.PopFront()
	}
	dq.PushBack(msg)
}

func (t *OrderBookTracker) popSaved(tradingPair string) (*domain.OrderBookMessage, bool) {
	t.savedMu.Lock()
	defer t.savedMu.Unlock()

	dq, ok := t.saved[tradingPair]
	if !ok || dq.Len() == 0 {
		return nil, false
	}
	return dq.PopFront(), true
}

func (t *OrderBookTracker) savedLen(tradingPair string) int {
	t.savedMu.Lock()
	defer t.savedMu.Unlock()

	dq, ok := t.saved[tradingPair]
	if !ok {
		return 0
	}
	return dq.Len()
}
