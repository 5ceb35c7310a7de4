package tracker

import (
	"context"
	"time"

	"github.com/gammazero/deque"

	"github.com/finbeat/go-orderbook-tracker/domain"
	promclient "github.com/finbeat/go-orderbook-tracker/infrastructure/prometheus"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

// trackSingleBook is the reconciliation loop for one trading pair. It is
// the only writer of its book. Diffs are checked for sequence continuity and
// applied, then remembered in a bounded past-diffs window; a snapshot resets
// the book and replays every still-relevant buffered diff on top. A gapped
// diff is dropped and counted; once the limit is reached the loop asks the
// data source for a fresh snapshot. Transient errors back the loop off
// without killing it; only cancellation terminates it.
func (t *OrderBookTracker) trackSingleBook(ctx context.Context, tradingPair string, book *domain.OrderBook, queue <-chan *domain.OrderBookMessage) {
	log := t.log.WithFields(logger.Fields{"trading_pair": tradingPair})
	pastDiffs := &deque.Deque[*domain.OrderBookMessage]{}
	outOfSequence := 0

	for {
		msg, ok := t.nextMessage(ctx, tradingPair, queue)
		if !ok {
			return
		}

		switch msg.Type {
		case domain.OrderBookMessageTypeDiff:
			if msg.Diff == nil {
				log.Error("diff message without payload")
				if !t.sleepBackoff(ctx) {
					return
				}
				continue
			}
			if err := book.CheckDiffContinuity(msg.Diff.FirstUpdateID); err != nil {
				outOfSequence++
				log.WithError(err).WithFields(logger.Fields{
					"first_update_id": msg.Diff.FirstUpdateID,
					"update_id":       msg.UpdateID(),
					"count":           outOfSequence,
				}).Error("dropping out of sequence diff")
				promclient.DiffMessagesTotal.WithLabelValues(t.exchange, promclient.OutcomeOutOfSequence).Inc()

				if outOfSequence >= t.conf.OutOfSequenceLimit {
					t.requestResync(log, tradingPair)
					outOfSequence = 0
				}
				continue
			}
			book.ApplyDiffs(msg.Bids(), msg.Asks(), msg.UpdateID())
			if pastDiffs.Len() >= t.conf.PastDiffWindow {
				pastDiffs.PopFront()
			}
			pastDiffs.PushBack(msg)

		case domain.OrderBookMessageTypeSnapshot:
			if err := book.RestoreFromSnapshotAndDiffs(msg, diffWindow(pastDiffs)); err != nil {
				log.WithError(err).Error("failed to restore order book from snapshot")
				if !t.sleepBackoff(ctx) {
					return
				}
			} else {
				outOfSequence = 0
			}

		case domain.OrderBookMessageTypeTrade:
			// Trades are routed elsewhere and never mutate a book.

		default:
			log.WithFields(logger.Fields{"type": int(msg.Type)}).Error("unknown order book message type")
			if !t.sleepBackoff(ctx) {
				return
			}
		}
	}
}

// nextMessage drains the pair's saved buffer before pulling live messages,
// preserving saved-before-live FIFO order.
func (t *OrderBookTracker) nextMessage(ctx context.Context, tradingPair string, queue <-chan *domain.OrderBookMessage) (*domain.OrderBookMessage, bool) {
	if msg, ok := t.popSaved(tradingPair); ok {
		return msg, true
	}

	select {
	case <-ctx.Done():
		return nil, false
	case msg := <-queue:
		return msg, true
	}
}

// requestResync asks the data source for an out-of-cycle snapshot. Sources
// without that capability fall back to the regular polling interval.
func (t *OrderBookTracker) requestResync(log *logger.Entry, tradingPair string) {
	requester, ok := t.dataSource.(domain.SnapshotRequester)
	if !ok {
		log.Warn("data source cannot resync on demand, waiting for the next snapshot cycle")
		return
	}
	log.Info("requesting fresh snapshot after out of sequence diffs")
	requester.RequestSnapshot(tradingPair)
}

func (t *OrderBookTracker) sleepBackoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(t.conf.ErrorBackoff):
		return true
	}
}

func diffWindow(dq *deque.Deque[*domain.OrderBookMessage]) []*domain.OrderBookMessage {
	window := make([]*domain.OrderBookMessage, 0, dq.Len())
	for i := 0; i < dq.Len(); i++ {
		window = append(window, dq.At(i))
	}
	return window
}
