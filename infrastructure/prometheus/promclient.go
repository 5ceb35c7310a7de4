package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finbeat/go-orderbook-tracker/logger"
)

var DiffMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_diff_messages_total",
		Help: "diff messages seen by the router, by routing outcome",
	},
	[]string{"exchange", "outcome"},
)

var TradeMessagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_trade_messages_total",
		Help: "trade messages forwarded to consumers",
	},
	[]string{"exchange"},
)

var SnapshotFetchesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_snapshot_fetches_total",
		Help: "REST snapshot fetches, by status",
	},
	[]string{"exchange", "status"},
)

var TrackedBooksGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "orderbook_tracked_books",
		Help: "order books currently tracked",
	},
	[]string{"exchange"},
)

const (
	OutcomeRouted        = "routed"
	OutcomeRejected      = "rejected"
	OutcomeSaved         = "saved"
	OutcomeOutOfSequence = "out_of_sequence"

	StatusOk    = "ok"
	StatusError = "error"
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(DiffMessagesTotal)
	reg.MustRegister(TradeMessagesTotal)
	reg.MustRegister(SnapshotFetchesTotal)
	reg.MustRegister(TrackedBooksGauge)
	reg.MustRegister(collectors.NewGoCollector())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promHandler)

	log := logger.GetLogger().WithComponent("promclient")
	log.WithFields(logger.Fields{"addr": addr}).Info("prometheus server listening")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("prometheus server stopped")
	}
}
