package provider

import (
	"fmt"
	"sync"

	binanceapi "github.com/adshao/go-binance/v2"

	"github.com/finbeat/go-orderbook-tracker/config"
	"github.com/finbeat/go-orderbook-tracker/domain"
	"github.com/finbeat/go-orderbook-tracker/logger"
	"github.com/finbeat/go-orderbook-tracker/provider/binance"
	"github.com/finbeat/go-orderbook-tracker/provider/kucoin"
)

const (
	Binance = "binance"
	Kucoin  = "kucoin"
)

// ConnectionManager builds and owns the per-venue clients and data
// sources for every enabled exchange.
type ConnectionManager struct {
	log *logger.Entry

	BinanceStream *binance.StreamClient
	BinanceSource *binance.DataSource

	KucoinStream *kucoin.StreamClient
	KucoinSource *kucoin.DataSource
}

func NewConnectionManager(cfg *config.Config) (*ConnectionManager, error) {
	cm := &ConnectionManager{
		log: logger.GetLogger().WithComponent("connection-manager"),
	}

	if cfg.Source.Binance.Enabled {
		cm.BinanceStream = binance.NewStreamClient()
		source, err := binance.NewDataSource(cm.BinanceStream, binanceapi.NewClient("", ""), binance.DataSourceConfig{
			TradingPairs:     cfg.Source.Binance.TradingPairs,
			SnapshotInterval: cfg.Source.Binance.SnapshotInterval,
			SnapshotDepth:    cfg.Source.Binance.SnapshotDepth,
			RequestsPerSec:   cfg.Source.Binance.RequestsPerSec,
			Burst:            cfg.Source.Binance.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("binance data source: %w", err)
		}
		cm.BinanceSource = source
	}

	if cfg.Source.Kucoin.Enabled {
		syncAPI := kucoin.NewSyncAPI()
		cm.KucoinStream = kucoin.NewStreamClient(syncAPI)
		source, err := kucoin.NewDataSource(cm.KucoinStream, syncAPI, kucoin.DataSourceConfig{
			TradingPairs:     cfg.Source.Kucoin.TradingPairs,
			SnapshotInterval: cfg.Source.Kucoin.SnapshotInterval,
			RequestsPerSec:   cfg.Source.Kucoin.RequestsPerSec,
			Burst:            cfg.Source.Kucoin.Burst,
		})
		if err != nil {
			return nil, fmt.Errorf("kucoin data source: %w", err)
		}
		cm.KucoinSource = source
	}

	return cm, nil
}

// Init dials every enabled venue, concurrently.
func (cm *ConnectionManager) Init() error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if cm.BinanceStream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cm.BinanceStream.Connect(); err != nil {
				errs <- fmt.Errorf("binance: %w", err)
			}
		}()
	}
	if cm.KucoinStream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cm.KucoinStream.Connect(); err != nil {
				errs <- fmt.Errorf("kucoin: %w", err)
			}
		}()
	}
	wg.Wait()

	close(errs)
	for err := range errs {
		return err
	}
	return nil
}

// DataSources returns the data source for every enabled exchange, keyed by
// exchange name.
func (cm *ConnectionManager) DataSources() map[string]domain.APIOrderBookDataSource {
	sources := make(map[string]domain.APIOrderBookDataSource, 2)
	if cm.BinanceSource != nil {
		sources[Binance] = cm.BinanceSource
	}
	if cm.KucoinSource != nil {
		sources[Kucoin] = cm.KucoinSource
	}
	return sources
}

func (cm *ConnectionManager) Close() {
	if cm.BinanceStream != nil {
		if err := cm.BinanceStream.Close(); err != nil {
			cm.log.WithError(err).Warn("failed to close binance stream")
		}
	}
	if cm.KucoinStream != nil {
		if err := cm.KucoinStream.Close(); err != nil {
			cm.log.WithError(err).Warn("failed to close kucoin stream")
		}
	}
}
