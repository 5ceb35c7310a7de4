package kucoin

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Kucoin/kucoin-go-sdk"

	"github.com/finbeat/go-orderbook-tracker/domain"
	"github.com/finbeat/go-orderbook-tracker/logger"
)

// SyncAPI wraps the KuCoin REST SDK for the two calls the data source
// needs: websocket connection bootstrap and full order book snapshots.
type SyncAPI struct {
	service *kucoin.ApiService
	log     *logger.Entry
}

func NewSyncAPI() *SyncAPI {
	return &SyncAPI{
		service: kucoin.NewApiService(
			kucoin.ApiKeyOption(os.Getenv("KUCOIN_API_KEY")),
			kucoin.ApiSecretOption(os.Getenv("KUCOIN_SECRET_KEY")),
			kucoin.ApiPassPhraseOption(os.Getenv("KUCOIN_PASSPHRASE")),
		),
		log: logger.GetLogger().WithComponent("kucoin-sync-api"),
	}
}

func (a *SyncAPI) WsConnOpts() (*kucoin.WebSocketTokenModel, error) {
	resp, err := a.service.WebSocketPublicToken()
	if err != nil {
		return nil, &domain.TransientError{Op: "kucoin ws token", Err: err}
	}

	opts := &kucoin.WebSocketTokenModel{}
	if err := json.Unmarshal(resp.RawData, opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ws token response: %w", err)
	}
	return opts, nil
}

// OrderBookSnapshot returns the raw aggregated full book body; the message
// builder owns the decoding.
func (a *SyncAPI) OrderBookSnapshot(symbol *domain.MarketSymbol) (json.RawMessage, error) {
	resp, err := a.service.AggregatedFullOrderBookV3(strings.ToUpper(symbol.Join("-")))
	if err != nil {
		return nil, &domain.TransientError{Op: "kucoin full book fetch", Err: err}
	}
	return resp.RawData, nil
}
