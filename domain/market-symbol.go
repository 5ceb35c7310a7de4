package domain

import (
	"fmt"
	"strings"
)

// MarketSymbol is the canonical BASE-QUOTE trading pair identifier used
// across connectors, distinct from venue-native symbol strings.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == quote {
		return nil, fmt.Errorf("base and quote must be different")
	}
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	return &MarketSymbol{
		BaseAsset:  strings.ToUpper(base),
		QuoteAsset: strings.ToUpper(quote),
	}, nil
}

func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "-")
	if len(split) != 2 {
		return nil, fmt.Errorf("invalid trading pair %q, expected BASE-QUOTE", s)
	}
	return NewMarketSymbol(split[0], split[1])
}

// Join renders the venue-native form of the pair, e.g. Join("") for
// Binance's BTCUSDT or Join("-") for KuCoin's BTC-USDT.
func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

func (ms *MarketSymbol) String() string {
	return ms.Join("-")
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
