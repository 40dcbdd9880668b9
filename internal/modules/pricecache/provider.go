package pricecache

import (
	"context"
	"sort"
	"time"

	"github.com/theblackmoose/marketmoose/internal/clients/yahoo"
	"github.com/theblackmoose/marketmoose/internal/config"
)

// Provider is the narrow upstream capability the cache depends on. Calls may
// fail transiently; retrying is this package's job, not the provider's.
type Provider interface {
	FetchPrices(ctx context.Context, symbol, exchange string, r Range) ([]PricePoint, error)
	FetchQuote(ctx context.Context, symbol, exchange string) (Quote, error)
}

// YahooProvider adapts the Yahoo Finance client to the Provider interface,
// applying the exchange suffix mapping to build provider-facing symbols.
type YahooProvider struct {
	client *yahoo.Client
}

// NewYahooProvider creates the production provider
func NewYahooProvider(client *yahoo.Client) *YahooProvider {
	return &YahooProvider{client: client}
}

// FetchPrices fetches daily bars and maps them to ordered price points.
func (p *YahooProvider) FetchPrices(ctx context.Context, symbol, exchange string, r Range) ([]PricePoint, error) {
	bars, err := p.client.FetchPrices(ctx, config.ProviderSymbol(symbol, exchange), r.Start, r.End)
	if err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(bars))
	for _, bar := range bars {
		points = append(points, PricePoint{
			Date:     normalizeDay(bar.Date),
			Close:    bar.Close,
			AdjClose: bar.AdjClose,
		})
	}

	// The chart API returns bars in order, but the series contract is strict.
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return dedupeDays(points), nil
}

// FetchQuote fetches a live quote.
func (p *YahooProvider) FetchQuote(ctx context.Context, symbol, exchange string) (Quote, error) {
	q, err := p.client.FetchQuote(ctx, config.ProviderSymbol(symbol, exchange))
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Symbol:   symbol,
		Exchange: exchange,
		Price:    q.Price,
		Currency: q.Currency,
	}, nil
}

func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dedupeDays keeps the last point for each day so dates strictly increase.
func dedupeDays(points []PricePoint) []PricePoint {
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Date.Equal(p.Date) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}
