// Package fx resolves currency conversion rates into the display currency
// through the price cache's live quote path.
package fx

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/theblackmoose/marketmoose/internal/modules/pricecache"
)

// QuoteGetter is the slice of the price cache the FX service needs.
type QuoteGetter interface {
	GetQuote(ctx context.Context, symbol, exchange string, forceRefresh bool) (*pricecache.Quote, error)
}

// Service resolves conversion rates from arbitrary currencies into one
// display currency.
type Service struct {
	quotes  QuoteGetter
	display string
	log     zerolog.Logger
}

// NewService creates a new FX service
func NewService(quotes QuoteGetter, displayCurrency string, log zerolog.Logger) *Service {
	return &Service{
		quotes:  quotes,
		display: displayCurrency,
		log:     log.With().Str("service", "fx").Logger(),
	}
}

// Display returns the configured display currency.
func (s *Service) Display() string {
	return s.display
}

// PairSymbol composes the provider ticker for a currency pair, e.g. EURUSD=X.
func PairSymbol(from, to string) string {
	return fmt.Sprintf("%s%s=X", from, to)
}

// Rates returns the conversion rate into the display currency for each given
// currency. The display currency itself maps to 1.0, and a currency whose
// quote cannot be fetched falls back to 1.0 with a warning so one broken pair
// never blocks a whole report.
func (s *Service) Rates(ctx context.Context, currencies []string) map[string]float64 {
	rates := make(map[string]float64, len(currencies))
	for _, cur := range currencies {
		if cur == "" || cur == s.display {
			rates[cur] = 1.0
			continue
		}
		if _, ok := rates[cur]; ok {
			continue
		}

		quote, err := s.quotes.GetQuote(ctx, PairSymbol(cur, s.display), "", false)
		if err != nil || quote.Price <= 0 {
			s.log.Warn().Err(err).
				Str("currency", cur).
				Str("display", s.display).
				Msg("FX rate unavailable, converting at 1.0")
			rates[cur] = 1.0
			continue
		}
		rates[cur] = quote.Price
	}
	return rates
}
