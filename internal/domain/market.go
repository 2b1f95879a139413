package domain

import (
	"fmt"
	"time"
)

// PriceHistory is the daily close history and live quote of one ticker
type PriceHistory struct {
	Ticker    string             `msgpack:"ticker" json:"ticker"`
	Closes    map[string]float64 `msgpack:"closes" json:"closes"` // YYYY-MM-DD -> close
	LiveQuote float64            `msgpack:"live_quote" json:"live_quote"`
	FetchedAt time.Time          `msgpack:"fetched_at" json:"fetched_at"`
}

// CloseOn returns the close for exactly date. No nearest-date fallback.
func (h *PriceHistory) CloseOn(date time.Time) (float64, error) {
	day := FormatDate(date)
	price, ok := h.Closes[day]
	if !ok {
		return 0, &OpError{
			Op:     "close on " + day,
			Kind:   KindPriceNotFound,
			Ticker: h.Ticker,
			Err:    ErrPriceNotFound,
		}
	}
	if !(price > 0) {
		return 0, &OpError{
			Op:     "close on " + day,
			Kind:   KindMalformedRecord,
			Ticker: h.Ticker,
			Err:    fmt.Errorf("non-positive close %v", price),
		}
	}
	return price, nil
}

// Quote returns the live quote, failing when it is missing
func (h *PriceHistory) Quote() (float64, error) {
	if !(h.LiveQuote > 0) {
		return 0, &OpError{Op: "live quote", Kind: KindQuoteUnavailable, Ticker: h.Ticker, Err: ErrQuoteUnavailable}
	}
	return h.LiveQuote, nil
}
