// Package binance adapts Binance spot klines to model.BarFeed. Gold is
// tracked through a tokenised pair such as PAXGUSDT.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"xau-signal/internal/marketdata"
	"xau-signal/internal/model"
)

// maxKlines is the per-request cap of the klines endpoint.
const maxKlines = 1000

// Feed fetches bars from Binance.
type Feed struct {
	client *gobinance.Client
}

// NewFeed creates a feed on the public market-data API. baseURL may be
// empty to use the production endpoint.
func NewFeed(baseURL string) *Feed {
	c := gobinance.NewClient("", "")
	if baseURL != "" {
		c.BaseURL = baseURL
	}
	return &Feed{client: c}
}

// Bars implements model.BarFeed.
func (f *Feed) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	limit, err := marketdata.BarCount(q.Interval, q.Lookback)
	if err != nil {
		return nil, fmt.Errorf("%w: binance %s: %w", model.ErrFetchFailure, q.Symbol, err)
	}
	if limit > maxKlines {
		limit = maxKlines
	}

	klines, err := f.client.NewKlinesService().
		Symbol(q.Symbol).
		Interval(q.Interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance %s: %w", model.ErrFetchFailure, q.Symbol, err)
	}

	bars := make([]model.Bar, 0, len(klines))
	for _, k := range klines {
		b, err := toBar(k)
		if err != nil {
			return nil, fmt.Errorf("%w: binance %s: %w", model.ErrFetchFailure, q.Symbol, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func toBar(k *gobinance.Kline) (model.Bar, error) {
	var (
		b   = model.Bar{TS: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	if b.Open, err = strconv.ParseFloat(k.Open, 64); err != nil {
		return b, fmt.Errorf("open %q: %w", k.Open, err)
	}
	if b.High, err = strconv.ParseFloat(k.High, 64); err != nil {
		return b, fmt.Errorf("high %q: %w", k.High, err)
	}
	if b.Low, err = strconv.ParseFloat(k.Low, 64); err != nil {
		return b, fmt.Errorf("low %q: %w", k.Low, err)
	}
	if b.Close, err = strconv.ParseFloat(k.Close, 64); err != nil {
		return b, fmt.Errorf("close %q: %w", k.Close, err)
	}
	return b, nil
}
