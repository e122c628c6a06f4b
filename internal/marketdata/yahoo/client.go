// Package yahoo reads bars and headlines from the public Yahoo Finance
// chart and search endpoints.
package yahoo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"xau-signal/internal/model"
)

const (
	defaultChartURL  = "https://query1.finance.yahoo.com/v8/finance/chart/"
	defaultSearchURL = "https://query2.finance.yahoo.com/v1/finance/search"
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) xau-signal/1.0"
)

// Client implements model.BarFeed and model.NewsFeed.
type Client struct {
	chartURL  string
	searchURL string
	http      *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURLs points the client at alternative endpoints (used by tests).
func WithBaseURLs(chartURL, searchURL string) Option {
	return func(c *Client) {
		c.chartURL = chartURL
		c.searchURL = searchURL
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a Yahoo client. Requests are additionally bounded by
// the caller's context.
func NewClient(opts ...Option) *Client {
	c := &Client{
		chartURL:  defaultChartURL,
		searchURL: defaultSearchURL,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		desc := gjson.GetBytes(body, "chart.error.description").String()
		return nil, fmt.Errorf("unexpected status %d %s", resp.StatusCode, desc)
	}
	return body, nil
}

// Bars fetches the chart for q and returns complete bars oldest first.
// Slots with a missing price (Yahoo reports null) are dropped.
func (c *Client) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	v := url.Values{}
	v.Set("interval", q.Interval)
	v.Set("range", q.Lookback)
	u := c.chartURL + url.PathEscape(q.Symbol) + "?" + v.Encode()

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo chart %s: %w", model.ErrFetchFailure, q.Symbol, err)
	}
	bars, err := parseChart(body)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo chart %s: %w", model.ErrFetchFailure, q.Symbol, err)
	}
	return bars, nil
}

func parseChart(body []byte) ([]model.Bar, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(body)
	if e := root.Get("chart.error"); e.Exists() && e.Type != gjson.Null {
		return nil, fmt.Errorf("%s: %s", e.Get("code").String(), e.Get("description").String())
	}

	result := root.Get("chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("empty chart result")
	}
	stamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()

	bars := make([]model.Bar, 0, len(stamps))
	for i, ts := range stamps {
		if i >= len(opens) || i >= len(highs) || i >= len(lows) || i >= len(closes) {
			break
		}
		if opens[i].Type != gjson.Number || highs[i].Type != gjson.Number ||
			lows[i].Type != gjson.Number || closes[i].Type != gjson.Number {
			continue
		}
		b := model.Bar{
			TS:    time.Unix(ts.Int(), 0).UTC(),
			Open:  opens[i].Float(),
			High:  highs[i].Float(),
			Low:   lows[i].Float(),
			Close: closes[i].Float(),
		}
		if !b.Valid() {
			continue
		}
		if n := len(bars); n > 0 && !b.TS.After(bars[n-1].TS) {
			// Yahoo occasionally repeats the live bar; keep the latest values.
			if b.TS.Equal(bars[n-1].TS) {
				bars[n-1] = b
			}
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// News returns up to limit headlines for symbol. Failures are returned to
// the caller, which treats news as optional.
func (c *Client) News(ctx context.Context, symbol string, limit int) ([]model.NewsItem, error) {
	v := url.Values{}
	v.Set("q", symbol)
	v.Set("quotesCount", "0")
	v.Set("newsCount", fmt.Sprint(limit))

	body, err := c.get(ctx, c.searchURL+"?"+v.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo news %s: %w", model.ErrFetchFailure, symbol, err)
	}
	return parseNews(body, limit), nil
}

func parseNews(body []byte, limit int) []model.NewsItem {
	items := make([]model.NewsItem, 0, limit)
	gjson.GetBytes(body, "news").ForEach(func(_, n gjson.Result) bool {
		title := n.Get("title").String()
		if title == "" {
			return true
		}
		items = append(items, model.NewsItem{
			Title:     title,
			Link:      n.Get("link").String(),
			Publisher: n.Get("publisher").String(),
			Summary:   n.Get("summary").String(),
		})
		return limit <= 0 || len(items) < limit
	})
	return items
}
