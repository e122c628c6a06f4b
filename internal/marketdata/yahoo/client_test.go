package yahoo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"xau-signal/internal/model"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"GC=F"},
"timestamp":[1700000000,1700000900,1700001800,1700002700],
"indicators":{"quote":[{
"open":[2000.0,2001.0,null,2003.0],
"high":[2002.0,2003.0,2004.0,2005.0],
"low":[1999.0,2000.0,2001.0,2002.0],
"close":[2001.0,2002.5,2003.0,2004.0]}]}}],"error":null}}`

func newTestServer(t *testing.T, chart, search http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	if chart != nil {
		mux.HandleFunc("/chart/", chart)
	}
	if search != nil {
		mux.HandleFunc("/search", search)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURLs(srv.URL+"/chart/", srv.URL+"/search"))
}

func TestBars(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(chartBody))
	}, nil)

	bars, err := c.Bars(context.Background(), model.BarQuery{Symbol: "GC=F", Interval: "15m", Lookback: "7d"})
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if gotPath != "/chart/GC=F" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.Contains(gotQuery, "interval=15m") || !strings.Contains(gotQuery, "range=7d") {
		t.Errorf("query = %q", gotQuery)
	}
	if len(bars) != 3 {
		t.Fatalf("len(bars) = %d, want 3 (null slot dropped)", len(bars))
	}
	if bars[0].TS.Unix() != 1700000000 || bars[0].Close != 2001.0 {
		t.Errorf("bars[0] = %+v", bars[0])
	}
	if bars[2].TS.Unix() != 1700002700 || bars[2].Open != 2003.0 {
		t.Errorf("bars[2] = %+v", bars[2])
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
	}
}

func TestBarsChartError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}, nil)

	_, err := c.Bars(context.Background(), model.BarQuery{Symbol: "XX", Interval: "15m", Lookback: "7d"})
	if !errors.Is(err, model.ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
	if !strings.Contains(err.Error(), "No data found") {
		t.Errorf("err = %v, want description", err)
	}
}

func TestBarsHTTPStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}, nil)

	_, err := c.Bars(context.Background(), model.BarQuery{Symbol: "GC=F", Interval: "15m", Lookback: "7d"})
	if !errors.Is(err, model.ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
}

func TestBarsCancelled(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chartBody))
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Bars(ctx, model.BarQuery{Symbol: "GC=F", Interval: "15m", Lookback: "7d"}); !errors.Is(err, model.ErrFetchFailure) {
		t.Fatalf("err = %v, want ErrFetchFailure", err)
	}
}

func TestNews(t *testing.T) {
	var gotQuery string
	c := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"news":[
{"title":"Gold rallies","link":"https://example.com/a","publisher":"Wire"},
{"title":"","link":"https://example.com/empty"},
{"title":"Fed holds","publisher":"Desk","summary":"Rates unchanged"},
{"title":"Third","link":"https://example.com/c"}]}`))
	})

	items, err := c.News(context.Background(), "GC=F", 2)
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if !strings.Contains(gotQuery, "newsCount=2") {
		t.Errorf("query = %q", gotQuery)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Summary != "" || items[0].Publisher != "Wire" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Title != "Fed holds" || items[1].Link != "" || items[1].Summary != "Rates unchanged" {
		t.Errorf("items[1] = %+v", items[1])
	}
}

func TestNewsEmpty(t *testing.T) {
	c := newTestServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"news":[]}`))
	})
	items, err := c.News(context.Background(), "GC=F", 5)
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("len(items) = %d", len(items))
	}
}
