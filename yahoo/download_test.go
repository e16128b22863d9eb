/*
Copyright 2022

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penny-vault/import-crypto/series"
)

const btcDaily = `{"chart":{"result":[{
  "meta":{"symbol":"BTC-USD","currency":"USD","exchangeTimezoneName":"UTC","gmtoffset":0},
  "timestamp":[1704067200,1704153600,1704240000],
  "indicators":{
    "quote":[{"open":[42280.2,44187.1,null],"high":[44175.4,45899.7,null],"low":[42214.9,44176.9,null],
              "close":[44167.3,44957.9,null],"volume":[18426978443,39335274536,null]}],
    "adjclose":[{"adjclose":[44167.3,44957.9,null]}]}
}],"error":null}}`

const nyHourly = `{"chart":{"result":[{
  "meta":{"symbol":"ETH-USD","exchangeTimezoneName":"America/New_York","gmtoffset":-18000},
  "timestamp":[1704117600],
  "indicators":{"quote":[{"open":[2280.0],"high":[2290.5],"low":[2275.0],"close":[2288.0],"volume":[1200]}]}
}],"error":null}}`

func testServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDaily(t *testing.T) {
	var gotPath, gotRange, gotInterval string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(btcDaily))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())
	key := series.Key{Symbol: "BTC-USD", Period: series.Period1y, Interval: series.Interval1d}
	s, err := c.Fetch(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/BTC-USD", gotPath)
	assert.Equal(t, "1y", gotRange)
	assert.Equal(t, "1d", gotInterval)

	assert.Equal(t, key, s.Key)
	require.Len(t, s.Bars, 2, "null bars are dropped")
	b := s.Bars[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, 42280.2, b.Open)
	assert.Equal(t, 44167.3, b.Close)
	assert.Equal(t, int64(18426978443), b.Volume)
	require.NotNil(t, b.AdjClose)
	assert.Equal(t, 44167.3, *b.AdjClose)
}

func TestFetchStripsExchangeTimezone(t *testing.T) {
	srv := testServer(t, http.StatusOK, nyHourly, nil)
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	s, err := c.Fetch(context.Background(), series.Key{Symbol: "ETH-USD", Period: series.Period3mo, Interval: series.Interval1h})
	require.NoError(t, err)
	require.Len(t, s.Bars, 1)
	// 2024-01-01 14:00 UTC is 09:00 in New York
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), s.Bars[0].Date)
	assert.Nil(t, s.Bars[0].AdjClose)
}

func TestFetchDropsBarsWithoutOpen(t *testing.T) {
	body := `{"chart":{"result":[{
  "meta":{"symbol":"SOL-USD","exchangeTimezoneName":"UTC","gmtoffset":0},
  "timestamp":[1704067200,1704153600,1704240000],
  "indicators":{"quote":[{"open":[null,101.5,102.0],"high":[100.5,103.0,104.0],"low":[99.0,100.0,101.0],
                          "close":[100.0,102.5,null],"volume":[10,20,30]}]}
}],"error":null}}`
	srv := testServer(t, http.StatusOK, body, nil)
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	s, err := c.Fetch(context.Background(), series.Key{Symbol: "SOL-USD", Period: series.Period1y, Interval: series.Interval1d})
	require.NoError(t, err)
	require.Len(t, s.Bars, 1, "bars missing open or close are gaps")
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Bars[0].Date)
	assert.Equal(t, 101.5, s.Bars[0].Open)
	assert.Equal(t, 102.5, s.Bars[0].Close)
}

func TestFetchEmptyResult(t *testing.T) {
	body := `{"chart":{"result":[{"meta":{"symbol":"FAKE-USD"},"indicators":{"quote":[{}]}}],"error":null}}`
	srv := testServer(t, http.StatusOK, body, nil)
	c := New(Config{BaseURL: srv.URL}, zerolog.Nop())

	s, err := c.Fetch(context.Background(), series.Key{Symbol: "FAKE-USD", Period: series.Period1y, Interval: series.Interval1d})
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestFetchProviderErrors(t *testing.T) {
	key := series.Key{Symbol: "NOPE-USD", Period: series.PeriodMax, Interval: series.Interval1d}

	notFound := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`
	srv := testServer(t, http.StatusNotFound, notFound, nil)
	s, err := New(Config{BaseURL: srv.URL}, zerolog.Nop()).Fetch(context.Background(), key)
	require.NoError(t, err, "an unknown symbol is an empty result")
	assert.True(t, s.Empty())
	assert.Equal(t, key, s.Key)

	unauthorized := `{"chart":{"result":null,"error":{"code":"Unauthorized","description":"Invalid Crumb"}}}`
	srv = testServer(t, http.StatusUnauthorized, unauthorized, nil)
	_, err = New(Config{BaseURL: srv.URL}, zerolog.Nop()).Fetch(context.Background(), key)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Contains(t, err.Error(), "Invalid Crumb")

	srv = testServer(t, http.StatusInternalServerError, "oops", nil)
	_, err = New(Config{BaseURL: srv.URL}, zerolog.Nop()).Fetch(context.Background(), key)
	assert.ErrorIs(t, err, ErrProvider)

	_, err = New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zerolog.Nop()).Fetch(context.Background(), key)
	assert.ErrorIs(t, err, ErrProvider)
}

func TestFetchIsRateLimited(t *testing.T) {
	var calls int32
	srv := testServer(t, http.StatusOK, btcDaily, &calls)
	c := New(Config{BaseURL: srv.URL, RateLimit: 20}, zerolog.Nop())
	key := series.Key{Symbol: "BTC-USD", Period: series.Period1y, Interval: series.Interval1d}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background(), key)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
