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
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penny-vault/import-crypto/series"
	"github.com/penny-vault/import-crypto/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seed(t *testing.T) *storage.CSVStore {
	store := storage.NewCSVStore(t.TempDir())
	ctx := context.Background()

	save := func(symbol string, period series.Period, interval series.Interval, day time.Time, bars []series.Bar) {
		key := series.Key{Symbol: symbol, Period: period, Interval: interval}
		require.NoError(t, store.Save(ctx, series.NewArtifactID(key, day), &series.Series{Key: key, Bars: bars}))
	}

	var daily []series.Bar
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14; i++ {
		open := 0.0
		if i > 6 {
			open = 10
		}
		daily = append(daily, series.Bar{Date: start.AddDate(0, 0, i), Open: open, High: 12, Low: 8, Close: 11, Volume: 2})
	}
	hourly := []series.Bar{{Date: time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}}

	save("BTC-USD", series.Period1y, series.Interval1d, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), daily)
	save("BTC-USD", series.Period1y, series.Interval1d, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), daily)
	save("ETH-USD", series.Period3mo, series.Interval1h, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), hourly)
	return store
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec.Code, body
}

func TestCatalog(t *testing.T) {
	store := seed(t)

	opts, ids, err := Catalog(context.Background(), store)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, []string{"BTC", "ETH"}, opts.Tickers)
	assert.Equal(t, []string{"1y", "3mo"}, opts.Periods)
	assert.Equal(t, []string{"1d", "1h"}, opts.Intervals)
	assert.Equal(t, []string{"20240302", "20240301"}, opts.Dates)
}

func TestCatalogEmpty(t *testing.T) {
	opts, ids, err := Catalog(context.Background(), storage.NewCSVStore(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, opts.Dates)
}

func TestHealth(t *testing.T) {
	srv := NewServer(seed(t), time.Minute, zerolog.Nop())
	code, body := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestOptionsEndpoint(t *testing.T) {
	srv := NewServer(seed(t), time.Minute, zerolog.Nop())
	code, body := get(t, srv.Handler(), "/api/options")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"20240302", "20240301"}, body["dates"])
	assert.Equal(t, []any{"BTC", "ETH"}, body["tickers"])
}

func TestSeriesEndpoint(t *testing.T) {
	srv := NewServer(seed(t), time.Minute, zerolog.Nop())

	code, body := get(t, srv.Handler(), "/api/series/ETH/3mo/1h/20240302")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ETH_3mo_1h_20240302", body["identifier"])
	bars := body["bars"].([]any)
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-01-01 13:00:00", bars[0].(map[string]any)["date"])

	// the full symbol resolves to the same artifact
	code, _ = get(t, srv.Handler(), "/api/series/ETH-USD/3mo/1h/20240302")
	assert.Equal(t, http.StatusOK, code)
}

func TestSeriesEndpointErrors(t *testing.T) {
	srv := NewServer(seed(t), time.Minute, zerolog.Nop())

	code, _ := get(t, srv.Handler(), "/api/series/BTC/2w/1d/20240302")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, srv.Handler(), "/api/series/BTC/1y/1d/yesterday")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := get(t, srv.Handler(), "/api/series/BTC/5y/1d/20240302")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "BTC_5y_1d_20240302", body["identifier"])
}

func TestRollupsEndpoint(t *testing.T) {
	srv := NewServer(seed(t), time.Minute, zerolog.Nop())

	code, body := get(t, srv.Handler(), "/api/rollups/BTC/1y/1d/20240301")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Analytics_BTC_1y_1d_20240301", body["identifier"])
	assert.NotContains(t, body, "yearly")

	monthly := body["monthly"].([]any)
	require.Len(t, monthly, 1)
	assert.Equal(t, "2024-01-31", monthly[0].(map[string]any)["period_end"])

	weekly := body["weekly"].([]any)
	require.Len(t, weekly, 2)

	first := weekly[0].(map[string]any)
	assert.Equal(t, "2024-01-07", first["period_end"])
	assert.Equal(t, 11.0, first["variation_abs"])
	assert.Nil(t, first["variation_rel"], "undefined relative variation is null")

	second := weekly[1].(map[string]any)
	assert.Equal(t, "2024-01-14", second["period_end"])
	assert.InDelta(t, 10.0, second["variation_rel"], 1e-9)
}

func TestSeriesAreCached(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewCSVStore(dir)
	key := series.Key{Symbol: "SOL-USD", Period: series.Period1y, Interval: series.Interval1d}
	id := series.NewArtifactID(key, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	bars := []series.Bar{{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Open: 1, Close: 2}}
	require.NoError(t, store.Save(context.Background(), id, &series.Series{Key: key, Bars: bars}))

	srv := NewServer(store, time.Hour, zerolog.Nop())
	code, _ := get(t, srv.Handler(), "/api/series/SOL/1y/1d/20240302")
	require.Equal(t, http.StatusOK, code)

	// served from cache after the file is gone
	require.NoError(t, os.RemoveAll(dir))
	code, _ = get(t, srv.Handler(), "/api/series/SOL/1y/1d/20240302")
	assert.Equal(t, http.StatusOK, code)
}
