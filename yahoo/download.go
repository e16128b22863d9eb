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

// Package yahoo downloads OHLCV history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"github.com/penny-vault/import-crypto/series"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

var ErrProvider = errors.New("yahoo request failed")

// codeNotFound is the chart error code for symbols yahoo has no data for.
const codeNotFound = "Not Found"

type Config struct {
	BaseURL string
	// RateLimit is the number of requests per second; zero disables limiting.
	RateLimit int
	Timeout   time.Duration
}

type Client struct {
	client *resty.Client
	limit  ratelimit.Limiter
	log    zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limit = ratelimit.New(cfg.RateLimit)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		})

	return &Client{client: client, limit: limit, log: logger}
}

// Fetch downloads the full history for key. An unknown or delisted symbol,
// like a known symbol without bars, yields an empty series and no error.
func (c *Client) Fetch(ctx context.Context, key series.Key) (*series.Series, error) {
	c.limit.Take()

	var chart chartResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", key.Symbol).
		SetQueryParams(map[string]string{
			"range":                string(key.Period),
			"interval":             string(key.Interval),
			"includeAdjustedClose": "true",
			"events":               "div,splits",
		}).
		SetResult(&chart).
		SetError(&chart).
		Get("/v8/finance/chart/{symbol}")

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProvider, key, err)
	}
	c.log.Debug().Str("Url", resp.Request.URL).Int("StatusCode", resp.StatusCode()).Msg("chart downloaded")

	if e := chart.Chart.Error; e != nil && e.Code == codeNotFound {
		c.log.Warn().Str("Ticker", key.Symbol).Str("Description", e.Description).Msg("symbol not found")
		return &series.Series{Key: key}, nil
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s: %s", ErrProvider, key, chart.Chart.Error.Code, chart.Chart.Error.Description)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: %s: status %d", ErrProvider, key, resp.StatusCode())
	}

	s := &series.Series{Key: key}
	if len(chart.Chart.Result) == 0 {
		return s, nil
	}
	s.Bars = toBars(chart.Chart.Result[0])
	return s, nil
}

// toBars converts the columnar chart payload into bars in the exchange's
// wall clock. Bars without an open or a close are provider gaps and are
// dropped.
func toBars(r chartResult) []series.Bar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	loc := location(r.Meta.ExchangeTimezoneName, r.Meta.GMTOffset)

	bars := make([]series.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		op, cl := at(q.Open, i), at(q.Close, i)
		if op == nil || cl == nil {
			continue
		}
		b := series.Bar{
			Date:  series.Naive(time.Unix(ts, 0).In(loc)),
			Open:  *op,
			High:  value(at(q.High, i)),
			Low:   value(at(q.Low, i)),
			Close: *cl,
		}
		if v := at(q.Volume, i); v != nil {
			b.Volume = int64(*v)
		}
		if v := at(adj, i); v != nil {
			a := *v
			b.AdjClose = &a
		}
		bars = append(bars, b)
	}
	return bars
}

func location(name string, offset int) *time.Location {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.FixedZone(name, offset)
}

func at(vals []*float64, i int) *float64 {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
