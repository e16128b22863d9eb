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

// Package dashboard serves the persisted artifacts read-only over HTTP.
package dashboard

import (
	"context"
	"sort"

	"github.com/penny-vault/import-crypto/series"
)

// Options are the distinct values a client can select an artifact by.
// Dates are newest first so the first entry is the latest fetch.
type Options struct {
	Tickers   []string `json:"tickers"`
	Periods   []string `json:"periods"`
	Intervals []string `json:"intervals"`
	Dates     []string `json:"dates"`
}

type Lister interface {
	List(ctx context.Context) ([]series.ArtifactID, error)
}

// Catalog lists every artifact in the store and collects the option sets.
func Catalog(ctx context.Context, store Lister) (Options, []series.ArtifactID, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return Options{}, nil, err
	}

	tickers := map[string]struct{}{}
	periods := map[string]struct{}{}
	intervals := map[string]struct{}{}
	dates := map[string]struct{}{}
	for _, id := range ids {
		tickers[id.Key.Base()] = struct{}{}
		periods[string(id.Key.Period)] = struct{}{}
		intervals[string(id.Key.Interval)] = struct{}{}
		dates[id.Date.Format(series.IDDateLayout)] = struct{}{}
	}

	opts := Options{
		Tickers:   sortedKeys(tickers),
		Periods:   ordered(periods, periodNames()),
		Intervals: ordered(intervals, intervalNames()),
		Dates:     sortedKeys(dates),
	}
	sort.Sort(sort.Reverse(sort.StringSlice(opts.Dates)))
	return opts, ids, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ordered keeps the canonical order of known values.
func ordered(m map[string]struct{}, known []string) []string {
	out := make([]string, 0, len(m))
	for _, k := range known {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func periodNames() []string {
	out := make([]string, len(series.Periods))
	for i, p := range series.Periods {
		out[i] = string(p)
	}
	return out
}

func intervalNames() []string {
	out := make([]string, len(series.Intervals))
	for i, iv := range series.Intervals {
		out[i] = string(iv)
	}
	return out
}
