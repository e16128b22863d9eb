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
package series

import (
	"sort"
	"time"
)

// Column names of the persisted raw artifact.
const (
	ColumnDate     = "Date"
	ColumnOpen     = "Open"
	ColumnHigh     = "High"
	ColumnLow      = "Low"
	ColumnClose    = "Close"
	ColumnAdjClose = "Adj Close"
	ColumnVolume   = "Volume"
)

var Columns = []string{ColumnDate, ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnAdjClose, ColumnVolume}

// CanonicalColumn maps provider specific column names onto the canonical
// schema. Intraday tables name their timestamp column Datetime.
func CanonicalColumn(name string) string {
	switch name {
	case "Datetime", "date", "datetime", "Timestamp":
		return ColumnDate
	case "Adj_Close", "adj_close", "AdjClose":
		return ColumnAdjClose
	}
	return name
}

type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose *float64  `json:"adjClose,omitempty"`
	Volume   int64     `json:"volume"`
}

// Series is the bar table for one key, ascending and unique by Date.
type Series struct {
	Key  Key
	Bars []Bar
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

func (s *Series) Empty() bool {
	return s.Len() == 0
}

// Start and End are the first and last bar timestamps.
func (s *Series) Start() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Bars[0].Date
}

func (s *Series) End() time.Time {
	if s.Empty() {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Date
}

// Coverage is the time span the series represents, counting the last bar as
// one full interval step.
func (s *Series) Coverage() time.Duration {
	if s.Empty() {
		return 0
	}
	return s.End().Sub(s.Start()) + s.Key.Interval.Step()
}

// Naive drops the location of t while keeping its wall clock.
func Naive(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

// Normalize returns a copy of s with timezone-naive timestamps, sorted by
// date, where a later bar replaces an earlier one with the same timestamp.
func Normalize(s *Series) *Series {
	out := &Series{Key: s.Key, Bars: make([]Bar, 0, s.Len())}
	if s.Empty() {
		return out
	}

	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	for i := range bars {
		bars[i].Date = Naive(bars[i].Date)
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	for _, b := range bars {
		if n := len(out.Bars); n > 0 && out.Bars[n-1].Date.Equal(b.Date) {
			out.Bars[n-1] = b
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}
