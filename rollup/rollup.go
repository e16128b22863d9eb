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

// Package rollup derives weekly, monthly and yearly aggregates from a bar
// series. Compute is pure: the same series always yields the same report.
package rollup

import (
	"errors"
	"sort"
	"time"

	"github.com/penny-vault/import-crypto/series"
)

var ErrDivisionByZero = errors.New("relative variation undefined: first open is zero")

type Granularity string

const (
	Weekly  Granularity = "Weekly"
	Monthly Granularity = "Monthly"
	Yearly  Granularity = "Yearly"
)

var Granularities = []Granularity{Weekly, Monthly, Yearly}

// PeriodEnd is the label of the bucket containing t: the Sunday closing its
// Monday-Sunday week, the last day of its month or December 31st.
func (g Granularity) PeriodEnd(t time.Time) time.Time {
	y, m, d := t.Date()
	switch g {
	case Weekly:
		toSunday := (7 - int(t.Weekday())) % 7
		return time.Date(y, m, d+toSunday, 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
}

// MinCoverage is the history a series must span before a rollup at this
// granularity is produced. Only a yearly rollup needs a full year; weekly
// and monthly buckets are emitted as soon as they hold a bar.
func (g Granularity) MinCoverage() time.Duration {
	if g == Yearly {
		return 365 * 24 * time.Hour
	}
	return 0
}

// Row is one bucket of a rollup.
type Row struct {
	PeriodEnd    time.Time
	CloseMean    float64
	CloseMax     float64
	CloseMin     float64
	CloseLast    float64
	OpenFirst    float64
	VolumeSum    int64
	AbsVariation float64
	Count        int
}

// RelVariation is AbsVariation as a percentage of OpenFirst.
func (r Row) RelVariation() (float64, error) {
	if r.OpenFirst == 0 {
		return 0, ErrDivisionByZero
	}
	return r.AbsVariation / r.OpenFirst * 100, nil
}

type Rollup struct {
	Granularity Granularity
	Rows        []Row
}

func (r Rollup) Empty() bool {
	return len(r.Rows) == 0
}

// Undefined lists the buckets whose relative variation cannot be computed.
func (r Rollup) Undefined() []time.Time {
	var out []time.Time
	for _, row := range r.Rows {
		if _, err := row.RelVariation(); err != nil {
			out = append(out, row.PeriodEnd)
		}
	}
	return out
}

type Report struct {
	Key     series.Key
	Weekly  Rollup
	Monthly Rollup
	Yearly  Rollup
}

// Sections returns the non-empty rollups in Weekly, Monthly, Yearly order.
func (r Report) Sections() []Rollup {
	out := make([]Rollup, 0, 3)
	for _, ru := range []Rollup{r.Weekly, r.Monthly, r.Yearly} {
		if !ru.Empty() {
			out = append(out, ru)
		}
	}
	return out
}

func (r Report) Get(g Granularity) Rollup {
	switch g {
	case Weekly:
		return r.Weekly
	case Monthly:
		return r.Monthly
	default:
		return r.Yearly
	}
}

func Compute(s *series.Series) Report {
	return Report{
		Key:     s.Key,
		Weekly:  Aggregate(s, Weekly),
		Monthly: Aggregate(s, Monthly),
		Yearly:  Aggregate(s, Yearly),
	}
}

// Aggregate buckets s at granularity g. Buckets without bars are omitted.
func Aggregate(s *series.Series, g Granularity) Rollup {
	out := Rollup{Granularity: g}
	if s.Empty() || s.Coverage() < g.MinCoverage() {
		return out
	}

	bars := make([]series.Bar, len(s.Bars))
	copy(bars, s.Bars)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	var (
		cur Row
		sum float64
	)
	flush := func() {
		if cur.Count == 0 {
			return
		}
		cur.CloseMean = sum / float64(cur.Count)
		cur.AbsVariation = cur.CloseLast - cur.OpenFirst
		out.Rows = append(out.Rows, cur)
	}

	for _, b := range bars {
		end := g.PeriodEnd(b.Date)
		if cur.Count == 0 || !end.Equal(cur.PeriodEnd) {
			flush()
			cur = Row{
				PeriodEnd: end,
				CloseMax:  b.Close,
				CloseMin:  b.Close,
				OpenFirst: b.Open,
			}
			sum = 0
		}
		cur.Count++
		sum += b.Close
		cur.CloseLast = b.Close
		cur.VolumeSum += b.Volume
		if b.Close > cur.CloseMax {
			cur.CloseMax = b.Close
		}
		if b.Close < cur.CloseMin {
			cur.CloseMin = b.Close
		}
	}
	flush()

	return out
}
