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
	"errors"
	"fmt"
	"strings"
	"time"
)

// QuoteCurrency is stripped from symbols when building artifact names.
const QuoteCurrency = "USD"

var ErrInvalidKey = errors.New("invalid series key")

type Period string

const (
	PeriodMax Period = "max"
	Period10y Period = "10y"
	Period5y  Period = "5y"
	Period1y  Period = "1y"
	Period6mo Period = "6mo"
	Period3mo Period = "3mo"
)

var Periods = []Period{PeriodMax, Period10y, Period5y, Period1y, Period6mo, Period3mo}

func (p Period) Valid() bool {
	for _, v := range Periods {
		if p == v {
			return true
		}
	}
	return false
}

type Interval string

const (
	Interval1d Interval = "1d"
	Interval1h Interval = "1h"
)

var Intervals = []Interval{Interval1d, Interval1h}

func (i Interval) Valid() bool {
	return i == Interval1d || i == Interval1h
}

// Step is the nominal distance between two consecutive bars.
func (i Interval) Step() time.Duration {
	if i == Interval1h {
		return time.Hour
	}
	return 24 * time.Hour
}

// Key identifies one fetch configuration.
type Key struct {
	Symbol   string
	Period   Period
	Interval Interval
}

// NewKey builds a validated key. The symbol is upper-cased.
func NewKey(symbol, period, interval string) (Key, error) {
	k := Key{
		Symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		Period:   Period(strings.TrimSpace(period)),
		Interval: Interval(strings.TrimSpace(interval)),
	}
	return k, k.Validate()
}

func (k Key) Validate() error {
	if k.Symbol == "" || strings.Contains(k.Symbol, "_") {
		return fmt.Errorf("%w: symbol %q", ErrInvalidKey, k.Symbol)
	}
	if !k.Period.Valid() {
		return fmt.Errorf("%w: period %q", ErrInvalidKey, k.Period)
	}
	if !k.Interval.Valid() {
		return fmt.Errorf("%w: interval %q", ErrInvalidKey, k.Interval)
	}
	return nil
}

// Base returns the symbol without its USD quote currency (BTC-USD -> BTC).
func (k Key) Base() string {
	return strings.TrimSuffix(k.Symbol, "-"+QuoteCurrency)
}

// Frequency is the directory name used for the interval.
func (k Key) Frequency() string {
	if k.Interval == Interval1h {
		return "Hourly"
	}
	return "Daily"
}

// TimeLayout is the textual layout of bar timestamps for this key.
func (k Key) TimeLayout() string {
	if k.Interval == Interval1h {
		return DateTimeLayout
	}
	return DateLayout
}

func (k Key) String() string {
	return fmt.Sprintf("%s %s/%s", k.Symbol, k.Period, k.Interval)
}

// ParseCombination parses a "period/interval" pair such as "1y/1h".
func ParseCombination(s string) (Period, Interval, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: combination %q must look like period/interval", ErrInvalidKey, s)
	}
	p, i := Period(parts[0]), Interval(parts[1])
	if !p.Valid() {
		return "", "", fmt.Errorf("%w: period %q", ErrInvalidKey, p)
	}
	if !i.Valid() {
		return "", "", fmt.Errorf("%w: interval %q", ErrInvalidKey, i)
	}
	return p, i, nil
}

// Keys expands every symbol against every period/interval combination,
// symbols first, in the order given.
func Keys(symbols []string, combinations []string) ([]Key, error) {
	keys := make([]Key, 0, len(symbols)*len(combinations))
	for _, sym := range symbols {
		for _, c := range combinations {
			p, i, err := ParseCombination(c)
			if err != nil {
				return nil, err
			}
			k, err := NewKey(sym, string(p), string(i))
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}
