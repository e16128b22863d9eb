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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyValidates(t *testing.T) {
	k, err := NewKey("btc-usd", "1y", "1h")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", k.Symbol)
	assert.Equal(t, "BTC", k.Base())
	assert.Equal(t, "Hourly", k.Frequency())

	_, err = NewKey("BTC-USD", "2y", "1d")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewKey("BTC-USD", "1y", "1wk")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewKey("", "1y", "1d")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeysExpandsCombinations(t *testing.T) {
	keys, err := Keys([]string{"BTC-USD", "ETH-USD"}, []string{"max/1d", "3mo/1h"})
	require.NoError(t, err)
	require.Len(t, keys, 4)
	assert.Equal(t, Key{Symbol: "BTC-USD", Period: PeriodMax, Interval: Interval1d}, keys[0])
	assert.Equal(t, Key{Symbol: "ETH-USD", Period: Period3mo, Interval: Interval1h}, keys[3])

	_, err = Keys([]string{"BTC-USD"}, []string{"max"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestArtifactIDRoundTrip(t *testing.T) {
	key := Key{Symbol: "SOL-USD", Period: Period6mo, Interval: Interval1h}
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.Local)
	id := NewArtifactID(key, now)

	assert.Equal(t, "SOL_6mo_1h_20240309", id.String())
	assert.Equal(t, "Analytics_SOL_6mo_1h_20240309", id.ReportName())
	assert.True(t, id.SameDay(now))
	assert.False(t, id.SameDay(now.AddDate(0, 0, 1)))

	for _, name := range []string{
		"SOL_6mo_1h_20240309",
		"data/SOL/Hourly/SOL_6mo_1h_20240309.csv",
		"Analytics_SOL_6mo_1h_20240309.xlsx",
	} {
		parsed, err := ParseArtifactID(name)
		require.NoError(t, err, name)
		assert.Equal(t, id, parsed, name)
	}
}

func TestParseArtifactIDRejectsGarbage(t *testing.T) {
	for _, name := range []string{"notes.txt", "BTC_1y_1d", "BTC_2y_1d_20240101", "BTC_1y_1d_2024-01-01"} {
		_, err := ParseArtifactID(name)
		assert.ErrorIs(t, err, ErrInvalidKey, name)
	}
}

func TestNormalizeStripsZoneSortsAndDedupes(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		ny = time.FixedZone("EST", -5*3600)
	}
	s := &Series{
		Key: Key{Symbol: "BTC-USD", Period: Period1y, Interval: Interval1h},
		Bars: []Bar{
			{Date: time.Date(2024, 1, 2, 10, 0, 0, 0, ny), Close: 3},
			{Date: time.Date(2024, 1, 2, 9, 0, 0, 0, ny), Close: 1},
			{Date: time.Date(2024, 1, 2, 10, 0, 0, 0, ny), Close: 4},
		},
	}

	out := Normalize(s)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC), out.Bars[0].Date)
	assert.Equal(t, time.UTC, out.Bars[1].Date.Location())
	assert.Equal(t, 4.0, out.Bars[1].Close)
	assert.Equal(t, 3.0, s.Bars[0].Close, "input must not be modified")
	assert.Equal(t, 2*time.Hour, out.Coverage())
}

func TestCanonicalColumn(t *testing.T) {
	assert.Equal(t, ColumnDate, CanonicalColumn("Datetime"))
	assert.Equal(t, ColumnAdjClose, CanonicalColumn("adj_close"))
	assert.Equal(t, ColumnOpen, CanonicalColumn("Open"))
}
