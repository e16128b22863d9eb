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
package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/penny-vault/import-crypto/series"
)

// CSVStore writes one csv file per artifact, the layout the dashboard and
// spreadsheets read directly.
type CSVStore struct {
	Layout Layout
}

func NewCSVStore(root string) *CSVStore {
	return &CSVStore{Layout: Layout{Root: root, Ext: ".csv"}}
}

func (c *CSVStore) Exists(_ context.Context, id series.ArtifactID) (bool, error) {
	return fileExists(c.Layout.Path(id))
}

func (c *CSVStore) List(_ context.Context) ([]series.ArtifactID, error) {
	return c.Layout.List()
}

func (c *CSVStore) Save(_ context.Context, id series.ArtifactID, s *series.Series) error {
	layout := id.Key.TimeLayout()
	return writeAtomic(c.Layout.Path(id), func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(series.Columns); err != nil {
			return err
		}
		for _, b := range s.Bars {
			adj := ""
			if b.AdjClose != nil {
				adj = formatFloat(*b.AdjClose)
			}
			rec := []string{
				b.Date.Format(layout),
				formatFloat(b.Open),
				formatFloat(b.High),
				formatFloat(b.Low),
				formatFloat(b.Close),
				adj,
				strconv.FormatInt(b.Volume, 10),
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (c *CSVStore) Load(_ context.Context, id series.ArtifactID) (*series.Series, error) {
	path := c.Layout.Path(id)
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	bars, err := ReadCSV(fh)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &series.Series{Key: id.Key, Bars: bars}, nil
}

// ReadCSV parses a bar table. Columns are matched by name, so files written
// by other tools (for example with a Datetime column) load as well.
func ReadCSV(r io.Reader) ([]series.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[series.CanonicalColumn(name)] = i
	}
	for _, col := range []string{series.ColumnDate, series.ColumnOpen, series.ColumnHigh, series.ColumnLow, series.ColumnClose, series.ColumnVolume} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing required column %q", col)
		}
	}

	var bars []series.Bar
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading csv record: %w", err)
		}

		var b series.Bar
		if b.Date, err = parseTime(rec[idx[series.ColumnDate]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		floats := []struct {
			col string
			dst *float64
		}{
			{series.ColumnOpen, &b.Open},
			{series.ColumnHigh, &b.High},
			{series.ColumnLow, &b.Low},
			{series.ColumnClose, &b.Close},
		}
		for _, fl := range floats {
			if *fl.dst, err = strconv.ParseFloat(rec[idx[fl.col]], 64); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, fl.col, err)
			}
		}
		if i, ok := idx[series.ColumnAdjClose]; ok && rec[i] != "" {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, series.ColumnAdjClose, err)
			}
			b.AdjClose = &v
		}
		vol, err := strconv.ParseFloat(rec[idx[series.ColumnVolume]], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, series.ColumnVolume, err)
		}
		b.Volume = int64(vol)

		bars = append(bars, b)
	}
	return bars, nil
}

var timeLayouts = []string{
	series.DateTimeLayout,
	series.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
}

// parseTime accepts the layouts written by this package and by pandas and
// always returns a naive timestamp.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return series.Naive(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
