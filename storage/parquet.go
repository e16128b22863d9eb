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
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/penny-vault/import-crypto/series"
)

type parquetBar struct {
	Date     string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Open     float64  `parquet:"name=open, type=DOUBLE"`
	High     float64  `parquet:"name=high, type=DOUBLE"`
	Low      float64  `parquet:"name=low, type=DOUBLE"`
	Close    float64  `parquet:"name=close, type=DOUBLE"`
	AdjClose *float64 `parquet:"name=adj_close, type=DOUBLE, repetitiontype=OPTIONAL"`
	Volume   int64    `parquet:"name=volume, type=INT64, convertedtype=INT_64"`
}

// ParquetStore keeps raw artifacts as gzip compressed parquet files.
type ParquetStore struct {
	Layout Layout
	log    zerolog.Logger
}

func NewParquetStore(root string, logger zerolog.Logger) *ParquetStore {
	return &ParquetStore{Layout: Layout{Root: root, Ext: ".parquet"}, log: logger}
}

func (p *ParquetStore) Exists(_ context.Context, id series.ArtifactID) (bool, error) {
	return fileExists(p.Layout.Path(id))
}

func (p *ParquetStore) List(_ context.Context) ([]series.ArtifactID, error) {
	return p.Layout.List()
}

func (p *ParquetStore) Save(_ context.Context, id series.ArtifactID, s *series.Series) error {
	fn := p.Layout.Path(id)
	if err := os.MkdirAll(filepath.Dir(fn), 0o755); err != nil {
		return err
	}
	tmp := fn + ".tmp"
	defer os.Remove(tmp)

	if err := p.writeParquet(tmp, s); err != nil {
		return err
	}
	return os.Rename(tmp, fn)
}

func (p *ParquetStore) writeParquet(fn string, s *series.Series) error {
	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		p.log.Error().Str("OriginalError", err.Error()).Str("FileName", fn).Msg("cannot create local file")
		return err
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(parquetBar), 4)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}

	pw.RowGroupSize = 128 * 1024 * 1024 // 128M
	pw.PageSize = 8 * 1024              // 8k
	pw.CompressionType = parquet.CompressionCodec_GZIP

	for _, b := range s.Bars {
		rec := parquetBar{
			Date:     b.Date.Format(series.DateTimeLayout),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		}
		if err = pw.Write(&rec); err != nil {
			pw.WriteStop()
			return fmt.Errorf("parquet write %s: %w", rec.Date, err)
		}
	}

	if err = pw.WriteStop(); err != nil {
		return fmt.Errorf("parquet write stop: %w", err)
	}
	return nil
}

func (p *ParquetStore) Load(_ context.Context, id series.ArtifactID) (*series.Series, error) {
	fn := p.Layout.Path(id)
	ok, err := fileExists(fn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fn)
	}

	fh, err := local.NewLocalFileReader(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	pr, err := reader.NewParquetReader(fh, new(parquetBar), 4)
	if err != nil {
		return nil, fmt.Errorf("parquet reader %s: %w", fn, err)
	}
	defer pr.ReadStop()

	recs := make([]parquetBar, int(pr.GetNumRows()))
	if err := pr.Read(&recs); err != nil {
		return nil, fmt.Errorf("parquet read %s: %w", fn, err)
	}

	s := &series.Series{Key: id.Key, Bars: make([]series.Bar, 0, len(recs))}
	for _, r := range recs {
		dt, err := parseTime(r.Date)
		if err != nil {
			return nil, fmt.Errorf("parquet read %s: %w", fn, err)
		}
		s.Bars = append(s.Bars, series.Bar{
			Date:     dt,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: r.AdjClose,
			Volume:   r.Volume,
		})
	}
	return s, nil
}
