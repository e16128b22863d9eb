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

// Package storage persists raw bar series and rollup reports.
//
// Every backend is addressed by series.ArtifactID. Because the id embeds the
// fetch date, Exists on today's id doubles as the freshness check.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/penny-vault/import-crypto/rollup"
	"github.com/penny-vault/import-crypto/series"
)

var (
	ErrNotFound      = errors.New("artifact not found")
	ErrAlreadyExists = errors.New("artifact already exists")
	ErrEmptyReport   = errors.New("report has no sections to write")
	ErrUnknownFormat = errors.New("unknown storage format")
)

// RawStore keeps one bar table per artifact id.
type RawStore interface {
	Exists(ctx context.Context, id series.ArtifactID) (bool, error)
	Load(ctx context.Context, id series.ArtifactID) (*series.Series, error)
	Save(ctx context.Context, id series.ArtifactID, s *series.Series) error
	List(ctx context.Context) ([]series.ArtifactID, error)
}

// ReportSink keeps one rollup report per artifact id. Write never replaces
// an existing report; it returns ErrAlreadyExists instead.
type ReportSink interface {
	Exists(ctx context.Context, id series.ArtifactID) (bool, error)
	Write(ctx context.Context, id series.ArtifactID, report rollup.Report) (string, error)
}

// Layout places artifacts under Root/{base}/{Daily|Hourly}/{name}{Ext}.
type Layout struct {
	Root string
	Ext  string
}

func (l Layout) Dir(key series.Key) string {
	return filepath.Join(l.Root, key.Base(), key.Frequency())
}

func (l Layout) Path(id series.ArtifactID) string {
	return filepath.Join(l.Dir(id.Key), id.String()+l.Ext)
}

func (l Layout) ReportPath(id series.ArtifactID) string {
	return filepath.Join(l.Dir(id.Key), id.ReportName()+l.Ext)
}

// List scans the layout for artifact files. Names that do not parse are
// skipped.
func (l Layout) List() ([]series.ArtifactID, error) {
	matches, err := filepath.Glob(filepath.Join(l.Root, "*", "*", "*"+l.Ext))
	if err != nil {
		return nil, err
	}
	ids := make([]series.ArtifactID, 0, len(matches))
	for _, m := range matches {
		id, err := series.ParseArtifactID(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// writeAtomic creates path through a temporary file in the same directory so
// a failed write never leaves a partial artifact behind.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// NewRawStore returns the file or database store for format. db is only
// used by the sql format.
func NewRawStore(format, dataDir string, db *SQLStore, logger zerolog.Logger) (RawStore, error) {
	switch format {
	case "csv":
		return NewCSVStore(dataDir), nil
	case "parquet":
		return NewParquetStore(dataDir, logger), nil
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("%w: sql format needs a database connection", ErrUnknownFormat)
		}
		return db, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
