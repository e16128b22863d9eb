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

// Package pipeline ingests price series and derives rollup reports, one key
// at a time. Freshness is same-day existence: once today's artifact exists
// for a key it is loaded instead of fetched, and once today's report exists
// it is not recomputed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/penny-vault/import-crypto/rollup"
	"github.com/penny-vault/import-crypto/series"
	"github.com/penny-vault/import-crypto/storage"
)

// Source returns the full history for a key. An empty series means the
// provider has nothing for it.
type Source interface {
	Fetch(ctx context.Context, key series.Key) (*series.Series, error)
}

type Pipeline struct {
	source   Source
	raw      storage.RawStore
	reports  storage.ReportSink
	log      zerolog.Logger
	now      func() time.Time
	progress bool
}

type Option func(*Pipeline)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithClock replaces time.Now, which decides the calendar day of artifacts.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithProgress draws a progress bar on stderr during Run.
func WithProgress(enabled bool) Option {
	return func(p *Pipeline) { p.progress = enabled }
}

func New(source Source, raw storage.RawStore, reports storage.ReportSink, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:  source,
		raw:     raw,
		reports: reports,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest returns today's series for key, fetching and persisting it only
// when no artifact for today exists yet. Failures are *IngestionError and
// never leave a partial artifact.
func (p *Pipeline) Ingest(ctx context.Context, key series.Key) (*series.Series, error) {
	s, _, err := p.ingest(ctx, p.artifactID(key), p.log)
	return s, err
}

// artifactID names today's artifact for key. A batch computes it once per
// key so ingest and analysis agree on the day even across midnight.
func (p *Pipeline) artifactID(key series.Key) series.ArtifactID {
	return series.NewArtifactID(key, p.now())
}

func (p *Pipeline) ingest(ctx context.Context, id series.ArtifactID, log zerolog.Logger) (*series.Series, Outcome, error) {
	key := id.Key
	log = log.With().Str("Identifier", id.String()).Logger()

	fresh, err := p.raw.Exists(ctx, id)
	if err != nil {
		return nil, OutcomeStoreFailed, &IngestionError{Key: key, Reason: StoreFailed, Err: fmt.Errorf("check %s: %w", id, err)}
	}
	if fresh {
		log.Info().Msg("data is fresh, loading existing artifact")
		s, err := p.raw.Load(ctx, id)
		if err != nil {
			return nil, OutcomeStoreFailed, &IngestionError{Key: key, Reason: StoreFailed, Err: fmt.Errorf("load %s: %w", id, err)}
		}
		return s, OutcomeFresh, nil
	}

	log.Info().Msg("fetching new data")
	fetched, err := p.source.Fetch(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("error fetching data")
		return nil, OutcomeFetchFailed, &IngestionError{Key: key, Reason: FetchFailed, Err: err}
	}
	if fetched.Empty() {
		log.Warn().Msg("no data retrieved")
		return nil, OutcomeNoData, &IngestionError{Key: key, Reason: NoData}
	}

	s := series.Normalize(fetched)
	s.Key = key
	if err := p.raw.Save(ctx, id, s); err != nil {
		log.Error().Err(err).Msg("error saving data")
		return nil, OutcomeStoreFailed, &IngestionError{Key: key, Reason: StoreFailed, Err: err}
	}
	log.Info().Int("NumRecords", s.Len()).Time("Start", s.Start()).Time("End", s.End()).Msg("data saved")
	return s, OutcomeFetched, nil
}

// Analyze writes today's report for key from today's raw artifact. It
// returns storage.ErrAlreadyExists when the report was already written
// today and ErrNoData when there is no raw artifact for today.
func (p *Pipeline) Analyze(ctx context.Context, key series.Key) (string, error) {
	id := p.artifactID(key)
	log := p.log.With().Str("Identifier", id.String()).Logger()

	done, err := p.reports.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if done {
		log.Info().Msg("analytics already performed")
		return "", storage.ErrAlreadyExists
	}

	s, err := p.raw.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Msg("no data available for analysis")
		return "", fmt.Errorf("%w: %s", ErrNoData, id)
	}
	if err != nil {
		return "", err
	}
	return p.report(ctx, id, s, log)
}

func (p *Pipeline) report(ctx context.Context, id series.ArtifactID, s *series.Series, log zerolog.Logger) (string, error) {
	if s.Empty() {
		return "", fmt.Errorf("%w: %s", ErrNoData, id)
	}
	rep := rollup.Compute(s)
	for _, ru := range rep.Sections() {
		for _, end := range ru.Undefined() {
			log.Warn().Str("Granularity", string(ru.Granularity)).Time("PeriodEnd", end).
				Err(rollup.ErrDivisionByZero).Msg("relative variation undefined")
		}
	}

	loc, err := p.reports.Write(ctx, id, rep)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		log.Info().Str("Location", loc).Msg("analytics already performed")
		return loc, err
	case errors.Is(err, storage.ErrEmptyReport):
		log.Warn().Int("NumRecords", s.Len()).Msg("report has no sections")
		return "", err
	case err != nil:
		log.Error().Err(err).Msg("error saving analytics")
		return "", err
	}
	log.Info().Str("Location", loc).Int("Sections", len(rep.Sections())).Msg("analytics saved")
	return loc, nil
}
