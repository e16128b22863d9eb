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
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/penny-vault/import-crypto/series"
	"github.com/penny-vault/import-crypto/storage"
)

type Outcome string

const (
	OutcomeFetched       Outcome = "fetched"
	OutcomeFresh         Outcome = "fresh"
	OutcomeNoData        Outcome = "no_data"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeStoreFailed   Outcome = "store_failed"
	OutcomeReportWritten Outcome = "report_written"
	OutcomeReportExists  Outcome = "report_exists"
	OutcomeReportSkipped Outcome = "report_skipped"
	OutcomeReportFailed  Outcome = "report_failed"
)

// Result is the outcome of one key in a batch run.
type Result struct {
	Key      series.Key
	Ingest   Outcome
	Report   Outcome
	Location string
	Err      error
}

// Failed reports whether the key ended without a usable report.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Stage selects which steps Run performs for each key.
type Stage int

const (
	StageIngest Stage = 1 << iota
	StageAnalyze

	StageAll = StageIngest | StageAnalyze
)

// Run processes keys one after another. A failing key is logged and
// recorded in its Result; the batch carries on with the next key. Run only
// stops early when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, keys []series.Key, stages Stage) ([]Result, error) {
	runID := uuid.New().String()
	log := p.log.With().Str("RunID", runID).Logger()
	log.Info().Int("NumKeys", len(keys)).Msg("starting batch")

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = progressbar.Default(int64(len(keys)))
	}

	results := make([]Result, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("batch cancelled")
			return results, err
		}
		if bar != nil {
			bar.Add(1)
		}

		res := p.runKey(ctx, key, stages, log.With().Str("Ticker", key.Symbol).
			Str("Period", string(key.Period)).Str("Interval", string(key.Interval)).Logger())
		results = append(results, res)
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	log.Info().Int("NumKeys", len(keys)).Int("Failed", failed).Msg("batch finished")
	return results, nil
}

func (p *Pipeline) runKey(ctx context.Context, key series.Key, stages Stage, log zerolog.Logger) Result {
	res := Result{Key: key}
	id := p.artifactID(key)

	var s *series.Series
	if stages&StageIngest != 0 {
		var err error
		s, res.Ingest, err = p.ingest(ctx, id, log)
		if err != nil {
			res.Err = err
			log.Warn().Str("Outcome", string(res.Ingest)).Err(err).Msg("key skipped")
			return res
		}
	}
	if stages&StageAnalyze == 0 {
		log.Info().Str("Outcome", string(res.Ingest)).Msg("key done")
		return res
	}

	log = log.With().Str("Identifier", id.String()).Logger()
	done, err := p.reports.Exists(ctx, id)
	if err != nil {
		res.Report, res.Err = OutcomeReportFailed, err
		log.Error().Err(err).Msg("could not check analytics")
		return res
	}
	if done {
		res.Report = OutcomeReportExists
		log.Info().Str("Outcome", string(res.Ingest)).Str("Report", string(res.Report)).Msg("key done")
		return res
	}

	if s == nil {
		s, err = p.raw.Load(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			res.Report, res.Err = OutcomeReportSkipped, ErrNoData
			log.Warn().Msg("no data available for analysis")
			return res
		}
		if err != nil {
			res.Report, res.Err = OutcomeReportFailed, err
			log.Error().Err(err).Msg("could not load data for analysis")
			return res
		}
	}

	res.Location, err = p.report(ctx, id, s, log)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		res.Report = OutcomeReportExists
	case errors.Is(err, storage.ErrEmptyReport):
		res.Report = OutcomeReportSkipped
	case err != nil:
		res.Report, res.Err = OutcomeReportFailed, err
		return res
	default:
		res.Report = OutcomeReportWritten
	}
	log.Info().Str("Outcome", string(res.Ingest)).Str("Report", string(res.Report)).Msg("key done")
	return res
}
