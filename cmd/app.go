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
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/import-crypto/pipeline"
	"github.com/penny-vault/import-crypto/series"
	"github.com/penny-vault/import-crypto/storage"
	"github.com/penny-vault/import-crypto/yahoo"
)

var (
	defaultAssets       = []string{"BTC-USD", "ETH-USD", "ADA-USD", "BNB-USD", "SOL-USD"}
	defaultCombinations = []string{"max/1d", "10y/1d", "5y/1d", "1y/1d", "1y/1h", "6mo/1h", "3mo/1h"}
)

// app holds the components built from configuration for one command.
type app struct {
	pipeline *pipeline.Pipeline
	raw      storage.RawStore
	db       *storage.SQLStore
	keys     []series.Key
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if logFile != nil {
		logFile.Close()
	}
}

func keysFromConfig() ([]series.Key, error) {
	return series.Keys(viper.GetStringSlice("assets"), viper.GetStringSlice("combinations"))
}

func newApp(ctx context.Context) (*app, error) {
	keys, err := keysFromConfig()
	if err != nil {
		return nil, err
	}
	a := &app{keys: keys}

	backend := viper.GetString("storage.backend")
	if backend == "sql" {
		a.db, err = storage.OpenSQL(ctx, viper.GetString("database.driver"), viper.GetString("database.url"), log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("could not connect to database")
			return nil, err
		}
	}

	a.raw, err = storage.NewRawStore(backend, viper.GetString("storage.data_dir"), a.db, log.Logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var reports storage.ReportSink
	if a.db != nil {
		reports = a.db.Reports()
	} else {
		reports = storage.NewXLSXSink(viper.GetString("storage.report_dir"))
	}

	client := yahoo.New(yahoo.Config{
		BaseURL:   viper.GetString("yahoo.base_url"),
		RateLimit: viper.GetInt("yahoo.rate_limit"),
		Timeout:   viper.GetDuration("yahoo.timeout"),
	}, log.Logger)

	a.pipeline = pipeline.New(client, a.raw, reports,
		pipeline.WithLogger(log.Logger),
		pipeline.WithProgress(viper.GetBool("progress")))
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runBatch(cmd *cobra.Command, stages pipeline.Stage) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.Run(ctx, a.keys, stages)
	if err != nil {
		return err
	}
	summarize(results)
	return nil
}

func summarize(results []pipeline.Result) {
	counts := map[pipeline.Outcome]int{}
	failed := 0
	for _, r := range results {
		if r.Ingest != "" {
			counts[r.Ingest]++
		}
		if r.Report != "" {
			counts[r.Report]++
		}
		if r.Failed() {
			failed++
		}
	}

	ev := log.Info().Int("NumKeys", len(results)).Int("Failed", failed)
	for outcome, n := range counts {
		ev = ev.Int(string(outcome), n)
	}
	ev.Msg("import complete")
}
