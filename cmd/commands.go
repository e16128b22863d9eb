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
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/penny-vault/import-crypto/dashboard"
	"github.com/penny-vault/import-crypto/pipeline"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download today's price history for every configured key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, pipeline.StageIngest)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Write today's rollup reports from already downloaded history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, pipeline.StageAnalyze)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch and analyze every configured key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, pipeline.StageAll)
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run fetch and analyze on a cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if viper.GetBool("schedule.run_on_start") {
			if _, err := a.pipeline.Run(ctx, a.keys, pipeline.StageAll); err != nil {
				return err
			}
		}
		return a.pipeline.Schedule(ctx, viper.GetString("schedule.cron"), a.keys, pipeline.StageAll)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the downloaded artifacts as a read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := dashboard.NewServer(a.raw, viper.GetDuration("dashboard.cache_ttl"), log.Logger)
		return srv.ListenAndServe(ctx, viper.GetString("dashboard.listen"))
	},
}

func init() {
	scheduleCmd.Flags().String("cron", pipeline.DefaultSchedule, "cron spec of the batch")
	viper.BindPFlag("schedule.cron", scheduleCmd.Flags().Lookup("cron"))
	scheduleCmd.Flags().Bool("run-on-start", false, "run the batch once before waiting for the schedule")
	viper.BindPFlag("schedule.run_on_start", scheduleCmd.Flags().Lookup("run-on-start"))

	serveCmd.Flags().String("listen", ":8080", "address the dashboard listens on")
	viper.BindPFlag("dashboard.listen", serveCmd.Flags().Lookup("listen"))
	serveCmd.Flags().Duration("cache-ttl", 10*time.Minute, "how long loaded series stay cached")
	viper.BindPFlag("dashboard.cache_ttl", serveCmd.Flags().Lookup("cache-ttl"))

	rootCmd.AddCommand(fetchCmd, analyzeCmd, runCmd, scheduleCmd, serveCmd)
}
