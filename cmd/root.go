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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/penny-vault/import-crypto/pipeline"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "import-crypto",
	Short: "Download crypto price history from yahoo and compute rollups",
	Long: `Download crypto price history from the yahoo finance chart API, save one
artifact per asset, period and interval each day and derive weekly, monthly
and yearly rollups from it. Without a subcommand it runs fetch and analyze.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, pipeline.StageAll)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnInitialize(initLog)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is import-crypto.toml)")
	rootCmd.PersistentFlags().Bool("log.json", false, "print logs as json to stderr")
	viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("log.json"))
	rootCmd.PersistentFlags().String("log.level", "info", "minimum log level (debug, info, warn, error)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log.level"))
	rootCmd.PersistentFlags().String("log.file", "", "also write json logs to this file, rotated by size")
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log.file"))

	rootCmd.PersistentFlags().StringSliceP("assets", "a", defaultAssets, "symbols to import")
	viper.BindPFlag("assets", rootCmd.PersistentFlags().Lookup("assets"))
	rootCmd.PersistentFlags().StringSliceP("combinations", "c", defaultCombinations, "period/interval pairs to import")
	viper.BindPFlag("combinations", rootCmd.PersistentFlags().Lookup("combinations"))

	rootCmd.PersistentFlags().String("storage", "csv", "raw artifact backend (csv, parquet, sql)")
	viper.BindPFlag("storage.backend", rootCmd.PersistentFlags().Lookup("storage"))
	rootCmd.PersistentFlags().String("data-dir", "data", "directory for raw artifacts")
	viper.BindPFlag("storage.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	rootCmd.PersistentFlags().String("report-dir", "data_analytics", "directory for rollup reports")
	viper.BindPFlag("storage.report_dir", rootCmd.PersistentFlags().Lookup("report-dir"))

	rootCmd.PersistentFlags().String("database-driver", "pgx", "database driver (pgx, sqlite)")
	viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("database-driver"))
	rootCmd.PersistentFlags().StringP("database-url", "d", "host=localhost port=5432", "DSN for database connection")
	viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.PersistentFlags().Int("yahoo-rate-limit", 2, "yahoo rate limit (requests per second)")
	viper.BindPFlag("yahoo.rate_limit", rootCmd.PersistentFlags().Lookup("yahoo-rate-limit"))
	rootCmd.PersistentFlags().Duration("yahoo-timeout", 0, "timeout of a single yahoo request")
	viper.BindPFlag("yahoo.timeout", rootCmd.PersistentFlags().Lookup("yahoo-timeout"))
	viper.SetDefault("yahoo.base_url", "")

	rootCmd.PersistentFlags().Bool("progress", false, "show a progress bar")
	viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))
}

var logFile io.Closer

func initLog() {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if !viper.GetBool("log.json") {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if fn := viper.GetString("log.file"); fn != "" {
		lj := &lumberjack.Logger{
			Filename:   fn,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		logFile = lj
		out = zerolog.MultiLevelWriter(out, lj)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env file")
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath("/etc/import-crypto/")
		viper.AddConfigPath(fmt.Sprintf("%s/.import-crypto", home))
		viper.AddConfigPath(".")
		viper.SetConfigType("toml")
		viper.SetConfigName("import-crypto")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match, e.g. DATABASE_URL

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("ConfigFile", viper.ConfigFileUsed()).Msg("Loaded config file")
	} else {
		log.Debug().Err(err).Msg("no config file read")
	}
}
