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
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/penny-vault/import-crypto/rollup"
	"github.com/penny-vault/import-crypto/series"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_data (
		data_identifier VARCHAR(255) PRIMARY KEY,
		ticker          VARCHAR(255) NOT NULL,
		frequency       VARCHAR(50) NOT NULL,
		period          VARCHAR(16) NOT NULL,
		time_interval   VARCHAR(16) NOT NULL,
		fetch_date      TIMESTAMP NOT NULL,
		data_start_date TIMESTAMP,
		data_end_date   TIMESTAMP,
		data_duration   VARCHAR(64),
		row_count       BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		data_identifier VARCHAR(255) NOT NULL REFERENCES raw_data (data_identifier),
		event_date      TIMESTAMP NOT NULL,
		open            DOUBLE PRECISION,
		high            DOUBLE PRECISION,
		low             DOUBLE PRECISION,
		close           DOUBLE PRECISION,
		adj_close       DOUBLE PRECISION,
		volume          BIGINT,
		PRIMARY KEY (data_identifier, event_date)
	)`,
	`CREATE TABLE IF NOT EXISTS analytics (
		report_identifier VARCHAR(255) NOT NULL,
		data_identifier   VARCHAR(255) NOT NULL,
		ticker            VARCHAR(255) NOT NULL,
		period            VARCHAR(16) NOT NULL,
		frequency         VARCHAR(50) NOT NULL,
		metric            VARCHAR(50) NOT NULL,
		value_type        VARCHAR(50) NOT NULL,
		period_end        TIMESTAMP NOT NULL,
		value             DOUBLE PRECISION,
		calculation_date  TIMESTAMP NOT NULL,
		PRIMARY KEY (report_identifier, metric, value_type, period_end)
	)`,
}

// SQLStore keeps raw artifacts in the raw_data/prices tables. The metadata
// row in raw_data is the freshness marker; prices hang off its identifier.
type SQLStore struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
	now    func() time.Time
}

// NormalizeDriver maps user facing driver names onto registered drivers.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(name) {
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	case "sqlite", "sqlite3":
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("%w: database driver %q", ErrUnknownFormat, name)
}

// OpenSQL connects to the database and creates the tables when missing.
func OpenSQL(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*SQLStore, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases shared and
		// serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	s := NewSQLStore(db, driver, logger)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	logger.Info().Str("Driver", driver).Msg("database opened")
	return s, nil
}

func NewSQLStore(db *sql.DB, driver string, logger zerolog.Logger) *SQLStore {
	return &SQLStore{db: db, driver: driver, log: logger, now: time.Now}
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", strings.Fields(stmt)[5], err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) Exists(ctx context.Context, id series.ArtifactID) (bool, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM raw_data WHERE data_identifier = ?`, id.String())
	return n > 0, err
}

func (s *SQLStore) List(ctx context.Context) ([]series.ArtifactID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data_identifier FROM raw_data ORDER BY data_identifier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []series.ArtifactID
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		id, err := series.ParseArtifactID(name)
		if err != nil {
			s.log.Warn().Str("Identifier", name).Err(err).Msg("skipping unparseable identifier")
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save writes the metadata row and all prices in one transaction.
func (s *SQLStore) Save(ctx context.Context, id series.ArtifactID, ser *series.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var start, end sql.NullTime
	var duration string
	if !ser.Empty() {
		start = sql.NullTime{Time: ser.Start(), Valid: true}
		end = sql.NullTime{Time: ser.End(), Valid: true}
		duration = ser.End().Sub(ser.Start()).String()
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO raw_data (
		data_identifier, ticker, frequency, period, time_interval,
		fetch_date, data_start_date, data_end_date, data_duration, row_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id.String(), id.Key.Symbol, id.Key.Frequency(), string(id.Key.Period), string(id.Key.Interval),
		s.now().UTC(), start, end, duration, ser.Len())
	if err != nil {
		return fmt.Errorf("insert raw_data %s: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO prices (
		data_identifier, event_date, open, high, low, close, adj_close, volume
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range ser.Bars {
		var adj sql.NullFloat64
		if b.AdjClose != nil {
			adj = sql.NullFloat64{Float64: *b.AdjClose, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id.String(), b.Date, b.Open, b.High, b.Low, b.Close, adj, b.Volume); err != nil {
			return fmt.Errorf("insert price %s %s: %w", id, b.Date.Format(series.DateTimeLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", id, err)
	}
	s.log.Debug().Str("Identifier", id.String()).Int("NumRecords", ser.Len()).Msg("prices saved")
	return nil
}

func (s *SQLStore) Load(ctx context.Context, id series.ArtifactID) (*series.Series, error) {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT event_date, open, high, low, close, adj_close, volume
		FROM prices WHERE data_identifier = ? ORDER BY event_date`), id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ser := &series.Series{Key: id.Key}
	for rows.Next() {
		var (
			b   series.Bar
			adj sql.NullFloat64
		)
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &adj, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price %s: %w", id, err)
		}
		b.Date = series.Naive(b.Date)
		if adj.Valid {
			v := adj.Float64
			b.AdjClose = &v
		}
		ser.Bars = append(ser.Bars, b)
	}
	return ser, rows.Err()
}

// Reports returns the report sink sharing this connection.
func (s *SQLStore) Reports() *SQLReports {
	return &SQLReports{store: s}
}

// SQLReports stores rollups in the long format analytics table: one row per
// granularity, column and bucket.
type SQLReports struct {
	store *SQLStore
}

func (r *SQLReports) Exists(ctx context.Context, id series.ArtifactID) (bool, error) {
	n, err := r.store.count(ctx, `SELECT COUNT(*) FROM analytics WHERE report_identifier = ?`, id.ReportName())
	return n > 0, err
}

func (r *SQLReports) Write(ctx context.Context, id series.ArtifactID, report rollup.Report) (string, error) {
	location := "analytics/" + id.ReportName()

	ok, err := r.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if ok {
		return location, ErrAlreadyExists
	}
	sections := report.Sections()
	if len(sections) == 0 {
		return "", ErrEmptyReport
	}

	s := r.store
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO analytics (
		report_identifier, data_identifier, ticker, period, frequency,
		metric, value_type, period_end, value, calculation_date
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	calculated := s.now().UTC()
	for _, sec := range sections {
		for _, row := range sec.Rows {
			for _, col := range reportColumns {
				var value sql.NullFloat64
				if v, ok := col.Value(row); ok {
					value = sql.NullFloat64{Float64: v, Valid: true}
				}
				if _, err := stmt.ExecContext(ctx,
					id.ReportName(), id.String(), id.Key.Symbol, string(id.Key.Period), id.Key.Frequency(),
					string(sec.Granularity), col.Name, row.PeriodEnd, value, calculated); err != nil {
					return "", fmt.Errorf("insert analytics %s: %w", id.ReportName(), err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit %s: %w", id.ReportName(), err)
	}
	return location, nil
}

// Load reads a stored report back into rollups.
func (r *SQLReports) Load(ctx context.Context, id series.ArtifactID) (rollup.Report, error) {
	s := r.store
	report := rollup.Report{
		Key:     id.Key,
		Weekly:  rollup.Rollup{Granularity: rollup.Weekly},
		Monthly: rollup.Rollup{Granularity: rollup.Monthly},
		Yearly:  rollup.Rollup{Granularity: rollup.Yearly},
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT metric, value_type, period_end, value
		FROM analytics WHERE report_identifier = ? ORDER BY metric, period_end`), id.ReportName())
	if err != nil {
		return report, err
	}
	defer rows.Close()

	buckets := map[rollup.Granularity]map[time.Time]*rollup.Row{}
	order := map[rollup.Granularity][]time.Time{}
	found := false
	for rows.Next() {
		var (
			metric, column string
			end            time.Time
			value          sql.NullFloat64
		)
		if err := rows.Scan(&metric, &column, &end, &value); err != nil {
			return report, err
		}
		found = true
		g := rollup.Granularity(metric)
		end = series.Naive(end)
		if buckets[g] == nil {
			buckets[g] = map[time.Time]*rollup.Row{}
		}
		row, ok := buckets[g][end]
		if !ok {
			row = &rollup.Row{PeriodEnd: end}
			buckets[g][end] = row
			order[g] = append(order[g], end)
		}
		setColumn(row, column, value)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	if !found {
		return report, fmt.Errorf("%w: %s", ErrNotFound, id.ReportName())
	}

	for _, g := range rollup.Granularities {
		ru := rollup.Rollup{Granularity: g}
		for _, end := range order[g] {
			ru.Rows = append(ru.Rows, *buckets[g][end])
		}
		switch g {
		case rollup.Weekly:
			report.Weekly = ru
		case rollup.Monthly:
			report.Monthly = ru
		case rollup.Yearly:
			report.Yearly = ru
		}
	}
	return report, nil
}

func setColumn(row *rollup.Row, column string, value sql.NullFloat64) {
	v := value.Float64
	switch column {
	case ColCloseMean:
		row.CloseMean = v
	case ColCloseMax:
		row.CloseMax = v
	case ColCloseMin:
		row.CloseMin = v
	case ColCloseLast:
		row.CloseLast = v
	case ColOpenFirst:
		row.OpenFirst = v
	case ColVolumeSum:
		row.VolumeSum = int64(v)
	case ColVariationAbs:
		row.AbsVariation = v
	}
}
