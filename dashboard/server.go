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
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/penny-vault/import-crypto/rollup"
	"github.com/penny-vault/import-crypto/series"
	"github.com/penny-vault/import-crypto/storage"
)

type Server struct {
	store  storage.RawStore
	cache  *cache.Cache
	log    zerolog.Logger
	router *gin.Engine
}

// NewServer builds the read-only API over store. Loaded series are cached
// for ttl; artifacts never change once written so staleness only hides
// newly fetched days until the entry expires.
func NewServer(store storage.RawStore, ttl time.Duration, logger zerolog.Logger) *Server {
	s := &Server{
		store: store,
		cache: cache.New(ttl, 2*ttl),
		log:   logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.GET("/healthz", s.health)
	api := r.Group("/api")
	api.GET("/options", s.options)
	api.GET("/series/:symbol/:period/:interval/:date", s.prices)
	api.GET("/rollups/:symbol/:period/:interval/:date", s.rollups)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.log.Info().Str("Addr", addr).Msg("dashboard listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("Method", c.Request.Method).
			Str("Path", c.Request.URL.Path).
			Int("Status", c.Writer.Status()).
			Dur("Latency", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) options(c *gin.Context) {
	opts, _, err := Catalog(c.Request.Context(), s.store)
	if err != nil {
		s.log.Error().Err(err).Msg("could not list artifacts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list artifacts"})
		return
	}
	c.JSON(http.StatusOK, opts)
}

type barView struct {
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close"`
	Volume   int64    `json:"volume"`
}

func (s *Server) prices(c *gin.Context) {
	id, ser, ok := s.load(c)
	if !ok {
		return
	}
	layout := id.Key.TimeLayout()
	bars := make([]barView, len(ser.Bars))
	for i, b := range ser.Bars {
		bars[i] = barView{
			Date:     b.Date.Format(layout),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			AdjClose: b.AdjClose,
			Volume:   b.Volume,
		}
	}
	c.JSON(http.StatusOK, gin.H{"identifier": id.String(), "bars": bars})
}

type rowView struct {
	PeriodEnd    string   `json:"period_end"`
	CloseMean    float64  `json:"close_mean"`
	CloseMax     float64  `json:"close_max"`
	CloseMin     float64  `json:"close_min"`
	CloseLast    float64  `json:"close_last"`
	OpenFirst    float64  `json:"open_first"`
	VolumeSum    int64    `json:"volume_sum"`
	AbsVariation float64  `json:"variation_abs"`
	RelVariation *float64 `json:"variation_rel"`
}

func (s *Server) rollups(c *gin.Context) {
	id, ser, ok := s.load(c)
	if !ok {
		return
	}
	rep := rollup.Compute(ser)
	out := gin.H{"identifier": id.ReportName()}
	for _, ru := range rep.Sections() {
		rows := make([]rowView, len(ru.Rows))
		for i, row := range ru.Rows {
			rows[i] = rowView{
				PeriodEnd:    row.PeriodEnd.Format(series.DateLayout),
				CloseMean:    row.CloseMean,
				CloseMax:     row.CloseMax,
				CloseMin:     row.CloseMin,
				CloseLast:    row.CloseLast,
				OpenFirst:    row.OpenFirst,
				VolumeSum:    row.VolumeSum,
				AbsVariation: row.AbsVariation,
			}
			if rel, err := row.RelVariation(); err == nil {
				rows[i].RelVariation = &rel
			}
		}
		out[strings.ToLower(string(ru.Granularity))] = rows
	}
	c.JSON(http.StatusOK, out)
}

// load resolves the artifact named by the path and returns its series,
// writing the error response itself when it cannot.
func (s *Server) load(c *gin.Context) (series.ArtifactID, *series.Series, bool) {
	name := strings.Join([]string{c.Param("symbol"), c.Param("period"), c.Param("interval"), c.Param("date")}, "_")
	id, err := series.ParseArtifactID(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return id, nil, false
	}

	if cached, found := s.cache.Get(id.String()); found {
		return id, cached.(*series.Series), true
	}

	ser, err := s.store.Load(c.Request.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found", "identifier": id.String()})
		return id, nil, false
	case err != nil:
		s.log.Error().Err(err).Str("Identifier", id.String()).Msg("could not load artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load artifact"})
		return id, nil, false
	}

	s.cache.SetDefault(id.String(), ser)
	return id, ser, true
}
