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
package series

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// IDDateLayout is the fetch date embedded in artifact names.
	IDDateLayout   = "20060102"
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05"

	reportPrefix = "Analytics_"
)

// ArtifactID names the artifact persisted for a key on one calendar day.
// The embedded date is the freshness marker: an artifact is fresh iff its
// date equals today's.
type ArtifactID struct {
	Key  Key
	Date time.Time
}

// NewArtifactID returns the id for key on the calendar day of now, as seen
// in now's location.
func NewArtifactID(key Key, now time.Time) ArtifactID {
	y, m, d := now.Date()
	return ArtifactID{Key: key, Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// String is {base}_{period}_{interval}_{YYYYMMDD}.
func (id ArtifactID) String() string {
	return fmt.Sprintf("%s_%s_%s_%s", id.Key.Base(), id.Key.Period, id.Key.Interval, id.Date.Format(IDDateLayout))
}

// ReportName is the name of the rollup report derived from this artifact.
func (id ArtifactID) ReportName() string {
	return reportPrefix + id.String()
}

// SameDay reports whether id was produced on the calendar day of now.
func (id ArtifactID) SameDay(now time.Time) bool {
	return NewArtifactID(id.Key, now).Date.Equal(id.Date)
}

// ParseArtifactID parses a raw or report artifact name, with or without a
// file extension or directory.
func ParseArtifactID(name string) (ArtifactID, error) {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, reportPrefix)

	parts := strings.Split(base, "_")
	if len(parts) != 4 {
		return ArtifactID{}, fmt.Errorf("%w: artifact name %q", ErrInvalidKey, name)
	}

	symbol := parts[0]
	if !strings.Contains(symbol, "-") {
		symbol += "-" + QuoteCurrency
	}
	key, err := NewKey(symbol, parts[1], parts[2])
	if err != nil {
		return ArtifactID{}, err
	}
	date, err := time.Parse(IDDateLayout, parts[3])
	if err != nil {
		return ArtifactID{}, fmt.Errorf("%w: artifact date %q: %v", ErrInvalidKey, parts[3], err)
	}
	return ArtifactID{Key: key, Date: date}, nil
}
