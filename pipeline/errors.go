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
	"errors"
	"fmt"

	"github.com/penny-vault/import-crypto/series"
)

var (
	ErrFetchFailed = errors.New("fetch failed")
	ErrNoData      = errors.New("no data")
	ErrStoreFailed = errors.New("storage failed")
)

type Reason int

const (
	FetchFailed Reason = iota + 1
	NoData
	StoreFailed
)

func (r Reason) sentinel() error {
	switch r {
	case FetchFailed:
		return ErrFetchFailed
	case NoData:
		return ErrNoData
	default:
		return ErrStoreFailed
	}
}

func (r Reason) String() string {
	return r.sentinel().Error()
}

// IngestionError reports why no series could be produced for a key. It
// matches ErrFetchFailed, ErrNoData or ErrStoreFailed with errors.Is and
// unwraps to the underlying cause.
type IngestionError struct {
	Key    series.Key
	Reason Reason
	Err    error
}

func (e *IngestionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("ingest %s: %s: %v", e.Key, e.Reason, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func (e *IngestionError) Is(target error) bool {
	return target == e.Reason.sentinel()
}
