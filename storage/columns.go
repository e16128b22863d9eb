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

import "github.com/penny-vault/import-crypto/rollup"

// Report column names, shared by every report sink.
const (
	ColCloseMean    = "Close_mean"
	ColCloseMax     = "Close_max"
	ColCloseMin     = "Close_min"
	ColCloseLast    = "Close_last"
	ColOpenFirst    = "Open_first"
	ColVolumeSum    = "Volume_sum"
	ColVariationAbs = "variation_$_abs"
	ColVariationRel = "variation_%_rel"
)

type reportColumn struct {
	Name  string
	Value func(r rollup.Row) (float64, bool)
}

func always(f func(r rollup.Row) float64) func(r rollup.Row) (float64, bool) {
	return func(r rollup.Row) (float64, bool) { return f(r), true }
}

// reportColumns lists the report columns in output order. Value reports
// false when the value is undefined for the row.
var reportColumns = []reportColumn{
	{ColCloseMean, always(func(r rollup.Row) float64 { return r.CloseMean })},
	{ColCloseMax, always(func(r rollup.Row) float64 { return r.CloseMax })},
	{ColCloseMin, always(func(r rollup.Row) float64 { return r.CloseMin })},
	{ColCloseLast, always(func(r rollup.Row) float64 { return r.CloseLast })},
	{ColOpenFirst, always(func(r rollup.Row) float64 { return r.OpenFirst })},
	{ColVolumeSum, always(func(r rollup.Row) float64 { return float64(r.VolumeSum) })},
	{ColVariationAbs, always(func(r rollup.Row) float64 { return r.AbsVariation })},
	{ColVariationRel, func(r rollup.Row) (float64, bool) {
		v, err := r.RelVariation()
		return v, err == nil
	}},
}

// ReportColumns returns the report column names in output order.
func ReportColumns() []string {
	names := make([]string, len(reportColumns))
	for i, c := range reportColumns {
		names[i] = c.Name
	}
	return names
}
