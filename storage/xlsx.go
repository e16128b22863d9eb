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
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/penny-vault/import-crypto/rollup"
	"github.com/penny-vault/import-crypto/series"
)

// XLSXSink writes one workbook per report with a sheet per non-empty
// granularity.
type XLSXSink struct {
	Layout Layout
}

func NewXLSXSink(root string) *XLSXSink {
	return &XLSXSink{Layout: Layout{Root: root, Ext: ".xlsx"}}
}

func (x *XLSXSink) Exists(_ context.Context, id series.ArtifactID) (bool, error) {
	return fileExists(x.Layout.ReportPath(id))
}

func (x *XLSXSink) Write(ctx context.Context, id series.ArtifactID, report rollup.Report) (string, error) {
	fn := x.Layout.ReportPath(id)
	ok, err := x.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if ok {
		return fn, ErrAlreadyExists
	}
	sections := report.Sections()
	if len(sections) == 0 {
		return "", ErrEmptyReport
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sec := range sections {
		name := string(sec.Granularity)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return "", err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return "", err
		}
		if err := writeSheet(f, name, sec); err != nil {
			return "", fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	err = writeAtomic(fn, func(fh *os.File) error {
		return f.Write(fh)
	})
	if err != nil {
		return "", err
	}
	return fn, nil
}

func writeSheet(f *excelize.File, sheet string, ru rollup.Rollup) error {
	header := append([]interface{}{series.ColumnDate}, stringsToCells(ReportColumns())...)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, row := range ru.Rows {
		cells := make([]interface{}, 0, len(reportColumns)+1)
		cells = append(cells, row.PeriodEnd.Format(series.DateLayout))
		for _, col := range reportColumns {
			if v, ok := col.Value(row); ok {
				cells = append(cells, v)
			} else {
				cells = append(cells, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

func stringsToCells(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// ReadXLSX returns the sheets of a report workbook as rows of cell text,
// header first.
func ReadXLSX(fn string) (map[string][][]string, error) {
	f, err := excelize.OpenFile(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string][][]string)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		out[sheet] = rows
	}
	return out, nil
}
