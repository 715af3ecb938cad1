// Copyright 2024-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataframe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ColIndex gets the index of the specified column; returns -1 if column doesn't exist
func (df *DataFrame) ColIndex(colName string) int {
	for idx, val := range df.ColNames {
		if colName == val {
			return idx
		}
	}

	return -1
}

// ColCount returns the number of columns in the dataframe
func (df *DataFrame) ColCount() int {
	return len(df.ColNames)
}

// Copy creates a copy of the dataframe
func (df *DataFrame) Copy() *DataFrame {
	df2 := &DataFrame{
		ColNames: make([]string, len(df.ColNames)),
		Dates:    make([]time.Time, len(df.Dates)),
		Vals:     make([][]float64, len(df.Vals)),
	}

	copy(df2.ColNames, df.ColNames)
	copy(df2.Dates, df.Dates)

	for idx := range df2.Vals {
		df2.Vals[idx] = make([]float64, len(df.Vals[idx]))
		copy(df2.Vals[idx], df.Vals[idx])
	}

	return df2
}

// Len returns the number of rows in the dataframe
func (df *DataFrame) Len() int {
	return len(df.Dates)
}

// Start returns the first date of the dataframe
func (df *DataFrame) Start() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[0]
}

// End returns the last date of the dataframe
func (df *DataFrame) End() time.Time {
	if len(df.Dates) == 0 {
		return time.Time{}
	}
	return df.Dates[len(df.Dates)-1]
}

// Validate checks the date index invariants: strictly increasing, no duplicates
func (df *DataFrame) Validate() error {
	for idx := 1; idx < len(df.Dates); idx++ {
		if df.Dates[idx].Equal(df.Dates[idx-1]) {
			return ErrDuplicateDate
		}
		if df.Dates[idx].Before(df.Dates[idx-1]) {
			return ErrUnsortedDates
		}
	}
	return nil
}

// Insert a new column to the end of the dataframe
func (df *DataFrame) Insert(name string, col []float64) *DataFrame {
	df.ColNames = append(df.ColNames, name)
	df.Vals = append(df.Vals, col)
	return df
}

// Select returns a new dataframe restricted to the requested columns, in the
// requested order. Columns that do not exist are skipped.
func (df *DataFrame) Select(columns ...string) *DataFrame {
	df2 := &DataFrame{
		Dates:    df.Dates,
		ColNames: make([]string, 0, len(columns)),
		Vals:     make([][]float64, 0, len(columns)),
	}

	for _, col := range columns {
		if idx := df.ColIndex(col); idx != -1 {
			df2.ColNames = append(df2.ColNames, col)
			df2.Vals = append(df2.Vals, df.Vals[idx])
		}
	}

	return df2
}

// DropEmptyCols removes columns that have no non-NaN observation and returns
// a new dataframe sharing the underlying value slices
func (df *DataFrame) DropEmptyCols() *DataFrame {
	df2 := &DataFrame{
		Dates:    df.Dates,
		ColNames: make([]string, 0, len(df.ColNames)),
		Vals:     make([][]float64, 0, len(df.Vals)),
	}

	for colIdx, colName := range df.ColNames {
		empty := true
		for _, v := range df.Vals[colIdx] {
			if !math.IsNaN(v) {
				empty = false
				break
			}
		}
		if !empty {
			df2.ColNames = append(df2.ColNames, colName)
			df2.Vals = append(df2.Vals, df.Vals[colIdx])
		}
	}

	return df2
}

// DropEmptyRows removes rows where every column is NaN (in place)
func (df *DataFrame) DropEmptyRows() *DataFrame {
	newVals := make([][]float64, len(df.Vals))
	newDates := make([]time.Time, 0, len(df.Dates))

	for rowIdx, date := range df.Dates {
		empty := true
		for _, col := range df.Vals {
			if !math.IsNaN(col[rowIdx]) {
				empty = false
				break
			}
		}

		if !empty {
			newDates = append(newDates, date)
			for colIdx, col := range df.Vals {
				newVals[colIdx] = append(newVals[colIdx], col[rowIdx])
			}
		}
	}

	df.Vals = newVals
	df.Dates = newDates
	return df
}

// FillNA replaces every NaN cell with the given value (in place)
func (df *DataFrame) FillNA(val float64) *DataFrame {
	for colIdx := range df.Vals {
		for rowIdx := range df.Vals[colIdx] {
			if math.IsNaN(df.Vals[colIdx][rowIdx]) {
				df.Vals[colIdx][rowIdx] = val
			}
		}
	}
	return df
}

// Trim the dataframe to the specified date range (inclusive)
func (df *DataFrame) Trim(begin, end time.Time) *DataFrame {
	df2 := &DataFrame{
		ColNames: df.ColNames,
		Dates:    df.Dates,
		Vals:     df.Vals,
	}

	// special case 0: requested range is invalid
	if end.Before(begin) {
		df2.Dates = []time.Time{}
		df2.Vals = make([][]float64, len(df.Vals))
		return df2
	}

	// special case 1: data frame is empty
	if df.Len() == 0 {
		return df2
	}

	// special case 2: requested range is outside of the data frame
	if end.Before(df.Dates[0]) || begin.After(df.Dates[len(df.Dates)-1]) {
		df2.Dates = []time.Time{}
		df2.Vals = make([][]float64, len(df.Vals))
		return df2
	}

	// Use binary search to find the index corresponding to the start and end times
	beginIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(begin)
	})

	endIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(end)
	})

	if endIdx != len(df.Dates) && df.Dates[endIdx].Equal(end) {
		endIdx++
	}

	df2.Dates = df.Dates[beginIdx:endIdx]
	df2.Vals = make([][]float64, len(df.Vals))
	for colIdx, col := range df.Vals {
		df2.Vals[colIdx] = col[beginIdx:endIdx]
	}

	return df2
}

// ValueAt returns the cell for the given date and column; NaN when either
// the date or the column is not present
func (df *DataFrame) ValueAt(date time.Time, colName string) float64 {
	colIdx := df.ColIndex(colName)
	if colIdx == -1 {
		return math.NaN()
	}

	rowIdx := sort.Search(len(df.Dates), func(i int) bool {
		return !df.Dates[i].Before(date)
	})
	if rowIdx == len(df.Dates) || !df.Dates[rowIdx].Equal(date) {
		return math.NaN()
	}

	return df.Vals[colIdx][rowIdx]
}

// LastValueBefore returns the most recent non-NaN observation for colName at
// or before date; NaN when no such observation exists
func (df *DataFrame) LastValueBefore(date time.Time, colName string) float64 {
	colIdx := df.ColIndex(colName)
	if colIdx == -1 {
		return math.NaN()
	}

	rowIdx := sort.Search(len(df.Dates), func(i int) bool {
		return df.Dates[i].After(date)
	})

	for rowIdx--; rowIdx >= 0; rowIdx-- {
		if v := df.Vals[colIdx][rowIdx]; !math.IsNaN(v) {
			return v
		}
	}

	return math.NaN()
}

// Table prints an ASCII formatted table to stdout
func (df *DataFrame) Table() string {
	if len(df.Dates) == 0 {
		return "<NO DATA>" // nothing to do as there is no data available in the dataframe
	}

	// construct table header
	tableCols := append([]string{"Date"}, df.ColNames...)

	// initialize table
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader(tableCols)
	footer := make([]string, len(tableCols))
	footer[0] = "Num Rows"
	footer[1] = fmt.Sprintf("%d", df.Len())
	table.SetFooter(footer)
	table.SetBorder(false)

	for idx, date := range df.Dates {
		row := make([]string, 0, len(df.Vals)+1)
		row = append(row, date.Format("2006-01-02"))
		for _, col := range df.Vals {
			row = append(row, fmt.Sprintf("%.4f", col[idx]))
		}
		table.Append(row)
	}

	table.Render()
	return s.String()
}
