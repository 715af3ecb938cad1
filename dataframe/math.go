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
	"math"
	"time"
)

// PercentChange computes the simple percent change between consecutive
// available observations of each column. The result has one fewer row than
// the input. A cell is NaN when either endpoint of the change is missing;
// gaps do not propagate beyond the missing print itself because the change
// is always taken against the last available observation.
func (df *DataFrame) PercentChange() *DataFrame {
	if df.Len() < 2 {
		return &DataFrame{
			ColNames: df.ColNames,
			Dates:    []time.Time{},
			Vals:     make([][]float64, len(df.Vals)),
		}
	}

	ret := &DataFrame{
		ColNames: df.ColNames,
		Dates:    df.Dates[1:],
		Vals:     make([][]float64, len(df.Vals)),
	}

	for colIdx, col := range df.Vals {
		retCol := make([]float64, len(col)-1)
		prev := col[0]
		for rowIdx := 1; rowIdx < len(col); rowIdx++ {
			curr := col[rowIdx]
			if math.IsNaN(curr) || math.IsNaN(prev) || prev == 0 {
				retCol[rowIdx-1] = math.NaN()
			} else {
				retCol[rowIdx-1] = curr/prev - 1.0
			}
			if !math.IsNaN(curr) {
				prev = curr
			}
		}
		ret.Vals[colIdx] = retCol
	}

	return ret
}

// MonthEnd samples the dataframe at the last available row of each calendar
// month and returns a new dataframe
func (df *DataFrame) MonthEnd() *DataFrame {
	newDates := make([]time.Time, 0, len(df.Dates)/20+1)
	newVals := make([][]float64, len(df.Vals))

	for rowIdx, date := range df.Dates {
		last := rowIdx == len(df.Dates)-1
		if !last {
			next := df.Dates[rowIdx+1]
			if next.Month() == date.Month() && next.Year() == date.Year() {
				continue
			}
		}

		newDates = append(newDates, date)
		for colIdx, col := range df.Vals {
			newVals[colIdx] = append(newVals[colIdx], col[rowIdx])
		}
	}

	return &DataFrame{
		Dates:    newDates,
		ColNames: df.ColNames,
		Vals:     newVals,
	}
}
