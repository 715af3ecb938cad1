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

package backtest

import (
	"math"
	"time"

	"github.com/alphamachine/am-api/data"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

// ExcludedInstrument describes an instrument dropped by the coverage filter
type ExcludedInstrument struct {
	Ticker         string         `json:"ticker"`
	FirstObs       time.Time      `json:"firstObs"`
	LastObs        time.Time      `json:"lastObs"`
	Coverage       float64        `json:"coverage"`
	MissingDays    int            `json:"missingDays"`
	MissingByMonth map[string]int `json:"missingByMonth"`
}

// CoverageReport lists the outcome of the coverage filter
type CoverageReport struct {
	Threshold float64               `json:"threshold"`
	Retained  []string              `json:"retained"`
	Excluded  []*ExcludedInstrument `json:"excluded"`
}

// FilterCoverage narrows the price table to the instruments whose historical
// density meets the threshold. Coverage is the count of observations divided
// by the business-day length of the table's full date range. Excluded
// instruments are reported with their observed span, coverage ratio, and
// missing days aggregated per calendar month.
func FilterCoverage(prices *dataframe.DataFrame, threshold float64) (*dataframe.DataFrame, *CoverageReport) {
	report := &CoverageReport{
		Threshold: threshold,
		Retained:  make([]string, 0, prices.ColCount()),
		Excluded:  make([]*ExcludedInstrument, 0),
	}

	if prices.Len() == 0 {
		return prices, report
	}

	rangeDays := data.BusinessDays(prices.Start(), prices.End())
	rangeLen := float64(len(rangeDays))

	// trading days present in the index, for the per-month missing report
	present := make(map[time.Time]int, prices.Len())
	for rowIdx, date := range prices.Dates {
		present[date] = rowIdx
	}

	for colIdx, ticker := range prices.ColNames {
		var obsCount int
		var firstObs, lastObs time.Time
		for rowIdx, v := range prices.Vals[colIdx] {
			if math.IsNaN(v) {
				continue
			}
			obsCount++
			if firstObs.IsZero() {
				firstObs = prices.Dates[rowIdx]
			}
			lastObs = prices.Dates[rowIdx]
		}

		coverage := float64(obsCount) / rangeLen
		if coverage >= threshold {
			report.Retained = append(report.Retained, ticker)
			continue
		}

		excluded := &ExcludedInstrument{
			Ticker:         ticker,
			FirstObs:       firstObs,
			LastObs:        lastObs,
			Coverage:       coverage,
			MissingByMonth: make(map[string]int),
		}
		for _, day := range rangeDays {
			rowIdx, traded := present[day]
			if traded && !math.IsNaN(prices.Vals[colIdx][rowIdx]) {
				continue
			}
			excluded.MissingDays++
			excluded.MissingByMonth[day.Format("2006-01")]++
		}
		report.Excluded = append(report.Excluded, excluded)

		log.Warn().
			Str("Ticker", ticker).
			Float64("Coverage", coverage).
			Time("FirstObs", firstObs).
			Time("LastObs", lastObs).
			Msg("insufficient history; excluding from universe")
	}

	return prices.Select(report.Retained...), report
}
