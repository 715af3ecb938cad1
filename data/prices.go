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

package data

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/alphamachine/am-api/data/database"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

// LoadPrices reads adjusted close prices for the requested tickers from the
// eod table and pivots them into a wide date-indexed dataframe. Days where a
// ticker did not trade are NaN.
func LoadPrices(ctx context.Context, conn *database.Conn, tickers []string, begin, end time.Time) (*dataframe.DataFrame, error) {
	sql := `SELECT event_date, ticker, adj_close FROM eod
		WHERE ticker = ANY($1) AND event_date BETWEEN $2 AND $3
		ORDER BY event_date, ticker`

	rows, err := conn.Query(ctx, sql, tickers, begin, end)
	if err != nil {
		log.Error().Stack().Err(err).Str("Query", sql).Msg("could not query eod prices")
		return nil, err
	}
	defer rows.Close()

	type print struct {
		date   time.Time
		ticker string
		close  float64
	}

	prints := make([]print, 0, len(tickers)*252)
	dateSet := make(map[time.Time]struct{})
	for rows.Next() {
		var p print
		if err := rows.Scan(&p.date, &p.ticker, &p.close); err != nil {
			log.Warn().Stack().Err(err).Msg("eod row scan failed")
			continue
		}
		prints = append(prints, p)
		dateSet[p.date] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		log.Error().Stack().Err(err).Msg("eod query read failed")
		return nil, err
	}

	dates := make([]time.Time, 0, len(dateSet))
	for date := range dateSet {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	dateIdx := make(map[time.Time]int, len(dates))
	for idx, date := range dates {
		dateIdx[date] = idx
	}

	df := &dataframe.DataFrame{
		Dates:    dates,
		ColNames: tickers,
		Vals:     make([][]float64, len(tickers)),
	}

	colIdx := make(map[string]int, len(tickers))
	for idx, ticker := range tickers {
		colIdx[ticker] = idx
		col := make([]float64, len(dates))
		for jj := range col {
			col[jj] = math.NaN()
		}
		df.Vals[idx] = col
	}

	for _, p := range prints {
		if cc, ok := colIdx[p.ticker]; ok {
			df.Vals[cc][dateIdx[p.date]] = p.close
		}
	}

	return df, nil
}
