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

package portfolio

import (
	"math"
	"time"

	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

// Allocate converts target weights and available capital into share counts
// priced at the most recent print at or before the rebalance date. Tickers
// with no usable price are skipped (their weight stays in cash). Trading
// costs are charged per executed trade against the turnover relative to
// previousPositions, including full liquidations of names that dropped out
// of the target.
func Allocate(prices *dataframe.DataFrame, tickers []string, weights map[string]float64, date time.Time, capital float64, previousPositions map[string]*Position, costs CostModel) (map[string]*Position, []*AllocationRecord) {
	positions := make(map[string]*Position, len(tickers))
	records := make([]*AllocationRecord, 0, len(tickers))

	for _, ticker := range tickers {
		weight, ok := weights[ticker]
		if !ok || weight <= 0 {
			continue
		}

		price := prices.LastValueBefore(date, ticker)
		if math.IsNaN(price) || price <= 0 {
			log.Warn().Stack().Str("Ticker", ticker).Time("Date", date).Msg("no usable price at rebalance; skipping asset")
			continue
		}

		amount := capital * weight
		shares := amount / price

		var tradedShares float64
		if prev, held := previousPositions[ticker]; held {
			tradedShares = math.Abs(shares - prev.Shares)
		} else {
			tradedShares = shares
		}

		var cost float64
		if costs.Enabled && tradedShares > 1e-9 {
			cost = costs.FixedPerTrade + tradedShares*price*costs.VariablePct
		}

		positions[ticker] = &Position{
			Ticker:       ticker,
			Shares:       shares,
			Weight:       weight,
			TradingCosts: cost,
		}

		records = append(records, &AllocationRecord{
			Date:         date,
			Ticker:       ticker,
			Price:        price,
			Shares:       shares,
			Amount:       amount,
			Weight:       weight,
			TradingCosts: cost,
		})
	}

	// liquidations: names held before that are not in the new target
	for ticker, prev := range previousPositions {
		if _, kept := positions[ticker]; kept {
			continue
		}
		if !costs.Enabled || prev.Shares <= 1e-9 {
			continue
		}

		price := prices.LastValueBefore(date, ticker)
		if math.IsNaN(price) || price <= 0 {
			// nothing to sell at a known price; the valuation loop already
			// carries this name at zero
			continue
		}

		cost := costs.FixedPerTrade + prev.Shares*price*costs.VariablePct
		records = append(records, &AllocationRecord{
			Date:         date,
			Ticker:       ticker,
			Price:        price,
			Shares:       0,
			Amount:       0,
			Weight:       0,
			TradingCosts: cost,
		})
	}

	return positions, records
}
