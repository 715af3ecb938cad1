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
	"time"
)

// Position is a single holding carried from one rebalance date until it is
// superseded by the next rebalance
type Position struct {
	Ticker       string  `json:"ticker"`
	Shares       float64 `json:"shares"`
	Weight       float64 `json:"weight"`
	TradingCosts float64 `json:"tradingCosts"`
}

// AllocationRecord describes one instrument's allocation at a rebalance
type AllocationRecord struct {
	Date         time.Time `json:"date"`
	Ticker       string    `json:"ticker"`
	Price        float64   `json:"price"`
	Shares       float64   `json:"shares"`
	Amount       float64   `json:"amount"`
	Weight       float64   `json:"weight"`
	TradingCosts float64   `json:"tradingCosts"`
}

// DailyValuationRecord is one row of the append-only mark-to-market log:
// one entry per (day, held instrument)
type DailyValuationRecord struct {
	Date                time.Time `json:"date"`
	Ticker              string    `json:"ticker"`
	Price               float64   `json:"price"`
	Shares              float64   `json:"shares"`
	AllocatedAmount     float64   `json:"allocatedAmount"`
	AllocatedPct        float64   `json:"allocatedPct"`
	TotalPortfolioValue float64   `json:"totalPortfolioValue"`
	IsRebalanceDay      bool      `json:"isRebalanceDay"`
	TradingCosts        float64   `json:"tradingCosts"`
}

// SelectionDetail is one row of the append-only selection audit trail. The
// terminal row has Summary set and carries the cumulative trading costs.
type SelectionDetail struct {
	Date            time.Time `json:"date"`
	Summary         bool      `json:"summary"`
	UniverseSize    int       `json:"universeSize"`
	Method          string    `json:"method"`
	CovEstimator    string    `json:"covEstimator"`
	SelectedTickers []string  `json:"selectedTickers"`
	Frequency       string    `json:"frequency"`
	TradingCosts    float64   `json:"tradingCosts"`
	TradingCostsPct float64   `json:"tradingCostsPct"`
}

// CostModel describes trading frictions applied at each rebalance
type CostModel struct {
	Enabled       bool    `json:"enabled"`
	FixedPerTrade float64 `json:"fixedPerTrade"`
	VariablePct   float64 `json:"variablePct"`
}

// MonthlyPerformance is one month-end row of the monthly return table
type MonthlyPerformance struct {
	Date       time.Time `json:"date"`
	EndBalance float64   `json:"endBalance"`
	PnL        float64   `json:"pnl"`
	PnLPct     float64   `json:"pnlPct"`
}
