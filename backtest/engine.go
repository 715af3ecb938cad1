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

// Package backtest drives the time-stepped rebalancing simulation: walk the
// rebalance schedule in order, re-select and re-weight holdings at each
// event, mark the portfolio to market daily, and derive performance
// statistics from the realized equity curve. A single run is strictly
// sequential because each event's capital is whatever the previous holdings
// were worth on the last day of the previous period; concurrent sweeps must
// each own an independent engine.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/data"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/alphamachine/am-api/optimize"
	"github.com/alphamachine/am-api/portfolio"
	"github.com/alphamachine/am-api/schedule"
	"github.com/alphamachine/am-api/universe"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Result bundles everything a single run produces
type Result struct {
	RunID         string                            `json:"runId"`
	EquityCurve   *dataframe.DataFrame              `json:"equityCurve"`
	Valuations    []*portfolio.DailyValuationRecord `json:"valuations"`
	Selections    []*portfolio.SelectionDetail      `json:"selections"`
	Allocations   []*portfolio.AllocationRecord     `json:"allocations"`
	Metrics       *portfolio.Metrics                `json:"metrics"`
	Monthly       []*portfolio.MonthlyPerformance   `json:"monthly"`
	Coverage      *CoverageReport                   `json:"coverage,omitempty"`
	MissingMonths []string                          `json:"missingMonths"`
	NextPeriod    *Preview                          `json:"nextPeriod"`
}

// Engine owns one backtest configuration and its working price table. Run
// may be called repeatedly; each call starts from fresh state and identical
// inputs produce identical results.
type Engine struct {
	cfg      *Config
	prices   *dataframe.DataFrame
	returns  *dataframe.DataFrame
	universe []string
	coverage *CoverageReport
}

// New validates the configuration and prepares the working price table. In
// dynamic universe mode the coverage filter narrows the table before the
// first run; in static mode the caller's instrument list is trusted
// verbatim.
func New(cfg *Config, prices *dataframe.DataFrame) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		log.Error().Stack().Err(err).Msg("invalid backtest configuration")
		return nil, err
	}
	if err := prices.Validate(); err != nil {
		log.Error().Stack().Err(err).Msg("price table failed validation")
		return nil, err
	}

	eng := &Engine{
		cfg:    cfg,
		prices: prices,
	}

	if cfg.UniverseMode == UniverseDynamic {
		eng.prices, eng.coverage = FilterCoverage(prices, cfg.CoverageThreshold)
	}

	eng.universe = make([]string, len(eng.prices.ColNames))
	copy(eng.universe, eng.prices.ColNames)
	eng.returns = eng.prices.PercentChange()

	return eng, nil
}

// Run executes the full simulation and returns the result bundle. All run
// state is local to the call.
func (eng *Engine) Run() (*Result, error) {
	events, err := schedule.Build(eng.prices, eng.cfg.Frequency, eng.cfg.CustomMonths)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:         uuid.NewString(),
		Valuations:    make([]*portfolio.DailyValuationRecord, 0, eng.prices.Len()*eng.cfg.NumStocks),
		Selections:    make([]*portfolio.SelectionDetail, 0, len(events)+1),
		Allocations:   make([]*portfolio.AllocationRecord, 0, len(events)*eng.cfg.NumStocks),
		Coverage:      eng.coverage,
		MissingMonths: []string{},
	}

	balance := eng.cfg.StartBalance
	positions := make(map[string]*portfolio.Position)
	totalCosts := 0.0

	curveDates := make([]time.Time, 0, eng.prices.Len())
	curveVals := make([]float64, 0, eng.prices.Len())
	rebalancedMonths := make(map[string]bool, len(events))

	for _, event := range events {
		selected, weights, universeSize, ok := eng.selectHoldings(event.RebalanceDate)
		if !ok {
			log.Warn().
				Time("RebalanceDate", event.RebalanceDate).
				Msg("no instruments available in lookback window; skipping event")
			continue
		}

		rebalancedMonths[event.RebalanceDate.Format("2006-01")] = true

		res.Selections = append(res.Selections, &portfolio.SelectionDetail{
			Date:            event.RebalanceDate,
			UniverseSize:    universeSize,
			Method:          string(eng.cfg.Method),
			CovEstimator:    string(eng.cfg.CovEstimator),
			SelectedTickers: selected,
			Frequency:       string(eng.cfg.Frequency),
		})

		newPositions, records := portfolio.Allocate(eng.prices, selected, weights, event.RebalanceDate, balance, positions, eng.cfg.Costs)
		if len(newPositions) == 0 {
			// nothing tradable at this event; keep prior holdings and balance
			log.Warn().
				Time("RebalanceDate", event.RebalanceDate).
				Msg("allocator produced no positions; keeping prior holdings")
			continue
		}
		positions = newPositions
		res.Allocations = append(res.Allocations, records...)
		for _, rec := range records {
			totalCosts += rec.TradingCosts
		}

		// daily mark-to-market across the holding period; the last day's
		// total is the capital available to the next event
		period := eng.prices.Trim(event.PeriodStart, event.PeriodEnd)
		held := sortedTickers(positions)
		for _, day := range period.Dates {
			dayRecords := make([]*portfolio.DailyValuationRecord, 0, len(held))
			total := 0.0
			for _, ticker := range held {
				pos := positions[ticker]
				price := eng.prices.ValueAt(day, ticker)
				amount := 0.0
				if !math.IsNaN(price) {
					amount = pos.Shares * price
				} else {
					price = 0
				}
				total += amount

				rebalanceDay := day.Equal(event.RebalanceDate)
				costs := 0.0
				if rebalanceDay {
					// costs are incurred once, on the trade date
					costs = pos.TradingCosts
				}
				dayRecords = append(dayRecords, &portfolio.DailyValuationRecord{
					Date:            day,
					Ticker:          ticker,
					Price:           price,
					Shares:          pos.Shares,
					AllocatedAmount: amount,
					IsRebalanceDay:  rebalanceDay,
					TradingCosts:    costs,
				})
			}

			for _, rec := range dayRecords {
				rec.TotalPortfolioValue = total
				if total > 0 {
					rec.AllocatedPct = rec.AllocatedAmount / total
				}
			}
			res.Valuations = append(res.Valuations, dayRecords...)

			curveDates = append(curveDates, day)
			curveVals = append(curveVals, total)
			balance = total
		}
	}

	res.EquityCurve = (&dataframe.DataFrame{
		Dates:    curveDates,
		ColNames: []string{"BALANCE"},
		Vals:     [][]float64{curveVals},
	}).DropEmptyRows()

	res.Selections = append(res.Selections, &portfolio.SelectionDetail{
		Date:            eng.prices.End(),
		Summary:         true,
		Frequency:       string(eng.cfg.Frequency),
		TradingCosts:    totalCosts,
		TradingCostsPct: totalCosts / eng.cfg.StartBalance,
	})

	if eng.prices.Len() > 0 {
		for _, month := range data.MonthsBetween(eng.prices.Start(), eng.prices.End()) {
			if !rebalancedMonths[month] {
				res.MissingMonths = append(res.MissingMonths, month)
			}
		}
	}
	if len(res.MissingMonths) > 0 {
		log.Info().
			Strs("Months", res.MissingMonths).
			Msg("calendar months with no rebalance event")
	}

	res.Metrics = portfolio.CalcMetrics(res.EquityCurve, eng.cfg.StartBalance, totalCosts, eng.cfg.RiskFreeRate)
	res.Monthly = portfolio.CalcMonthlyPerformance(res.EquityCurve)
	res.NextPeriod = eng.NextPeriod()

	return res, nil
}

// selectHoldings runs the pre-selection and optimization branch for a
// rebalance date and returns the chosen tickers with their weights. ok is
// false when the lookback window has no usable instruments.
func (eng *Engine) selectHoldings(rebalanceDate time.Time) ([]string, map[string]float64, int, bool) {
	windowBegin := rebalanceDate.AddDate(0, 0, -eng.cfg.WindowDays)
	window := eng.returns.Trim(windowBegin, rebalanceDate).DropEmptyCols()

	available := window.ColCount()
	if available == 0 {
		return nil, nil, 0, false
	}

	n := eng.cfg.NumStocks
	if available < n {
		log.Warn().
			Time("RebalanceDate", rebalanceDate).
			Int("Available", available).
			Int("Requested", n).
			Msg("fewer instruments than target; degrading target count")
		n = available
	}

	candidates := universe.TopSharpe(window, eng.cfg.TopUniverseSize)
	if len(candidates) == 0 {
		return nil, nil, 0, false
	}
	if n > len(candidates) {
		n = len(candidates)
	}

	var selected []string
	var weights map[string]float64
	var err error

	switch eng.cfg.OptimizationMode {
	case SelectThenOptimize:
		selected = candidates[:n]
		weights, err = eng.optimizeWeights(window, selected)
	case OptimizeSubset:
		weights, err = eng.optimizeWeights(window, candidates)
		if err == nil {
			selected, weights = topWeights(weights, n)
		}
	}
	if err != nil {
		log.Warn().Stack().Err(err).
			Time("RebalanceDate", rebalanceDate).
			Msg("optimization failed; skipping event")
		return nil, nil, 0, false
	}

	return selected, weights, available, true
}

// optimizeWeights calls the optimizer on the given subset of the window.
// Missing cells are treated as zero return before optimization.
func (eng *Engine) optimizeWeights(window *dataframe.DataFrame, tickers []string) (map[string]float64, error) {
	sub := window.Select(tickers...).Copy().FillNA(0)
	return optimize.Weights(&optimize.Request{
		Returns:          sub,
		Method:           eng.cfg.Method,
		CovEstimator:     eng.cfg.CovEstimator,
		Constraints:      optimize.Constraints{MinWeight: eng.cfg.MinWeight, MaxWeight: eng.cfg.MaxWeight},
		ForceEqualWeight: eng.cfg.ForceEqualWeight,
	})
}

// topWeights keeps the n largest weights by magnitude and re-normalizes the
// survivors to sum to one
func topWeights(weights map[string]float64, n int) ([]string, map[string]float64) {
	tickers := make([]string, 0, len(weights))
	for ticker := range weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	ranked := make(common.PairList, 0, len(weights))
	for _, ticker := range tickers {
		ranked = append(ranked, common.Pair{Key: ticker, Value: math.Abs(weights[ticker])})
	}
	sort.Stable(sort.Reverse(ranked))

	if n > len(ranked) {
		n = len(ranked)
	}

	selected := make([]string, 0, n)
	kept := make(map[string]float64, n)
	total := 0.0
	for _, pair := range ranked[:n] {
		selected = append(selected, pair.Key)
		kept[pair.Key] = weights[pair.Key]
		total += weights[pair.Key]
	}
	if total > 0 {
		for ticker := range kept {
			kept[ticker] /= total
		}
	}

	return selected, kept
}

func sortedTickers(positions map[string]*portfolio.Position) []string {
	tickers := make([]string, 0, len(positions))
	for ticker := range positions {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}
