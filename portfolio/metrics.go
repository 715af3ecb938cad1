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
	"fmt"
	"math"
	"strings"

	"github.com/alphamachine/am-api/dataframe"
	"github.com/olekukonko/tablewriter"
	"gonum.org/v1/gonum/stat"
)

const (
	// TradingDaysPerYear is the annualization convention used by every
	// ratio below
	TradingDaysPerYear = 252

	// DefaultRiskFreeRate is the annual risk-free assumption used by the
	// sortino ratio
	DefaultRiskFreeRate = 0.02
)

// Metrics is the read-only performance summary derived once from the
// finalized equity curve. Ratios whose denominator is zero are NaN.
type Metrics struct {
	StartBalance          float64 `json:"startBalance"`
	EndBalance            float64 `json:"endBalance"`
	TotalReturn           float64 `json:"totalReturn"`
	CAGR                  float64 `json:"cagr"`
	AnnualVolatility      float64 `json:"annualVolatility"`
	SharpeRatio           float64 `json:"sharpeRatio"`
	MaxDrawdown           float64 `json:"maxDrawdown"`
	UlcerIndex            float64 `json:"ulcerIndex"`
	UlcerPerformanceIndex float64 `json:"ulcerPerformanceIndex"`
	SortinoRatio          float64 `json:"sortinoRatio"`
	CalmarRatio           float64 `json:"calmarRatio"`
	OmegaRatio            float64 `json:"omegaRatio"`
	PainRatio             float64 `json:"painRatio"`
	TotalTradingCosts     float64 `json:"totalTradingCosts"`
	TradingCostsPct       float64 `json:"tradingCostsPct"`
	NumDays               int     `json:"numDays"`
}

// EmptyMetrics returns the metrics value for a run that produced no equity
// curve: balances zero, every derived quantity NaN
func EmptyMetrics(startBalance float64) *Metrics {
	return &Metrics{
		StartBalance:          startBalance,
		EndBalance:            math.NaN(),
		TotalReturn:           math.NaN(),
		CAGR:                  math.NaN(),
		AnnualVolatility:      math.NaN(),
		SharpeRatio:           math.NaN(),
		MaxDrawdown:           math.NaN(),
		UlcerIndex:            math.NaN(),
		UlcerPerformanceIndex: math.NaN(),
		SortinoRatio:          math.NaN(),
		CalmarRatio:           math.NaN(),
		OmegaRatio:            math.NaN(),
		PainRatio:             math.NaN(),
		TotalTradingCosts:     0,
		TradingCostsPct:       math.NaN(),
	}
}

// CalcMetrics derives the performance summary from the finalized equity
// curve. equity must be a single-column dataframe; the function has no side
// effects and may be called repeatedly with identical results.
func CalcMetrics(equity *dataframe.DataFrame, startBalance float64, totalTradingCosts float64, riskFreeRate float64) *Metrics {
	if equity.Len() == 0 || len(equity.Vals) == 0 {
		return EmptyMetrics(startBalance)
	}

	values := equity.Vals[0]
	n := len(values)
	final := values[n-1]

	dailyReturns := make([]float64, 0, n-1)
	for ii := 1; ii < n; ii++ {
		if values[ii-1] != 0 {
			dailyReturns = append(dailyReturns, values[ii]/values[ii-1]-1.0)
		}
	}

	m := &Metrics{
		StartBalance:      startBalance,
		EndBalance:        final,
		NumDays:           n,
		TotalTradingCosts: totalTradingCosts,
		TotalReturn:       final/startBalance - 1.0,
		CAGR:              math.Pow(final/startBalance, TradingDaysPerYear/float64(n)) - 1.0,
		TradingCostsPct:   safeDiv(totalTradingCosts, startBalance),
	}

	mean, std := stat.MeanStdDev(dailyReturns, nil)
	m.AnnualVolatility = std * math.Sqrt(TradingDaysPerYear)
	m.SharpeRatio = safeDiv(mean, std) * math.Sqrt(TradingDaysPerYear)

	// drawdown series against the running peak
	drawdowns := make([]float64, n)
	peak := values[0]
	for ii, v := range values {
		peak = math.Max(peak, v)
		if peak > 0 {
			drawdowns[ii] = v/peak - 1.0
		}
	}

	maxDD := 0.0
	var sqSum, negSum float64
	negCount := 0
	for _, dd := range drawdowns {
		if dd < maxDD {
			maxDD = dd
		}
		sqSum += (dd * 100) * (dd * 100)
		if dd < 0 {
			negSum += -dd
			negCount++
		}
	}
	m.MaxDrawdown = maxDD
	m.UlcerIndex = math.Sqrt(sqSum / float64(n))
	m.UlcerPerformanceIndex = safeDiv(m.CAGR, m.UlcerIndex/100)
	m.CalmarRatio = safeDiv(m.CAGR, math.Abs(maxDD))
	if negCount > 0 {
		m.PainRatio = safeDiv(m.CAGR, negSum/float64(negCount))
	} else {
		m.PainRatio = math.NaN()
	}

	// sortino: excess return over the daily risk-free rate divided by
	// downside deviation
	dailyRf := math.Pow(1.0+riskFreeRate, 1.0/TradingDaysPerYear) - 1.0
	var downside float64
	for _, r := range dailyReturns {
		excess := r - dailyRf
		if excess < 0 {
			downside += excess * excess
		}
	}
	if len(dailyReturns) > 0 {
		downsideDev := math.Sqrt(downside / float64(len(dailyReturns)))
		m.SortinoRatio = safeDiv(mean-dailyRf, downsideDev) * math.Sqrt(TradingDaysPerYear)
	} else {
		m.SortinoRatio = math.NaN()
	}

	// omega with a zero threshold
	var gains, losses float64
	for _, r := range dailyReturns {
		if r > 0 {
			gains += r
		} else {
			losses += -r
		}
	}
	m.OmegaRatio = safeDiv(gains, losses)

	return m
}

// CalcMonthlyPerformance builds the month-end performance table from the
// finalized equity curve. The first month has no prior month-end so the
// table starts at the second month boundary.
func CalcMonthlyPerformance(equity *dataframe.DataFrame) []*MonthlyPerformance {
	monthly := make([]*MonthlyPerformance, 0, 12)
	if equity.Len() == 0 || len(equity.Vals) == 0 {
		return monthly
	}

	me := equity.MonthEnd()
	for ii := 1; ii < me.Len(); ii++ {
		prev := me.Vals[0][ii-1]
		curr := me.Vals[0][ii]
		monthly = append(monthly, &MonthlyPerformance{
			Date:       me.Dates[ii],
			EndBalance: curr,
			PnL:        curr - prev,
			PnLPct:     safeDiv(curr-prev, prev),
		})
	}

	return monthly
}

// Table renders the metrics as an ASCII table
func (m *Metrics) Table() string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)

	rows := [][]string{
		{"Start Balance", fmt.Sprintf("$%.2f", m.StartBalance)},
		{"End Balance", fmt.Sprintf("$%.2f", m.EndBalance)},
		{"Total Return", fmt.Sprintf("%.2f%%", m.TotalReturn*100)},
		{"CAGR", fmt.Sprintf("%.2f%%", m.CAGR*100)},
		{"Annual Volatility", fmt.Sprintf("%.2f%%", m.AnnualVolatility*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", m.SharpeRatio)},
		{"Sortino Ratio", fmt.Sprintf("%.2f", m.SortinoRatio)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100)},
		{"Ulcer Index", fmt.Sprintf("%.2f", m.UlcerIndex)},
		{"Ulcer Performance Index", fmt.Sprintf("%.2f", m.UlcerPerformanceIndex)},
		{"Calmar Ratio", fmt.Sprintf("%.2f", m.CalmarRatio)},
		{"Omega Ratio", fmt.Sprintf("%.2f", m.OmegaRatio)},
		{"Pain Ratio", fmt.Sprintf("%.2f", m.PainRatio)},
		{"Total Trading Costs", fmt.Sprintf("$%.2f", m.TotalTradingCosts)},
		{"Trading Costs (% of Initial)", fmt.Sprintf("%.2f%%", m.TradingCostsPct*100)},
	}
	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return s.String()
}

// safeDiv returns NaN instead of Inf when the denominator is zero
func safeDiv(num, denom float64) float64 {
	if denom == 0 {
		return math.NaN()
	}
	return num / denom
}
