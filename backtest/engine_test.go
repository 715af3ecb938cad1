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

package backtest_test

import (
	"math"
	"math/rand"
	"time"

	json "github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/alphamachine/am-api/backtest"
	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/data"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/alphamachine/am-api/optimize"
	"github.com/alphamachine/am-api/portfolio"
	"github.com/alphamachine/am-api/schedule"
)

// priceTable builds a deterministic random-walk price table over business
// days. Each column starts at 100 and compounds daily returns drawn from a
// seeded generator with the given per-column drift and volatility.
func priceTable(seed int64, days int, tickers []string, drifts, vols []float64) *dataframe.DataFrame {
	rng := rand.New(rand.NewSource(seed))
	tz := common.GetTimezone()

	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, tz)
	end := start.AddDate(0, 0, days*2)
	dates := data.BusinessDays(start, end)[:days]

	df := &dataframe.DataFrame{
		Dates:    dates,
		ColNames: tickers,
		Vals:     make([][]float64, len(tickers)),
	}

	for colIdx := range tickers {
		col := make([]float64, days)
		price := 100.0
		for rowIdx := range col {
			price *= 1.0 + drifts[colIdx] + rng.NormFloat64()*vols[colIdx]
			col[rowIdx] = price
		}
		df.Vals[colIdx] = col
	}

	return df
}

func equalWeightConfig() *backtest.Config {
	return &backtest.Config{
		StartBalance:     10_000,
		NumStocks:        2,
		WindowDays:       63,
		Frequency:        schedule.Monthly,
		OptimizationMode: backtest.SelectThenOptimize,
		Method:           optimize.MethodLedoitWolf,
		MinWeight:        0.0,
		MaxWeight:        1.0,
		ForceEqualWeight: true,
		UniverseMode:     backtest.UniverseStatic,
	}
}

// rebalanceDates returns the dates of the non-summary selection rows
func rebalanceDates(selections []*portfolio.SelectionDetail) []time.Time {
	dates := make([]time.Time, 0, len(selections))
	for _, sel := range selections {
		if !sel.Summary {
			dates = append(dates, sel.Date)
		}
	}
	return dates
}

var _ = Describe("When running a backtest", func() {
	var prices *dataframe.DataFrame

	BeforeEach(func() {
		prices = priceTable(42, 400,
			[]string{"AAA", "BBB", "CCC"},
			[]float64{0.0008, 0.0004, 0.0001},
			[]float64{0.01, 0.01, 0.02})
	})

	Context("with monthly equal weight over three instruments", func() {
		It("rebalances once per calendar month with usable data", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			// the first month has no lookback history so its event is
			// skipped; every later month present in the data rebalances once
			months := data.MonthsBetween(prices.Start(), prices.End())
			dates := rebalanceDates(res.Selections)
			Expect(dates).To(HaveLen(len(months) - 1))

			seen := make(map[string]int)
			for _, date := range dates {
				seen[date.Format("2006-01")]++
			}
			for _, count := range seen {
				Expect(count).To(Equal(1))
			}
		})

		It("allocates exactly two instruments at half weight each", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			byDate := make(map[time.Time][]*portfolio.AllocationRecord)
			for _, rec := range res.Allocations {
				byDate[rec.Date] = append(byDate[rec.Date], rec)
			}
			Expect(byDate).ToNot(BeEmpty())
			for _, recs := range byDate {
				Expect(recs).To(HaveLen(2))
				for _, rec := range recs {
					Expect(rec.Weight).To(BeNumerically("~", 0.5, 1e-9))
				}
			}
		})

		It("derives CAGR from the final and initial balances", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			n := res.EquityCurve.Len()
			Expect(n).To(BeNumerically(">", 300))
			final := res.EquityCurve.Vals[0][n-1]
			expected := math.Pow(final/10_000, 252.0/float64(n)) - 1.0
			Expect(res.Metrics.CAGR).To(BeNumerically("~", expected, 1e-9))
		})
	})

	Context("capital continuity", func() {
		It("funds each event with the prior period's closing value", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			amounts := make(map[time.Time]float64)
			for _, rec := range res.Allocations {
				amounts[rec.Date] += rec.Amount
			}

			dates := rebalanceDates(res.Selections)
			for idx := 1; idx < len(dates); idx++ {
				// last valuation total strictly before this rebalance
				var prevClose float64
				for _, rec := range res.Valuations {
					if rec.Date.Before(dates[idx]) {
						prevClose = rec.TotalPortfolioValue
					}
				}
				Expect(amounts[dates[idx]]).To(BeNumerically("~", prevClose, 1e-6))
			}
		})
	})

	Context("idempotence", func() {
		It("produces identical results across two runs", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			first, err := eng.Run()
			Expect(err).To(BeNil())
			second, err := eng.Run()
			Expect(err).To(BeNil())

			Expect(second.EquityCurve.Len()).To(Equal(first.EquityCurve.Len()))
			for idx, v := range first.EquityCurve.Vals[0] {
				Expect(second.EquityCurve.Vals[0][idx]).To(Equal(v))
			}

			Expect(second.Selections).To(HaveLen(len(first.Selections)))
			for idx, sel := range first.Selections {
				Expect(second.Selections[idx].SelectedTickers).To(Equal(sel.SelectedTickers))
			}
		})
	})

	Context("with an instrument that has no observations", func() {
		It("never selects the dead instrument", func() {
			dead := make([]float64, prices.Len())
			for idx := range dead {
				dead[idx] = math.NaN()
			}
			prices.Insert("GONE", dead)

			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			for _, sel := range res.Selections {
				Expect(sel.SelectedTickers).ToNot(ContainElement("GONE"))
			}
		})
	})

	Context("with trading costs", func() {
		It("reports zero costs when disabled regardless of turnover", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			summary := res.Selections[len(res.Selections)-1]
			Expect(summary.Summary).To(BeTrue())
			Expect(summary.TradingCosts).To(Equal(0.0))
			Expect(res.Metrics.TotalTradingCosts).To(Equal(0.0))
		})

		It("accumulates costs into the summary row when enabled", func() {
			cfg := equalWeightConfig()
			cfg.Costs = portfolio.CostModel{Enabled: true, FixedPerTrade: 1.0, VariablePct: 0.001}
			eng, err := backtest.New(cfg, prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			summary := res.Selections[len(res.Selections)-1]
			Expect(summary.TradingCosts).To(BeNumerically(">", 0))
			Expect(summary.TradingCostsPct).To(BeNumerically("~", summary.TradingCosts/10_000, 1e-9))
		})

		It("books costs in the valuation log only on the trade date", func() {
			cfg := equalWeightConfig()
			cfg.Costs = portfolio.CostModel{Enabled: true, FixedPerTrade: 1.0, VariablePct: 0.001}
			eng, err := backtest.New(cfg, prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			rebalanceDayCosts := 0.0
			for _, rec := range res.Valuations {
				if rec.IsRebalanceDay {
					rebalanceDayCosts += rec.TradingCosts
				} else {
					Expect(rec.TradingCosts).To(Equal(0.0))
				}
			}
			Expect(rebalanceDayCosts).To(BeNumerically(">", 0))
		})
	})

	Context("with the optimize-subset mode", func() {
		It("selects the target count and normalizes the kept weights", func() {
			cfg := equalWeightConfig()
			cfg.OptimizationMode = backtest.OptimizeSubset
			cfg.ForceEqualWeight = false
			cfg.Method = optimize.MethodMinVar
			cfg.TopUniverseSize = 3

			eng, err := backtest.New(cfg, prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			byDate := make(map[time.Time]float64)
			counts := make(map[time.Time]int)
			for _, rec := range res.Allocations {
				byDate[rec.Date] += rec.Weight
				counts[rec.Date]++
			}
			Expect(counts).ToNot(BeEmpty())
			for date, count := range counts {
				Expect(count).To(BeNumerically("<=", 2))
				Expect(byDate[date]).To(BeNumerically("~", 1.0, 1e-6))
			}
		})
	})

	Context("with invalid configuration", func() {
		It("rejects an unknown optimization mode", func() {
			cfg := equalWeightConfig()
			cfg.OptimizationMode = backtest.OptimizationMode("grid-search")
			_, err := backtest.New(cfg, prices)
			Expect(err).To(MatchError(backtest.ErrUnknownOptimizationMode))
		})

		It("rejects an unknown universe mode", func() {
			cfg := equalWeightConfig()
			cfg.UniverseMode = backtest.UniverseMode("hybrid")
			_, err := backtest.New(cfg, prices)
			Expect(err).To(MatchError(backtest.ErrUnknownUniverseMode))
		})

		It("rejects a non-positive start balance", func() {
			cfg := equalWeightConfig()
			cfg.StartBalance = 0
			_, err := backtest.New(cfg, prices)
			Expect(err).To(MatchError(backtest.ErrInvalidStartBalance))
		})
	})

	Context("json export", func() {
		It("serializes the equity curve with the rest of the bundle", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			buf, err := json.Marshal(res)
			Expect(err).To(BeNil())

			var decoded map[string]interface{}
			Expect(json.Unmarshal(buf, &decoded)).To(Succeed())
			Expect(decoded).To(HaveKey("equityCurve"))

			curve, ok := decoded["equityCurve"].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(curve["dates"]).To(HaveLen(res.EquityCurve.Len()))

			vals, ok := curve["vals"].([]interface{})
			Expect(ok).To(BeTrue())
			Expect(vals).To(HaveLen(1))
			Expect(vals[0]).To(HaveLen(res.EquityCurve.Len()))
		})
	})

	Context("next period preview", func() {
		It("produces a forward allocation from the final window", func() {
			eng, err := backtest.New(equalWeightConfig(), prices)
			Expect(err).To(BeNil())
			res, err := eng.Run()
			Expect(err).To(BeNil())

			Expect(res.NextPeriod.Tickers).To(HaveLen(2))
			total := 0.0
			for _, ticker := range res.NextPeriod.Tickers {
				Expect([]string{"AAA", "BBB", "CCC"}).To(ContainElement(ticker))
				total += res.NextPeriod.Weights[ticker]
			}
			Expect(total).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("returns an empty preview for an empty table", func() {
			empty := &dataframe.DataFrame{}
			eng, err := backtest.New(equalWeightConfig(), empty)
			Expect(err).To(BeNil())
			Expect(eng.NextPeriod().Tickers).To(BeEmpty())
		})
	})
})
