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

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alphamachine/am-api/backtest"
	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/data"
	"github.com/alphamachine/am-api/data/database"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/alphamachine/am-api/optimize"
	"github.com/alphamachine/am-api/portfolio"
	"github.com/alphamachine/am-api/schedule"
	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	csvFile      string
	tickers      []string
	beginDateStr string
	endDateStr   string
	jsonOutput   string

	startBalance      float64
	numStocks         int
	windowDays        int
	topUniverseSize   int
	frequency         string
	customMonths      int
	optimizationMode  string
	method            string
	covEstimator      string
	minWeight         float64
	maxWeight         float64
	equalWeight       bool
	universeMode      string
	coverageThreshold float64
	riskFreeRate      float64

	enableTradingCosts bool
	costFixed          float64
	costVariable       float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&csvFile, "csv", "", "Load prices from a wide CSV file instead of the database")
	backtestCmd.Flags().StringSliceVar(&tickers, "tickers", []string{}, "Tickers to load from the database")
	backtestCmd.Flags().StringVar(&beginDateStr, "begin", "", "First date of price history to load (2006-01-02)")
	backtestCmd.Flags().StringVar(&endDateStr, "end", "", "Last date of price history to load (2006-01-02)")
	backtestCmd.Flags().StringVar(&jsonOutput, "json", "", "Write the full result bundle to the given JSON file")

	backtestCmd.Flags().Float64Var(&startBalance, "start-balance", 10_000, "Initial capital")
	backtestCmd.Flags().IntVar(&numStocks, "num-stocks", 5, "Number of instruments to hold")
	backtestCmd.Flags().IntVar(&windowDays, "window-days", 126, "Lookback window in calendar days")
	backtestCmd.Flags().IntVar(&topUniverseSize, "top-universe-size", 0, "Pre-selection size; defaults to num-stocks")
	backtestCmd.Flags().StringVar(&frequency, "frequency", "monthly", "Rebalance frequency: weekly, monthly or custom")
	backtestCmd.Flags().IntVar(&customMonths, "custom-months", 0, "Month interval for the custom frequency")
	backtestCmd.Flags().StringVar(&optimizationMode, "mode", string(backtest.SelectThenOptimize), "Optimization mode: select-then-optimize or optimize-subset")
	backtestCmd.Flags().StringVar(&method, "method", string(optimize.MethodLedoitWolf), "Optimizer method: ledoit-wolf, minvar or hrp")
	backtestCmd.Flags().StringVar(&covEstimator, "cov-estimator", "", "Covariance estimator: ledoit-wolf or sample")
	backtestCmd.Flags().Float64Var(&minWeight, "min-weight", 0.0, "Minimum per-name weight")
	backtestCmd.Flags().Float64Var(&maxWeight, "max-weight", 1.0, "Maximum per-name weight")
	backtestCmd.Flags().BoolVar(&equalWeight, "equal-weight", false, "Force an equal weight allocation")
	backtestCmd.Flags().StringVar(&universeMode, "universe-mode", string(backtest.UniverseDynamic), "Universe mode: dynamic or static")
	backtestCmd.Flags().Float64Var(&coverageThreshold, "coverage-threshold", backtest.DefaultCoverageThreshold, "Minimum historical density for dynamic universe membership")
	backtestCmd.Flags().Float64Var(&riskFreeRate, "risk-free-rate", portfolio.DefaultRiskFreeRate, "Annual risk-free rate used by the sortino ratio")

	backtestCmd.Flags().BoolVar(&enableTradingCosts, "enable-trading-costs", false, "Charge trading costs at each rebalance")
	backtestCmd.Flags().Float64Var(&costFixed, "cost-fixed", 0.0, "Fixed cost per trade")
	backtestCmd.Flags().Float64Var(&costVariable, "cost-variable", 0.0, "Variable cost as a fraction of traded value")
}

func loadPrices(ctx context.Context) (*dataframe.DataFrame, error) {
	if csvFile != "" {
		return data.LoadCSV(csvFile)
	}

	if len(tickers) == 0 {
		return nil, fmt.Errorf("either --csv or --tickers is required")
	}
	common.ArrToUpper(tickers)

	tz := common.GetTimezone()
	begin := time.Date(1990, time.January, 1, 0, 0, 0, 0, tz)
	end := time.Now().In(tz)
	var err error
	if beginDateStr != "" {
		if begin, err = time.ParseInLocation("2006-01-02", beginDateStr, tz); err != nil {
			return nil, err
		}
	}
	if endDateStr != "" {
		if end, err = time.ParseInLocation("2006-01-02", endDateStr, tz); err != nil {
			return nil, err
		}
	}

	conn, err := database.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	return data.LoadPrices(ctx, conn, tickers, begin, end)
}

var backtestCmd = &cobra.Command{
	Use:   "backtest [flags]",
	Short: "Run a portfolio rebalancing backtest",
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()

		ctx := context.Background()
		prices, err := loadPrices(ctx)
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("could not load prices")
		}

		cfg := &backtest.Config{
			StartBalance:      startBalance,
			NumStocks:         numStocks,
			WindowDays:        windowDays,
			TopUniverseSize:   topUniverseSize,
			Frequency:         schedule.Frequency(frequency),
			CustomMonths:      customMonths,
			OptimizationMode:  backtest.OptimizationMode(optimizationMode),
			Method:            optimize.Method(method),
			CovEstimator:      optimize.CovEstimator(covEstimator),
			MinWeight:         minWeight,
			MaxWeight:         maxWeight,
			ForceEqualWeight:  equalWeight,
			UniverseMode:      backtest.UniverseMode(universeMode),
			CoverageThreshold: coverageThreshold,
			RiskFreeRate:      riskFreeRate,
			Costs: portfolio.CostModel{
				Enabled:       enableTradingCosts,
				FixedPerTrade: costFixed,
				VariablePct:   costVariable,
			},
		}

		eng, err := backtest.New(cfg, prices)
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("could not construct backtest engine")
		}

		res, err := eng.Run()
		if err != nil {
			log.Fatal().Stack().Err(err).Msg("backtest run failed")
		}

		fmt.Println(res.Metrics.Table())
		fmt.Println(monthlyTable(res.Monthly))
		fmt.Println(selectionTable(res.Selections, 12))
		fmt.Println(previewTable(res.NextPeriod))

		if len(res.MissingMonths) > 0 {
			fmt.Printf("Months with no rebalance: %s\n", strings.Join(res.MissingMonths, ", "))
		}

		if jsonOutput != "" {
			if err := writeJSON(jsonOutput, res); err != nil {
				log.Fatal().Stack().Err(err).Str("FileName", jsonOutput).Msg("could not write result bundle")
			}
		}
	},
}

func monthlyTable(monthly []*portfolio.MonthlyPerformance) string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Month", "End Balance", "PnL", "PnL %"})
	table.SetBorder(false)

	for _, row := range monthly {
		table.Append([]string{
			row.Date.Format("2006-01"),
			fmt.Sprintf("$%.2f", row.EndBalance),
			fmt.Sprintf("$%.2f", row.PnL),
			fmt.Sprintf("%.2f%%", row.PnLPct*100),
		})
	}

	table.Render()
	return s.String()
}

// selectionTable renders the last n selection rows (plus the summary row)
func selectionTable(selections []*portfolio.SelectionDetail, n int) string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Date", "Universe", "Method", "Tickers"})
	table.SetBorder(false)

	if len(selections) > n {
		selections = selections[len(selections)-n:]
	}

	for _, sel := range selections {
		if sel.Summary {
			table.Append([]string{
				sel.Date.Format("2006-01-02"),
				"SUMMARY",
				"",
				fmt.Sprintf("costs $%.2f (%.2f%%)", sel.TradingCosts, sel.TradingCostsPct*100),
			})
			continue
		}
		table.Append([]string{
			sel.Date.Format("2006-01-02"),
			fmt.Sprintf("%d", sel.UniverseSize),
			sel.Method,
			strings.Join(sel.SelectedTickers, " "),
		})
	}

	table.Render()
	return s.String()
}

func previewTable(preview *backtest.Preview) string {
	s := &strings.Builder{}
	table := tablewriter.NewWriter(s)
	table.SetHeader([]string{"Next Period Ticker", "Weight"})
	table.SetBorder(false)

	for _, ticker := range preview.Tickers {
		table.Append([]string{ticker, fmt.Sprintf("%.2f%%", preview.Weights[ticker]*100)})
	}

	table.Render()
	return s.String()
}

func writeJSON(fn string, res *backtest.Result) error {
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(fn, raw, 0644)
}
