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
	"errors"

	"github.com/alphamachine/am-api/optimize"
	"github.com/alphamachine/am-api/portfolio"
	"github.com/alphamachine/am-api/schedule"
)

// OptimizationMode selects how the pre-selected universe is turned into the
// final holdings at each rebalance
type OptimizationMode string

const (
	// SelectThenOptimize takes the top-n pre-selected tickers first and
	// optimizes weights over exactly those names
	SelectThenOptimize OptimizationMode = "select-then-optimize"

	// OptimizeSubset optimizes over the entire pre-selected universe, then
	// keeps the top-n weights by magnitude and re-normalizes them
	OptimizeSubset OptimizationMode = "optimize-subset"
)

// UniverseMode controls whether the engine prunes the instrument list itself
// or trusts the caller's composition verbatim
type UniverseMode string

const (
	// UniverseDynamic applies the coverage filter before the run
	UniverseDynamic UniverseMode = "dynamic"

	// UniverseStatic trusts the caller's instrument list; no pruning
	UniverseStatic UniverseMode = "static"
)

const DefaultCoverageThreshold = 0.95

var (
	ErrUnknownOptimizationMode = errors.New("unknown optimization mode")
	ErrUnknownUniverseMode     = errors.New("unknown universe mode")
	ErrInvalidStartBalance     = errors.New("start balance must be positive")
	ErrInvalidNumStocks        = errors.New("number of stocks must be >= 1")
	ErrInvalidWindowDays       = errors.New("lookback window must be >= 1 day")
)

// Config is the immutable run configuration, validated once at engine
// construction. Mutable run state lives on the engine and is reset at the
// start of every Run call.
type Config struct {
	StartBalance      float64                `json:"startBalance" mapstructure:"start_balance"`
	NumStocks         int                    `json:"numStocks" mapstructure:"num_stocks"`
	WindowDays        int                    `json:"windowDays" mapstructure:"window_days"`
	TopUniverseSize   int                    `json:"topUniverseSize" mapstructure:"top_universe_size"`
	Frequency         schedule.Frequency     `json:"frequency" mapstructure:"frequency"`
	CustomMonths      int                    `json:"customMonths" mapstructure:"custom_months"`
	OptimizationMode  OptimizationMode       `json:"optimizationMode" mapstructure:"optimization_mode"`
	Method            optimize.Method        `json:"method" mapstructure:"method"`
	CovEstimator      optimize.CovEstimator  `json:"covEstimator" mapstructure:"cov_estimator"`
	MinWeight         float64                `json:"minWeight" mapstructure:"min_weight"`
	MaxWeight         float64                `json:"maxWeight" mapstructure:"max_weight"`
	ForceEqualWeight  bool                   `json:"forceEqualWeight" mapstructure:"force_equal_weight"`
	UniverseMode      UniverseMode           `json:"universeMode" mapstructure:"universe_mode"`
	CoverageThreshold float64                `json:"coverageThreshold" mapstructure:"coverage_threshold"`
	RiskFreeRate      float64                `json:"riskFreeRate" mapstructure:"risk_free_rate"`
	Costs             portfolio.CostModel    `json:"costs" mapstructure:"costs"`
}

// Validate checks the configuration and fills defaults for the optional
// knobs. An unknown optimization or universe mode is a fatal configuration
// error.
func (cfg *Config) Validate() error {
	switch cfg.OptimizationMode {
	case SelectThenOptimize, OptimizeSubset:
	default:
		return ErrUnknownOptimizationMode
	}

	if cfg.UniverseMode == "" {
		cfg.UniverseMode = UniverseDynamic
	}
	switch cfg.UniverseMode {
	case UniverseDynamic, UniverseStatic:
	default:
		return ErrUnknownUniverseMode
	}

	if cfg.StartBalance <= 0 {
		return ErrInvalidStartBalance
	}
	if cfg.NumStocks < 1 {
		return ErrInvalidNumStocks
	}
	if cfg.WindowDays < 1 {
		return ErrInvalidWindowDays
	}
	if cfg.MinWeight > cfg.MaxWeight || cfg.MaxWeight <= 0 {
		return optimize.ErrInfeasibleBounds
	}

	if cfg.TopUniverseSize < cfg.NumStocks {
		cfg.TopUniverseSize = cfg.NumStocks
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = DefaultCoverageThreshold
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = portfolio.DefaultRiskFreeRate
	}
	if cfg.Frequency == "" {
		cfg.Frequency = schedule.Monthly
	}

	return nil
}
