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

// Package universe ranks candidate instruments by trailing risk-adjusted
// return over a lookback window
package universe

import (
	"math"
	"sort"

	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/dataframe"
	"gonum.org/v1/gonum/stat"
)

// TopSharpe returns up to k column names of the returns window ordered by
// descending trailing sharpe (mean over std of the in-window returns).
// Columns with fewer than 2 observations or zero dispersion are excluded, so
// the result may be shorter than k.
func TopSharpe(returns *dataframe.DataFrame, k int) []string {
	ranked := make(common.PairList, 0, returns.ColCount())

	for colIdx, colName := range returns.ColNames {
		obs := make([]float64, 0, len(returns.Vals[colIdx]))
		for _, v := range returns.Vals[colIdx] {
			if !math.IsNaN(v) {
				obs = append(obs, v)
			}
		}

		if len(obs) < 2 {
			continue
		}

		mean, std := stat.MeanStdDev(obs, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}

		ranked = append(ranked, common.Pair{Key: colName, Value: mean / std})
	}

	sort.Stable(sort.Reverse(ranked))

	if k > len(ranked) {
		k = len(ranked)
	}

	top := make([]string, 0, k)
	for _, pair := range ranked[:k] {
		top = append(top, pair.Key)
	}

	return top
}
