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
	"github.com/rs/zerolog/log"
)

// Preview is the forward-looking allocation: what the engine would buy at
// the next rebalance, given the most recent lookback window
type Preview struct {
	Tickers []string           `json:"tickers"`
	Weights map[string]float64 `json:"weights"`
}

// NextPeriod computes the next-period allocation preview using the lookback
// window ending at the last date of the data. No capital is allocated and no
// selection detail is logged. In static universe mode the preview is
// restricted to the configured instrument list with weights re-normalized
// after filtering. An empty window yields an empty preview, not an error.
func (eng *Engine) NextPeriod() *Preview {
	preview := &Preview{
		Tickers: []string{},
		Weights: map[string]float64{},
	}

	if eng.returns.Len() == 0 {
		return preview
	}

	selected, weights, _, ok := eng.selectHoldings(eng.returns.End())
	if !ok {
		return preview
	}

	if eng.cfg.UniverseMode == UniverseStatic {
		selected, weights = restrictTo(eng.universe, selected, weights)
	}

	preview.Tickers = selected
	preview.Weights = weights

	log.Info().
		Strs("Tickers", preview.Tickers).
		Msg("next period allocation preview")

	return preview
}

// restrictTo filters the selection down to the allowed instrument list and
// re-normalizes the surviving weights to sum to one
func restrictTo(allowed, selected []string, weights map[string]float64) ([]string, map[string]float64) {
	allowedSet := make(map[string]bool, len(allowed))
	for _, ticker := range allowed {
		allowedSet[ticker] = true
	}

	kept := make([]string, 0, len(selected))
	keptWeights := make(map[string]float64, len(selected))
	total := 0.0
	for _, ticker := range selected {
		if !allowedSet[ticker] {
			continue
		}
		kept = append(kept, ticker)
		keptWeights[ticker] = weights[ticker]
		total += weights[ticker]
	}

	if total > 0 {
		for ticker := range keptWeights {
			keptWeights[ticker] /= total
		}
	}

	return kept, keptWeights
}
