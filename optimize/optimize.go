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

// Package optimize maps a window of instrument returns to a portfolio
// weight vector. Methods are pluggable strategies registered by id; all of
// them share one bounds policy: anything below MinWeight is dropped to
// zero, the survivors are renormalized, weights above MaxWeight are capped,
// and the sequence repeats until every weight is zero or inside the bounds.
// The final vector sums to at most 1.
package optimize

import (
	"errors"
	"math"

	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

type Method string

const (
	MethodLedoitWolf Method = "ledoit-wolf"
	MethodMinVar     Method = "minvar"
	MethodHRP        Method = "hrp"
)

type CovEstimator string

const (
	CovLedoitWolf CovEstimator = "ledoit-wolf"
	CovSample     CovEstimator = "sample"
)

var (
	ErrUnknownMethod       = errors.New("unknown optimizer method")
	ErrUnknownCovEstimator = errors.New("unknown covariance estimator")
	ErrNoAssets            = errors.New("cannot optimize an empty universe")
	ErrSingularCovariance  = errors.New("covariance matrix is singular")
	ErrInfeasibleBounds    = errors.New("weight bounds are infeasible")
)

// Constraints are the per-name weight bounds applied to every method
type Constraints struct {
	MinWeight float64
	MaxWeight float64
}

// Request carries everything a strategy needs to produce weights. Returns
// must be NaN-free; the caller owns the missing-data policy.
type Request struct {
	Returns          *dataframe.DataFrame
	Method           Method
	CovEstimator     CovEstimator
	Constraints      Constraints
	ForceEqualWeight bool
}

// strategy computes raw (pre-bounds) weights for the columns of the request
type strategy func(req *Request) ([]float64, error)

var strategies = map[Method]strategy{
	MethodLedoitWolf: minVarWeights,
	MethodMinVar:     minVarWeights,
	MethodHRP:        hrpWeights,
}

// Weights runs the requested strategy and applies the bounds policy. The
// result maps ticker to final weight; tickers dropped by the minimum-weight
// threshold are omitted from the map.
func Weights(req *Request) (map[string]float64, error) {
	n := req.Returns.ColCount()
	if n == 0 {
		return nil, ErrNoAssets
	}

	if req.Constraints.MinWeight > req.Constraints.MaxWeight || req.Constraints.MaxWeight <= 0 {
		return nil, ErrInfeasibleBounds
	}

	var raw []float64
	var err error

	if req.ForceEqualWeight {
		raw = equalWeights(n)
	} else {
		strat, ok := strategies[req.Method]
		if !ok {
			log.Error().Stack().Str("Method", string(req.Method)).Msg("unknown optimizer method")
			return nil, ErrUnknownMethod
		}
		raw, err = strat(req)
		if err != nil {
			return nil, err
		}
	}

	final := applyBounds(raw, req.Constraints)

	weights := make(map[string]float64, n)
	for colIdx, colName := range req.Returns.ColNames {
		if final[colIdx] > 0 {
			weights[colName] = final[colIdx]
		}
	}

	return weights, nil
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for ii := range w {
		w[ii] = 1.0 / float64(n)
	}
	return w
}

// applyBounds implements the shared clip-then-renormalize policy:
//  1. negative weights and weights below MinWeight are dropped to zero
//  2. survivors are renormalized to sum 1
//  3. weights above MaxWeight are capped and the excess is redistributed to
//     the uncapped names until stable
//
// Renormalizing can scale a small survivor back below the minimum (a dropped
// short leaves the positives summing above one), so the three steps repeat
// until the survivor set is stable: every final weight is either zero or
// within [MinWeight, MaxWeight]. When every surviving name is capped the
// total is n*MaxWeight which may be below 1; that shortfall stays in cash.
func applyBounds(raw []float64, c Constraints) []float64 {
	w := make([]float64, len(raw))
	copy(w, raw)

	for ii, v := range w {
		if math.IsNaN(v) || v < 0 {
			w[ii] = 0
		}
	}

	// each pass drops at least one new name or terminates
	for pass := 0; pass <= len(w); pass++ {
		clipped := false
		for ii, v := range w {
			if v > 0 && v < c.MinWeight {
				w[ii] = 0
				clipped = true
			}
		}
		if pass > 0 && !clipped {
			break
		}

		normalize(w)
		capExcess(w, c.MaxWeight)
	}

	return w
}

// capExcess caps weights at max and redistributes the excess to the uncapped
// names in proportion to their size
func capExcess(w []float64, max float64) {
	for pass := 0; pass < len(w); pass++ {
		excess := 0.0
		uncapped := 0.0
		for ii, v := range w {
			if v > max {
				excess += v - max
				w[ii] = max
			} else if v > 0 && v < max {
				uncapped += v
			}
		}

		if excess < 1e-12 || uncapped < 1e-12 {
			break
		}

		for ii, v := range w {
			if v > 0 && v < max {
				w[ii] = v + excess*v/uncapped
			}
		}
	}
}

func normalize(w []float64) {
	var total float64
	for _, v := range w {
		total += v
	}
	if total <= 0 {
		return
	}
	for ii := range w {
		w[ii] /= total
	}
}
