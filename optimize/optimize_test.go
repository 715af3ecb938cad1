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

package optimize_test

import (
	"math"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/alphamachine/am-api/optimize"
)

// returnsFrame builds a deterministic pseudo-random return window with the
// given per-column volatilities
func returnsFrame(seed int64, days int, vols ...float64) *dataframe.DataFrame {
	rng := rand.New(rand.NewSource(seed))
	tz := common.GetTimezone()

	df := &dataframe.DataFrame{
		Dates:    make([]time.Time, days),
		ColNames: make([]string, len(vols)),
		Vals:     make([][]float64, len(vols)),
	}

	for ii := range df.Dates {
		df.Dates[ii] = time.Date(2021, time.January, 1, 0, 0, 0, 0, tz).AddDate(0, 0, ii)
	}

	names := []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"}
	for colIdx, vol := range vols {
		df.ColNames[colIdx] = names[colIdx]
		col := make([]float64, days)
		for rowIdx := range col {
			col[rowIdx] = rng.NormFloat64() * vol
		}
		df.Vals[colIdx] = col
	}

	return df
}

func weightSum(w map[string]float64) float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

var _ = Describe("When optimizing portfolio weights", func() {
	var constraints optimize.Constraints

	BeforeEach(func() {
		constraints = optimize.Constraints{MinWeight: 0.01, MaxWeight: 0.60}
	})

	Context("with the equal weight override", func() {
		It("assigns 1/n to every asset regardless of method", func() {
			req := &optimize.Request{
				Returns:          returnsFrame(42, 100, 0.01, 0.02, 0.03),
				Method:           optimize.MethodLedoitWolf,
				Constraints:      constraints,
				ForceEqualWeight: true,
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			Expect(w).To(HaveLen(3))
			for _, v := range w {
				Expect(v).To(BeNumerically("~", 1.0/3.0, 1e-9))
			}
		})

		It("caps 1/n at the maximum bound", func() {
			req := &optimize.Request{
				Returns:          returnsFrame(42, 100, 0.01, 0.02),
				Method:           optimize.MethodMinVar,
				Constraints:      optimize.Constraints{MinWeight: 0.01, MaxWeight: 0.30},
				ForceEqualWeight: true,
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			for _, v := range w {
				Expect(v).To(BeNumerically("<=", 0.30+1e-9))
			}
			Expect(weightSum(w)).To(BeNumerically("<=", 1.0+1e-9))
		})
	})

	Context("with minimum variance", func() {
		It("prefers the low volatility asset", func() {
			req := &optimize.Request{
				Returns:      returnsFrame(7, 250, 0.005, 0.05),
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovSample,
				Constraints:  constraints,
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			Expect(w["AAA"]).To(BeNumerically(">", w["BBB"]))
		})

		It("respects the bound policy", func() {
			req := &optimize.Request{
				Returns:      returnsFrame(7, 250, 0.005, 0.05, 0.05, 0.05),
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovSample,
				Constraints:  optimize.Constraints{MinWeight: 0.01, MaxWeight: 0.40},
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			for _, v := range w {
				Expect(v).To(BeNumerically(">=", 0.01))
				Expect(v).To(BeNumerically("<=", 0.40+1e-9))
			}
			Expect(weightSum(w)).To(BeNumerically("<=", 1.0+1e-9))
		})

		It("fails on a singular covariance", func() {
			// two perfectly collinear columns
			df := returnsFrame(7, 250, 0.01)
			dup := make([]float64, len(df.Vals[0]))
			copy(dup, df.Vals[0])
			df.Insert("BBB", dup)

			req := &optimize.Request{
				Returns:      df,
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovSample,
				Constraints:  constraints,
			}
			_, err := optimize.Weights(req)
			Expect(err).To(MatchError(optimize.ErrSingularCovariance))
		})
	})

	Context("with ledoit-wolf shrinkage", func() {
		It("survives a singular sample covariance", func() {
			df := returnsFrame(7, 250, 0.01)
			dup := make([]float64, len(df.Vals[0]))
			copy(dup, df.Vals[0])
			df.Insert("BBB", dup)

			req := &optimize.Request{
				Returns:     df,
				Method:      optimize.MethodLedoitWolf,
				Constraints: constraints,
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			Expect(weightSum(w)).To(BeNumerically("~", 1.0, 1e-6))
		})
	})

	Context("with hierarchical risk parity", func() {
		It("produces positive weights summing to one", func() {
			req := &optimize.Request{
				Returns:     returnsFrame(11, 250, 0.01, 0.02, 0.03, 0.04, 0.02),
				Method:      optimize.MethodHRP,
				Constraints: optimize.Constraints{MinWeight: 0.0, MaxWeight: 1.0},
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			Expect(w).To(HaveLen(5))
			for _, v := range w {
				Expect(v).To(BeNumerically(">", 0))
			}
			Expect(weightSum(w)).To(BeNumerically("~", 1.0, 1e-9))
		})

		It("allocates more to the least volatile asset", func() {
			req := &optimize.Request{
				Returns:     returnsFrame(11, 250, 0.005, 0.05, 0.05, 0.05),
				Method:      optimize.MethodHRP,
				Constraints: optimize.Constraints{MinWeight: 0.0, MaxWeight: 1.0},
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			for _, name := range []string{"BBB", "CCC", "DDD"} {
				Expect(w["AAA"]).To(BeNumerically(">", w[name]))
			}
		})
	})

	Context("with configuration errors", func() {
		It("rejects an unknown method", func() {
			req := &optimize.Request{
				Returns:     returnsFrame(1, 50, 0.01),
				Method:      optimize.Method("genetic"),
				Constraints: constraints,
			}
			_, err := optimize.Weights(req)
			Expect(err).To(MatchError(optimize.ErrUnknownMethod))
		})

		It("rejects infeasible bounds", func() {
			req := &optimize.Request{
				Returns:     returnsFrame(1, 50, 0.01),
				Method:      optimize.MethodMinVar,
				Constraints: optimize.Constraints{MinWeight: 0.5, MaxWeight: 0.2},
			}
			_, err := optimize.Weights(req)
			Expect(err).To(MatchError(optimize.ErrInfeasibleBounds))
		})

		It("rejects an empty universe", func() {
			req := &optimize.Request{
				Returns:     &dataframe.DataFrame{},
				Method:      optimize.MethodMinVar,
				Constraints: constraints,
			}
			_, err := optimize.Weights(req)
			Expect(err).To(MatchError(optimize.ErrNoAssets))
		})

		It("rejects an unknown covariance estimator", func() {
			req := &optimize.Request{
				Returns:      returnsFrame(1, 50, 0.01, 0.02),
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovEstimator("factor-model"),
				Constraints:  constraints,
			}
			_, err := optimize.Weights(req)
			Expect(err).To(MatchError(optimize.ErrUnknownCovEstimator))
		})
	})

	Context("with weights below the minimum", func() {
		It("omits the dropped names from the result", func() {
			req := &optimize.Request{
				Returns:      returnsFrame(3, 250, 0.001, 0.5),
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovSample,
				Constraints:  optimize.Constraints{MinWeight: 0.10, MaxWeight: 1.0},
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			for _, v := range w {
				Expect(v).To(BeNumerically(">=", 0.10))
				Expect(math.IsNaN(v)).To(BeFalse())
			}
		})

		It("re-applies the minimum after dropping a short position", func() {
			// Orthogonal cosine harmonics give an exact covariance matrix
			// whose unconstrained minimum-variance solution shorts BBB:
			// raw ≈ [1.395, -0.465, 0.070]. Dropping the short leaves the
			// positives summing above one, so renormalization alone would
			// push CCC to ≈0.048, inside the forbidden (0, MinWeight) band.
			tz := common.GetTimezone()
			days := 16
			df := &dataframe.DataFrame{
				Dates:    make([]time.Time, days),
				ColNames: []string{"AAA", "BBB", "CCC"},
				Vals:     make([][]float64, 3),
			}
			for ii := range df.Vals {
				df.Vals[ii] = make([]float64, days)
			}
			for t := 0; t < days; t++ {
				df.Dates[t] = time.Date(2021, time.January, 1, 0, 0, 0, 0, tz).AddDate(0, 0, t)
				u := 0.01 * math.Cos(2.0*math.Pi*float64(t)/float64(days))
				v := 0.01 * math.Cos(4.0*math.Pi*float64(t)/float64(days))
				w := 0.0258 * math.Cos(6.0*math.Pi*float64(t)/float64(days))
				df.Vals[0][t] = u
				df.Vals[1][t] = 2.0*u + v
				df.Vals[2][t] = w
			}

			req := &optimize.Request{
				Returns:      df,
				Method:       optimize.MethodMinVar,
				CovEstimator: optimize.CovSample,
				Constraints:  optimize.Constraints{MinWeight: 0.05, MaxWeight: 1.0},
			}
			w, err := optimize.Weights(req)
			Expect(err).To(BeNil())
			for _, v := range w {
				Expect(v).To(BeNumerically(">=", 0.05))
				Expect(v).To(BeNumerically("<=", 1.0+1e-9))
			}
			Expect(w).ToNot(HaveKey("BBB"))
			Expect(w).ToNot(HaveKey("CCC"))
			Expect(w["AAA"]).To(BeNumerically("~", 1.0, 1e-9))
		})
	})
})
