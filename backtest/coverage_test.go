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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/alphamachine/am-api/backtest"
)

var _ = Describe("When filtering instruments by coverage", func() {
	Context("with uniform full coverage", func() {
		It("retains every column at any threshold up to 1.0", func() {
			prices := priceTable(5, 120,
				[]string{"AAA", "BBB"},
				[]float64{0.0005, 0.0005},
				[]float64{0.01, 0.01})

			filtered, report := backtest.FilterCoverage(prices, 1.0)
			Expect(filtered.ColNames).To(Equal([]string{"AAA", "BBB"}))
			Expect(report.Retained).To(HaveLen(2))
			Expect(report.Excluded).To(BeEmpty())
		})
	})

	Context("with a sparse instrument", func() {
		It("excludes it and reports the missing days per month", func() {
			prices := priceTable(5, 120,
				[]string{"AAA", "SPARSE"},
				[]float64{0.0005, 0.0005},
				[]float64{0.01, 0.01})

			// blank out the first half of the sparse column
			for idx := 0; idx < 60; idx++ {
				prices.Vals[1][idx] = math.NaN()
			}

			filtered, report := backtest.FilterCoverage(prices, 0.95)
			Expect(filtered.ColNames).To(Equal([]string{"AAA"}))
			Expect(report.Excluded).To(HaveLen(1))

			excluded := report.Excluded[0]
			Expect(excluded.Ticker).To(Equal("SPARSE"))
			Expect(excluded.Coverage).To(BeNumerically("<", 0.95))
			Expect(excluded.FirstObs).To(Equal(prices.Dates[60]))
			Expect(excluded.LastObs).To(Equal(prices.Dates[119]))
			Expect(excluded.MissingDays).To(BeNumerically(">=", 60))
			Expect(excluded.MissingByMonth).ToNot(BeEmpty())

			var total int
			for _, count := range excluded.MissingByMonth {
				total += count
			}
			Expect(total).To(Equal(excluded.MissingDays))
		})
	})

	Context("with an empty table", func() {
		It("returns an empty report", func() {
			prices := priceTable(5, 120, []string{"AAA"}, []float64{0}, []float64{0.01})
			empty := prices.Trim(prices.End().AddDate(1, 0, 0), prices.End().AddDate(2, 0, 0))
			_, report := backtest.FilterCoverage(empty, 0.95)
			Expect(report.Retained).To(BeEmpty())
			Expect(report.Excluded).To(BeEmpty())
		})
	})
})
