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

package schedule_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/data"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/alphamachine/am-api/schedule"
)

// tradingFrame builds a single-column frame over every business day in the
// requested range
func tradingFrame(begin, end time.Time) *dataframe.DataFrame {
	days := data.BusinessDays(begin, end)
	vals := make([]float64, len(days))
	for idx := range vals {
		vals[idx] = 100 + float64(idx)
	}
	return &dataframe.DataFrame{
		Dates:    days,
		ColNames: []string{"VFINX"},
		Vals:     [][]float64{vals},
	}
}

var _ = Describe("When building a rebalance schedule", func() {
	var (
		tz     *time.Location
		prices *dataframe.DataFrame
	)

	BeforeEach(func() {
		tz = common.GetTimezone()
		prices = tradingFrame(
			time.Date(2021, time.January, 4, 0, 0, 0, 0, tz),
			time.Date(2021, time.June, 30, 0, 0, 0, 0, tz),
		)
	})

	Context("with monthly frequency", func() {
		It("creates one event per calendar month", func() {
			events, err := schedule.Build(prices, schedule.Monthly, 0)
			Expect(err).To(BeNil())
			Expect(events).To(HaveLen(6))
		})

		It("rebalances on the first trading day of the month", func() {
			events, err := schedule.Build(prices, schedule.Monthly, 0)
			Expect(err).To(BeNil())
			// Feb 1, 2021 is a Monday
			Expect(events[1].RebalanceDate).To(Equal(time.Date(2021, time.February, 1, 0, 0, 0, 0, tz)))
		})

		It("tiles the horizon without overlap", func() {
			events, err := schedule.Build(prices, schedule.Monthly, 0)
			Expect(err).To(BeNil())
			for idx, event := range events {
				Expect(event.PeriodStart).To(Equal(event.RebalanceDate))
				if idx+1 < len(events) {
					Expect(event.PeriodEnd.Before(events[idx+1].PeriodStart)).To(BeTrue())
					Expect(event.PeriodEnd).To(Equal(events[idx+1].RebalanceDate.AddDate(0, 0, -1)))
				}
			}
			Expect(events[len(events)-1].PeriodEnd).To(Equal(prices.End()))
		})
	})

	Context("with weekly frequency", func() {
		It("creates one event per ISO week", func() {
			week := tradingFrame(
				time.Date(2021, time.January, 4, 0, 0, 0, 0, tz),
				time.Date(2021, time.January, 29, 0, 0, 0, 0, tz),
			)
			events, err := schedule.Build(week, schedule.Weekly, 0)
			Expect(err).To(BeNil())
			Expect(events).To(HaveLen(4))
			for _, event := range events {
				Expect(event.RebalanceDate.Weekday()).To(Equal(time.Monday))
			}
		})
	})

	Context("with a custom interval", func() {
		It("rebalances every N months anchored at the first month", func() {
			events, err := schedule.Build(prices, schedule.Custom, 3)
			Expect(err).To(BeNil())
			Expect(events).To(HaveLen(2))
			Expect(events[0].RebalanceDate.Month()).To(Equal(time.January))
			Expect(events[1].RebalanceDate.Month()).To(Equal(time.April))
		})

		It("rejects a non-positive interval", func() {
			_, err := schedule.Build(prices, schedule.Custom, 0)
			Expect(err).To(MatchError(schedule.ErrInvalidInterval))
		})
	})

	Context("with degenerate input", func() {
		It("returns an empty schedule for an empty table", func() {
			empty := &dataframe.DataFrame{ColNames: []string{"VFINX"}, Vals: [][]float64{{}}}
			events, err := schedule.Build(empty, schedule.Monthly, 0)
			Expect(err).To(BeNil())
			Expect(events).To(BeEmpty())
		})

		It("rejects an unknown frequency", func() {
			_, err := schedule.Build(prices, schedule.Frequency("fortnightly"), 0)
			Expect(err).To(MatchError(schedule.ErrUnknownFrequency))
		})
	})
})
