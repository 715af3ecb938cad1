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

package data

import (
	"time"
)

// BusinessDays returns every weekday in [begin, end] inclusive. Market
// holidays are not excluded; coverage ratios computed against this range are
// therefore slightly conservative which is acceptable for filtering.
func BusinessDays(begin, end time.Time) []time.Time {
	days := make([]time.Time, 0, 260)
	curr := time.Date(begin.Year(), begin.Month(), begin.Day(), 0, 0, 0, 0, begin.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	for !curr.After(last) {
		wd := curr.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			days = append(days, curr)
		}
		curr = curr.AddDate(0, 0, 1)
	}

	return days
}

// MonthsBetween returns every calendar month in [begin, end] formatted as
// YYYY-MM
func MonthsBetween(begin, end time.Time) []string {
	months := make([]string, 0, 12)
	curr := time.Date(begin.Year(), begin.Month(), 1, 0, 0, 0, 0, begin.Location())
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, end.Location())

	for !curr.After(last) {
		months = append(months, curr.Format("2006-01"))
		curr = curr.AddDate(0, 1, 0)
	}

	return months
}
