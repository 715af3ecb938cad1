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

// Package schedule derives the ordered list of rebalance events from the
// trading days actually present in a price table. Events tile the backtest
// horizon: each holding period runs from its rebalance date up to the day
// before the next event; the final event runs to the last date of the table.
package schedule

import (
	"errors"
	"time"

	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

type Frequency string

const (
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Custom  Frequency = "custom"
)

var (
	ErrUnknownFrequency = errors.New("unknown rebalance frequency")
	ErrInvalidInterval  = errors.New("custom rebalance interval must be >= 1 month")
)

// Event is a single scheduled rebalance: recompute holdings on
// RebalanceDate and hold them through [PeriodStart, PeriodEnd]
type Event struct {
	RebalanceDate time.Time
	PeriodStart   time.Time
	PeriodEnd     time.Time
}

// Build creates the rebalance schedule for the price table. customMonths is
// only consulted when frequency is Custom. An empty price table yields an
// empty schedule.
func Build(prices *dataframe.DataFrame, frequency Frequency, customMonths int) ([]*Event, error) {
	if prices.Len() == 0 {
		return []*Event{}, nil
	}

	var rebalanceDates []time.Time
	switch frequency {
	case Weekly:
		rebalanceDates = weekStarts(prices.Dates)
	case Monthly:
		rebalanceDates = monthStarts(prices.Dates, 1)
	case Custom:
		if customMonths < 1 {
			return nil, ErrInvalidInterval
		}
		rebalanceDates = monthStarts(prices.Dates, customMonths)
	default:
		log.Error().Stack().Str("Frequency", string(frequency)).Msg("unknown rebalance frequency")
		return nil, ErrUnknownFrequency
	}

	events := make([]*Event, 0, len(rebalanceDates))
	for idx, date := range rebalanceDates {
		event := &Event{
			RebalanceDate: date,
			PeriodStart:   date,
		}
		if idx+1 < len(rebalanceDates) {
			event.PeriodEnd = rebalanceDates[idx+1].AddDate(0, 0, -1)
		} else {
			event.PeriodEnd = prices.End()
		}
		events = append(events, event)
	}

	return events, nil
}

// monthStarts returns the first trading day of every intervalth calendar
// month present in the date index. The interval is anchored at the first
// month of data so a quarterly schedule stays on the same calendar cycle
// even when a month has no trading days.
func monthStarts(dates []time.Time, interval int) []time.Time {
	firsts := make([]time.Time, 0, len(dates)/20+1)
	var lastMonth time.Time

	for _, date := range dates {
		month := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		if !month.Equal(lastMonth) {
			firsts = append(firsts, date)
			lastMonth = month
		}
	}

	if interval == 1 || len(firsts) == 0 {
		return firsts
	}

	base := firsts[0].Year()*12 + int(firsts[0].Month())
	starts := make([]time.Time, 0, len(firsts)/interval+1)
	for _, date := range firsts {
		ord := date.Year()*12 + int(date.Month())
		if (ord-base)%interval == 0 {
			starts = append(starts, date)
		}
	}

	return starts
}

// weekStarts returns the first trading day of every ISO week present in the
// date index
func weekStarts(dates []time.Time) []time.Time {
	starts := make([]time.Time, 0, len(dates)/5+1)
	lastYear, lastWeek := -1, -1

	for _, date := range dates {
		year, week := date.ISOWeek()
		if year != lastYear || week != lastWeek {
			starts = append(starts, date)
			lastYear, lastWeek = year, week
		}
	}

	return starts
}
