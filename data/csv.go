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
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/alphamachine/am-api/common"
	"github.com/alphamachine/am-api/dataframe"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyCSV      = errors.New("csv file has no data rows")
	ErrMissingHeader = errors.New("csv file is missing the header row")
)

// LoadCSV reads a wide price table from a CSV file. The first column is the
// date (2006-01-02), remaining columns are one ticker each holding adjusted
// close prices. Empty cells become NaN (no trade that day).
func LoadCSV(fn string) (*dataframe.DataFrame, error) {
	fh, err := os.Open(fn)
	if err != nil {
		log.Error().Stack().Err(err).Str("FileName", fn).Msg("could not open csv file")
		return nil, err
	}
	defer fh.Close()

	return ParseCSV(fh)
}

// ParseCSV reads a wide price table from the reader; see LoadCSV for the
// expected layout
func ParseCSV(r io.Reader) (*dataframe.DataFrame, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, ErrMissingHeader
	}

	if len(header) < 2 {
		return nil, ErrMissingHeader
	}

	tickers := header[1:]
	common.ArrToUpper(tickers)

	tz := common.GetTimezone()
	df := &dataframe.DataFrame{
		ColNames: tickers,
		Dates:    make([]time.Time, 0, 252),
		Vals:     make([][]float64, len(tickers)),
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Stack().Err(err).Msg("could not parse csv record")
			return nil, err
		}

		date, err := time.ParseInLocation("2006-01-02", record[0], tz)
		if err != nil {
			log.Error().Stack().Err(err).Str("Value", record[0]).Msg("could not parse date")
			return nil, err
		}

		df.Dates = append(df.Dates, date)
		for colIdx := range tickers {
			val := math.NaN()
			if colIdx+1 < len(record) && record[colIdx+1] != "" {
				val, err = strconv.ParseFloat(record[colIdx+1], 64)
				if err != nil {
					log.Error().Stack().Err(err).Str("Value", record[colIdx+1]).Msg("could not parse price")
					return nil, err
				}
			}
			df.Vals[colIdx] = append(df.Vals[colIdx], val)
		}
	}

	if df.Len() == 0 {
		return nil, ErrEmptyCSV
	}

	if err := df.Validate(); err != nil {
		return nil, err
	}

	return df, nil
}
