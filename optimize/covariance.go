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

package optimize

import (
	"github.com/alphamachine/am-api/dataframe"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// observationMatrix converts the column-major dataframe into a row-per-day
// observation matrix suitable for gonum/stat
func observationMatrix(df *dataframe.DataFrame) *mat.Dense {
	rows := df.Len()
	cols := df.ColCount()
	x := mat.NewDense(rows, cols, nil)
	for colIdx := 0; colIdx < cols; colIdx++ {
		for rowIdx := 0; rowIdx < rows; rowIdx++ {
			x.Set(rowIdx, colIdx, df.Vals[colIdx][rowIdx])
		}
	}
	return x
}

// covariance estimates the covariance matrix of the request's returns with
// the configured estimator
func covariance(req *Request) (*mat.SymDense, error) {
	x := observationMatrix(req.Returns)

	switch req.CovEstimator {
	case CovSample, "":
		return sampleCovariance(x), nil
	case CovLedoitWolf:
		return ledoitWolfCovariance(x), nil
	default:
		return nil, ErrUnknownCovEstimator
	}
}

func sampleCovariance(x *mat.Dense) *mat.SymDense {
	_, cols := x.Dims()
	cov := mat.NewSymDense(cols, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}

// ledoitWolfCovariance shrinks the sample covariance toward a scaled
// identity target (Ledoit & Wolf 2004, "A well-conditioned estimator for
// large-dimensional covariance matrices"). The shrinkage intensity is
// estimated from the data; the result is always well conditioned which
// protects the minimum-variance solve on short or collinear windows.
func ledoitWolfCovariance(x *mat.Dense) *mat.SymDense {
	rows, cols := x.Dims()
	sample := sampleCovariance(x)

	// demean observations
	demeaned := mat.DenseCopyOf(x)
	for colIdx := 0; colIdx < cols; colIdx++ {
		col := mat.Col(nil, colIdx, x)
		mean := stat.Mean(col, nil)
		for rowIdx := 0; rowIdx < rows; rowIdx++ {
			demeaned.Set(rowIdx, colIdx, x.At(rowIdx, colIdx)-mean)
		}
	}

	// mu: mean of diagonal; d2: squared distance of sample cov to mu*I
	var mu float64
	for ii := 0; ii < cols; ii++ {
		mu += sample.At(ii, ii)
	}
	mu /= float64(cols)

	var d2 float64
	for ii := 0; ii < cols; ii++ {
		for jj := 0; jj < cols; jj++ {
			v := sample.At(ii, jj)
			if ii == jj {
				v -= mu
			}
			d2 += v * v
		}
	}
	d2 /= float64(cols)

	// b2: variance of the sample covariance entries across observations
	var b2 float64
	for t := 0; t < rows; t++ {
		for ii := 0; ii < cols; ii++ {
			for jj := 0; jj < cols; jj++ {
				v := demeaned.At(t, ii)*demeaned.At(t, jj) - sample.At(ii, jj)
				b2 += v * v
			}
		}
	}
	b2 /= float64(rows) * float64(rows) * float64(cols)
	if b2 > d2 {
		b2 = d2
	}

	shrunk := mat.NewSymDense(cols, nil)
	var alpha, beta float64
	if d2 > 0 {
		alpha = (d2 - b2) / d2
		beta = b2 / d2
	} else {
		alpha = 1
	}

	for ii := 0; ii < cols; ii++ {
		for jj := ii; jj < cols; jj++ {
			v := alpha * sample.At(ii, jj)
			if ii == jj {
				v += beta * mu
			}
			shrunk.SetSym(ii, jj, v)
		}
	}

	return shrunk
}
