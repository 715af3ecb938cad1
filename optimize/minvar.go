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
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// minVarWeights computes the unconstrained global minimum-variance
// portfolio w = Σ⁻¹1 / 1ᵀΣ⁻¹1 on the configured covariance estimate. The
// ledoit-wolf method differs from minvar only in the estimator used when
// the request leaves CovEstimator unset.
func minVarWeights(req *Request) ([]float64, error) {
	// the method id doubles as the default covariance estimator
	if req.CovEstimator == "" && req.Method == MethodLedoitWolf {
		req.CovEstimator = CovLedoitWolf
	}

	sigma, err := covariance(req)
	if err != nil {
		return nil, err
	}

	n := req.Returns.ColCount()
	if n == 1 {
		return []float64{1.0}, nil
	}

	ones := mat.NewVecDense(n, nil)
	for ii := 0; ii < n; ii++ {
		ones.SetVec(ii, 1.0)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); !ok {
		log.Warn().Stack().Int("NumAssets", n).Int("NumObs", req.Returns.Len()).Msg("covariance matrix is not positive definite")
		return nil, ErrSingularCovariance
	}

	solved := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(solved, ones); err != nil {
		log.Warn().Stack().Err(err).Msg("could not solve minimum variance system")
		return nil, ErrSingularCovariance
	}

	total := mat.Dot(ones, solved)
	if total == 0 {
		return nil, ErrSingularCovariance
	}

	w := make([]float64, n)
	for ii := 0; ii < n; ii++ {
		w[ii] = solved.AtVec(ii) / total
	}

	return w, nil
}
