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
	"math"

	"gonum.org/v1/gonum/mat"
)

// hrpWeights implements hierarchical risk parity (Lopez de Prado): cluster
// the assets on correlation distance with single linkage, order them by the
// resulting dendrogram (quasi-diagonalization), then split the variance
// budget top-down with recursive bisection using inverse-variance
// allocations inside each cluster. HRP never inverts the covariance matrix
// so it tolerates windows where minimum variance fails.
func hrpWeights(req *Request) ([]float64, error) {
	sigma, err := covariance(req)
	if err != nil {
		return nil, err
	}

	n := req.Returns.ColCount()
	if n == 1 {
		return []float64{1.0}, nil
	}

	dist := correlationDistance(sigma)
	order := quasiDiagonalOrder(dist)

	w := make([]float64, n)
	for _, idx := range order {
		w[idx] = 1.0
	}
	bisect(sigma, order, w)

	return w, nil
}

// correlationDistance converts a covariance matrix into the HRP distance
// d = sqrt((1 - rho) / 2)
func correlationDistance(sigma *mat.SymDense) [][]float64 {
	n := sigma.SymmetricDim()
	dist := make([][]float64, n)
	for ii := range dist {
		dist[ii] = make([]float64, n)
	}

	for ii := 0; ii < n; ii++ {
		for jj := ii + 1; jj < n; jj++ {
			denom := math.Sqrt(sigma.At(ii, ii) * sigma.At(jj, jj))
			rho := 0.0
			if denom > 0 {
				rho = sigma.At(ii, jj) / denom
			}
			d := math.Sqrt(math.Max(0, (1.0-rho)/2.0))
			dist[ii][jj] = d
			dist[jj][ii] = d
		}
	}

	return dist
}

// quasiDiagonalOrder runs single-linkage agglomerative clustering on the
// distance matrix and returns the leaves in dendrogram order, which places
// similar assets next to each other
func quasiDiagonalOrder(dist [][]float64) []int {
	n := len(dist)
	clusters := make([][]int, n)
	for ii := range clusters {
		clusters[ii] = []int{ii}
	}

	for len(clusters) > 1 {
		bestI, bestJ := 0, 1
		bestD := math.Inf(1)
		for ii := 0; ii < len(clusters); ii++ {
			for jj := ii + 1; jj < len(clusters); jj++ {
				d := linkage(dist, clusters[ii], clusters[jj])
				if d < bestD {
					bestD = d
					bestI, bestJ = ii, jj
				}
			}
		}

		merged := append(append([]int{}, clusters[bestI]...), clusters[bestJ]...)
		clusters[bestI] = merged
		clusters = append(clusters[:bestJ], clusters[bestJ+1:]...)
	}

	return clusters[0]
}

// linkage is the single-link cluster distance: the minimum pairwise leaf
// distance
func linkage(dist [][]float64, a, b []int) float64 {
	best := math.Inf(1)
	for _, ii := range a {
		for _, jj := range b {
			if dist[ii][jj] < best {
				best = dist[ii][jj]
			}
		}
	}
	return best
}

// bisect recursively splits the ordered assets in half and scales each
// half's weights by the complement of its share of cluster variance
func bisect(sigma *mat.SymDense, order []int, w []float64) {
	if len(order) < 2 {
		return
	}

	split := len(order) / 2
	left := order[:split]
	right := order[split:]

	varLeft := clusterVariance(sigma, left)
	varRight := clusterVariance(sigma, right)

	alpha := 0.5
	if varLeft+varRight > 0 {
		alpha = 1.0 - varLeft/(varLeft+varRight)
	}

	for _, idx := range left {
		w[idx] *= alpha
	}
	for _, idx := range right {
		w[idx] *= 1.0 - alpha
	}

	bisect(sigma, left, w)
	bisect(sigma, right, w)
}

// clusterVariance is the variance of the inverse-variance weighted
// sub-portfolio over the given asset indices
func clusterVariance(sigma *mat.SymDense, idxs []int) float64 {
	ivp := make([]float64, len(idxs))
	var total float64
	for ii, idx := range idxs {
		v := sigma.At(idx, idx)
		if v <= 0 {
			v = 1e-12
		}
		ivp[ii] = 1.0 / v
		total += ivp[ii]
	}
	for ii := range ivp {
		ivp[ii] /= total
	}

	var variance float64
	for ii, idxI := range idxs {
		for jj, idxJ := range idxs {
			variance += ivp[ii] * ivp[jj] * sigma.At(idxI, idxJ)
		}
	}
	return variance
}
