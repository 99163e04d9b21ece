// Package dist implements discrete approximations of continuous
// distributions used for among-site rate variation.
package dist

import (
	"github.com/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// QuantileGamma returns quantile for gamma distribution.
func QuantileGamma(prob, alpha, beta float64) float64 {
	return distuv.Gamma{Alpha: alpha, Beta: beta}.Quantile(prob)
}

// IncompleteGamma returns the regularized lower incomplete gamma
// function P(alpha, x).
func IncompleteGamma(x, alpha float64) float64 {
	return mathext.GammaInc(alpha, x)
}

// DiscreteGamma returns K rate categories of equal probability for the
// G(alpha, beta) distribution. Each category is represented by its
// mean, or by its median rescaled to keep the mean alpha/beta. tmp and
// res are optional buffers of length K.
func DiscreteGamma(alpha, beta float64, K int, UseMedian bool, tmp, res []float64) []float64 {
	t := 0.0
	mean := alpha / beta

	if res == nil {
		res = make([]float64, K)
	}
	if tmp == nil {
		tmp = make([]float64, K)
	}
	if K == 1 {
		res[0] = mean
		return res
	}

	if UseMedian {
		for i := 0; i < K; i++ {
			res[i] = QuantileGamma((float64(i)*2.+1)/(2.*float64(K)), alpha, beta)
		}
		for i := 0; i < K; i++ {
			t += res[i]
		}
		for i := 0; i < K; i++ {
			res[i] *= mean * float64(K) / t
		}
	} else {
		// cutting points
		for i := 0; i < K-1; i++ {
			tmp[i] = QuantileGamma((float64(i)+1.0)/float64(K), alpha, beta)
		}
		// mass of x*f(x) below each cutting point
		for i := 0; i < K-1; i++ {
			tmp[i] = IncompleteGamma(tmp[i]*beta, alpha+1)
		}
		res[0] = tmp[0] * mean * float64(K)
		for i := 1; i < K-1; i++ {
			res[i] = (tmp[i] - tmp[i-1]) * mean * float64(K)
		}
		res[K-1] = (1 - tmp[K-2]) * mean * float64(K)
	}

	return res
}

// Rates returns K mean-one rate categories for gamma shape alpha.
func Rates(alpha float64, K int, UseMedian bool) []float64 {
	return DiscreteGamma(alpha, alpha, K, UseMedian, nil, nil)
}
