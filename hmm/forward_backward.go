package hmm

import "math"

// ForwardBackwardResult holds the results of the forward-backward algorithm.
type ForwardBackwardResult struct {
	LogZ      float64     // log P(x)
	Marginals [][]float64 // [T][K] P(y_t=j|x)
	Alpha     [][]float64 // [T][K] scaled forward variables
	Beta      [][]float64 // [T][K] scaled backward variables
	Scale     []float64   // [T] scaling factors
}

// ForwardBackward runs the scaled forward-backward algorithm.
// emit: [T][K] emission probabilities of the observed words
// initial: [K] initial state probabilities
// trans: [K][K] transition probabilities
func ForwardBackward(emit [][]float64, initial []float64, trans [][]float64) ForwardBackwardResult {
	T := len(emit)
	if T == 0 {
		return ForwardBackwardResult{}
	}
	K := len(initial)

	alpha := make([][]float64, T)
	scale := make([]float64, T)

	alpha[0] = make([]float64, K)
	var sum float64
	for y := range K {
		alpha[0][y] = initial[y] * emit[0][y]
		sum += alpha[0][y]
	}
	scale[0] = rescale(alpha[0], sum)

	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, K)
		sum = 0
		for y := range K {
			var s float64
			for yp := range K {
				s += alpha[t-1][yp] * trans[yp][y]
			}
			alpha[t][y] = s * emit[t][y]
			sum += alpha[t][y]
		}
		scale[t] = rescale(alpha[t], sum)
	}

	beta := make([][]float64, T)
	beta[T-1] = make([]float64, K)
	for y := range K {
		beta[T-1][y] = scale[T-1]
	}
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, K)
		for y := range K {
			var s float64
			for yn := range K {
				s += trans[y][yn] * emit[t+1][yn] * beta[t+1][yn]
			}
			beta[t][y] = s * scale[t]
		}
	}

	// log P(x) = -sum(log(scale))
	logZ := 0.0
	for t := range T {
		logZ -= math.Log(scale[t])
	}

	marginals := make([][]float64, T)
	for t := range T {
		marginals[t] = make([]float64, K)
		for y := range K {
			marginals[t][y] = alpha[t][y] * beta[t][y] / scale[t]
		}
	}

	return ForwardBackwardResult{
		LogZ:      logZ,
		Marginals: marginals,
		Alpha:     alpha,
		Beta:      beta,
		Scale:     scale,
	}
}

// rescale normalizes v by sum and returns the scaling factor used.
func rescale(v []float64, sum float64) float64 {
	if sum == 0 {
		return 1
	}
	s := 1 / sum
	for i := range v {
		v[i] *= s
	}
	return s
}

// TransitionMarginals computes P(y_t=i, y_{t+1}=j | x) for all t, i, j.
// Returns a [T-1][K][K] tensor.
func TransitionMarginals(fb ForwardBackwardResult, emit [][]float64, trans [][]float64) [][][]float64 {
	T := len(emit)
	if T <= 1 {
		return nil
	}
	K := len(trans)
	result := make([][][]float64, T-1)
	for t := range T - 1 {
		result[t] = make([][]float64, K)
		for i := range K {
			result[t][i] = make([]float64, K)
			for j := range K {
				result[t][i][j] = fb.Alpha[t][i] * trans[i][j] * emit[t+1][j] * fb.Beta[t+1][j]
			}
		}
	}
	return result
}
