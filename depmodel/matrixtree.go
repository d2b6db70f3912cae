package depmodel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/happyhackingspace/sparsepr/constraints"
)

// ErrSingular is returned when a sentence's Laplacian cannot be inverted,
// usually because every tree has zero weight.
var ErrSingular = errors.New("depmodel: singular laplacian")

// matrixTree computes edge and root marginals over single-root spanning
// trees (Koo et al., 2007). theta[h][m] weighs edge h -> m and root[m] the
// root attachment of m. The Laplacian has row 0 replaced by the root
// weights, so its determinant is the partition function and
//
//	mu(h,m)    = theta[h][m] * ((m != 0) Linv[m][m] - (h != 0) Linv[m][h])
//	mu(root,m) = root[m] * Linv[m][0]
func matrixTree(theta [][]float64, root []float64) (constraints.Posteriors, float64, error) {
	n := len(root)
	post := constraints.NewPosteriors(n)
	if n == 0 {
		return post, 0, nil
	}

	l := mat.NewDense(n, n, nil)
	for m := range n {
		for h := range n {
			if h == m {
				continue
			}
			l.Set(h, m, -theta[h][m])
			l.Set(m, m, l.At(m, m)+theta[h][m])
		}
	}
	for m := range n {
		l.Set(0, m, root[m])
	}

	var lu mat.LU
	lu.Factorize(l)
	logZ, sign := lu.LogDet()
	if sign <= 0 || math.IsInf(logZ, 0) || math.IsNaN(logZ) {
		return post, 0, ErrSingular
	}
	var inv mat.Dense
	if err := inv.Inverse(l); err != nil {
		return post, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	for m := range n {
		post.Root[m] = root[m] * inv.At(m, 0)
		for h := range n {
			if h == m {
				continue
			}
			v := 0.0
			if m != 0 {
				v += inv.At(m, m)
			}
			if h != 0 {
				v -= inv.At(m, h)
			}
			post.Child[m][h] = theta[h][m] * v
		}
	}
	return post, logZ, nil
}
