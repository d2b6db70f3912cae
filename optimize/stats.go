package optimize

import (
	"fmt"
	"strings"
	"time"
)

// Stats records the trajectory of one Minimize call.
type Stats struct {
	Iterations    int
	Evaluations   int
	Values        []float64
	GradientNorms []float64
	Steps         []float64
	Elapsed       time.Duration
}

func (s *Stats) record(value, gradNorm, step float64) {
	s.Values = append(s.Values, value)
	s.GradientNorms = append(s.GradientNorms, gradNorm)
	s.Steps = append(s.Steps, step)
}

// PrettyPrint renders every n-th iteration (n <= 0 prints only the last).
func (s *Stats) PrettyPrint(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "iterations=%d evaluations=%d elapsed=%s\n", s.Iterations, s.Evaluations, s.Elapsed)
	for i := range s.Values {
		last := i == len(s.Values)-1
		if (n > 0 && i%n == 0) || last {
			fmt.Fprintf(&b, "  iter %3d value=%.6g |pg|=%.3g step=%.3g\n", i, s.Values[i], s.GradientNorms[i], s.Steps[i])
		}
	}
	return b.String()
}
