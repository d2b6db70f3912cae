package optimize

import "math"

// State is what a stopping criterion sees after each accepted iterate.
type State struct {
	Iteration             int
	Value                 float64
	PrevValue             float64
	HasPrev               bool
	ProjectedGradientNorm float64
}

// StopCriterion decides when the solver has converged. Reset is called
// once at the start of every Minimize.
type StopCriterion interface {
	Reset()
	Done(s State) bool
}

// NormalizedGradientNorm stops when the projected gradient norm, relative
// to its value at the starting point, drops below Tolerance.
type NormalizedGradientNorm struct {
	Tolerance float64
	initial   float64
}

// Reset implements StopCriterion.
func (c *NormalizedGradientNorm) Reset() { c.initial = -1 }

// Done implements StopCriterion.
func (c *NormalizedGradientNorm) Done(s State) bool {
	if c.initial < 0 {
		c.initial = s.ProjectedGradientNorm
	}
	if s.ProjectedGradientNorm == 0 {
		return true
	}
	if c.initial == 0 {
		return false
	}
	return s.ProjectedGradientNorm/c.initial < c.Tolerance
}

// NormalizedValueDifference stops when the decrease between successive
// values, relative to the first observed decrease, drops below Tolerance.
type NormalizedValueDifference struct {
	Tolerance float64
	first     float64
}

// Reset implements StopCriterion.
func (c *NormalizedValueDifference) Reset() { c.first = 0 }

// Done implements StopCriterion.
func (c *NormalizedValueDifference) Done(s State) bool {
	if !s.HasPrev {
		return false
	}
	diff := math.Abs(s.PrevValue - s.Value)
	if c.first == 0 {
		c.first = diff
		return diff == 0
	}
	return diff/c.first < c.Tolerance
}

// Composite stops as soon as any member stops.
type Composite []StopCriterion

// Reset implements StopCriterion.
func (c Composite) Reset() {
	for _, s := range c {
		s.Reset()
	}
}

// Done implements StopCriterion. Every member sees every state.
func (c Composite) Done(s State) bool {
	done := false
	for _, m := range c {
		if m.Done(s) {
			done = true
		}
	}
	return done
}

// DefaultStop combines the gradient-norm and value-difference criteria
// with a shared tolerance.
func DefaultStop(tol float64) Composite {
	return Composite{
		&NormalizedGradientNorm{Tolerance: tol},
		&NormalizedValueDifference{Tolerance: tol},
	}
}
