// Package optimize minimizes smooth convex functions over convex sets with
// projected gradient descent.
package optimize

import "fmt"

// Config holds solver hyperparameters.
type Config struct {
	C1                    float64 // sufficient decrease constant
	C2                    float64 // curvature constant
	Tolerance             float64 // shared by both stopping criteria
	InitialStep           float64 // first step tried by each line search
	MaxStep               float64
	MaxZoomEvals          int
	MaxExtrapolationIters int
	MaxIterations         int
}

// DefaultConfig returns the solver defaults used for posterior projection.
func DefaultConfig() Config {
	return Config{
		C1:                    1e-4,
		C2:                    0.9,
		Tolerance:             1e-5,
		InitialStep:           1,
		MaxStep:               10,
		MaxZoomEvals:          10,
		MaxExtrapolationIters: 200,
		MaxIterations:         200,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.C1 <= 0 || c.C1 >= 1:
		return fmt.Errorf("optimize: c1 must be in (0,1), got %v", c.C1)
	case c.C2 <= c.C1 || c.C2 >= 1:
		return fmt.Errorf("optimize: c2 must be in (c1,1), got %v", c.C2)
	case c.Tolerance <= 0:
		return fmt.Errorf("optimize: tolerance must be positive, got %v", c.Tolerance)
	case c.InitialStep <= 0 || c.InitialStep > c.MaxStep:
		return fmt.Errorf("optimize: initial step must be in (0,max step], got %v", c.InitialStep)
	case c.MaxZoomEvals < 1 || c.MaxExtrapolationIters < 1:
		return fmt.Errorf("optimize: line search budgets must be positive")
	case c.MaxIterations < 0:
		return fmt.Errorf("optimize: max iterations must be non-negative, got %d", c.MaxIterations)
	}
	return nil
}
