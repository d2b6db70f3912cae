package optimize

// Objective is a differentiable function of a point in R^Dim.
type Objective interface {
	Dim() int
	// Evaluate moves the objective to x, writes the gradient at x into grad
	// and returns the value. Implementations may cache state derived from
	// the most recent x.
	Evaluate(x, grad []float64) (float64, error)
}

// Projector maps a point onto a closed convex set in place.
type Projector interface {
	Project(x []float64)
}

// Func adapts plain functions to the Objective interface.
type Func struct {
	N int
	F func(x, grad []float64) float64
}

// Dim implements Objective.
func (f Func) Dim() int { return f.N }

// Evaluate implements Objective.
func (f Func) Evaluate(x, grad []float64) (float64, error) {
	return f.F(x, grad), nil
}
