package optimize

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/floats"
)

// StopReason says why Minimize returned.
type StopReason int

const (
	// Converged means the stopping criterion was met.
	Converged StopReason = iota
	// MaxIterations means the iteration cap was reached first.
	MaxIterations
	// LineSearchFailed means no step decreased the objective.
	LineSearchFailed
)

func (r StopReason) String() string {
	switch r {
	case Converged:
		return "converged"
	case MaxIterations:
		return "max-iterations"
	case LineSearchFailed:
		return "line-search-failed"
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Result is the outcome of Minimize. x holds the best point found in every
// case; only Err from Minimize means x may be unusable.
type Result struct {
	Reason StopReason
	Value  float64
	Stats  Stats
}

// Converged reports whether the stopping criterion was met.
func (r Result) Converged() bool { return r.Reason == Converged }

// ProjectedGradientDescent minimizes an Objective over the set defined by a
// Projector, starting from and writing back into x.
type ProjectedGradientDescent struct {
	Config Config
	Stop   StopCriterion
}

// NewProjectedGradientDescent returns a solver with the default composite
// stopping rule at cfg.Tolerance.
func NewProjectedGradientDescent(cfg Config) *ProjectedGradientDescent {
	return &ProjectedGradientDescent{Config: cfg, Stop: DefaultStop(cfg.Tolerance)}
}

// Minimize runs the solver. The objective is left at whatever point it
// evaluated last, which need not be x; callers that cache state inside the
// objective should evaluate x once more afterwards.
func (pgd *ProjectedGradientDescent) Minimize(obj Objective, proj Projector, x []float64) (Result, error) {
	n := obj.Dim()
	if len(x) != n {
		return Result{}, fmt.Errorf("optimize: point has length %d, objective has dimension %d", len(x), n)
	}
	start := time.Now()
	var res Result
	pgd.Stop.Reset()

	proj.Project(x)
	cur := newPoint(n)
	copy(cur.x, x)
	v, err := obj.Evaluate(cur.x, cur.grad)
	if err != nil {
		return res, err
	}
	cur.value = v
	res.Stats.Evaluations++

	ls := newWolfeSearch(pgd.Config, obj, proj)
	pg := make([]float64, n)
	prev, hasPrev := 0.0, false
	step := 0.0

	for iter := 0; ; iter++ {
		norm := projectedGradientNorm(cur, proj, pg)
		res.Stats.record(cur.value, norm, step)
		state := State{
			Iteration:             iter,
			Value:                 cur.value,
			PrevValue:             prev,
			HasPrev:               hasPrev,
			ProjectedGradientNorm: norm,
		}
		slog.Debug("Projected gradient iteration", "iteration", iter, "value", cur.value, "projected_gradient", norm)
		if pgd.Stop.Done(state) {
			res.Reason = Converged
			break
		}
		if iter >= pgd.Config.MaxIterations {
			res.Reason = MaxIterations
			break
		}

		next, err := ls.search(cur, pgd.Config.InitialStep)
		res.Stats.Evaluations += ls.evals
		if errors.Is(err, errNoDescent) {
			res.Reason = LineSearchFailed
			break
		}
		if err != nil {
			return res, err
		}
		prev, hasPrev = cur.value, true
		step = next.step
		copy(cur.x, next.x)
		copy(cur.grad, next.grad)
		cur.value = next.value
		res.Stats.Iterations++
	}

	copy(x, cur.x)
	res.Value = cur.value
	res.Stats.Elapsed = time.Since(start)
	return res, nil
}

// projectedGradientNorm returns ||x - P(x - g)||.
func projectedGradientNorm(cur *point, proj Projector, buf []float64) float64 {
	floats.SubTo(buf, cur.x, cur.grad)
	proj.Project(buf)
	floats.Sub(buf, cur.x)
	return floats.Norm(buf, 2)
}
