package optimize

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

// errNoDescent means the projected arc from the current point does not
// decrease the objective, so no step can be taken.
var errNoDescent = errors.New("optimize: no descent along projected arc")

// point is an evaluated location on the projection arc.
type point struct {
	step  float64
	x     []float64
	grad  []float64
	value float64
}

func newPoint(n int) *point {
	return &point{x: make([]float64, n), grad: make([]float64, n)}
}

// wolfeSearch looks for a step a along x(a) = P(x - a*g) satisfying
//
//	f(x(a)) <= f(x) + c1 * g.(x(a) - x)
//	g(x(a)).(x(a) - x) >= c2 * g.(x(a) - x)
//
// by doubling the step until the first condition fails or the second holds,
// then bisecting the bracket.
type wolfeSearch struct {
	cfg  Config
	obj  Objective
	proj Projector
	// scratch
	trial, best *point
	dir         []float64
	evals       int
}

func newWolfeSearch(cfg Config, obj Objective, proj Projector) *wolfeSearch {
	n := obj.Dim()
	return &wolfeSearch{
		cfg:   cfg,
		obj:   obj,
		proj:  proj,
		trial: newPoint(n),
		best:  newPoint(n),
		dir:   make([]float64, n),
	}
}

// eval fills p with the projected point at step a from cur.
func (ls *wolfeSearch) eval(cur *point, a float64, p *point) (float64, error) {
	floats.AddScaledTo(p.x, cur.x, -a, cur.grad)
	ls.proj.Project(p.x)
	v, err := ls.obj.Evaluate(p.x, p.grad)
	if err != nil {
		return 0, err
	}
	ls.evals++
	p.step = a
	p.value = v
	floats.SubTo(ls.dir, p.x, cur.x)
	return floats.Dot(cur.grad, ls.dir), nil
}

func (ls *wolfeSearch) armijo(cur, p *point, slope float64) bool {
	return p.value <= cur.value+ls.cfg.C1*slope
}

func (ls *wolfeSearch) curvature(p *point, slope float64) bool {
	return floats.Dot(p.grad, ls.dir) >= ls.cfg.C2*slope
}

func (ls *wolfeSearch) keep(p *point) {
	ls.best, ls.trial = p, ls.best
}

// search returns the accepted point. The returned point is owned by the
// line search and is overwritten by the next call.
func (ls *wolfeSearch) search(cur *point, initial float64) (*point, error) {
	ls.evals = 0
	lo := 0.0
	loValue := cur.value
	haveBest := false
	a := min(initial, ls.cfg.MaxStep)

	for range ls.cfg.MaxExtrapolationIters {
		slope, err := ls.eval(cur, a, ls.trial)
		if err != nil {
			return nil, err
		}
		if slope >= 0 {
			if haveBest {
				return ls.best, nil
			}
			return nil, errNoDescent
		}
		if !ls.armijo(cur, ls.trial, slope) || (haveBest && ls.trial.value >= loValue) {
			return ls.zoom(cur, lo, loValue, a, haveBest)
		}
		if ls.curvature(ls.trial, slope) || a >= ls.cfg.MaxStep {
			return ls.trial, nil
		}
		ls.keep(ls.trial)
		haveBest = true
		lo, loValue = a, ls.best.value
		a = min(2*a, ls.cfg.MaxStep)
	}
	if haveBest {
		return ls.best, nil
	}
	return nil, errNoDescent
}

func (ls *wolfeSearch) zoom(cur *point, lo, loValue, hi float64, haveBest bool) (*point, error) {
	for range ls.cfg.MaxZoomEvals {
		mid := (lo + hi) / 2
		slope, err := ls.eval(cur, mid, ls.trial)
		if err != nil {
			return nil, err
		}
		if slope < 0 && ls.armijo(cur, ls.trial, slope) && ls.trial.value < loValue {
			if ls.curvature(ls.trial, slope) {
				return ls.trial, nil
			}
			ls.keep(ls.trial)
			haveBest = true
			lo, loValue = mid, ls.best.value
		} else {
			hi = mid
		}
	}
	if haveBest {
		return ls.best, nil
	}
	return nil, errNoDescent
}
