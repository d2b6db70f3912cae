package optimize

import "slices"

// NonNegative projects onto the non-negative orthant.
type NonNegative struct{}

// Project implements Projector.
func (NonNegative) Project(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// GroupSimplex projects contiguous blocks of a vector onto capped simplices
// {v >= 0, sum(v) <= cap}. Block g spans x[Offsets[g]:Offsets[g+1]].
type GroupSimplex struct {
	Offsets []int
	Caps    []float64
	buf     []float64
}

// NewGroupSimplex builds a projector from block sizes and per-block caps.
func NewGroupSimplex(sizes []int, caps []float64) *GroupSimplex {
	if len(sizes) != len(caps) {
		panic("optimize: sizes and caps differ in length")
	}
	offsets := make([]int, len(sizes)+1)
	for g, n := range sizes {
		offsets[g+1] = offsets[g] + n
	}
	return &GroupSimplex{Offsets: offsets, Caps: caps}
}

// Dim returns the total length of all blocks.
func (p *GroupSimplex) Dim() int {
	return p.Offsets[len(p.Offsets)-1]
}

// Project implements Projector.
func (p *GroupSimplex) Project(x []float64) {
	for g, c := range p.Caps {
		block := x[p.Offsets[g]:p.Offsets[g+1]]
		if len(block) == 0 {
			continue
		}
		p.buf = projectCappedSimplex(block, c, p.buf)
	}
}

// projectCappedSimplex is the Euclidean projection of v onto
// {u >= 0, sum(u) <= c}. buf is scratch space and is returned for reuse.
func projectCappedSimplex(v []float64, c float64, buf []float64) []float64 {
	if c <= 0 {
		clear(v)
		return buf
	}
	sum := 0.0
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
		sum += v[i]
	}
	if sum <= c {
		return buf
	}

	buf = append(buf[:0], v...)
	slices.SortFunc(buf, func(a, b float64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	var cum, theta float64
	for j, u := range buf {
		cum += u
		t := (cum - c) / float64(j+1)
		if u-t > 0 {
			theta = t
		}
	}
	for i, x := range v {
		v[i] = max(x-theta, 0)
	}
	return buf
}
