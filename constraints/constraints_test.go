package constraints

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/optimize"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// headDist lets every token pick its head independently, which makes its
// marginals and log partition exact in closed form.
type headDist struct {
	in      *corpus.Instance
	weights Posteriors
	live    Posteriors
	fail    bool
}

func newHeadDist(in *corpus.Instance, seed int) *headDist {
	n := in.Len()
	w := NewPosteriors(n)
	for c := range n {
		w.Root[c] = float64(1 + (c+seed)%3)
		for p := range n {
			if p != c {
				w.Child[c][p] = float64(1 + (7*c+3*p+seed)%5)
			}
		}
	}
	return &headDist{in: in, weights: w}
}

func (d *headDist) Instance() *corpus.Instance { return d.in }

func (d *headDist) Refresh() error {
	post, _, err := d.Reweighted(NewPosteriors(d.in.Len()))
	if err != nil {
		return err
	}
	d.live = post
	return nil
}

func (d *headDist) Posteriors() Posteriors { return d.live }

func (d *headDist) Reweighted(pen Penalty) (Posteriors, float64, error) {
	if d.fail && !pen.IsZero() {
		return Posteriors{}, 0, errors.New("singular")
	}
	n := d.in.Len()
	q := NewPosteriors(n)
	logZ := 0.0
	for c := range n {
		z0 := d.weights.Root[c]
		q.Root[c] = d.weights.Root[c] * math.Exp(-pen.Root[c])
		z := q.Root[c]
		for p := range n {
			z0 += d.weights.Child[c][p]
			q.Child[c][p] = d.weights.Child[c][p] * math.Exp(-pen.Child[c][p])
			z += q.Child[c][p]
		}
		q.Root[c] /= z
		for p := range n {
			q.Child[c][p] /= z
		}
		logZ += math.Log(z / z0)
	}
	return q, logZ, nil
}

func (d *headDist) Commit(p Posteriors) { d.live.CopyFrom(p) }

type massCounts struct{ total float64 }

func (m *massCounts) Clear() { m.total = 0 }

type massModel struct{}

func (massModel) AddToCounts(sd SentenceDist, counts CountTable) error {
	mc := counts.(*massCounts)
	post := sd.Posteriors()
	for c := range post.Root {
		mc.total += post.Root[c]
		for _, v := range post.Child[c] {
			mc.total += v
		}
	}
	return nil
}

type recordingStats struct {
	starts  int
	reports []Report
}

func (r *recordingStats) EStepStart()       { r.starts++ }
func (r *recordingStats) EStepEnd(x Report) { r.reports = append(r.reports, x) }

func dogCatCorpus() *corpus.Corpus {
	c := corpus.New()
	c.Add([]string{"the", "dog"}, []string{"DET", "NOUN"})
	c.Add([]string{"the", "cat"}, []string{"DET", "NOUN"})
	return c
}

func dists(c *corpus.Corpus) []SentenceDist {
	out := make([]SentenceDist, len(c.Instances))
	for s, in := range c.Instances {
		out[s] = newHeadDist(in, s)
	}
	return out
}

func testOptions(strength float64) Options {
	opts := DefaultOptions()
	opts.Strength = strength
	opts.Logger = quiet
	opts.Parallelism = 2
	return opts
}

func TestEnumeratorDogCat(t *testing.T) {
	c := dogCatCorpus()
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)

	names := make([]string, e.NumGroups())
	for g := range names {
		names[g] = e.GroupName(g)
	}
	assert.Equal(t, []string{
		"root=the",
		"edge=the,NOUN:left",
		"root=dog",
		"edge=dog,DET:right",
		"root=cat",
		"edge=cat,DET:right",
	}, names)
	assert.Equal(t, []int{2, 2, 1, 1, 1, 1}, ix.Sizes())
	assert.Equal(t, 8, ix.Len())
	assert.Equal(t, 2, ix.NumSentences)

	assert.True(t, e.IsRootGroup(0))
	assert.False(t, e.IsRootGroup(1))
	the, _ := c.Words.Get("the")
	noun, _ := c.Tags.Get("NOUN")
	assert.Equal(t, the, e.ChildOf(1))
	assert.Equal(t, noun, e.ParentOf(1))
	assert.Equal(t, RootParent, e.ParentOf(0))
	assert.Equal(t, []int{1}, e.GroupsPerChild()[the])

	g, ok := e.LookupEdgeGroup("dog", "DET", Right)
	require.True(t, ok)
	assert.Equal(t, 3, g)
	_, ok = e.LookupEdgeGroup("dog", "DET", Left)
	assert.False(t, ok)
}

func TestEnumeratorIDStability(t *testing.T) {
	c := corpus.New()
	c.Add([]string{"a", "b", "c"}, []string{"X", "Y", "X"})
	c.Add([]string{"c", "a"}, []string{"X", "X"})
	c.Add([]string{"b"}, []string{"Y"})

	build := func() []string {
		e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
		BuildIndex(e, c.Instances)
		out := make([]string, e.NumGroups())
		for g := range out {
			out[g] = e.GroupName(g)
		}
		return out
	}
	assert.Equal(t, build(), build())
}

func TestIndexCompleteness(t *testing.T) {
	c := corpus.New()
	c.Add([]string{"a", "b", "a", "c"}, []string{"X", "Y", "X", "Y"})
	c.Add([]string{"c", "a"}, []string{"Y", "X"})
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)
	ix.Check()

	require.Equal(t, e.NumGroups(), ix.NumGroups())
	total := 0
	for g := range ix.NumGroups() {
		total += ix.Occurrences(g)
		lo, hi := ix.Offsets[g], ix.Offsets[g+1]
		assert.Equal(t, ix.Groups[g], ix.Flat[lo:hi])
		seen := map[[2]int]bool{}
		for _, ref := range ix.Groups[g] {
			key := [2]int{ref.Sentence, ref.Child}
			assert.False(t, seen[key], "child token listed twice in group %s", e.GroupName(g))
			seen[key] = true
		}
	}
	assert.Equal(t, total, ix.Len())

	// Sentence 0 child "b" (pos 1) has X parents on both sides and a Y
	// parent on its right, so each parent lands in its own group.
	b, _ := c.Words.Get("b")
	var parents [][]int
	for g, refs := range ix.Groups {
		if e.IsRootGroup(g) || e.ChildOf(g) != b {
			continue
		}
		for _, ref := range refs {
			parents = append(parents, ref.Parents)
		}
	}
	assert.ElementsMatch(t, [][]int{{0}, {2}, {3}}, parents)
}

func TestRootSentinel(t *testing.T) {
	c := dogCatCorpus()
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)
	for g, refs := range ix.Groups {
		for _, ref := range refs {
			if e.IsRootGroup(g) {
				assert.Equal(t, []int{RootPosition}, ref.Parents)
				assert.True(t, ref.IsRoot())
			} else {
				assert.NotContains(t, ref.Parents, RootPosition)
				assert.False(t, ref.IsRoot())
			}
		}
	}

	noRoot := NewEnumerator(c, WordEntity{}, TagEntity{}, false, true)
	ix = BuildIndex(noRoot, c.Instances)
	for _, ref := range ix.Flat {
		assert.False(t, ref.IsRoot())
	}
	assert.Equal(t, 4, ix.Len())
	assert.Equal(t, c.NumTags()+1, noRoot.NumParentIDs())
}

func TestDirectionSplitting(t *testing.T) {
	c := corpus.New()
	c.Add([]string{"a", "b"}, []string{"X", "X"})
	c.Add([]string{"b", "a"}, []string{"X", "X"})

	split := NewEnumerator(c, WordEntity{}, TagEntity{}, false, true)
	BuildIndex(split, c.Instances)
	merged := NewEnumerator(c, WordEntity{}, TagEntity{}, false, false)
	BuildIndex(merged, c.Instances)

	assert.Equal(t, 4, split.NumGroups())
	assert.Equal(t, 2, merged.NumGroups())
	assert.Equal(t, "edge=a,X:left", split.GroupName(0))
	assert.Equal(t, "edge=a,X:", merged.GroupName(0))
	assert.Equal(t, 2*c.NumWordTypes(), merged.NumChildIDs())

	l, ok := merged.LookupEdgeGroup("a", "X", Left)
	require.True(t, ok)
	r, ok := merged.LookupEdgeGroup("a", "X", Right)
	require.True(t, ok)
	assert.Equal(t, l, r)
}

func TestSelfLoopsExcluded(t *testing.T) {
	c := corpus.New()
	c.Add([]string{"solo"}, []string{"X"})
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)
	assert.Equal(t, 1, ix.Len())
	assert.True(t, ix.Flat[0].IsRoot())
}

func TestNewReferencePanicsWithoutParents(t *testing.T) {
	assert.Panics(t, func() { NewReference(0, 0, nil) })
}

func TestIndexCheckPanicsOnMismatch(t *testing.T) {
	c := dogCatCorpus()
	ix := BuildIndex(NewEnumerator(c, WordEntity{}, TagEntity{}, true, true), c.Instances)
	ix.Flat = ix.Flat[:len(ix.Flat)-1]
	assert.Panics(t, ix.Check)
}

func TestParseEntity(t *testing.T) {
	e, err := ParseEntity("word")
	require.NoError(t, err)
	assert.Equal(t, "word", e.String())
	e, err = ParseEntity("tag")
	require.NoError(t, err)
	assert.Equal(t, "tag", e.String())
	_, err = ParseEntity("lemma")
	assert.Error(t, err)
}

func TestReadAllowList(t *testing.T) {
	c := dogCatCorpus()
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	BuildIndex(e, c.Instances)

	in := "# exempt determiners\nNOUN the   # trailing comment\n\nDET zzz\n"
	groups, err := ReadAllowList(strings.NewReader(in), e, quiet)
	require.NoError(t, err)
	g, _ := e.LookupEdgeGroup("the", "NOUN", Left)
	assert.Equal(t, map[int]struct{}{g: {}}, groups)

	_, err = ReadAllowList(strings.NewReader("lonely\n"), e, quiet)
	assert.Error(t, err)
}

func TestConstraintStrength(t *testing.T) {
	c := dogCatCorpus()

	opts := testOptions(2)
	opts.MinOccurrences = 2
	p, err := NewProjector(c, c.Instances, massModel{}, opts)
	require.NoError(t, err)
	// Only the groups shared by both sentences reach two occurrences.
	assert.Equal(t, 2.0, p.ConstraintStrength(0))
	assert.Equal(t, 2.0, p.ConstraintStrength(1))
	for g := 2; g < p.Index().NumGroups(); g++ {
		assert.Zero(t, p.ConstraintStrength(g), p.Enumerator().GroupName(g))
	}

	path := filepath.Join(t.TempDir(), "allow.txt")
	require.NoError(t, os.WriteFile(path, []byte("NOUN the\n"), 0o644))
	opts.AllowListPath = path
	p, err = NewProjector(c, c.Instances, massModel{}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.ConstraintStrength(0))
	assert.Zero(t, p.ConstraintStrength(1))
}

func TestNewProjectorErrors(t *testing.T) {
	c := dogCatCorpus()
	opts := testOptions(1)
	opts.AllowListPath = filepath.Join(t.TempDir(), "missing.txt")
	_, err := NewProjector(c, c.Instances, massModel{}, opts)
	assert.Error(t, err)

	opts = testOptions(-1)
	_, err = NewProjector(c, c.Instances, massModel{}, opts)
	assert.Error(t, err)

	opts = testOptions(1)
	opts.Child = nil
	_, err = NewProjector(c, c.Instances, massModel{}, opts)
	assert.Error(t, err)
}

func TestObjectiveZeroLambdaKeepsPosteriors(t *testing.T) {
	c := dogCatCorpus()
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)
	sds := dists(c)
	baseline := make([]Posteriors, len(sds))
	for s, sd := range sds {
		require.NoError(t, sd.Refresh())
		baseline[s] = sd.Posteriors().Clone()
	}
	strengths := []float64{1, 1, 1, 1, 1, 1}
	obj := newObjective(ix, strengths, sds, baseline, 2)

	grad := make([]float64, ix.Len())
	v, err := obj.Evaluate(make([]float64, ix.Len()), grad)
	require.NoError(t, err)
	assert.Zero(t, v)
	for s := range sds {
		assert.Equal(t, baseline[s], obj.Working()[s])
	}
	for i, ref := range ix.Flat {
		assert.InDelta(t, -baseline[ref.Sentence].Mass(ref), grad[i], 1e-12)
		assert.Less(t, grad[i], 0.0)
	}
}

func TestObjectiveGradient(t *testing.T) {
	c := dogCatCorpus()
	e := NewEnumerator(c, WordEntity{}, TagEntity{}, true, true)
	ix := BuildIndex(e, c.Instances)
	sds := dists(c)
	baseline := make([]Posteriors, len(sds))
	for s, sd := range sds {
		require.NoError(t, sd.Refresh())
		baseline[s] = sd.Posteriors().Clone()
	}
	strengths := []float64{1, 1, 0, 1, 1, 1}
	obj := newObjective(ix, strengths, sds, baseline, 1)

	lambda := []float64{0.3, 0.1, 0, 0, 0.5, 0, 0.2, 0.05}
	grad := make([]float64, ix.Len())
	_, err := obj.Evaluate(lambda, grad)
	require.NoError(t, err)
	analytic := append([]float64(nil), grad...)

	const h = 1e-6
	scratch := make([]float64, ix.Len())
	for i := range lambda {
		g := 0
		for i >= ix.Offsets[g+1] {
			g++
		}
		if strengths[g] == 0 {
			assert.Zero(t, analytic[i])
			continue
		}
		x := append([]float64(nil), lambda...)
		x[i] += h
		up, err := obj.Evaluate(x, scratch)
		require.NoError(t, err)
		x[i] -= 2 * h
		down, err := obj.Evaluate(x, scratch)
		require.NoError(t, err)
		assert.InDelta(t, (up-down)/(2*h), analytic[i], 1e-6, "variable %d", i)
	}
}

func TestProjectZeroStrengthIsIdentity(t *testing.T) {
	c := dogCatCorpus()
	p, err := NewProjector(c, c.Instances, massModel{}, testOptions(0))
	require.NoError(t, err)
	assert.Equal(t, 8, p.Index().Len())
	assert.Nil(t, p.Lambda())

	sds := dists(c)
	snapshot := make([]Posteriors, len(sds))
	for s, sd := range sds {
		require.NoError(t, sd.Refresh())
		snapshot[s] = sd.Posteriors().Clone()
	}

	stats := &recordingStats{}
	counts := &massCounts{total: 42}
	report, err := p.Project(counts, sds, stats)
	require.NoError(t, err)
	assert.True(t, report.Converged())
	assert.Equal(t, 0, report.Projected)
	assert.Equal(t, 6, report.Skipped)
	assert.InDelta(t, 0, report.KL, 1e-12)

	for s, sd := range sds {
		got := sd.Posteriors()
		for c := range got.Root {
			assert.InDelta(t, snapshot[s].Root[c], got.Root[c], 1e-9)
			for h := range got.Child[c] {
				assert.InDelta(t, snapshot[s].Child[c][h], got.Child[c][h], 1e-9)
			}
		}
	}
	assert.InDelta(t, 4.0, counts.total, 1e-9)
	assert.Equal(t, 1, stats.starts)
	require.Len(t, stats.reports, 1)
	assert.Equal(t, make([]float64, 8), p.Lambda())
}

func TestProjectConstrains(t *testing.T) {
	c := dogCatCorpus()
	p, err := NewProjector(c, c.Instances, massModel{}, testOptions(1))
	require.NoError(t, err)
	sds := dists(c)

	counts := &massCounts{}
	report, err := p.Project(counts, sds, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Projected)
	assert.LessOrEqual(t, report.Value, 1e-12)
	assert.GreaterOrEqual(t, report.KL, -1e-9)

	lambda := p.Lambda()
	ix := p.Index()
	sum := 0.0
	for g := range ix.NumGroups() {
		groupSum := 0.0
		for _, l := range lambda[ix.Offsets[g]:ix.Offsets[g+1]] {
			assert.GreaterOrEqual(t, l, 0.0)
			groupSum += l
		}
		assert.LessOrEqual(t, groupSum, 1+1e-9)
		sum += groupSum
	}
	assert.Greater(t, sum, 0.0)

	// Each token still chooses exactly one head.
	for _, sd := range sds {
		post := sd.Posteriors()
		for c := range post.Root {
			total := post.Root[c]
			for _, v := range post.Child[c] {
				total += v
			}
			assert.InDelta(t, 1, total, 1e-9)
		}
	}
	assert.InDelta(t, 4.0, counts.total, 1e-9)

	// A second round warm-starts from the previous multipliers.
	report, err = p.Project(counts, sds, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.KL, -1e-9)
}

func TestProjectIterationCap(t *testing.T) {
	c := dogCatCorpus()
	p, err := NewProjector(c, c.Instances, massModel{}, testOptions(1))
	require.NoError(t, err)
	p.SetMaxProjectionSteps(0)
	report, err := p.Project(&massCounts{}, dists(c), nil)
	require.NoError(t, err)
	assert.Equal(t, optimize.MaxIterations, report.Reason)
	assert.Zero(t, report.Iterations)
}

func TestProjectRollsBackOnError(t *testing.T) {
	c := dogCatCorpus()
	p, err := NewProjector(c, c.Instances, massModel{}, testOptions(1))
	require.NoError(t, err)
	sds := dists(c)
	saved := []float64{0.5, 0.5, 0.25, 0, 0, 0, 0, 0}
	require.NoError(t, p.RestoreLambda(saved))

	before := make([]Posteriors, len(sds))
	for s, sd := range sds {
		require.NoError(t, sd.Refresh())
		before[s] = sd.Posteriors().Clone()
	}
	sds[1].(*headDist).fail = true

	_, err = p.Project(&massCounts{}, sds, nil)
	require.Error(t, err)
	for s, sd := range sds {
		assert.Equal(t, before[s], sd.Posteriors())
	}
	assert.Equal(t, saved, p.Lambda())
}

func TestProjectGuards(t *testing.T) {
	c := dogCatCorpus()
	p, err := NewProjector(c, c.Instances, massModel{}, testOptions(1))
	require.NoError(t, err)

	_, err = p.Project(&massCounts{}, dists(c)[:1], nil)
	assert.Error(t, err)

	p.busy.Store(true)
	_, err = p.Project(&massCounts{}, dists(c), nil)
	assert.ErrorIs(t, err, ErrProjectionInProgress)
	p.busy.Store(false)

	assert.Error(t, p.RestoreLambda([]float64{1}))
}
