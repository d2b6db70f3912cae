// Package constraints projects the edge posteriors of a dependency model
// onto the L1Lmax constraint set used by posterior regularization.
//
// Each child token's candidate edges are grouped by (child entity, parent
// entity, direction), and root attachments by child entity. The projection
// finds the posteriors closest in KL divergence to the model's that keep the
// sum over child entities of the per-group maximum expected edge count
// small. It does so by minimizing the dual objective over one multiplier per
// (group, child token) reference.
package constraints

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/happyhackingspace/sparsepr/corpus"
	"github.com/happyhackingspace/sparsepr/optimize"
)

// ErrProjectionInProgress is returned when Project is called while another
// call on the same Projector is still running.
var ErrProjectionInProgress = errors.New("constraints: projection already in progress")

// Options configures a Projector.
type Options struct {
	Child        Entity
	Parent       Entity
	UseRoot      bool
	UseDirection bool
	// Strength is the L1 cap applied to every eligible group.
	Strength float64
	// MinOccurrences zeroes the strength of groups with fewer references.
	MinOccurrences int
	// AllowListPath names edges that are never projected. Optional.
	AllowListPath string
	Solver        optimize.Config
	// Parallelism bounds concurrent per-sentence work. <= 0 uses GOMAXPROCS.
	Parallelism int
	Logger      *slog.Logger
}

// DefaultOptions constrains child words by parent tags with root and
// direction splitting enabled.
func DefaultOptions() Options {
	return Options{
		Child:        WordEntity{},
		Parent:       TagEntity{},
		UseRoot:      true,
		UseDirection: true,
		Strength:     1,
		Solver:       optimize.DefaultConfig(),
	}
}

// Report summarizes one Project call.
type Report struct {
	Reason      optimize.StopReason
	Iterations  int
	Evaluations int
	// Value is the dual objective at the final multipliers.
	Value float64
	// KL is KL(q||p) summed over sentences.
	KL        float64
	Projected int
	Skipped   int
	Elapsed   time.Duration
	Stats     optimize.Stats
}

// Converged reports whether the solver met its stopping rule.
func (r Report) Converged() bool { return r.Reason == optimize.Converged }

// Projector holds the constraint index for a corpus and the multipliers
// carried from one EM iteration to the next.
type Projector struct {
	opts      Options
	logger    *slog.Logger
	enum      *Enumerator
	index     *Index
	model     Model
	exempt    map[int]struct{}
	strengths []float64

	lambda   []float64
	baseline []Posteriors
	busy     atomic.Bool
}

// NewProjector enumerates the constraint groups of instances and builds the
// projection index. An unreadable allow list is an error.
func NewProjector(c *corpus.Corpus, instances []*corpus.Instance, model Model, opts Options) (*Projector, error) {
	if opts.Child == nil || opts.Parent == nil {
		return nil, errors.New("constraints: child and parent entities are required")
	}
	if opts.Strength < 0 {
		return nil, fmt.Errorf("constraints: negative constraint strength %v", opts.Strength)
	}
	if err := opts.Solver.Validate(); err != nil {
		return nil, err
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Projector{
		opts:   opts,
		logger: logger,
		enum:   NewEnumerator(c, opts.Child, opts.Parent, opts.UseRoot, opts.UseDirection),
		model:  model,
		exempt: map[int]struct{}{},
	}
	p.index = BuildIndex(p.enum, instances)

	if opts.AllowListPath != "" {
		exempt, err := ReadAllowListFile(opts.AllowListPath, p.enum, logger)
		if err != nil {
			return nil, err
		}
		p.exempt = exempt
	}

	p.strengths = make([]float64, p.index.NumGroups())
	below := 0
	for g := range p.strengths {
		p.strengths[g] = p.ConstraintStrength(g)
		if p.index.Occurrences(g) < opts.MinOccurrences {
			below++
		}
	}
	total := p.index.NumGroups()
	logger.Info("Constraint groups enumerated",
		"projected", total-below,
		"total", total,
		"below_min_occurrences", below,
		"allow_listed", len(p.exempt),
		"variables", p.index.Len())
	return p, nil
}

// ConstraintStrength returns the L1 cap of group g: zero for allow-listed
// groups and groups below the occurrence threshold, the configured strength
// otherwise.
func (p *Projector) ConstraintStrength(g int) float64 {
	if _, ok := p.exempt[g]; ok {
		return 0
	}
	if p.index.Occurrences(g) < p.opts.MinOccurrences {
		return 0
	}
	return p.opts.Strength
}

// Enumerator returns the group enumerator.
func (p *Projector) Enumerator() *Enumerator { return p.enum }

// Index returns the projection index.
func (p *Projector) Index() *Index { return p.index }

// SetMaxProjectionSteps caps solver iterations for subsequent projections.
func (p *Projector) SetMaxProjectionSteps(n int) { p.opts.Solver.MaxIterations = n }

// Lambda returns a copy of the current multipliers, or nil before the
// first projection.
func (p *Projector) Lambda() []float64 {
	if p.lambda == nil {
		return nil
	}
	return append([]float64(nil), p.lambda...)
}

// RestoreLambda warm-starts the next projection from saved multipliers.
func (p *Projector) RestoreLambda(lambda []float64) error {
	if len(lambda) != p.index.Len() {
		return fmt.Errorf("constraints: saved multipliers have length %d, index has %d variables", len(lambda), p.index.Len())
	}
	p.lambda = append(p.lambda[:0], lambda...)
	return nil
}

// Project replaces the posteriors of every sentence with their L1Lmax
// projection and refills counts from them. Solver non-convergence is
// logged, not returned. On error the sentences keep their unprojected
// posteriors.
func (p *Projector) Project(counts CountTable, posteriors []SentenceDist, stats TrainStats) (Report, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Report{}, ErrProjectionInProgress
	}
	defer p.busy.Store(false)

	start := time.Now()
	if stats != nil {
		stats.EStepStart()
	}
	p.index.Check()
	if len(posteriors) != p.index.NumSentences {
		return Report{}, fmt.Errorf("constraints: index built for %d sentences, got %d", p.index.NumSentences, len(posteriors))
	}
	if p.lambda == nil {
		p.lambda = make([]float64, p.index.Len())
	}
	if p.baseline == nil {
		p.baseline = make([]Posteriors, len(posteriors))
	}

	var g errgroup.Group
	g.SetLimit(p.opts.Parallelism)
	for s, sd := range posteriors {
		g.Go(func() error {
			if err := sd.Refresh(); err != nil {
				return fmt.Errorf("refresh sentence %d: %w", s, err)
			}
			p.baseline[s] = sd.Posteriors().Clone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	saved := append([]float64(nil), p.lambda...)
	obj := newObjective(p.index, p.strengths, posteriors, p.baseline, p.opts.Parallelism)
	proj := optimize.NewGroupSimplex(p.index.Sizes(), p.strengths)
	solver := optimize.NewProjectedGradientDescent(p.opts.Solver)
	res, err := solver.Minimize(obj, proj, p.lambda)
	if err != nil {
		p.rollback(posteriors, saved)
		return Report{}, fmt.Errorf("project: %w", err)
	}
	if !res.Converged() {
		p.logger.Warn("Projection did not converge", "reason", res.Reason, "iterations", res.Stats.Iterations)
	}

	grad := make([]float64, p.index.Len())
	value, err := obj.Evaluate(p.lambda, grad)
	if err != nil {
		p.rollback(posteriors, saved)
		return Report{}, fmt.Errorf("project: final evaluation: %w", err)
	}
	for s, sd := range posteriors {
		sd.Commit(obj.Working()[s])
	}

	counts.Clear()
	for s, sd := range posteriors {
		if err := p.model.AddToCounts(sd, counts); err != nil {
			return Report{}, fmt.Errorf("add counts of sentence %d: %w", s, err)
		}
	}

	report := Report{
		Reason:      res.Reason,
		Iterations:  res.Stats.Iterations,
		Evaluations: obj.Evaluations(),
		Value:       value,
		KL:          floats.Dot(p.lambda, grad) - value,
		Elapsed:     time.Since(start),
		Stats:       res.Stats,
	}
	for _, s := range p.strengths {
		if s > 0 {
			report.Projected++
		} else {
			report.Skipped++
		}
	}
	p.logger.Info("Projection finished",
		"converged", report.Converged(),
		"iterations", report.Iterations,
		"evaluations", report.Evaluations,
		"dual", report.Value,
		"kl", report.KL,
		"duration", report.Elapsed)
	p.logger.Debug("Projection trajectory", "stats", res.Stats.PrettyPrint(1))
	if stats != nil {
		stats.EStepEnd(report)
	}
	return report, nil
}

func (p *Projector) rollback(posteriors []SentenceDist, lambda []float64) {
	for s, sd := range posteriors {
		sd.Commit(p.baseline[s])
	}
	copy(p.lambda, lambda)
}
