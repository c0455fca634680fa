// Package assessment is the single entry point of the malnutrition engine. It validates a
// measurement, computes z-scores, classifies, estimates confidence and builds the
// treatment plan, returning one immutable Result.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"malnutrition-workers/internal/engine/classify"
	"malnutrition-workers/internal/engine/confidence"
	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/engine/treatment"
	"malnutrition-workers/internal/engine/zscore"
	"malnutrition-workers/internal/models"
)

const (
	EngineVersion = "1.0.0"

	// PartialConfidenceCap bounds confidence when classification ran on partial data.
	PartialConfidenceCap = 0.5
	// DefaultReviewThreshold is the confidence below which a second opinion is requested.
	DefaultReviewThreshold = 0.6
	// TargetZ is the weight-for-height score used as the discharge weight target.
	TargetZ = -2.0
)

// ErrReferenceNotFound is wrapped by Assess when no indicator could be computed.
var ErrReferenceNotFound = errors.New("REFERENCE_NOT_FOUND")

// Engine runs assessments. It holds only read-only state and is safe for concurrent use.
type Engine struct {
	calc            *zscore.Calculator
	plans           *treatment.Builder
	now             func() time.Time
	reviewThreshold float64
	version         string
}

type Option func(*Engine)

// WithClock injects the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithReviewThreshold(threshold float64) Option {
	return func(e *Engine) { e.reviewThreshold = threshold }
}

func New(store *growth.Store, book *treatment.RuleBook, opts ...Option) *Engine {
	e := &Engine{
		calc:            zscore.NewCalculator(store),
		plans:           treatment.NewBuilder(book),
		now:             time.Now,
		reviewThreshold: DefaultReviewThreshold,
		version:         EngineVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefault builds an engine over the bundled WHO tables and rule book.
func NewDefault(opts ...Option) (*Engine, error) {
	store, err := growth.Default()
	if err != nil {
		return nil, fmt.Errorf("load growth reference: %w", err)
	}
	book, err := treatment.DefaultRuleBook()
	if err != nil {
		return nil, fmt.Errorf("load treatment rules: %w", err)
	}
	return New(store, book, opts...), nil
}

// Calculator exposes the z-score calculator backing the engine.
func (e *Engine) Calculator() *zscore.Calculator {
	return e.calc
}

// Assess runs one assessment.
//
// Errors: *validation.Error for bad input, an error wrapping ErrReferenceNotFound (and the
// underlying *growth.ReferenceNotFoundError) when nothing could be scored. Insufficient data
// is not an error: the result is marked partial instead.
func (e *Engine) Assess(ctx context.Context, in models.MeasurementInput) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(in).Err(); err != nil {
		return nil, err
	}

	snapshot := in.Clone()
	snapshot.Sex, _ = models.ParseSex(string(in.Sex))

	scores := e.calc.ComputeAll(snapshot)
	if scores.Empty() {
		return nil, referenceError(scores)
	}

	flags := classify.FlagsFrom(snapshot)
	partial := false
	class, err := classify.Classify(scores, flags)
	if err != nil {
		var insufficient *classify.InsufficientDataError
		if !errors.As(err, &insufficient) {
			return nil, err
		}
		class = classify.ClassifyAvailable(scores, flags)
		partial = true
	}

	breakdown := confidence.Explain(scores, class, confidence.CompletenessOf(snapshot))
	score := breakdown.Score
	if partial {
		score = math.Min(score, PartialConfidenceCap)
	}
	review := partial || score < e.reviewThreshold

	plan, err := e.plans.Build(class, class.RiskFactors, e.planFlags(snapshot, scores, class, review))
	if err != nil {
		return nil, fmt.Errorf("build treatment plan: %w", err)
	}

	return &Result{
		input:          snapshot,
		scores:         scores,
		classification: class,
		confidence:     score,
		penalties:      breakdown.Penalties,
		plan:           plan,
		partial:        partial,
		reviewRequired: review,
		generatedAt:    e.now().UTC(),
		version:        e.version,
	}, nil
}

func (e *Engine) planFlags(in models.MeasurementInput, scores zscore.Result, c classify.Result, review bool) treatment.Flags {
	f := treatment.Flags{
		AgeMonths:      in.AgeMonths,
		WeightKg:       in.WeightKg,
		Edema:          in.EdemaPresent(),
		ReviewRequired: review,
	}
	if in.Symptoms != nil {
		f.DiarrheaDays = in.Symptoms.DiarrheaDays
	}
	if in.Household != nil {
		f.CashTransfer = in.Household.CashTransferBeneficiary
	}
	if targetsWeight(c.Primary) {
		if s, ok := scores.Get(growth.WeightForHeight); ok {
			if w, err := e.calc.ValueAt(s.Table, in.Sex, s.AxisValue, TargetZ); err == nil {
				w = zscore.Round2(w)
				f.TargetWeightKg = &w
			}
		}
	}
	return f
}

func targetsWeight(d classify.Diagnosis) bool {
	switch d {
	case classify.SAMEdematous, classify.SAMNonEdematous, classify.SevereWasting, classify.ModerateWasting:
		return true
	}
	return false
}

func referenceError(scores zscore.Result) error {
	for _, m := range scores.Missing {
		var refErr *growth.ReferenceNotFoundError
		if errors.As(m.Err, &refErr) {
			return fmt.Errorf("%w: no indicator could be computed: %w", ErrReferenceNotFound, refErr)
		}
	}
	return fmt.Errorf("%w: no indicator could be computed", ErrReferenceNotFound)
}
