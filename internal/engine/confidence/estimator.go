// Package confidence scores how much a classification can be trusted given input
// completeness and how close the deciding value sits to a class threshold.
// The score is advisory and never feeds back into classification.
package confidence

import (
	"math"

	"malnutrition-workers/internal/engine/classify"
	"malnutrition-workers/internal/engine/zscore"
	"malnutrition-workers/internal/models"
)

const (
	MissingMUACPenalty     = 0.05
	MissingEdemaPenalty    = 0.02
	MissingSymptomsPenalty = 0.03

	MaxBoundaryPenalty = 0.30
	BoundaryWindow     = 0.1
)

var (
	zThresholds    = []float64{classify.SevereZ, classify.ModerateZ, classify.OverweightZ}
	muacThresholds = []float64{classify.SevereMUACCm, classify.ModerateMUACCm}
	normalEdges    = []float64{classify.ModerateZ, classify.OverweightZ}
)

// Completeness records which optional inputs were supplied.
type Completeness struct {
	MUAC     bool
	Edema    bool
	Symptoms bool
}

func CompletenessOf(in models.MeasurementInput) Completeness {
	return Completeness{
		MUAC:     in.MUACCm != nil,
		Edema:    in.Edema != nil,
		Symptoms: in.Symptoms != nil,
	}
}

// Penalty is one deduction from the base score.
type Penalty struct {
	Reason string  `json:"reason"`
	Amount float64 `json:"amount"`
}

// Breakdown explains a confidence score.
type Breakdown struct {
	Score     float64   `json:"score"`
	Penalties []Penalty `json:"penalties"`
}

// Estimate returns a confidence in [0,1], rounded to two decimals.
func Estimate(z zscore.Result, c classify.Result, comp Completeness) float64 {
	return Explain(z, c, comp).Score
}

func Explain(z zscore.Result, c classify.Result, comp Completeness) Breakdown {
	b := Breakdown{Penalties: []Penalty{}}
	if !comp.MUAC {
		b.Penalties = append(b.Penalties, Penalty{"muac not measured", MissingMUACPenalty})
	}
	if !comp.Edema {
		b.Penalties = append(b.Penalties, Penalty{"edema not assessed", MissingEdemaPenalty})
	}
	if !comp.Symptoms {
		b.Penalties = append(b.Penalties, Penalty{"clinical symptoms not recorded", MissingSymptomsPenalty})
	}
	if p := boundaryPenalty(z, c); p > 0 {
		b.Penalties = append(b.Penalties, Penalty{"decisive value near class threshold", p})
	}

	score := 1.0
	for _, p := range b.Penalties {
		score -= p.Amount
	}
	b.Score = zscore.Round2(math.Min(1, math.Max(0, score)))
	return b
}

func boundaryPenalty(z zscore.Result, c classify.Result) float64 {
	d, ok := decisiveDistance(z, c)
	if !ok || d >= BoundaryWindow {
		return 0
	}
	return MaxBoundaryPenalty * (1 - d/BoundaryWindow)
}

func decisiveDistance(z zscore.Result, c classify.Result) (float64, bool) {
	if c.Decisive == nil {
		// normal: closest available score to either edge of the normal band
		best, found := math.Inf(1), false
		for _, s := range z.Scores {
			best = math.Min(best, nearest(s.Z, normalEdges))
			found = true
		}
		return best, found
	}

	switch c.Decisive.Source {
	case classify.SourceEdema:
		return 0, false
	case classify.SourceMUAC:
		return nearest(c.Decisive.Value, muacThresholds), true
	default:
		return nearest(c.Decisive.Value, zThresholds), true
	}
}

func nearest(v float64, thresholds []float64) float64 {
	d := math.Inf(1)
	for _, t := range thresholds {
		d = math.Min(d, math.Abs(v-t))
	}
	return d
}

// Level labels a score: Very High, High, Moderate, Low or Very Low.
func Level(score float64) string {
	switch {
	case score >= 0.85:
		return "Very High"
	case score >= 0.70:
		return "High"
	case score >= 0.55:
		return "Moderate"
	case score >= 0.40:
		return "Low"
	}
	return "Very Low"
}
