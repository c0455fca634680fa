// Package zscore converts anthropometric measurements into WHO z-scores using the
// LMS method against a growth.Store.
package zscore

import (
	"errors"
	"fmt"
	"math"

	"malnutrition-workers/internal/engine/growth"
	"malnutrition-workers/internal/models"
)

// LengthBoundaryMonths is the last age at which recumbent length tables apply.
const LengthBoundaryMonths = 24

// ErrInvalidMeasurement is returned for non-positive measurements, which the LMS transform cannot take.
var ErrInvalidMeasurement = errors.New("measurement must be positive")

// Score is one computed indicator with enough context to audit it.
type Score struct {
	Indicator   growth.Indicator `json:"indicator"`
	Table       growth.Indicator `json:"table"`
	Axis        growth.Axis      `json:"axis"`
	AxisValue   float64          `json:"axis_value"`
	Measurement float64          `json:"measurement"`
	Z           float64          `json:"z"`
	Lower       growth.Point     `json:"lower"`
	Upper       growth.Point     `json:"upper"`
	Corrected   bool             `json:"extreme_corrected"`
	Implausible bool             `json:"implausible"`
}

// Missing names an indicator that could not be computed.
type Missing struct {
	Indicator growth.Indicator `json:"indicator"`
	Reason    string           `json:"reason"`
	Err       error            `json:"-"`
}

// Result is the set of scores for one measurement, keyed by reporting name.
type Result struct {
	Scores  map[growth.Indicator]Score
	Missing []Missing
}

// ReportingNames are the indicator names used in assessment output, in display order.
func ReportingNames() []growth.Indicator {
	return []growth.Indicator{growth.WeightForAge, growth.HeightForAge, growth.WeightForHeight, growth.BMIForAge}
}

// Z returns the full-precision z-score for a reporting name.
func (r Result) Z(indicator growth.Indicator) (float64, bool) {
	s, ok := r.Scores[indicator]
	return s.Z, ok
}

func (r Result) Get(indicator growth.Indicator) (Score, bool) {
	s, ok := r.Scores[indicator]
	return s, ok
}

func (r Result) Empty() bool {
	return len(r.Scores) == 0
}

// Rounded returns z-scores rounded to two decimals for reporting.
func (r Result) Rounded() map[string]float64 {
	out := make(map[string]float64, len(r.Scores))
	for name, s := range r.Scores {
		out[string(name)] = Round2(s.Z)
	}
	return out
}

// MissingNames lists the reporting names that could not be computed.
func (r Result) MissingNames() []string {
	out := make([]string, 0, len(r.Missing))
	for _, m := range r.Missing {
		out = append(out, string(m.Indicator))
	}
	return out
}

// Clone returns a copy that shares no maps or slices with r.
func (r Result) Clone() Result {
	out := Result{Scores: make(map[growth.Indicator]Score, len(r.Scores))}
	for k, v := range r.Scores {
		out.Scores[k] = v
	}
	if r.Missing != nil {
		out.Missing = append([]Missing(nil), r.Missing...)
	}
	return out
}

// Calculator computes z-scores. It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	store *growth.Store
}

func NewCalculator(store *growth.Store) *Calculator {
	return &Calculator{store: store}
}

// Compute returns the z-score of measurement for the given table at axisValue.
// The reported Indicator equals the table; ComputeAll rewrites it to the reporting name.
func (c *Calculator) Compute(indicator growth.Indicator, sex models.Sex, axisValue, measurement float64) (Score, error) {
	if measurement <= 0 || math.IsNaN(measurement) || math.IsInf(measurement, 0) {
		return Score{}, fmt.Errorf("%s: %w", indicator, ErrInvalidMeasurement)
	}

	lower, upper, err := c.store.Lookup(indicator, sex, axisValue)
	if err != nil {
		return Score{}, err
	}
	axis, _ := indicator.Axis()
	lms := interpolate(lower, upper, axisValue)

	z := lms.z(measurement)
	corrected := false
	if extremeCorrected(indicator) && (z > 3 || z < -3) {
		z = lms.correct(z, measurement)
		corrected = true
	}

	return Score{
		Indicator:   indicator,
		Table:       indicator,
		Axis:        axis,
		AxisValue:   axisValue,
		Measurement: measurement,
		Z:           z,
		Lower:       lower,
		Upper:       upper,
		Corrected:   corrected,
		Implausible: implausible(indicator, z),
	}, nil
}

// ValueAt is the inverse of Compute: the measurement that scores exactly z.
func (c *Calculator) ValueAt(indicator growth.Indicator, sex models.Sex, axisValue, z float64) (float64, error) {
	lower, upper, err := c.store.Lookup(indicator, sex, axisValue)
	if err != nil {
		return 0, err
	}
	lms := interpolate(lower, upper, axisValue)

	if extremeCorrected(indicator) {
		switch {
		case z > 3:
			sd3, sd2 := lms.sd(3), lms.sd(2)
			return sd3 + (z-3)*(sd3-sd2), nil
		case z < -3:
			sd3, sd2 := lms.sd(-3), lms.sd(-2)
			return sd3 - (-3-z)*(sd2-sd3), nil
		}
	}
	v := lms.sd(z)
	if math.IsNaN(v) || v <= 0 {
		return 0, fmt.Errorf("%s: z=%g has no finite measurement", indicator, z)
	}
	return v, nil
}

// ComputeAll computes every indicator applicable to the child's age. Failures are
// recorded in Result.Missing instead of aborting the run.
func (c *Calculator) ComputeAll(in models.MeasurementInput) Result {
	res := Result{Scores: make(map[growth.Indicator]Score)}
	age := float64(in.AgeMonths)

	type job struct {
		name      growth.Indicator
		table     growth.Indicator
		axisValue float64
		value     float64
	}
	jobs := []job{{growth.WeightForAge, growth.WeightForAge, age, in.WeightKg}}
	if in.AgeMonths <= LengthBoundaryMonths {
		jobs = append(jobs,
			job{growth.HeightForAge, growth.LengthForAge, age, in.HeightCm},
			job{growth.WeightForHeight, growth.WeightForLength, in.HeightCm, in.WeightKg},
		)
	} else {
		jobs = append(jobs,
			job{growth.HeightForAge, growth.HeightForAge, age, in.HeightCm},
			job{growth.WeightForHeight, growth.WeightForHeight, in.HeightCm, in.WeightKg},
			job{growth.BMIForAge, growth.BMIForAge, age, in.BMI()},
		)
	}

	for _, j := range jobs {
		s, err := c.Compute(j.table, in.Sex, j.axisValue, j.value)
		if err != nil {
			res.Missing = append(res.Missing, Missing{Indicator: j.name, Reason: err.Error(), Err: err})
			continue
		}
		s.Indicator = j.name
		s.Implausible = implausible(j.name, s.Z)
		res.Scores[j.name] = s
	}
	return res
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type lmsParams struct {
	l, m, s float64
}

func interpolate(lower, upper growth.Point, key float64) lmsParams {
	if lower.Key == upper.Key {
		return lmsParams{lower.L, lower.M, lower.S}
	}
	t := (key - lower.Key) / (upper.Key - lower.Key)
	return lmsParams{
		l: lower.L + t*(upper.L-lower.L),
		m: lower.M + t*(upper.M-lower.M),
		s: lower.S + t*(upper.S-lower.S),
	}
}

func (p lmsParams) z(x float64) float64 {
	if p.l == 0 {
		return math.Log(x/p.m) / p.s
	}
	return (math.Pow(x/p.m, p.l) - 1) / (p.l * p.s)
}

// sd is the measurement at k standard deviations: M(1+LSk)^(1/L).
func (p lmsParams) sd(k float64) float64 {
	if p.l == 0 {
		return p.m * math.Exp(p.s*k)
	}
	return p.m * math.Pow(1+p.l*p.s*k, 1/p.l)
}

// correct restates z beyond +/-3 using the distance between the 2SD and 3SD cut-offs.
func (p lmsParams) correct(z, x float64) float64 {
	if z > 3 {
		sd3, sd2 := p.sd(3), p.sd(2)
		return 3 + (x-sd3)/(sd3-sd2)
	}
	sd3, sd2 := p.sd(-3), p.sd(-2)
	return -3 - (sd3-x)/(sd2-sd3)
}

func extremeCorrected(indicator growth.Indicator) bool {
	switch indicator {
	case growth.WeightForAge, growth.WeightForLength, growth.WeightForHeight, growth.BMIForAge:
		return true
	}
	return false
}

func implausible(indicator growth.Indicator, z float64) bool {
	switch indicator {
	case growth.WeightForAge:
		return z < -6 || z > 5
	case growth.LengthForAge, growth.HeightForAge:
		return z < -6 || z > 6
	case growth.WeightForLength, growth.WeightForHeight, growth.BMIForAge:
		return z < -5 || z > 5
	}
	return false
}
