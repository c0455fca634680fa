// Package growth holds the WHO Child Growth Standards LMS reference tables.
//
// A Store is immutable once built. Lookups return the two reference points that
// bracket a key (age in months or height in cm, depending on the indicator's axis);
// an exact match returns the same point twice.
package growth

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"malnutrition-workers/internal/models"
)

// Indicator names one reference table.
type Indicator string

const (
	WeightForAge    Indicator = "weight_for_age"
	LengthForAge    Indicator = "length_for_age"
	HeightForAge    Indicator = "height_for_age"
	WeightForLength Indicator = "weight_for_length"
	WeightForHeight Indicator = "weight_for_height"
	BMIForAge       Indicator = "bmi_for_age"
)

// Axis is the interpolation axis of an indicator.
type Axis string

const (
	AxisAge    Axis = "age_months"
	AxisHeight Axis = "height_cm"
)

var indicatorAxes = map[Indicator]Axis{
	WeightForAge:    AxisAge,
	LengthForAge:    AxisAge,
	HeightForAge:    AxisAge,
	WeightForLength: AxisHeight,
	WeightForHeight: AxisHeight,
	BMIForAge:       AxisAge,
}

// Indicators lists every table the store understands, in a stable order.
func Indicators() []Indicator {
	return []Indicator{WeightForAge, LengthForAge, HeightForAge, WeightForLength, WeightForHeight, BMIForAge}
}

// Axis reports which axis the indicator is keyed on.
func (i Indicator) Axis() (Axis, bool) {
	a, ok := indicatorAxes[i]
	return a, ok
}

// Point is one row of a WHO LMS table.
type Point struct {
	Indicator Indicator  `json:"indicator"`
	Sex       models.Sex `json:"sex"`
	Key       float64    `json:"key"`
	L         float64    `json:"l"`
	M         float64    `json:"m"`
	S         float64    `json:"s"`
}

type tableKey struct {
	indicator Indicator
	sex       models.Sex
}

// Store is a read-only set of LMS tables. It is safe for concurrent use.
type Store struct {
	tables map[tableKey][]Point
}

// ReferenceNotFoundError is returned when a lookup falls outside the covered tables.
type ReferenceNotFoundError struct {
	Indicator Indicator
	Sex       models.Sex
	Key       float64
	Reason    string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("reference not found: indicator=%s sex=%s key=%g: %s", e.Indicator, e.Sex, e.Key, e.Reason)
}

// NewStore builds a store from in-memory points. Duplicate keys within one table are rejected.
func NewStore(points []Point) (*Store, error) {
	tables := make(map[tableKey][]Point)
	for _, p := range points {
		if _, ok := p.Indicator.Axis(); !ok {
			return nil, fmt.Errorf("unknown indicator %q", p.Indicator)
		}
		if !p.Sex.Valid() {
			return nil, fmt.Errorf("unsupported sex %q for %s", p.Sex, p.Indicator)
		}
		if p.M <= 0 || p.S <= 0 {
			return nil, fmt.Errorf("invalid LMS row %s/%s/%g: M and S must be positive", p.Indicator, p.Sex, p.Key)
		}
		k := tableKey{p.Indicator, p.Sex}
		tables[k] = append(tables[k], p)
	}

	for k, rows := range tables {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
		for i := 1; i < len(rows); i++ {
			if rows[i].Key == rows[i-1].Key {
				return nil, fmt.Errorf("duplicate key %g in %s/%s", rows[i].Key, k.indicator, k.sex)
			}
		}
		tables[k] = rows
	}

	return &Store{tables: tables}, nil
}

// Lookup returns the reference points bracketing key.
func (s *Store) Lookup(indicator Indicator, sex models.Sex, key float64) (Point, Point, error) {
	if !sex.Valid() {
		return Point{}, Point{}, &ReferenceNotFoundError{indicator, sex, key, "unsupported sex"}
	}
	rows, ok := s.tables[tableKey{indicator, sex}]
	if !ok || len(rows) == 0 {
		return Point{}, Point{}, &ReferenceNotFoundError{indicator, sex, key, "no table for indicator"}
	}

	first, last := rows[0].Key, rows[len(rows)-1].Key
	if key < first || key > last {
		return Point{}, Point{}, &ReferenceNotFoundError{
			indicator, sex, key,
			fmt.Sprintf("outside covered range %g-%g", first, last),
		}
	}

	idx := sort.Search(len(rows), func(i int) bool { return rows[i].Key >= key })
	if rows[idx].Key == key {
		return rows[idx], rows[idx], nil
	}
	return rows[idx-1], rows[idx], nil
}

// Range returns the first and last key covered for an indicator and sex.
func (s *Store) Range(indicator Indicator, sex models.Sex) (float64, float64, bool) {
	rows := s.tables[tableKey{indicator, sex}]
	if len(rows) == 0 {
		return 0, 0, false
	}
	return rows[0].Key, rows[len(rows)-1].Key, true
}

// Len is the number of reference rows held.
func (s *Store) Len() int {
	n := 0
	for _, rows := range s.tables {
		n += len(rows)
	}
	return n
}

//go:embed data/who_lms.csv
var whoLMS []byte

var (
	defaultOnce  sync.Once
	defaultStore *Store
	defaultErr   error
	loaded       atomic.Bool
)

// Default returns the store built from the bundled WHO tables. The asset is parsed once;
// concurrent first callers wait for that single load.
func Default() (*Store, error) {
	defaultOnce.Do(func() {
		defaultStore, defaultErr = Load(bytes.NewReader(whoLMS))
		loaded.Store(defaultErr == nil)
	})
	return defaultStore, defaultErr
}

// Loaded reports whether Default has completed successfully.
func Loaded() bool {
	return loaded.Load()
}
