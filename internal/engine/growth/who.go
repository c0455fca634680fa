package growth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"malnutrition-workers/internal/models"

	"github.com/xuri/excelize/v2"
)

// Coverage is the key range and spacing of a published WHO table.
type Coverage struct {
	From float64
	To   float64
	Step float64
}

var whoCoverage = map[Indicator]Coverage{
	WeightForAge:    {From: 0, To: 60, Step: 1},
	LengthForAge:    {From: 0, To: 24, Step: 1},
	HeightForAge:    {From: 24, To: 60, Step: 1},
	WeightForLength: {From: 45, To: 110, Step: 0.5},
	WeightForHeight: {From: 65, To: 120, Step: 0.5},
	BMIForAge:       {From: 24, To: 60, Step: 1},
}

// PublishedCoverage returns the range and spacing of the WHO table for an indicator.
func (i Indicator) PublishedCoverage() (Coverage, bool) {
	c, ok := whoCoverage[i]
	return c, ok
}

// MaxGap is the widest spacing between consecutive keys of a table.
func (s *Store) MaxGap(indicator Indicator, sex models.Sex) (float64, bool) {
	rows := s.tables[tableKey{indicator, sex}]
	if len(rows) == 0 {
		return 0, false
	}
	gap := 0.0
	for i := 1; i < len(rows); i++ {
		if d := rows[i].Key - rows[i-1].Key; d > gap {
			gap = d
		}
	}
	return gap, true
}

// ResolutionError lists the tables that do not match the published WHO grid.
type ResolutionError struct {
	Problems []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("reference tables do not match the WHO grid: %s", strings.Join(e.Problems, "; "))
}

// CheckResolution verifies that every table spans its published range at the published
// spacing, so that tabulated ages and heights are looked up without interpolation.
func (s *Store) CheckResolution() error {
	var problems []string
	for _, ind := range Indicators() {
		cov := whoCoverage[ind]
		for _, sex := range []models.Sex{models.SexMale, models.SexFemale} {
			name := fmt.Sprintf("%s/%s", ind, sex)
			first, last, ok := s.Range(ind, sex)
			if !ok {
				problems = append(problems, name+": missing")
				continue
			}
			if first > cov.From || last < cov.To {
				problems = append(problems, fmt.Sprintf("%s: covers %g-%g, want %g-%g", name, first, last, cov.From, cov.To))
			}
			if gap, _ := s.MaxGap(ind, sex); gap > cov.Step+1e-9 {
				problems = append(problems, fmt.Sprintf("%s: spacing %g exceeds %g", name, gap, cov.Step))
			}
		}
	}
	if len(problems) > 0 {
		return &ResolutionError{Problems: problems}
	}
	return nil
}

// whoFile is a WHO table file recognized by its published name, for example
// wfa_boys_0-to-5-years_zscores.xlsx or wfh-girls-2-5-zscores.txt.
type whoFile struct {
	indicator Indicator
	sex       models.Sex
	span      string
}

func classifyWHOFile(name string) (whoFile, bool) {
	base := strings.ToLower(filepath.Base(name))
	switch filepath.Ext(base) {
	case ".txt", ".tsv", ".csv", ".xlsx":
	default:
		return whoFile{}, false
	}

	var f whoFile
	switch {
	case strings.Contains(base, "boys"):
		f.sex = models.SexMale
	case strings.Contains(base, "girls"):
		f.sex = models.SexFemale
	default:
		return whoFile{}, false
	}

	prefix := strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == '.' })[0]
	switch prefix {
	case "wfa":
		f.indicator = WeightForAge
	case "lhfa", "lfa", "hfa":
		f.indicator = LengthForAge
	case "wfl":
		f.indicator = WeightForLength
	case "wfh":
		f.indicator = WeightForHeight
	case "bfa", "bmi", "bmifa":
		f.indicator = BMIForAge
	default:
		return whoFile{}, false
	}

	switch {
	case strings.Contains(base, "0-to-2") || strings.Contains(base, "0_2") || strings.Contains(base, "0-2"):
		f.span = "0-2"
	case strings.Contains(base, "2-to-5") || strings.Contains(base, "2_5") || strings.Contains(base, "2-5"):
		f.span = "2-5"
	default:
		f.span = "0-5"
	}
	return f, true
}

// points assigns parsed rows to tables. Length and height share one WHO file family:
// months up to 24 are recumbent length, months from 24 are standing height.
func (f whoFile) points(rows []Point) []Point {
	var out []Point
	for _, p := range rows {
		p.Sex = f.sex
		switch f.indicator {
		case LengthForAge:
			if f.span != "2-5" && p.Key <= 24 {
				q := p
				q.Indicator = LengthForAge
				out = append(out, q)
			}
			if f.span != "0-2" && p.Key >= 24 {
				q := p
				q.Indicator = HeightForAge
				out = append(out, q)
			}
		case BMIForAge:
			if p.Key >= 24 && f.span != "0-2" {
				p.Indicator = BMIForAge
				out = append(out, p)
			}
		default:
			p.Indicator = f.indicator
			out = append(out, p)
		}
	}
	return out
}

// LoadWHODir builds a store from the official WHO z-score tables in dir, as published in
// text or xlsx form. Files are recognized by name; others are ignored.
func LoadWHODir(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read reference dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var points []Point
	for _, name := range names {
		f, ok := classifyWHOFile(name)
		if !ok {
			continue
		}
		rows, err := readWHOFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		points = append(points, f.points(rows)...)
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no WHO tables found in %s", dir)
	}
	return NewStore(points)
}

func readWHOFile(path string) ([]Point, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadWHOWorkbook(file)
	}
	return ReadWHOTable(file)
}

// ReadWHOTable parses a WHO table in text form: tab, comma or space separated, with a
// header row naming Month, Length or Height followed by L, M and S columns.
func ReadWHOTable(r io.Reader) ([]Point, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var records [][]string
	if strings.Contains(string(data), ",") {
		reader := csv.NewReader(strings.NewReader(string(data)))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		if records, err = reader.ReadAll(); err != nil {
			return nil, fmt.Errorf("read table: %w", err)
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			if fields := strings.Fields(line); len(fields) > 0 {
				records = append(records, fields)
			}
		}
	}
	return parseWHORows(records)
}

// ReadWHOWorkbook parses the first sheet of a WHO xlsx table.
func ReadWHOWorkbook(r io.Reader) ([]Point, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return parseWHORows(rows)
}

var whoKeyColumns = map[string]bool{"month": true, "length": true, "height": true}

func parseWHORows(records [][]string) ([]Point, error) {
	header := -1
	cols := map[string]int{}
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		first := strings.ToLower(strings.TrimSpace(rec[0]))
		if first == "day" {
			return nil, errors.New("daily tables are not supported, use the monthly z-score tables")
		}
		if whoKeyColumns[first] {
			header = i
			for j, c := range rec {
				cols[strings.ToLower(strings.TrimSpace(c))] = j
			}
			break
		}
	}
	if header < 0 {
		return nil, errors.New("no Month, Length or Height header row")
	}
	for _, c := range []string{"l", "m", "s"} {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing %s column", strings.ToUpper(c))
		}
	}

	var points []Point
	for i, rec := range records[header+1:] {
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		var v [4]float64
		for k, idx := range []int{0, cols["l"], cols["m"], cols["s"]} {
			if idx >= len(rec) {
				return nil, fmt.Errorf("row %d: too few columns", header+i+2)
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", header+i+2, err)
			}
			v[k] = f
		}
		points = append(points, Point{Key: v[0], L: v[1], M: v[2], S: v[3]})
	}
	if len(points) == 0 {
		return nil, errors.New("table has no rows")
	}
	return points, nil
}
