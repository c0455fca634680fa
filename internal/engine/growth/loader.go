package growth

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"malnutrition-workers/internal/models"
)

var expectedHeader = []string{"indicator", "sex", "key", "l", "m", "s"}

// Load parses a reference table in the indicator,sex,key,l,m,s CSV layout.
func Load(r io.Reader) (*Store, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(expectedHeader)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read reference header: %w", err)
	}
	for i, col := range expectedHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("unexpected reference column %d: got %q, want %q", i, header[i], col)
		}
	}

	var points []Point
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read reference line %d: %w", line, err)
		}

		p, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("reference line %d: %w", line, err)
		}
		points = append(points, p)
	}

	if len(points) == 0 {
		return nil, errors.New("reference table is empty")
	}
	return NewStore(points)
}

func parseRow(record []string) (Point, error) {
	sex, ok := models.ParseSex(record[1])
	if !ok {
		return Point{}, fmt.Errorf("invalid sex %q", record[1])
	}

	values := make([]float64, 4)
	for i, raw := range record[2:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Point{}, fmt.Errorf("column %s: %w", expectedHeader[i+2], err)
		}
		values[i] = v
	}

	return Point{
		Indicator: Indicator(strings.TrimSpace(record[0])),
		Sex:       sex,
		Key:       values[0],
		L:         values[1],
		M:         values[2],
		S:         values[3],
	}, nil
}
