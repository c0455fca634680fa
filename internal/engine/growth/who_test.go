package growth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"malnutrition-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// fullGrid builds tables on the published WHO ranges and spacing.
func fullGrid() []Point {
	var points []Point
	for _, ind := range Indicators() {
		cov, _ := ind.PublishedCoverage()
		for _, sex := range []models.Sex{models.SexMale, models.SexFemale} {
			for k := 0; ; k++ {
				key := cov.From + float64(k)*cov.Step
				if key > cov.To+1e-9 {
					break
				}
				points = append(points, Point{Indicator: ind, Sex: sex, Key: key, L: -0.35, M: 3 + key/10, S: 0.09})
			}
		}
	}
	return points
}

func TestStore_CheckResolution(t *testing.T) {
	t.Run("published grid", func(t *testing.T) {
		store, err := NewStore(fullGrid())
		require.NoError(t, err)
		require.NoError(t, store.CheckResolution())

		tests := []struct {
			indicator Indicator
			key       float64
		}{
			{WeightForAge, 25},
			{HeightForAge, 37},
			{BMIForAge, 27},
			{WeightForHeight, 67.5},
			{WeightForLength, 72.5},
		}
		for _, tt := range tests {
			lower, upper, err := store.Lookup(tt.indicator, models.SexMale, tt.key)
			require.NoError(t, err, tt.indicator)
			assert.Equal(t, tt.key, lower.Key, tt.indicator)
			assert.Equal(t, tt.key, upper.Key, tt.indicator)
		}
	})

	t.Run("gap in a table", func(t *testing.T) {
		var points []Point
		for _, p := range fullGrid() {
			if p.Indicator == WeightForHeight && p.Sex == models.SexFemale && p.Key == 80.5 {
				continue
			}
			points = append(points, p)
		}
		store, err := NewStore(points)
		require.NoError(t, err)

		err = store.CheckResolution()
		var resErr *ResolutionError
		require.True(t, errors.As(err, &resErr))
		assert.Equal(t, []string{"weight_for_height/female: spacing 1 exceeds 0.5"}, resErr.Problems)
	})

	t.Run("short range and missing table", func(t *testing.T) {
		var points []Point
		for _, p := range fullGrid() {
			if p.Indicator == BMIForAge && p.Sex == models.SexMale {
				continue
			}
			if p.Indicator == WeightForAge && p.Sex == models.SexFemale && p.Key > 59 {
				continue
			}
			points = append(points, p)
		}
		store, err := NewStore(points)
		require.NoError(t, err)

		err = store.CheckResolution()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weight_for_age/female: covers 0-59, want 0-60")
		assert.Contains(t, err.Error(), "bmi_for_age/male: missing")
	})

	t.Run("bundled tables", func(t *testing.T) {
		store, err := Default()
		require.NoError(t, err)

		err = store.CheckResolution()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "weight_for_height/male: spacing 5 exceeds 0.5")
	})
}

func TestDefault_WeightForHeightRow(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)

	lower, upper, err := store.Lookup(WeightForHeight, models.SexMale, 65)
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, -0.3521, lower.L)
	assert.Equal(t, 7.4327, lower.M)
	assert.Equal(t, 0.08217, lower.S)

	wfl, _, err := store.Lookup(WeightForLength, models.SexMale, 65)
	require.NoError(t, err)
	assert.NotEqual(t, wfl.S, lower.S, "height table is not a copy of the length table")
}

const wfaBoysText = "Month\tL\tM\tS\tSD3neg\tSD2neg\n" +
	"24\t-0.0137\t12.1515\t0.11426\t8.6\t9.7\n" +
	"25\t-0.0189\t12.3502\t0.11485\t8.8\t9.8\n" +
	"26\t-0.0240\t12.5466\t0.11544\t8.9\t10.0\n"

func TestReadWHOTable(t *testing.T) {
	points, err := ReadWHOTable(strings.NewReader(wfaBoysText))
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, Point{Key: 25, L: -0.0189, M: 12.3502, S: 0.11485}, points[1])

	csvText := "Height,L,M,S\n65.0,-0.3521,7.4327,0.08217\n65.5,-0.3521,7.5504,0.08214\n"
	points, err = ReadWHOTable(strings.NewReader(csvText))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 65.5, points[1].Key)
}

func TestReadWHOTable_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "daily table", data: "Day\tL\tM\tS\n0\t0.3487\t3.3464\t0.14602\n", want: "daily tables"},
		{name: "no header", data: "24\t-0.0137\t12.1515\t0.11426\n", want: "no Month"},
		{name: "missing S", data: "Month\tL\tM\n24\t-0.0137\t12.1515\n", want: "missing S column"},
		{name: "bad number", data: "Month\tL\tM\tS\n24\tx\t12.1515\t0.11426\n", want: "row 2"},
		{name: "no rows", data: "Month\tL\tM\tS\n", want: "no rows"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWHOTable(strings.NewReader(tt.data))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadWHODir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, data string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644))
	}

	write("wfa_boys_0-to-5-years_zscores.txt", wfaBoysText)
	write("lhfa_boys_0-to-5-years_zscores.txt", "Month\tL\tM\tS\n"+
		"23\t1\t86.9410\t0.03445\n"+
		"24\t1\t87.8161\t0.03479\n"+
		"25\t1\t88.8065\t0.03503\n")
	write("bfa_boys_0-to-5-years_zscores.txt", "Month\tL\tM\tS\n"+
		"23\t-0.2\t16.1\t0.081\n"+
		"24\t-0.6187\t16.0189\t0.07785\n")
	write("README.md", "not a table")

	book := excelize.NewFile()
	require.NoError(t, book.SetSheetRow("Sheet1", "A1", &[]interface{}{"Height", "L", "M", "S", "SD3neg"}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A2", &[]interface{}{65.0, -0.3521, 7.4327, 0.08217, 5.9}))
	require.NoError(t, book.SetSheetRow("Sheet1", "A3", &[]interface{}{65.5, -0.3521, 7.5504, 0.08214, 6.0}))
	require.NoError(t, book.SaveAs(filepath.Join(dir, "wfh_boys_2-to-5-years_zscores.xlsx")))
	require.NoError(t, book.Close())

	store, err := LoadWHODir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3+4+1+2, store.Len())

	lower, upper, err := store.Lookup(WeightForAge, models.SexMale, 25)
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, 12.3502, lower.M)

	first, last, ok := store.Range(LengthForAge, models.SexMale)
	require.True(t, ok)
	assert.Equal(t, []float64{23, 24}, []float64{first, last})
	first, last, ok = store.Range(HeightForAge, models.SexMale)
	require.True(t, ok)
	assert.Equal(t, []float64{24, 25}, []float64{first, last})

	first, last, ok = store.Range(BMIForAge, models.SexMale)
	require.True(t, ok)
	assert.Equal(t, []float64{24, 24}, []float64{first, last})

	wfh, _, err := store.Lookup(WeightForHeight, models.SexMale, 65.5)
	require.NoError(t, err)
	assert.Equal(t, 0.08214, wfh.S)

	_, ok = store.MaxGap(WeightForAge, models.SexFemale)
	assert.False(t, ok)
}

func TestLoadWHODir_Errors(t *testing.T) {
	_, err := LoadWHODir(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorContains(t, err, "read reference dir")

	empty := t.TempDir()
	_, err = LoadWHODir(empty)
	assert.ErrorContains(t, err, "no WHO tables")

	dup := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dup, "wfa_boys_0-to-5-years_zscores.txt"), []byte(wfaBoysText), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dup, "wfa-boys-2-5-zscores.txt"), []byte(wfaBoysText), 0o644))
	_, err = LoadWHODir(dup)
	assert.ErrorContains(t, err, "duplicate key")
}

func TestClassifyWHOFile(t *testing.T) {
	tests := []struct {
		name      string
		indicator Indicator
		sex       models.Sex
		span      string
		ok        bool
	}{
		{"wfa_girls_0-to-5-years_zscores.xlsx", WeightForAge, models.SexFemale, "0-5", true},
		{"lhfa_boys_0-to-2-years_zscores.txt", LengthForAge, models.SexMale, "0-2", true},
		{"WFL-Girls-Zscore.csv", WeightForLength, models.SexFemale, "0-5", true},
		{"wfh_boys_2-to-5-years_zscores.xlsx", WeightForHeight, models.SexMale, "2-5", true},
		{"bmi_girls_2_5_zscores.tsv", BMIForAge, models.SexFemale, "2-5", true},
		{"hcfa_boys_0-to-5-years_zscores.txt", "", "", "", false},
		{"wfa_0-to-5-years.txt", "", "", "", false},
		{"wfa_boys.pdf", "", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := classifyWHOFile(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.indicator, f.indicator)
				assert.Equal(t, tt.sex, f.sex)
				assert.Equal(t, tt.span, f.span)
			}
		})
	}
}
