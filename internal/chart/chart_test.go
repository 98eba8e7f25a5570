package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lifeline/internal/model"
)

func TestIndexAndLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		index int
	}{
		{"甲子", 0},
		{"乙丑", 1},
		{"癸酉", 9},
		{"甲戌", 10},
		{"戊申", 44},
		{"己酉", 45},
		{"丁未", 43},
		{"癸亥", 59},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.index, Index(tt.label))
			assert.Equal(t, tt.label, Label(tt.index))
		})
	}
}

func TestIndex_Invalid(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, Index(""))
	assert.Equal(t, -1, Index("甲"))
	assert.Equal(t, -1, Index("甲丑")) // parity mismatch never occurs in the cycle
	assert.Equal(t, -1, Index("AB"))
	assert.Equal(t, -1, Index("甲子丑"))
}

func TestLabel_Wraps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "癸亥", Label(-1))
	assert.Equal(t, "甲子", Label(60))
	assert.Equal(t, "乙丑", Label(121))
}

func TestStep(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "己酉", Step("戊申", 1))
	assert.Equal(t, "丁未", Step("戊申", -1))
	assert.Equal(t, "癸亥", Step("甲子", -1))
	assert.Equal(t, "乙丑", Step("甲子", 1))
	assert.Equal(t, "", Step("bad", 1))
}

func TestYearLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "甲子", YearLabel(1984))
	assert.Equal(t, "庚午", YearLabel(1990))
	assert.Equal(t, "甲辰", YearLabel(2024))
	assert.Equal(t, "乙巳", YearLabel(2025))
}

func TestStemPolarity(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"甲子", "丙寅", "戊辰", "庚午", "壬申"} {
		assert.Equal(t, Yang, StemPolarity(p), p)
	}
	for _, p := range []string{"乙丑", "丁卯", "己巳", "辛未", "癸酉"} {
		assert.Equal(t, Yin, StemPolarity(p), p)
	}
	assert.Equal(t, Yang, StemPolarity(""))
	assert.Equal(t, Yang, StemPolarity("xyz"))
	assert.Equal(t, "阴", Yin.String())
	assert.Equal(t, "阳", Yang.String())
}

func TestForward(t *testing.T) {
	t.Parallel()

	assert.True(t, Forward(model.GenderMale, "庚午"))
	assert.False(t, Forward(model.GenderMale, "辛未"))
	assert.True(t, Forward(model.GenderFemale, "辛未"))
	assert.False(t, Forward(model.GenderFemale, "庚午"))
}

func TestPlan_ForwardFromWuShen(t *testing.T) {
	t.Parallel()

	p := Plan{StartAge: 5, First: "戊申", Forward: true}

	for age := 1; age <= 4; age++ {
		assert.Equal(t, ChildhoodLabel, p.LabelForAge(age), "age %d", age)
	}
	for age := 5; age <= 14; age++ {
		assert.Equal(t, "戊申", p.LabelForAge(age), "age %d", age)
	}
	for age := 15; age <= 24; age++ {
		assert.Equal(t, "己酉", p.LabelForAge(age), "age %d", age)
	}
	assert.Equal(t, "庚戌", p.LabelForAge(25))
}

func TestPlan_Backward(t *testing.T) {
	t.Parallel()

	p := Plan{StartAge: 3, First: "戊申", Forward: false}
	assert.Equal(t, []string{"戊申", "丁未", "丙午"}, p.Labels(3))
}

func TestPlan_UnknownFirstLabel(t *testing.T) {
	t.Parallel()

	p := Plan{StartAge: 1, First: "unknown", Forward: true}
	assert.Equal(t, "unknown", p.LabelForAge(1))
	assert.Equal(t, "", p.LabelForAge(11))
}

func TestNewPlan(t *testing.T) {
	t.Parallel()

	p := NewPlan(model.AnalysisRequest{Gender: model.GenderMale, YearPillar: "戊辰", StartAge: 0, FirstDaYun: "戊申"})
	assert.Equal(t, 1, p.StartAge)
	assert.True(t, p.Forward)
	assert.Equal(t, "戊申", p.First)
}

func TestFill(t *testing.T) {
	t.Parallel()

	p := Plan{StartAge: 5, First: "戊申", Forward: true}
	points := []model.ChartPoint{
		{Age: 1},
		{Age: 5, DaYun: "kept"},
		{Age: 15, Year: 2000, GanZhi: "kept"},
	}
	Fill(points, p, 1990)

	require.Len(t, points, 3)
	assert.Equal(t, ChildhoodLabel, points[0].DaYun)
	assert.Equal(t, 1990, points[0].Year)
	assert.Equal(t, "庚午", points[0].GanZhi)

	assert.Equal(t, "kept", points[1].DaYun)
	assert.Equal(t, 1994, points[1].Year)

	assert.Equal(t, "己酉", points[2].DaYun)
	assert.Equal(t, 2000, points[2].Year)
	assert.Equal(t, "kept", points[2].GanZhi)
}
