package chart

import "github.com/sells-group/lifeline/internal/model"

// SpanYears is the length of one luck cycle.
const SpanYears = 10

// Plan lays out consecutive ten-year cycles starting at StartAge.
type Plan struct {
	StartAge int
	First    string
	Forward  bool
}

// NewPlan builds the cycle plan for a request. A start age below one is
// treated as one.
func NewPlan(req model.AnalysisRequest) Plan {
	start := req.StartAge
	if start < 1 {
		start = 1
	}
	return Plan{
		StartAge: start,
		First:    req.FirstDaYun,
		Forward:  Forward(req.Gender, req.YearPillar),
	}
}

// LabelForAge returns the cycle label governing the given nominal age.
// When the first label is not a valid cycle term only the first span is
// known, and later spans return the empty string.
func (p Plan) LabelForAge(age int) string {
	if age < p.StartAge {
		return ChildhoodLabel
	}
	n := (age - p.StartAge) / SpanYears
	if n == 0 {
		return p.First
	}
	if !p.Forward {
		n = -n
	}
	return Step(p.First, n)
}

// Labels returns the first count cycle labels in order.
func (p Plan) Labels(count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, p.LabelForAge(p.StartAge+i*SpanYears))
	}
	return out
}

// Fill completes chart points that the model left partially empty: the
// cycle label from the plan, the calendar year from the birth year and the
// year label from the calendar year. Fields already present are kept.
func Fill(points []model.ChartPoint, p Plan, birthYear int) {
	for i := range points {
		pt := &points[i]
		if pt.DaYun == "" {
			pt.DaYun = p.LabelForAge(pt.Age)
		}
		if pt.Year == 0 && birthYear > 0 && pt.Age > 0 {
			pt.Year = birthYear + pt.Age - 1
		}
		if pt.GanZhi == "" && pt.Year > 0 {
			pt.GanZhi = YearLabel(pt.Year)
		}
	}
}
