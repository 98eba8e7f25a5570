// Package chart implements the sexagenary cycle arithmetic used to lay out
// ten-year luck cycles on the life timeline.
package chart

import (
	"strings"

	"github.com/sells-group/lifeline/internal/model"
)

// CycleLength is the number of terms in the stem-branch cycle.
const CycleLength = 60

// ChildhoodLabel marks ages before the first ten-year cycle begins.
const ChildhoodLabel = "童限"

var (
	stems    = []rune("甲乙丙丁戊己庚辛壬癸")
	branches = []rune("子丑寅卯辰巳午未申酉戌亥")
)

// Polarity is the yin/yang polarity of a heavenly stem.
type Polarity int

const (
	Yang Polarity = iota
	Yin
)

func (p Polarity) String() string {
	if p == Yin {
		return "阴"
	}
	return "阳"
}

// Label returns the two-character label at position i of the cycle.
// Negative and out-of-range positions wrap.
func Label(i int) string {
	i = ((i % CycleLength) + CycleLength) % CycleLength
	return string([]rune{stems[i%10], branches[i%12]})
}

// Index returns the cycle position of a two-character label, or -1 when
// the label is not a valid stem-branch pair.
func Index(label string) int {
	r := []rune(strings.TrimSpace(label))
	if len(r) != 2 {
		return -1
	}
	s, b := runeIndex(stems, r[0]), runeIndex(branches, r[1])
	if s < 0 || b < 0 {
		return -1
	}
	for i := 0; i < CycleLength; i++ {
		if i%10 == s && i%12 == b {
			return i
		}
	}
	return -1
}

// Step moves n terms from label (negative n moves backward). It returns
// the empty string when label is not in the cycle.
func Step(label string, n int) string {
	i := Index(label)
	if i < 0 {
		return ""
	}
	return Label(i + n)
}

// YearLabel returns the label of a Gregorian calendar year.
func YearLabel(year int) string {
	return Label(year - 4)
}

// StemPolarity reports the polarity of a pillar's leading stem. Pillars
// that do not start with a known stem are treated as yang.
func StemPolarity(pillar string) Polarity {
	r := []rune(strings.TrimSpace(pillar))
	if len(r) == 0 {
		return Yang
	}
	if i := runeIndex(stems, r[0]); i >= 0 && i%2 == 1 {
		return Yin
	}
	return Yang
}

// Forward reports whether the ten-year cycles advance through the cycle:
// male with a yang year stem, or female with a yin year stem.
func Forward(gender model.Gender, yearPillar string) bool {
	p := StemPolarity(yearPillar)
	if gender == model.GenderMale {
		return p == Yang
	}
	return p == Yin
}

func runeIndex(set []rune, r rune) int {
	for i, c := range set {
		if c == r {
			return i
		}
	}
	return -1
}
