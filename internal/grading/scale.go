package grading

import (
	"fmt"
	"sort"

	"github.com/campuscore/campuscore/internal/model"
)

// Band is one letter-grade band of a grade scale. Min and Max are
// inclusive percentage bounds; GPAPoints is the grade-point value of the
// letter.
type Band struct {
	Letter        string  `json:"letter" mapstructure:"letter"`
	MinPercentage float64 `json:"min_percentage" mapstructure:"min_percentage"`
	MaxPercentage float64 `json:"max_percentage" mapstructure:"max_percentage"`
	GPAPoints     float64 `json:"gpa_points" mapstructure:"gpa_points"`
}

// Scale maps percentages to letter grades and GPA points. It is validated
// once at construction so lookups never fail: the bands are ordered,
// non-overlapping, and cover [0, 100].
type Scale struct {
	bands []Band // sorted by descending MinPercentage
}

// NewScale builds a scale from bands, validating that together they cover
// every percentage in [0, 100] exactly once.
func NewScale(bands []Band) (*Scale, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("grade scale needs at least one band")
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinPercentage > sorted[j].MinPercentage
	})

	for i, b := range sorted {
		if b.Letter == "" {
			return nil, fmt.Errorf("band %d has no letter", i)
		}
		if b.MaxPercentage < b.MinPercentage {
			return nil, fmt.Errorf("band %q: max %.2f below min %.2f", b.Letter, b.MaxPercentage, b.MinPercentage)
		}
		if i > 0 {
			prev := sorted[i-1]
			if b.MaxPercentage >= prev.MinPercentage {
				return nil, fmt.Errorf("bands %q and %q overlap", prev.Letter, b.Letter)
			}
			// Adjacent bands may sit one integer edge apart (89/90);
			// anything wider leaves percentages no band claims.
			if prev.MinPercentage-b.MaxPercentage > 1 {
				return nil, fmt.Errorf("gap between bands %q and %q: %.2f to %.2f",
					b.Letter, prev.Letter, b.MaxPercentage, prev.MinPercentage)
			}
		}
	}

	lowest := sorted[len(sorted)-1]
	if lowest.MinPercentage > 0 {
		return nil, fmt.Errorf("lowest band %q starts at %.2f, leaving a gap below", lowest.Letter, lowest.MinPercentage)
	}
	if top := sorted[0]; top.MaxPercentage < 100 {
		return nil, fmt.Errorf("highest band %q ends at %.2f, leaving a gap above", top.Letter, top.MaxPercentage)
	}

	return &Scale{bands: sorted}, nil
}

// DefaultScale returns the standard 4.0 scale.
func DefaultScale() *Scale {
	s, err := NewScale([]Band{
		{Letter: "A", MinPercentage: 90, MaxPercentage: 100, GPAPoints: 4.0},
		{Letter: "B", MinPercentage: 80, MaxPercentage: 89, GPAPoints: 3.0},
		{Letter: "C", MinPercentage: 70, MaxPercentage: 79, GPAPoints: 2.0},
		{Letter: "D", MinPercentage: 60, MaxPercentage: 69, GPAPoints: 1.0},
		{Letter: "F", MinPercentage: 0, MaxPercentage: 59, GPAPoints: 0.0},
	})
	if err != nil {
		panic(err)
	}
	return s
}

// Resolve maps a percentage to its band: the first band, scanning from the
// top, whose minimum the percentage reaches. Fractional percentages that
// fall between integer band edges (89.9 against A[90,100]/B[80,89])
// resolve to the lower band, and out-of-range values fall back to the
// lowest band.
func (s *Scale) Resolve(percentage float64) Band {
	for _, b := range s.bands {
		if percentage >= b.MinPercentage {
			return b
		}
	}
	return s.bands[len(s.bands)-1]
}

// Bands returns the scale's bands ordered from highest to lowest.
func (s *Scale) Bands() []Band {
	out := make([]Band, len(s.bands))
	copy(out, s.bands)
	return out
}

// GPA returns the arithmetic mean of the results' GPA points, or 0 for an
// empty list.
func GPA(results []model.CourseGradeResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.GPA
	}
	return sum / float64(len(results))
}

// SemesterGPA returns the credit-weighted mean GPA of the results matching
// the given term, or 0 when the matching credits sum to 0.
func SemesterGPA(results []model.CourseGradeResult, semester string, year int) float64 {
	var matched []model.CourseGradeResult
	for _, r := range results {
		if r.Semester == semester && r.Year == year {
			matched = append(matched, r)
		}
	}
	return CreditWeightedGPA(matched)
}

// CreditWeightedGPA returns sum(gpa*credits)/sum(credits) over the
// results, or 0 when total credits is 0.
func CreditWeightedGPA(results []model.CourseGradeResult) float64 {
	var points, credits float64
	for _, r := range results {
		points += r.GPA * r.Credits
		credits += r.Credits
	}
	if credits == 0 {
		return 0
	}
	return points / credits
}
