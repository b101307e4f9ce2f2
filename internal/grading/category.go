package grading

import (
	"github.com/campuscore/campuscore/internal/model"
)

// CategoryBreakdown reports one category's contribution to a course grade.
type CategoryBreakdown struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	Percentage float64 `json:"percentage"`
	Count      int     `json:"count"`
}

// CourseGrade turns a student's grade records for one course into a
// weighted percentage. Each configured category with at least one grade
// contributes the average of its grades' score/maxScore percentages,
// weighted by the category weight; categories with no recorded work are
// excluded from both sides of the weighted sum. With no categorized
// grades at all the result is 0, never an error.
//
// Late and excused flags are carried on the records but do not alter the
// arithmetic.
func CourseGrade(records []model.GradeRecord, categories []model.GradeCategory) (float64, []CategoryBreakdown) {
	byCategory := make(map[string][]model.GradeRecord, len(categories))
	for _, r := range records {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	var weightedSum, totalWeight float64
	var breakdown []CategoryBreakdown
	for _, c := range categories {
		grades := byCategory[c.Name]
		if len(grades) == 0 {
			continue
		}
		pct := categoryPercentage(grades)
		weightedSum += pct * c.Weight
		totalWeight += c.Weight
		breakdown = append(breakdown, CategoryBreakdown{
			Name:       c.Name,
			Weight:     c.Weight,
			Percentage: pct,
			Count:      len(grades),
		})
	}

	if totalWeight == 0 {
		return 0, breakdown
	}
	return weightedSum / totalWeight, breakdown
}

// categoryPercentage averages score/maxScore*100 over the category's
// grades, counting a zero maxScore as 0 instead of failing.
func categoryPercentage(grades []model.GradeRecord) float64 {
	var sum float64
	for _, g := range grades {
		if g.MaxScore == 0 {
			continue
		}
		sum += g.Score / g.MaxScore * 100
	}
	return sum / float64(len(grades))
}
