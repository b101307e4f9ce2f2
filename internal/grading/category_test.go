package grading

import (
	"testing"

	"github.com/campuscore/campuscore/internal/model"
)

func record(category string, score, maxScore float64) model.GradeRecord {
	return model.GradeRecord{Category: category, Score: score, MaxScore: maxScore}
}

func TestCourseGrade(t *testing.T) {
	categories := []model.GradeCategory{
		{Name: "quiz", Weight: 40},
		{Name: "exam", Weight: 60},
	}

	tests := []struct {
		name    string
		records []model.GradeRecord
		want    float64
	}{
		{
			"weighted across categories",
			[]model.GradeRecord{record("quiz", 80, 100), record("exam", 90, 100)},
			86, // (80*40 + 90*60) / 100
		},
		{
			"empty category excluded from both sides",
			[]model.GradeRecord{record("quiz", 80, 100)},
			80,
		},
		{
			"averages within a category",
			[]model.GradeRecord{record("quiz", 60, 100), record("quiz", 100, 100), record("exam", 90, 100)},
			86, // quiz average 80
		},
		{
			"no grades at all",
			nil,
			0,
		},
		{
			"zero max score counts as zero",
			[]model.GradeRecord{record("quiz", 5, 0), record("quiz", 80, 100)},
			40, // quiz average (0 + 80) / 2, only category present
		},
		{
			"unconfigured category carries no weight",
			[]model.GradeRecord{record("participation", 100, 100), record("quiz", 80, 100)},
			80,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := CourseGrade(tt.records, categories)
			if got != tt.want {
				t.Errorf("CourseGrade = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCourseGradeZeroWeightSum(t *testing.T) {
	categories := []model.GradeCategory{{Name: "quiz", Weight: 0}}
	got, _ := CourseGrade([]model.GradeRecord{record("quiz", 80, 100)}, categories)
	if got != 0 {
		t.Errorf("zero weight sum should yield 0, got %v", got)
	}
}

func TestCourseGradeToleratesWeightsNotSummingTo100(t *testing.T) {
	categories := []model.GradeCategory{
		{Name: "quiz", Weight: 30},
		{Name: "exam", Weight: 30},
	}
	records := []model.GradeRecord{record("quiz", 80, 100), record("exam", 90, 100)}
	got, _ := CourseGrade(records, categories)
	if got != 85 {
		t.Errorf("CourseGrade = %v, want 85 (normalized over 60 total weight)", got)
	}
}

func TestCourseGradeBreakdown(t *testing.T) {
	categories := []model.GradeCategory{
		{Name: "quiz", Weight: 40},
		{Name: "exam", Weight: 60},
		{Name: "project", Weight: 20},
	}
	records := []model.GradeRecord{
		record("quiz", 80, 100),
		record("quiz", 90, 100),
		record("exam", 70, 100),
	}

	_, breakdown := CourseGrade(records, categories)
	if len(breakdown) != 2 {
		t.Fatalf("expected 2 categories in breakdown, got %d", len(breakdown))
	}
	if breakdown[0].Name != "quiz" || breakdown[0].Count != 2 || breakdown[0].Percentage != 85 {
		t.Errorf("unexpected quiz breakdown: %+v", breakdown[0])
	}
	if breakdown[1].Name != "exam" || breakdown[1].Count != 1 || breakdown[1].Percentage != 70 {
		t.Errorf("unexpected exam breakdown: %+v", breakdown[1])
	}
}
