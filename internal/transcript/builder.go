package transcript

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/campuscore/campuscore/internal/grading"
	"github.com/campuscore/campuscore/internal/model"
)

// StandingBand maps a minimum cumulative GPA to an academic standing label.
type StandingBand struct {
	MinGPA float64 `json:"min_gpa" mapstructure:"min_gpa"`
	Label  string  `json:"label" mapstructure:"label"`
}

// DefaultStanding returns the default standing thresholds. Institutions
// override these via configuration.
func DefaultStanding() []StandingBand {
	return []StandingBand{
		{MinGPA: 3.5, Label: "dean's list"},
		{MinGPA: 2.0, Label: "good standing"},
		{MinGPA: 1.0, Label: "probation"},
		{MinGPA: 0, Label: "suspension"},
	}
}

// DefaultTermOrder returns the default chronological ordinal per semester
// name. This is a presentation convenience, configurable for institutions
// whose terms differ.
func DefaultTermOrder() map[string]int {
	return map[string]int{
		"Spring": 0,
		"Summer": 1,
		"Fall":   2,
		"Winter": 3,
	}
}

// Builder generates transcripts from course grade results.
type Builder struct {
	TermOrder map[string]int
	Standing  []StandingBand
}

// NewBuilder returns a builder with the default term order and standing
// thresholds.
func NewBuilder() *Builder {
	return &Builder{
		TermOrder: DefaultTermOrder(),
		Standing:  DefaultStanding(),
	}
}

// Generate builds a transcript from the student's results. The output is a
// pure function of the inputs apart from its identifier and timestamp:
// identical results always produce the same terms, cumulative GPA, and
// standing.
func (b *Builder) Generate(studentID int64, results []model.CourseGradeResult, now time.Time) model.Transcript {
	type termKey struct {
		semester string
		year     int
	}

	grouped := make(map[termKey][]model.CourseGradeResult)
	for _, r := range results {
		r = withFinalLetter(r)
		k := termKey{r.Semester, r.Year}
		grouped[k] = append(grouped[k], r)
	}

	keys := make([]termKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		oi, oj := b.ordinal(keys[i].semester), b.ordinal(keys[j].semester)
		if oi != oj {
			return oi < oj
		}
		return keys[i].semester < keys[j].semester
	})

	var terms []model.TermSummary
	for _, k := range keys {
		courses := grouped[k]
		sort.Slice(courses, func(i, j int) bool {
			return courses[i].CourseName < courses[j].CourseName
		})

		var credits float64
		for _, c := range courses {
			credits += c.Credits
		}
		terms = append(terms, model.TermSummary{
			Semester: k.semester,
			Year:     k.year,
			Courses:  courses,
			GPA:      grading.CreditWeightedGPA(courses),
			Credits:  credits,
		})
	}

	var totalCredits float64
	for _, r := range results {
		totalCredits += r.Credits
	}
	cumulative := grading.CreditWeightedGPA(results)

	return model.Transcript{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		GeneratedAt:      now,
		Terms:            terms,
		CumulativeGPA:    cumulative,
		TotalCredits:     totalCredits,
		AcademicStanding: b.standing(cumulative),
	}
}

// ordinal returns a semester's position within a year. Unknown semester
// names sort after the configured ones.
func (b *Builder) ordinal(semester string) int {
	if o, ok := b.TermOrder[semester]; ok {
		return o
	}
	return len(b.TermOrder)
}

// standing maps a cumulative GPA to the first standing band it reaches.
func (b *Builder) standing(gpa float64) string {
	bands := make([]StandingBand, len(b.Standing))
	copy(bands, b.Standing)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinGPA > bands[j].MinGPA })
	for _, band := range bands {
		if gpa >= band.MinGPA {
			return band.Label
		}
	}
	if len(bands) == 0 {
		return ""
	}
	return bands[len(bands)-1].Label
}

// withFinalLetter prefers the manual override over the computed letter.
func withFinalLetter(r model.CourseGradeResult) model.CourseGradeResult {
	if r.FinalLetterGrade != "" {
		r.LetterGrade = r.FinalLetterGrade
	}
	return r
}
