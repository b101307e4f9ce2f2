package exam

import (
	"strconv"
	"strings"

	"github.com/campuscore/campuscore/internal/model"
)

// ScoreResult is the output of the automatic score aggregation.
type ScoreResult struct {
	Score    float64
	MaxScore float64
	// HasManualGrading is true iff a subjective question exists and was
	// answered. The session's autograded flag is its negation.
	HasManualGrading bool
}

// ScoreAnswers aggregates a session's answers against the exam's questions.
// Objective questions contribute their points iff the answer matches the
// correct option index; subjective questions contribute nothing until an
// instructor scores them. Every question contributes to MaxScore, and
// missing or blank answers simply score zero.
func ScoreAnswers(questions []model.Question, answers map[int64]string) ScoreResult {
	var res ScoreResult
	for _, q := range questions {
		res.MaxScore += q.Points
		value, answered := answers[q.ID]
		if strings.TrimSpace(value) == "" {
			answered = false
		}

		if !q.Type.Objective() {
			if answered {
				res.HasManualGrading = true
			}
			continue
		}
		if answered && q.CorrectChoice != nil && matchesChoice(value, *q.CorrectChoice) {
			res.Score += q.Points
		}
	}
	return res
}

// matchesChoice compares a submitted value against the correct option index.
func matchesChoice(value string, correct int) bool {
	idx, err := strconv.Atoi(strings.TrimSpace(value))
	return err == nil && idx == correct
}

// FinalScore combines the automatic score with instructor-supplied scores
// for subjective questions. Manual scores are clamped to [0, points].
// complete reports whether every answered subjective question has a manual
// score; only then is the session fully graded.
func FinalScore(questions []model.Question, answers map[int64]string, manual map[int64]float64) (res ScoreResult, complete bool) {
	res = ScoreAnswers(questions, answers)
	complete = true
	for _, q := range questions {
		if q.Type.Objective() {
			continue
		}
		if value, ok := answers[q.ID]; !ok || strings.TrimSpace(value) == "" {
			continue
		}
		score, ok := manual[q.ID]
		if !ok {
			complete = false
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > q.Points {
			score = q.Points
		}
		res.Score += score
	}
	return res, complete
}
