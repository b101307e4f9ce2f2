package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	Type          QuestionType `json:"type" validate:"required,oneof=multiple_choice true_false short_answer essay"`
	Prompt        string       `json:"prompt" validate:"required"`
	Points        float64      `json:"points" validate:"required,gt=0"`
	Required      bool         `json:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectChoice *int         `json:"correct_choice,omitempty"`
}

// ExamImport is used for loading exams from JSON.
type ExamImport struct {
	CourseID           int64            `json:"course_id" validate:"required,gt=0"`
	Title              string           `json:"title" validate:"required"`
	DurationMinutes    int              `json:"duration_minutes" validate:"required,gt=0"`
	RandomizeQuestions bool             `json:"randomize_questions"`
	ShowResults        bool             `json:"show_results"`
	AttemptsAllowed    int              `json:"attempts_allowed" validate:"min=0"`
	Questions          []QuestionImport `json:"questions" validate:"required,min=1,dive"`
}

// Exam converts the import payload into a domain Exam. Beyond the struct
// tags it enforces the invariants the tags cannot express: choice questions
// carry at least two options and an in-range correct index, true/false
// exactly two, and subjective questions carry neither options nor a correct
// answer. TotalPoints is recomputed from the questions.
func (ei ExamImport) Exam() (Exam, error) {
	if err := validate.Struct(ei); err != nil {
		return Exam{}, fmt.Errorf("validate exam: %w", err)
	}

	exam := Exam{
		CourseID:           ei.CourseID,
		Title:              ei.Title,
		DurationMinutes:    ei.DurationMinutes,
		RandomizeQuestions: ei.RandomizeQuestions,
		ShowResults:        ei.ShowResults,
		AttemptsAllowed:    ei.AttemptsAllowed,
	}
	if exam.AttemptsAllowed == 0 {
		exam.AttemptsAllowed = 1
	}

	for i, qi := range ei.Questions {
		q, err := qi.question()
		if err != nil {
			return Exam{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		exam.TotalPoints += q.Points
		exam.Questions = append(exam.Questions, q)
	}
	return exam, nil
}

func (qi QuestionImport) question() (Question, error) {
	q := Question{
		Type:     qi.Type,
		Prompt:   qi.Prompt,
		Points:   qi.Points,
		Required: qi.Required,
	}

	switch qi.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		if len(qi.Options) < 2 {
			return q, fmt.Errorf("choice questions need at least 2 options, got %d", len(qi.Options))
		}
		if qi.Type == QuestionTrueFalse && len(qi.Options) != 2 {
			return q, fmt.Errorf("true/false questions carry exactly 2 options, got %d", len(qi.Options))
		}
		if qi.CorrectChoice == nil {
			return q, fmt.Errorf("choice questions need a correct_choice")
		}
		if *qi.CorrectChoice < 0 || *qi.CorrectChoice >= len(qi.Options) {
			return q, fmt.Errorf("correct_choice %d out of range for %d options", *qi.CorrectChoice, len(qi.Options))
		}
		q.Options = qi.Options
		q.CorrectChoice = qi.CorrectChoice
	case QuestionShortAnswer, QuestionEssay:
		if qi.CorrectChoice != nil {
			return q, fmt.Errorf("%s questions never carry a correct answer", qi.Type)
		}
		if len(qi.Options) > 0 {
			return q, fmt.Errorf("%s questions never carry options", qi.Type)
		}
	}
	return q, nil
}

// GradeRecordInput is the payload for recording a grade directly.
type GradeRecordInput struct {
	StudentID int64   `json:"student_id" validate:"required,gt=0"`
	Category  string  `json:"category" validate:"required"`
	Score     float64 `json:"score" validate:"min=0"`
	MaxScore  float64 `json:"max_score" validate:"min=0,gtefield=Score"`
	Weight    float64 `json:"weight" validate:"min=0"`
	Late      bool    `json:"late"`
	Excused   bool    `json:"excused"`
	Feedback  string  `json:"feedback"`
}

// Validate checks the struct tags on the payload.
func (gi GradeRecordInput) Validate() error {
	return validate.Struct(gi)
}
