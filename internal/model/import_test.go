package model

import (
	"strings"
	"testing"
)

func intPtr(i int) *int { return &i }

func validImport() ExamImport {
	return ExamImport{
		CourseID:        1,
		Title:           "Algebra Midterm",
		DurationMinutes: 45,
		Questions: []QuestionImport{
			{Type: QuestionMultipleChoice, Prompt: "2+2?", Points: 5,
				Options: []string{"3", "4", "5"}, CorrectChoice: intPtr(1)},
			{Type: QuestionTrueFalse, Prompt: "0 is even.", Points: 2,
				Options: []string{"True", "False"}, CorrectChoice: intPtr(0)},
			{Type: QuestionEssay, Prompt: "Prove it.", Points: 10},
		},
	}
}

func TestExamImportValid(t *testing.T) {
	ex, err := validImport().Exam()
	if err != nil {
		t.Fatalf("Exam(): %v", err)
	}
	if ex.TotalPoints != 17 {
		t.Errorf("expected recomputed total 17, got %v", ex.TotalPoints)
	}
	if ex.AttemptsAllowed != 1 {
		t.Errorf("expected attempts_allowed to default to 1, got %d", ex.AttemptsAllowed)
	}
	if len(ex.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(ex.Questions))
	}
}

func TestExamImportRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ExamImport)
		wantErr string
	}{
		{
			name:    "zero duration",
			mutate:  func(ei *ExamImport) { ei.DurationMinutes = 0 },
			wantErr: "DurationMinutes",
		},
		{
			name:    "no questions",
			mutate:  func(ei *ExamImport) { ei.Questions = nil },
			wantErr: "Questions",
		},
		{
			name: "choice with one option",
			mutate: func(ei *ExamImport) {
				ei.Questions[0].Options = []string{"4"}
				ei.Questions[0].CorrectChoice = intPtr(0)
			},
			wantErr: "at least 2 options",
		},
		{
			name: "true/false with three options",
			mutate: func(ei *ExamImport) {
				ei.Questions[1].Options = []string{"True", "False", "Maybe"}
			},
			wantErr: "exactly 2 options",
		},
		{
			name:    "choice without correct answer",
			mutate:  func(ei *ExamImport) { ei.Questions[0].CorrectChoice = nil },
			wantErr: "need a correct_choice",
		},
		{
			name:    "correct index out of range",
			mutate:  func(ei *ExamImport) { ei.Questions[0].CorrectChoice = intPtr(3) },
			wantErr: "out of range",
		},
		{
			name:    "negative correct index",
			mutate:  func(ei *ExamImport) { ei.Questions[0].CorrectChoice = intPtr(-1) },
			wantErr: "out of range",
		},
		{
			name:    "essay with correct answer",
			mutate:  func(ei *ExamImport) { ei.Questions[2].CorrectChoice = intPtr(0) },
			wantErr: "never carry a correct answer",
		},
		{
			name:    "essay with options",
			mutate:  func(ei *ExamImport) { ei.Questions[2].Options = []string{"a", "b"} },
			wantErr: "never carry options",
		},
		{
			name:    "non-positive points",
			mutate:  func(ei *ExamImport) { ei.Questions[0].Points = 0 },
			wantErr: "Points",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ei := validImport()
			tt.mutate(&ei)
			_, err := ei.Exam()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGradeRecordInputValidate(t *testing.T) {
	valid := GradeRecordInput{StudentID: 1, Category: "quiz", Score: 8, MaxScore: 10}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid input rejected: %v", err)
	}

	missing := GradeRecordInput{StudentID: 1, Score: 8, MaxScore: 10}
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing category")
	}

	inverted := GradeRecordInput{StudentID: 1, Category: "quiz", Score: 11, MaxScore: 10}
	if err := inverted.Validate(); err == nil {
		t.Error("expected error for score above max_score")
	}
}
