package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleInstructor is an instructor user role.
	UserRoleInstructor UserRole = "instructor"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// CanGrade reports whether the user may supply manual scores.
func (u *User) CanGrade() bool {
	return u != nil && (u.Role == UserRoleInstructor || u.Role == UserRoleAdmin)
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType enumerates the question variants.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionEssay          QuestionType = "essay"
)

// Objective reports whether the type can be graded by exact comparison
// to a stored answer. Short-answer and essay questions require human judgment.
func (t QuestionType) Objective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// Question represents one exam question. Choice types carry an ordered
// option list and the index of the correct option; subjective types carry
// neither.
type Question struct {
	ID            int64        `json:"id"`
	ExamID        int64        `json:"exam_id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Points        float64      `json:"points"`
	Required      bool         `json:"required"`
	Options       []string     `json:"options,omitempty"`
	CorrectChoice *int         `json:"correct_choice,omitempty"`
}

// Exam represents a timed examination.
type Exam struct {
	ID                 int64      `json:"id"`
	CourseID           int64      `json:"course_id"`
	Title              string     `json:"title"`
	DurationMinutes    int        `json:"duration_minutes"`
	TotalPoints        float64    `json:"total_points"`
	RandomizeQuestions bool       `json:"randomize_questions"`
	ShowResults        bool       `json:"show_results"`
	AttemptsAllowed    int        `json:"attempts_allowed"`
	Questions          []Question `json:"questions,omitempty"`
}

// SessionStatus represents the status of an exam session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusSubmitted  SessionStatus = "submitted"
	StatusGraded     SessionStatus = "graded"
)

// ExamSession represents one student attempt at an exam. At most one
// session exists per (student, exam, attempt).
type ExamSession struct {
	ID               int64            `json:"id"`
	ExamID           int64            `json:"exam_id"`
	StudentID        int64            `json:"student_id"`
	Attempt          int              `json:"attempt"`
	Status           SessionStatus    `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	SubmittedAt      *time.Time       `json:"submitted_at,omitempty"`
	TimeSpentSeconds int              `json:"time_spent_seconds"`
	Score            *float64         `json:"score,omitempty"`
	MaxScore         *float64         `json:"max_score,omitempty"`
	Autograded       bool             `json:"autograded"`
	QuestionOrder    []int64          `json:"question_order,omitempty"`
	Answers          map[int64]string `json:"answers,omitempty"`
}

// ManualScore is an instructor-supplied score for one subjective question
// in a submitted session.
type ManualScore struct {
	SessionID  int64     `json:"session_id"`
	QuestionID int64     `json:"question_id"`
	Score      float64   `json:"score"`
	Feedback   string    `json:"feedback,omitempty"`
	GradedBy   int64     `json:"graded_by"`
	GradedAt   time.Time `json:"graded_at"`
}

// GradeRecord is one raw grade for a student in a course. It is produced
// either from a graded exam session or by direct entry.
type GradeRecord struct {
	ID         int64     `json:"id"`
	StudentID  int64     `json:"student_id"`
	CourseID   int64     `json:"course_id"`
	ExamID     *int64    `json:"exam_id,omitempty"`
	Category   string    `json:"category"`
	Score      float64   `json:"score"`
	MaxScore   float64   `json:"max_score"`
	Weight     float64   `json:"weight"`
	RecordedAt time.Time `json:"recorded_at"`
	Late       bool      `json:"late"`
	Excused    bool      `json:"excused"`
	Feedback   string    `json:"feedback,omitempty"`
}

// GradeCategory defines how much one category of work contributes to a
// course grade. Weights for a course should sum to 100, but the
// aggregator tolerates otherwise.
type GradeCategory struct {
	ID       int64   `json:"id"`
	CourseID int64   `json:"course_id"`
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
}

// CourseGradeResult is the derived outcome for one student in one course.
// FinalLetterGrade, when set, overrides the computed letter on transcripts.
type CourseGradeResult struct {
	StudentID        int64   `json:"student_id"`
	CourseID         int64   `json:"course_id"`
	CourseName       string  `json:"course_name"`
	Semester         string  `json:"semester"`
	Year             int     `json:"year"`
	Credits          float64 `json:"credits"`
	Percentage       float64 `json:"percentage"`
	LetterGrade      string  `json:"letter_grade"`
	GPA              float64 `json:"gpa"`
	IsComplete       bool    `json:"is_complete"`
	FinalLetterGrade string  `json:"final_letter_grade,omitempty"`
}

// TermSummary groups a student's course results for one academic term.
type TermSummary struct {
	Semester string              `json:"semester"`
	Year     int                 `json:"year"`
	Courses  []CourseGradeResult `json:"courses"`
	GPA      float64             `json:"gpa"`
	Credits  float64             `json:"credits"`
}

// Transcript is a point-in-time view of a student's academic record.
// Regeneration produces a new Transcript; an existing one is never mutated.
type Transcript struct {
	ID               string        `json:"id"`
	StudentID        int64         `json:"student_id"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Terms            []TermSummary `json:"terms"`
	CumulativeGPA    float64       `json:"cumulative_gpa"`
	TotalCredits     float64       `json:"total_credits"`
	AcademicStanding string        `json:"academic_standing"`
}

// SessionView combines a session with its exam and any manual scores for display.
type SessionView struct {
	Session      ExamSession   `json:"session"`
	Exam         Exam          `json:"exam"`
	ManualScores []ManualScore `json:"manual_scores,omitempty"`
}
