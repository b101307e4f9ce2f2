package store

import (
	"database/sql"
	"testing"

	"github.com/campuscore/campuscore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(i int) *int { return &i }

func insertTestExam(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateExam(model.Exam{
		CourseID:        1,
		Title:           "Midterm",
		DurationMinutes: 60,
		TotalPoints:     15,
		AttemptsAllowed: 2,
		Questions: []model.Question{
			{Type: model.QuestionMultipleChoice, Prompt: "Pick b", Points: 10,
				Options: []string{"a", "b", "c"}, CorrectChoice: intPtr(1)},
			{Type: model.QuestionEssay, Prompt: "Explain", Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("insertTestExam: %v", err)
	}
	return id
}

func TestExamCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.ExamCount()
	if err != nil {
		t.Fatalf("ExamCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 exams, got %d", count)
	}

	id := insertTestExam(t, s)
	exam, err := s.GetExam(id)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Title != "Midterm" {
		t.Errorf("expected title 'Midterm', got %q", exam.Title)
	}
	if exam.DurationMinutes != 60 {
		t.Errorf("expected duration 60, got %d", exam.DurationMinutes)
	}
	if len(exam.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(exam.Questions))
	}

	q := exam.Questions[0]
	if q.Type != model.QuestionMultipleChoice {
		t.Errorf("expected multiple_choice, got %q", q.Type)
	}
	if len(q.Options) != 3 || q.Options[1] != "b" {
		t.Errorf("options not round-tripped: %v", q.Options)
	}
	if q.CorrectChoice == nil || *q.CorrectChoice != 1 {
		t.Errorf("expected correct choice 1, got %v", q.CorrectChoice)
	}

	essay := exam.Questions[1]
	if essay.CorrectChoice != nil {
		t.Error("essay question must not carry a correct choice")
	}
	if len(essay.Options) != 0 {
		t.Errorf("essay question must not carry options, got %v", essay.Options)
	}

	// Not found.
	_, err = s.GetExam(9999)
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	exams, err := s.ListExams()
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 {
		t.Fatalf("expected 1 exam, got %d", len(exams))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	exam, _ := s.GetExam(examID)
	order := []int64{exam.Questions[1].ID, exam.Questions[0].ID}

	sess, err := s.CreateExamSession(examID, 42, order)
	if err != nil {
		t.Fatalf("CreateExamSession: %v", err)
	}
	if sess.Status != model.StatusInProgress {
		t.Errorf("expected status in_progress, got %q", sess.Status)
	}
	if sess.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", sess.Attempt)
	}

	// Answers: save, overwrite, read back.
	qid := exam.Questions[0].ID
	if err := s.SaveAnswer(sess.ID, qid, "0"); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if err := s.SaveAnswer(sess.ID, qid, "1"); err != nil {
		t.Fatalf("SaveAnswer overwrite: %v", err)
	}

	got, err := s.GetExamSession(sess.ID)
	if err != nil {
		t.Fatalf("GetExamSession: %v", err)
	}
	if got.Answers[qid] != "1" {
		t.Errorf("expected overwritten answer '1', got %q", got.Answers[qid])
	}
	if len(got.QuestionOrder) != 2 || got.QuestionOrder[0] != order[0] {
		t.Errorf("question order not round-tripped: %v", got.QuestionOrder)
	}

	// Finalize as submitted (manual grading pending).
	if err := s.FinalizeSession(sess.ID, model.StatusSubmitted, 120, 10, 15, false); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}
	got, _ = s.GetExamSession(sess.ID)
	if got.Status != model.StatusSubmitted {
		t.Errorf("expected status submitted, got %q", got.Status)
	}
	if got.SubmittedAt == nil {
		t.Error("expected submitted_at to be set")
	}
	if got.TimeSpentSeconds != 120 {
		t.Errorf("expected 120s spent, got %d", got.TimeSpentSeconds)
	}
	if got.Score == nil || *got.Score != 10 {
		t.Errorf("expected score 10, got %v", got.Score)
	}

	// Manual grading completes the session.
	if err := s.MarkSessionGraded(sess.ID, 14, 15); err != nil {
		t.Fatalf("MarkSessionGraded: %v", err)
	}
	got, _ = s.GetExamSession(sess.ID)
	if got.Status != model.StatusGraded {
		t.Errorf("expected status graded, got %q", got.Status)
	}
	if got.Score == nil || *got.Score != 14 {
		t.Errorf("expected final score 14, got %v", got.Score)
	}

	// A second session for the same student bumps the attempt.
	sess2, err := s.CreateExamSession(examID, 42, order)
	if err != nil {
		t.Fatalf("CreateExamSession second: %v", err)
	}
	if sess2.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", sess2.Attempt)
	}

	count, err := s.CountSessions(examID, 42)
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 sessions, got %d", count)
	}
}

func TestManualScores(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	exam, _ := s.GetExam(examID)
	sess, _ := s.CreateExamSession(examID, 42, nil)
	essayID := exam.Questions[1].ID

	scores, err := s.ListManualScores(sess.ID)
	if err != nil {
		t.Fatalf("ListManualScores: %v", err)
	}
	if len(scores) != 0 {
		t.Fatalf("expected no scores yet, got %d", len(scores))
	}

	ms := model.ManualScore{
		SessionID:  sess.ID,
		QuestionID: essayID,
		Score:      4,
		Feedback:   "solid",
		GradedBy:   1,
	}
	if err := s.UpsertManualScore(ms); err != nil {
		t.Fatalf("UpsertManualScore: %v", err)
	}

	// Upsert replaces the earlier score.
	ms.Score = 5
	if err := s.UpsertManualScore(ms); err != nil {
		t.Fatalf("UpsertManualScore update: %v", err)
	}

	scores, _ = s.ListManualScores(sess.ID)
	if len(scores) != 1 {
		t.Fatalf("expected 1 score, got %d", len(scores))
	}
	if scores[0].Score != 5 || scores[0].Feedback != "solid" {
		t.Errorf("unexpected score row: %+v", scores[0])
	}
	if scores[0].GradedAt.IsZero() {
		t.Error("expected graded_at to be set")
	}
}

func TestGradeRecordsAndCategories(t *testing.T) {
	s := newTestStore(t)

	examID := int64(3)
	_, err := s.InsertGradeRecord(model.GradeRecord{
		StudentID: 42, CourseID: 7, ExamID: &examID,
		Category: "exam", Score: 90, MaxScore: 100, Weight: 1,
	})
	if err != nil {
		t.Fatalf("InsertGradeRecord: %v", err)
	}
	_, err = s.InsertGradeRecord(model.GradeRecord{
		StudentID: 42, CourseID: 7,
		Category: "quiz", Score: 8, MaxScore: 10, Late: true,
	})
	if err != nil {
		t.Fatalf("InsertGradeRecord: %v", err)
	}

	records, err := s.ListGradeRecords(42, 7)
	if err != nil {
		t.Fatalf("ListGradeRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ExamID == nil || *records[0].ExamID != 3 {
		t.Errorf("expected exam link 3, got %v", records[0].ExamID)
	}
	if !records[1].Late {
		t.Error("expected late flag to round-trip")
	}
	if records[0].RecordedAt.IsZero() {
		t.Error("expected recorded_at to default to now")
	}

	// Other students and courses are invisible.
	records, _ = s.ListGradeRecords(42, 8)
	if len(records) != 0 {
		t.Errorf("expected no records for other course, got %d", len(records))
	}

	// Categories upsert by (course, name).
	if err := s.UpsertGradeCategory(model.GradeCategory{CourseID: 7, Name: "quiz", Weight: 40}); err != nil {
		t.Fatalf("UpsertGradeCategory: %v", err)
	}
	if err := s.UpsertGradeCategory(model.GradeCategory{CourseID: 7, Name: "quiz", Weight: 30}); err != nil {
		t.Fatalf("UpsertGradeCategory update: %v", err)
	}
	categories, err := s.ListGradeCategories(7)
	if err != nil {
		t.Fatalf("ListGradeCategories: %v", err)
	}
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	if categories[0].Weight != 30 {
		t.Errorf("expected updated weight 30, got %v", categories[0].Weight)
	}
}

func TestCourseGradeResults(t *testing.T) {
	s := newTestStore(t)

	r := model.CourseGradeResult{
		StudentID: 42, CourseID: 7, CourseName: "Biology",
		Semester: "Fall", Year: 2025, Credits: 3,
		Percentage: 86, LetterGrade: "B", GPA: 3.0, IsComplete: true,
	}
	if err := s.UpsertCourseGradeResult(r); err != nil {
		t.Fatalf("UpsertCourseGradeResult: %v", err)
	}

	// Re-upsert updates computed fields but keeps the override column.
	r.Percentage = 91
	r.LetterGrade = "A"
	r.GPA = 4.0
	if err := s.UpsertCourseGradeResult(r); err != nil {
		t.Fatalf("UpsertCourseGradeResult update: %v", err)
	}

	if err := s.SetFinalLetterGrade(42, 7, "Fall", 2025, "A-"); err != nil {
		t.Fatalf("SetFinalLetterGrade: %v", err)
	}

	results, err := s.ListCourseGradeResults(42)
	if err != nil {
		t.Fatalf("ListCourseGradeResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0]
	if got.Percentage != 91 || got.LetterGrade != "A" {
		t.Errorf("computed fields not updated: %+v", got)
	}
	if got.FinalLetterGrade != "A-" {
		t.Errorf("expected override A-, got %q", got.FinalLetterGrade)
	}
}

func TestSessionView(t *testing.T) {
	s := newTestStore(t)
	examID := insertTestExam(t, s)
	exam, _ := s.GetExam(examID)
	sess, _ := s.CreateExamSession(examID, 42, nil)

	if err := s.SaveAnswer(sess.ID, exam.Questions[0].ID, "1"); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if err := s.UpsertManualScore(model.ManualScore{
		SessionID: sess.ID, QuestionID: exam.Questions[1].ID, Score: 3, GradedBy: 1,
	}); err != nil {
		t.Fatalf("UpsertManualScore: %v", err)
	}

	view, err := s.GetSessionView(sess.ID)
	if err != nil {
		t.Fatalf("GetSessionView: %v", err)
	}
	if view.Exam.Title != "Midterm" {
		t.Errorf("expected exam title 'Midterm', got %q", view.Exam.Title)
	}
	if len(view.Session.Answers) != 1 {
		t.Errorf("expected 1 answer, got %d", len(view.Session.Answers))
	}
	if len(view.ManualScores) != 1 || view.ManualScores[0].Score != 3 {
		t.Errorf("unexpected manual scores: %+v", view.ManualScores)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{
		Username: "jdoe", DisplayName: "J. Doe",
		PasswordHash: "x", Role: model.UserRoleInstructor, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u == nil || u.Role != model.UserRoleInstructor {
		t.Fatalf("unexpected user: %+v", u)
	}
	if !u.CanGrade() {
		t.Error("instructor should be allowed to grade")
	}

	u, err = s.GetUserByUsername("jdoe")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("unexpected user by username: %+v", u)
	}

	// Missing user is nil, not an error.
	u, err = s.GetUserByUsername("ghost")
	if err != nil || u != nil {
		t.Errorf("expected nil, nil for missing user, got %v, %v", u, err)
	}

	if err := s.SetUserActive(id, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be deactivated")
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	// Opening the store stamps the schema version.
	version, err := s.GetMetadata("schema_version")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %q, got %q", schemaVersion, version)
	}

	// Re-running migrate against the stamped database is a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("migrate on current schema: %v", err)
	}

	if err := s.SetMetadata("greeting", "hello"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("greeting", "hi"); err != nil {
		t.Fatalf("SetMetadata update: %v", err)
	}
	value, err := s.GetMetadata("greeting")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if value != "hi" {
		t.Errorf("expected 'hi', got %q", value)
	}

	value, err = s.GetMetadata("missing")
	if err != nil || value != "" {
		t.Errorf("expected empty value for missing key, got %q, %v", value, err)
	}

	// A database stamped by a newer schema is refused.
	if err := s.SetMetadata("schema_version", "99"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.migrate(); err == nil {
		t.Error("expected error for unsupported schema version")
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	hash, err := s.GetImportedFileHash("/some/exams.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/exams.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/exams.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/exams.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/exams.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
