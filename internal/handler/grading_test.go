package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore/internal/exam"
	"github.com/campuscore/campuscore/internal/grading"
	appI18n "github.com/campuscore/campuscore/internal/i18n"
	"github.com/campuscore/campuscore/internal/model"
	"github.com/campuscore/campuscore/internal/store"
	"github.com/campuscore/campuscore/internal/transcript"
)

func newTestHandler(t *testing.T) (*Handler, *store.Store) {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h, err := New(s, exam.NewProctor(), grading.DefaultScale(), transcript.NewBuilder(), Config{})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h, s
}

// submittedEssaySession creates a submitted session for a one-essay exam
// with the given answer value and returns the session and question IDs.
func submittedEssaySession(t *testing.T, s *store.Store, answer string) (int64, int64) {
	t.Helper()
	examID, err := s.CreateExam(model.Exam{
		CourseID:        1,
		Title:           "Essay Final",
		DurationMinutes: 30,
		TotalPoints:     5,
		Questions: []model.Question{
			{Type: model.QuestionEssay, Prompt: "Discuss.", Points: 5},
		},
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	ex, err := s.GetExam(examID)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	qid := ex.Questions[0].ID

	sess, err := s.CreateExamSession(examID, 42, []int64{qid})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.SaveAnswer(sess.ID, qid, answer); err != nil {
		t.Fatalf("save answer: %v", err)
	}
	if err := s.FinalizeSession(sess.ID, model.StatusSubmitted, 60, 0, 5, false); err != nil {
		t.Fatalf("finalize session: %v", err)
	}
	return sess.ID, qid
}

// scoreRequest builds an authenticated manual-score request with chi URL
// params wired up.
func scoreRequest(t *testing.T, sessionID, questionID int64, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "/grading/sessions/0/scores/0", strings.NewReader(body))

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", strconv.FormatInt(sessionID, 10))
	rctx.URLParams.Add("questionID", strconv.FormatInt(questionID, 10))
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)

	instructor := &model.User{ID: 7, Username: "prof", Role: model.UserRoleInstructor, Active: true}
	return req.WithContext(model.ContextWithUser(ctx, instructor))
}

func TestManualScoreRejectsBlankAnswer(t *testing.T) {
	h, s := newTestHandler(t)
	sessionID, qid := submittedEssaySession(t, s, "   ")

	rr := httptest.NewRecorder()
	h.handleManualScore(rr, scoreRequest(t, sessionID, qid, `{"score": 3}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusConflict)
	}
	scores, err := s.ListManualScores(sessionID)
	if err != nil {
		t.Fatalf("list manual scores: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("no score should be stored for a blank answer, got %d", len(scores))
	}

	sess, err := s.GetExamSession(sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != model.StatusSubmitted {
		t.Errorf("status = %q, want submitted", sess.Status)
	}
}

func TestManualScoreCompletesGrading(t *testing.T) {
	h, s := newTestHandler(t)
	sessionID, qid := submittedEssaySession(t, s, "a considered argument")

	rr := httptest.NewRecorder()
	h.handleManualScore(rr, scoreRequest(t, sessionID, qid, `{"score": 4, "feedback": "solid"}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp struct {
		Status   model.SessionStatus `json:"status"`
		Score    float64             `json:"score"`
		Complete bool                `json:"complete"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Complete || resp.Status != model.StatusGraded {
		t.Errorf("response = %+v, want complete graded", resp)
	}
	if resp.Score != 4 {
		t.Errorf("score = %v, want 4", resp.Score)
	}

	sess, err := s.GetExamSession(sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != model.StatusGraded {
		t.Errorf("status = %q, want graded", sess.Status)
	}
	if sess.Score == nil || *sess.Score != 4 {
		t.Errorf("stored score = %v, want 4", sess.Score)
	}

	// Completion writes the gradebook record for the course.
	records, err := s.ListGradeRecords(42, 1)
	if err != nil {
		t.Fatalf("list grade records: %v", err)
	}
	if len(records) != 1 || records[0].Category != "exam" {
		t.Fatalf("expected one exam grade record, got %+v", records)
	}
	if records[0].Score != 4 || records[0].MaxScore != 5 {
		t.Errorf("record = %v/%v, want 4/5", records[0].Score, records[0].MaxScore)
	}
}
