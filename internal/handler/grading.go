package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campuscore/campuscore/internal/exam"
	"github.com/campuscore/campuscore/internal/grading"
	appI18n "github.com/campuscore/campuscore/internal/i18n"
	"github.com/campuscore/campuscore/internal/model"
)

func (h *Handler) handleGradingQueue(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions()
	if err != nil {
		slog.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Only submitted sessions are waiting on an instructor.
	var pending []model.ExamSession
	for _, s := range sessions {
		if s.Status == model.StatusSubmitted {
			pending = append(pending, s)
		}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handler) handleGradingView(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := urlID(r, "sessionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	view, err := h.store.GetSessionView(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}
	if err != nil {
		slog.Error("get session view", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleManualScore(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessionID, ok := urlID(r, "sessionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}
	questionID, ok := urlID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	var body struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Score < 0 {
		writeError(w, http.StatusBadRequest, "score cannot be negative")
		return
	}

	view, err := h.store.GetSessionView(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}
	if err != nil {
		slog.Error("get session view", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if view.Session.Status != model.StatusSubmitted {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionNotGradable"))
		return
	}

	var question *model.Question
	for i := range view.Exam.Questions {
		if view.Exam.Questions[i].ID == questionID {
			question = &view.Exam.Questions[i]
			break
		}
	}
	if question == nil {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "UnknownQuestion"))
		return
	}
	if question.Type.Objective() {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "QuestionAutograded"))
		return
	}
	// Blank answers count as unanswered, matching the score aggregation.
	if value, ok := view.Session.Answers[questionID]; !ok || strings.TrimSpace(value) == "" {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "QuestionUnanswered"))
		return
	}

	if err := h.store.UpsertManualScore(model.ManualScore{
		SessionID:  sessionID,
		QuestionID: questionID,
		Score:      body.Score,
		Feedback:   body.Feedback,
		GradedBy:   user.ID,
	}); err != nil {
		slog.Error("upsert manual score", "session_id", sessionID, "question_id", questionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	scores, err := h.store.ListManualScores(sessionID)
	if err != nil {
		slog.Error("list manual scores", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	manual := make(map[int64]float64, len(scores))
	for _, ms := range scores {
		manual[ms.QuestionID] = ms.Score
	}

	res, complete := exam.FinalScore(view.Exam.Questions, view.Session.Answers, manual)
	if complete {
		if err := h.store.MarkSessionGraded(sessionID, res.Score, res.MaxScore); err != nil {
			slog.Error("mark session graded", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := h.recordExamGrade(sessionID, res.Score, res.MaxScore); err != nil {
			slog.Error("record exam grade", "session_id", sessionID, "error", err)
		}
		slog.Info("manual grading complete",
			"session_id", sessionID, "score", res.Score, "max_score", res.MaxScore, "graded_by", user.ID)
	}

	status := model.StatusSubmitted
	if complete {
		status = model.StatusGraded
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"status":     status,
		"score":      res.Score,
		"max_score":  res.MaxScore,
		"complete":   complete,
	})
}

func (h *Handler) handleRecordGrade(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	var input model.GradeRecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := input.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.store.InsertGradeRecord(model.GradeRecord{
		StudentID: input.StudentID,
		CourseID:  courseID,
		Category:  input.Category,
		Score:     input.Score,
		MaxScore:  input.MaxScore,
		Weight:    input.Weight,
		Late:      input.Late,
		Excused:   input.Excused,
		Feedback:  input.Feedback,
	})
	if err != nil {
		slog.Error("insert grade record", "course_id", courseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleListGradeRecords(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}
	studentID, ok := urlID(r, "studentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	records, err := h.store.ListGradeRecords(studentID, courseID)
	if err != nil {
		slog.Error("list grade records", "course_id", courseID, "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) handleUpsertCategory(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}

	var body struct {
		Name   string  `json:"name"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "category name required")
		return
	}
	if body.Weight < 0 {
		writeError(w, http.StatusBadRequest, "weight cannot be negative")
		return
	}

	if err := h.store.UpsertGradeCategory(model.GradeCategory{
		CourseID: courseID,
		Name:     body.Name,
		Weight:   body.Weight,
	}); err != nil {
		slog.Error("upsert grade category", "course_id", courseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}
	categories, err := h.store.ListGradeCategories(courseID)
	if err != nil {
		slog.Error("list grade categories", "course_id", courseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// courseGradeResponse carries the computed course outcome plus the
// per-category contributions behind it.
type courseGradeResponse struct {
	Result    model.CourseGradeResult     `json:"result"`
	Breakdown []grading.CategoryBreakdown `json:"breakdown"`
}

func (h *Handler) handleComputeCourseGrade(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}
	studentID, ok := urlID(r, "studentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	var body struct {
		CourseName string  `json:"course_name"`
		Semester   string  `json:"semester"`
		Year       int     `json:"year"`
		Credits    float64 `json:"credits"`
		Complete   bool    `json:"complete"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Semester == "" || body.Year == 0 {
		writeError(w, http.StatusBadRequest, "semester and year required")
		return
	}

	records, err := h.store.ListGradeRecords(studentID, courseID)
	if err != nil {
		slog.Error("list grade records", "course_id", courseID, "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	categories, err := h.store.ListGradeCategories(courseID)
	if err != nil {
		slog.Error("list grade categories", "course_id", courseID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	percentage, breakdown := grading.CourseGrade(records, categories)
	band := h.scale.Resolve(percentage)

	result := model.CourseGradeResult{
		StudentID:   studentID,
		CourseID:    courseID,
		CourseName:  body.CourseName,
		Semester:    body.Semester,
		Year:        body.Year,
		Credits:     body.Credits,
		Percentage:  percentage,
		LetterGrade: band.Letter,
		GPA:         band.GPAPoints,
		IsComplete:  body.Complete,
	}
	if err := h.store.UpsertCourseGradeResult(result); err != nil {
		slog.Error("upsert course grade result", "course_id", courseID, "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("course grade computed",
		"student_id", studentID, "course_id", courseID,
		"percentage", percentage, "letter", band.Letter)
	writeJSON(w, http.StatusOK, courseGradeResponse{Result: result, Breakdown: breakdown})
}

func (h *Handler) handleFinalLetterGrade(w http.ResponseWriter, r *http.Request) {
	courseID, ok := urlID(r, "courseID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course ID")
		return
	}
	studentID, ok := urlID(r, "studentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}

	var body struct {
		Semester string `json:"semester"`
		Year     int    `json:"year"`
		Letter   string `json:"letter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Semester == "" || body.Year == 0 || body.Letter == "" {
		writeError(w, http.StatusBadRequest, "semester, year and letter required")
		return
	}

	if err := h.store.SetFinalLetterGrade(studentID, courseID, body.Semester, body.Year, body.Letter); err != nil {
		slog.Error("set final letter grade", "course_id", courseID, "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCourseGradeResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	studentID, ok := urlID(r, "studentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}
	if studentID != user.ID && !user.CanGrade() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	results, err := h.store.ListCourseGradeResults(studentID)
	if err != nil {
		slog.Error("list course grade results", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	studentID, ok := urlID(r, "studentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid student ID")
		return
	}
	if studentID != user.ID && !user.CanGrade() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	results, err := h.store.ListCourseGradeResults(studentID)
	if err != nil {
		slog.Error("list course grade results", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Incomplete courses stay out of the transcript.
	var complete []model.CourseGradeResult
	for _, res := range results {
		if res.IsComplete {
			complete = append(complete, res)
		}
	}

	ts := h.builder.Generate(studentID, complete, time.Now())
	writeJSON(w, http.StatusOK, ts)
}
