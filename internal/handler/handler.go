package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campuscore/campuscore/internal/exam"
	"github.com/campuscore/campuscore/internal/grading"
	appI18n "github.com/campuscore/campuscore/internal/i18n"
	"github.com/campuscore/campuscore/internal/model"
	"github.com/campuscore/campuscore/internal/store"
	"github.com/campuscore/campuscore/internal/transcript"
)

// Config carries the HTTP surface settings.
type Config struct {
	BasePath      string
	SecureCookies bool
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	proctor *exam.Proctor
	scale   *grading.Scale
	builder *transcript.Builder
	config  Config
}

// New creates a new Handler.
func New(s *store.Store, p *exam.Proctor, scale *grading.Scale, b *transcript.Builder, cfg Config) (*Handler, error) {
	return &Handler{store: s, proctor: p, scale: scale, builder: b, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/exams", h.handleListExams)
		r.Post("/exams/{examID}/sessions", h.handleStartSession)
		r.Get("/exams/sessions/{sessionID}", h.handleSessionStatus)
		r.Put("/exams/sessions/{sessionID}/answers/{questionID}", h.handleSaveAnswer)
		r.Post("/exams/sessions/{sessionID}/submit", h.handleSubmit)
		r.Delete("/exams/sessions/{sessionID}", h.handleCancelSession)
		r.Get("/exams/sessions/{sessionID}/result", h.handleSessionResult)

		r.Get("/students/{studentID}/grades", h.handleCourseGradeResults)
		r.Get("/students/{studentID}/transcript", h.handleTranscript)

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleInstructor, model.UserRoleAdmin))

			r.Get("/grading/sessions", h.handleGradingQueue)
			r.Get("/grading/sessions/{sessionID}", h.handleGradingView)
			r.Put("/grading/sessions/{sessionID}/scores/{questionID}", h.handleManualScore)

			r.Post("/gradebook/courses/{courseID}/records", h.handleRecordGrade)
			r.Get("/gradebook/courses/{courseID}/students/{studentID}/records", h.handleListGradeRecords)
			r.Put("/gradebook/courses/{courseID}/categories", h.handleUpsertCategory)
			r.Get("/gradebook/courses/{courseID}/categories", h.handleListCategories)
			r.Post("/gradebook/courses/{courseID}/students/{studentID}/compute", h.handleComputeCourseGrade)
			r.Put("/gradebook/courses/{courseID}/students/{studentID}/final-letter", h.handleFinalLetterGrade)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))

			r.Get("/admin/users", h.handleListUsers)
			r.Post("/admin/users", h.handleCreateUser)
			r.Put("/admin/users/{userID}/active", h.handleSetUserActive)
			r.Post("/admin/exams", h.handleUploadExams)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams()
	if err != nil {
		slog.Error("list exams", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

// sessionStatusResponse is the live progress view of an exam session.
type sessionStatusResponse struct {
	SessionID        int64               `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Answered         int                 `json:"answered"`
	Total            int                 `json:"total"`
	QuestionOrder    []int64             `json:"question_order,omitempty"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examID, ok := urlID(r, "examID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid exam ID")
		return
	}

	ex, err := h.store.GetExam(examID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "ExamNotFound"))
		return
	}
	if err != nil {
		slog.Error("get exam", "exam_id", examID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if len(ex.Questions) == 0 {
		writeError(w, http.StatusUnprocessableEntity, appI18n.T(r.Context(), "ExamEmpty"))
		return
	}

	taken, err := h.store.CountSessions(examID, user.ID)
	if err != nil {
		slog.Error("count sessions", "exam_id", examID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ex.AttemptsAllowed > 0 && taken >= ex.AttemptsAllowed {
		writeError(w, http.StatusConflict, appI18n.Td(r.Context(), "AttemptsExhausted",
			map[string]any{"Allowed": ex.AttemptsAllowed}))
		return
	}

	sess, err := h.store.CreateExamSession(examID, user.ID, nil)
	if err != nil {
		slog.Error("create exam session", "exam_id", examID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	live, err := exam.Start(sess.ID, ex, user.ID, h.persistOutcome)
	if errors.Is(err, exam.ErrNoQuestions) {
		writeError(w, http.StatusUnprocessableEntity, appI18n.T(r.Context(), "ExamEmpty"))
		return
	}
	if err != nil {
		slog.Error("start session", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.store.UpdateSessionOrder(sess.ID, live.Order()); err != nil {
		slog.Error("persist question order", "session_id", sess.ID, "error", err)
	}
	h.proctor.Add(live)

	slog.Info("exam session started",
		"session_id", sess.ID, "exam_id", examID, "student_id", user.ID, "attempt", sess.Attempt)

	answered, total := live.Progress()
	writeJSON(w, http.StatusCreated, sessionStatusResponse{
		SessionID:        sess.ID,
		Status:           model.StatusInProgress,
		RemainingSeconds: live.Remaining(),
		Answered:         answered,
		Total:            total,
		QuestionOrder:    live.Order(),
	})
}

// ownedSession loads the live session for the request and checks the caller
// owns it. Graders may reach any session.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request) (*exam.Session, bool) {
	user := model.UserFromContext(r.Context())
	sessionID, ok := urlID(r, "sessionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return nil, false
	}
	live, ok := h.proctor.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotActive"))
		return nil, false
	}
	if live.StudentID() != user.ID && !user.CanGrade() {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return live, true
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sessionID, ok := urlID(r, "sessionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	if live, ok := h.proctor.Get(sessionID); ok {
		if live.StudentID() != user.ID && !user.CanGrade() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		answered, total := live.Progress()
		writeJSON(w, http.StatusOK, sessionStatusResponse{
			SessionID:        sessionID,
			Status:           model.StatusInProgress,
			RemainingSeconds: live.Remaining(),
			Answered:         answered,
			Total:            total,
			QuestionOrder:    live.Order(),
		})
		return
	}

	sess, err := h.store.GetExamSession(sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "SessionNotFound"))
		return
	}
	if err != nil {
		slog.Error("get exam session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess.StudentID != user.ID && !user.CanGrade() {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID: sessionID,
		Status:    sess.Status,
		Answered:  len(sess.Answers),
		Total:     len(sess.QuestionOrder),
	})
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	live, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	questionID, ok := urlID(r, "questionID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid question ID")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if err := live.Answer(questionID, body.Value); err != nil {
		switch {
		case errors.Is(err, exam.ErrSessionClosed):
			writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionClosed"))
		case errors.Is(err, exam.ErrUnknownQuestion):
			writeError(w, http.StatusNotFound, appI18n.T(r.Context(), "UnknownQuestion"))
		default:
			slog.Error("record answer", "session_id", live.ID(), "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if err := h.store.SaveAnswer(live.ID(), questionID, body.Value); err != nil {
		slog.Error("persist answer", "session_id", live.ID(), "question_id", questionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	answered, total := live.Progress()
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		SessionID:        live.ID(),
		Status:           model.StatusInProgress,
		RemainingSeconds: live.Remaining(),
		Answered:         answered,
		Total:            total,
	})
}

// submitResponse reports the submission outcome. Scores are omitted for
// students when the exam hides results.
type submitResponse struct {
	SessionID        int64               `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	TimedOut         bool                `json:"timed_out"`
	TimeSpentSeconds int                 `json:"time_spent_seconds"`
	Autograded       bool                `json:"autograded"`
	Score            *float64            `json:"score,omitempty"`
	MaxScore         *float64            `json:"max_score,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	live, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	out, err := live.Submit(true)
	if errors.Is(err, exam.ErrSessionClosed) {
		writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionClosed"))
		return
	}
	if err != nil {
		slog.Error("submit session", "session_id", live.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := submitResponse{
		SessionID:        live.ID(),
		Status:           out.Status,
		TimedOut:         out.TimedOut,
		TimeSpentSeconds: out.TimeSpentSeconds,
		Autograded:       out.Autograded,
	}
	ex, err := h.store.GetExam(examIDForSession(h.store, live.ID()))
	if err == nil && (ex.ShowResults || user.CanGrade()) {
		resp.Score = &out.Score
		resp.MaxScore = &out.MaxScore
	}
	writeJSON(w, http.StatusOK, resp)
}

func examIDForSession(s *store.Store, sessionID int64) int64 {
	sess, err := s.GetExamSession(sessionID)
	if err != nil {
		return 0
	}
	return sess.ExamID
}

func (h *Handler) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	live, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	live.Cancel()
	h.proctor.Remove(live.ID())
	slog.Info("exam session cancelled", "session_id", live.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
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

	if !user.CanGrade() {
		if view.Session.StudentID != user.ID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if view.Session.Status == model.StatusInProgress {
			writeError(w, http.StatusConflict, appI18n.T(r.Context(), "SessionStillOpen"))
			return
		}
		if !view.Exam.ShowResults {
			writeError(w, http.StatusForbidden, appI18n.T(r.Context(), "ResultsHidden"))
			return
		}
		// Students never see the answer key.
		for i := range view.Exam.Questions {
			view.Exam.Questions[i].CorrectChoice = nil
		}
	}
	writeJSON(w, http.StatusOK, view)
}

// persistOutcome is the submission callback shared by manual submits and
// timer-triggered ones. Answers were already persisted as they arrived.
func (h *Handler) persistOutcome(sessionID int64, out exam.Outcome) {
	if err := h.store.FinalizeSession(sessionID, out.Status, out.TimeSpentSeconds,
		out.Score, out.MaxScore, out.Autograded); err != nil {
		slog.Error("finalize session", "session_id", sessionID, "error", err)
		return
	}
	h.proctor.Remove(sessionID)

	slog.Info("exam session submitted",
		"session_id", sessionID, "status", out.Status, "timed_out", out.TimedOut,
		"score", out.Score, "max_score", out.MaxScore)

	if out.Status == model.StatusGraded {
		if err := h.recordExamGrade(sessionID, out.Score, out.MaxScore); err != nil {
			slog.Error("record exam grade", "session_id", sessionID, "error", err)
		}
	}
}

// recordExamGrade turns a graded session into a gradebook record.
func (h *Handler) recordExamGrade(sessionID int64, score, maxScore float64) error {
	sess, err := h.store.GetExamSession(sessionID)
	if err != nil {
		return err
	}
	ex, err := h.store.GetExam(sess.ExamID)
	if err != nil {
		return err
	}
	examID := ex.ID
	_, err = h.store.InsertGradeRecord(model.GradeRecord{
		StudentID: sess.StudentID,
		CourseID:  ex.CourseID,
		ExamID:    &examID,
		Category:  "exam",
		Score:     score,
		MaxScore:  maxScore,
	})
	return err
}
