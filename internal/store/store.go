package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campuscore/campuscore/internal/model"

	_ "modernc.org/sqlite"
)

// schemaVersion is recorded in app_metadata on first open and checked on
// every subsequent one, so an old binary refuses a newer database.
const schemaVersion = "1"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		total_points REAL NOT NULL DEFAULT 0,
		randomize_questions INTEGER NOT NULL DEFAULT 0,
		show_results INTEGER NOT NULL DEFAULT 1,
		attempts_allowed INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		prompt TEXT NOT NULL,
		points REAL NOT NULL,
		required INTEGER NOT NULL DEFAULT 0,
		options TEXT NOT NULL DEFAULT '[]',
		correct_choice INTEGER,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL,
		student_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		time_spent_seconds INTEGER NOT NULL DEFAULT 0,
		score REAL,
		max_score REAL,
		autograded INTEGER NOT NULL DEFAULT 0,
		question_order TEXT NOT NULL DEFAULT '[]',
		UNIQUE (exam_id, student_id, attempt),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS manual_scores (
		session_id INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		score REAL NOT NULL,
		feedback TEXT NOT NULL DEFAULT '',
		graded_by INTEGER NOT NULL,
		graded_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, question_id),
		FOREIGN KEY (session_id) REFERENCES exam_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS grade_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		exam_id INTEGER,
		category TEXT NOT NULL,
		score REAL NOT NULL,
		max_score REAL NOT NULL,
		weight REAL NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL,
		late INTEGER NOT NULL DEFAULT 0,
		excused INTEGER NOT NULL DEFAULT 0,
		feedback TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS grade_categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		weight REAL NOT NULL,
		UNIQUE (course_id, name)
	);

	CREATE TABLE IF NOT EXISTS course_grade_results (
		student_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		course_name TEXT NOT NULL DEFAULT '',
		semester TEXT NOT NULL,
		year INTEGER NOT NULL,
		credits REAL NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		letter_grade TEXT NOT NULL DEFAULT '',
		gpa REAL NOT NULL DEFAULT 0,
		is_complete INTEGER NOT NULL DEFAULT 0,
		final_letter_grade TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (student_id, course_id, semester, year)
	);

	CREATE TABLE IF NOT EXISTS import_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	current, err := s.GetMetadata("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch current {
	case "":
		return s.SetMetadata("schema_version", schemaVersion)
	case schemaVersion:
		return nil
	default:
		return fmt.Errorf("database schema version %s is not supported (want %s)", current, schemaVersion)
	}
}

// CreateExam stores an exam with its questions in one transaction.
func (s *Store) CreateExam(exam model.Exam) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO exams (course_id, title, duration_minutes, total_points, randomize_questions, show_results, attempts_allowed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exam.CourseID, exam.Title, exam.DurationMinutes, exam.TotalPoints,
		exam.RandomizeQuestions, exam.ShowResults, exam.AttemptsAllowed,
	)
	if err != nil {
		return 0, err
	}
	examID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, q := range exam.Questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			`INSERT INTO questions (exam_id, type, prompt, points, required, options, correct_choice)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			examID, q.Type, q.Prompt, q.Points, q.Required, string(options), q.CorrectChoice,
		)
		if err != nil {
			return 0, err
		}
	}

	return examID, tx.Commit()
}

// GetExam returns an exam with its questions in declared order.
func (s *Store) GetExam(id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, course_id, title, duration_minutes, total_points, randomize_questions, show_results, attempts_allowed
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.CourseID, &e.Title, &e.DurationMinutes, &e.TotalPoints,
		&e.RandomizeQuestions, &e.ShowResults, &e.AttemptsAllowed)
	if err != nil {
		return e, err
	}

	rows, err := s.db.Query(
		`SELECT id, exam_id, type, prompt, points, required, options, correct_choice
		 FROM questions WHERE exam_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return e, err
	}
	defer rows.Close()
	for rows.Next() {
		var q model.Question
		var options string
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Prompt, &q.Points, &q.Required, &options, &q.CorrectChoice); err != nil {
			return e, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return e, fmt.Errorf("decode options for question %d: %w", q.ID, err)
		}
		e.Questions = append(e.Questions, q)
	}
	return e, rows.Err()
}

// ListExams returns all exams without their questions.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, title, duration_minutes, total_points, randomize_questions, show_results, attempts_allowed
		 FROM exams ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Title, &e.DurationMinutes, &e.TotalPoints,
			&e.RandomizeQuestions, &e.ShowResults, &e.AttemptsAllowed); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ExamCount returns the number of exams in the database.
func (s *Store) ExamCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}

// CountSessions returns how many sessions a student has for an exam.
func (s *Store) CountSessions(examID, studentID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM exam_sessions WHERE exam_id = ? AND student_id = ?`,
		examID, studentID,
	).Scan(&count)
	return count, err
}

// CreateExamSession creates an in-progress session for the student's next
// attempt, freezing the given question display order.
func (s *Store) CreateExamSession(examID, studentID int64, order []int64) (model.ExamSession, error) {
	var sess model.ExamSession

	orderJSON, err := json.Marshal(order)
	if err != nil {
		return sess, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return sess, err
	}
	defer tx.Rollback()

	var attempt int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(attempt), 0) + 1 FROM exam_sessions WHERE exam_id = ? AND student_id = ?`,
		examID, studentID,
	).Scan(&attempt); err != nil {
		return sess, err
	}

	now := time.Now()
	res, err := tx.Exec(
		`INSERT INTO exam_sessions (exam_id, student_id, attempt, status, started_at, question_order)
		 VALUES (?, ?, ?, 'in_progress', ?, ?)`,
		examID, studentID, attempt, now, string(orderJSON),
	)
	if err != nil {
		return sess, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return sess, err
	}
	if err := tx.Commit(); err != nil {
		return sess, err
	}

	sess = model.ExamSession{
		ID:            id,
		ExamID:        examID,
		StudentID:     studentID,
		Attempt:       attempt,
		Status:        model.StatusInProgress,
		StartedAt:     now,
		QuestionOrder: order,
		Answers:       map[int64]string{},
	}
	return sess, nil
}

// GetExamSession returns a session with its answers and display order.
func (s *Store) GetExamSession(id int64) (model.ExamSession, error) {
	var sess model.ExamSession
	var orderJSON string
	err := s.db.QueryRow(
		`SELECT id, exam_id, student_id, attempt, status, started_at, submitted_at,
		        time_spent_seconds, score, max_score, autograded, question_order
		 FROM exam_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ExamID, &sess.StudentID, &sess.Attempt, &sess.Status,
		&sess.StartedAt, &sess.SubmittedAt, &sess.TimeSpentSeconds,
		&sess.Score, &sess.MaxScore, &sess.Autograded, &orderJSON)
	if err != nil {
		return sess, err
	}
	if err := json.Unmarshal([]byte(orderJSON), &sess.QuestionOrder); err != nil {
		return sess, fmt.Errorf("decode question order for session %d: %w", id, err)
	}

	sess.Answers, err = s.GetAnswers(id)
	return sess, err
}

// ListSessions returns all sessions, newest first, without answers.
func (s *Store) ListSessions() ([]model.ExamSession, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, student_id, attempt, status, started_at, submitted_at,
		        time_spent_seconds, score, max_score, autograded
		 FROM exam_sessions ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.ExamSession
	for rows.Next() {
		var sess model.ExamSession
		if err := rows.Scan(&sess.ID, &sess.ExamID, &sess.StudentID, &sess.Attempt, &sess.Status,
			&sess.StartedAt, &sess.SubmittedAt, &sess.TimeSpentSeconds,
			&sess.Score, &sess.MaxScore, &sess.Autograded); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// UpdateSessionOrder persists the frozen question order for a session.
func (s *Store) UpdateSessionOrder(id int64, order []int64) error {
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE exam_sessions SET question_order = ? WHERE id = ?`, string(orderJSON), id)
	return err
}

// SaveAnswer inserts or overwrites the answer for one question.
func (s *Store) SaveAnswer(sessionID, questionID int64, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO answers (session_id, question_id, value) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET value = ?`,
		sessionID, questionID, value, value,
	)
	return err
}

// GetAnswers returns a session's answers keyed by question ID.
func (s *Store) GetAnswers(sessionID int64) (map[int64]string, error) {
	rows, err := s.db.Query(
		`SELECT question_id, value FROM answers WHERE session_id = ?`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	answers := make(map[int64]string)
	for rows.Next() {
		var qid int64
		var value string
		if err := rows.Scan(&qid, &value); err != nil {
			return nil, err
		}
		answers[qid] = value
	}
	return answers, rows.Err()
}

// FinalizeSession records the outcome of a submission.
func (s *Store) FinalizeSession(id int64, status model.SessionStatus, timeSpent int, score, maxScore float64, autograded bool) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE exam_sessions
		 SET status = ?, submitted_at = ?, time_spent_seconds = ?, score = ?, max_score = ?, autograded = ?
		 WHERE id = ?`,
		status, now, timeSpent, score, maxScore, autograded, id,
	)
	return err
}

// MarkSessionGraded sets the final score once manual grading is complete.
func (s *Store) MarkSessionGraded(id int64, score, maxScore float64) error {
	_, err := s.db.Exec(
		`UPDATE exam_sessions SET status = ?, score = ?, max_score = ? WHERE id = ?`,
		model.StatusGraded, score, maxScore, id,
	)
	return err
}

// UpsertManualScore inserts or updates an instructor score for a question.
func (s *Store) UpsertManualScore(ms model.ManualScore) error {
	_, err := s.db.Exec(
		`INSERT INTO manual_scores (session_id, question_id, score, feedback, graded_by, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, question_id) DO UPDATE SET score = ?, feedback = ?, graded_by = ?, graded_at = ?`,
		ms.SessionID, ms.QuestionID, ms.Score, ms.Feedback, ms.GradedBy, time.Now(),
		ms.Score, ms.Feedback, ms.GradedBy, time.Now(),
	)
	return err
}

// ListManualScores returns all instructor scores for a session.
func (s *Store) ListManualScores(sessionID int64) ([]model.ManualScore, error) {
	rows, err := s.db.Query(
		`SELECT session_id, question_id, score, feedback, graded_by, graded_at
		 FROM manual_scores WHERE session_id = ? ORDER BY question_id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var scores []model.ManualScore
	for rows.Next() {
		var ms model.ManualScore
		if err := rows.Scan(&ms.SessionID, &ms.QuestionID, &ms.Score, &ms.Feedback, &ms.GradedBy, &ms.GradedAt); err != nil {
			return nil, err
		}
		scores = append(scores, ms)
	}
	return scores, rows.Err()
}

// InsertGradeRecord stores a grade record.
func (s *Store) InsertGradeRecord(r model.GradeRecord) (int64, error) {
	recordedAt := r.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO grade_records (student_id, course_id, exam_id, category, score, max_score, weight, recorded_at, late, excused, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.StudentID, r.CourseID, r.ExamID, r.Category, r.Score, r.MaxScore, r.Weight,
		recordedAt, r.Late, r.Excused, r.Feedback,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListGradeRecords returns a student's grade records for one course.
func (s *Store) ListGradeRecords(studentID, courseID int64) ([]model.GradeRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, student_id, course_id, exam_id, category, score, max_score, weight, recorded_at, late, excused, feedback
		 FROM grade_records WHERE student_id = ? AND course_id = ? ORDER BY id`,
		studentID, courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.GradeRecord
	for rows.Next() {
		var r model.GradeRecord
		if err := rows.Scan(&r.ID, &r.StudentID, &r.CourseID, &r.ExamID, &r.Category, &r.Score,
			&r.MaxScore, &r.Weight, &r.RecordedAt, &r.Late, &r.Excused, &r.Feedback); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertGradeCategory inserts or updates a category weight for a course.
func (s *Store) UpsertGradeCategory(c model.GradeCategory) error {
	_, err := s.db.Exec(
		`INSERT INTO grade_categories (course_id, name, weight) VALUES (?, ?, ?)
		 ON CONFLICT(course_id, name) DO UPDATE SET weight = ?`,
		c.CourseID, c.Name, c.Weight, c.Weight,
	)
	return err
}

// ListGradeCategories returns a course's categories.
func (s *Store) ListGradeCategories(courseID int64) ([]model.GradeCategory, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, name, weight FROM grade_categories WHERE course_id = ? ORDER BY id`,
		courseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []model.GradeCategory
	for rows.Next() {
		var c model.GradeCategory
		if err := rows.Scan(&c.ID, &c.CourseID, &c.Name, &c.Weight); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// UpsertCourseGradeResult stores a derived course grade result.
func (s *Store) UpsertCourseGradeResult(r model.CourseGradeResult) error {
	_, err := s.db.Exec(
		`INSERT INTO course_grade_results
		 (student_id, course_id, course_name, semester, year, credits, percentage, letter_grade, gpa, is_complete, final_letter_grade)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, course_id, semester, year) DO UPDATE SET
		 course_name = ?, credits = ?, percentage = ?, letter_grade = ?, gpa = ?, is_complete = ?`,
		r.StudentID, r.CourseID, r.CourseName, r.Semester, r.Year, r.Credits,
		r.Percentage, r.LetterGrade, r.GPA, r.IsComplete, r.FinalLetterGrade,
		r.CourseName, r.Credits, r.Percentage, r.LetterGrade, r.GPA, r.IsComplete,
	)
	return err
}

// SetFinalLetterGrade records a manual letter override for a result.
func (s *Store) SetFinalLetterGrade(studentID, courseID int64, semester string, year int, letter string) error {
	_, err := s.db.Exec(
		`UPDATE course_grade_results SET final_letter_grade = ?
		 WHERE student_id = ? AND course_id = ? AND semester = ? AND year = ?`,
		letter, studentID, courseID, semester, year,
	)
	return err
}

// ListCourseGradeResults returns all of a student's course grade results.
func (s *Store) ListCourseGradeResults(studentID int64) ([]model.CourseGradeResult, error) {
	rows, err := s.db.Query(
		`SELECT student_id, course_id, course_name, semester, year, credits, percentage, letter_grade, gpa, is_complete, final_letter_grade
		 FROM course_grade_results WHERE student_id = ? ORDER BY year, semester, course_id`,
		studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.CourseGradeResult
	for rows.Next() {
		var r model.CourseGradeResult
		if err := rows.Scan(&r.StudentID, &r.CourseID, &r.CourseName, &r.Semester, &r.Year,
			&r.Credits, &r.Percentage, &r.LetterGrade, &r.GPA, &r.IsComplete, &r.FinalLetterGrade); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
