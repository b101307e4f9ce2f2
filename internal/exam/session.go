package exam

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/campuscore/campuscore/internal/model"
)

var (
	// ErrNoQuestions is returned when starting a session for a questionless exam.
	ErrNoQuestions = errors.New("exam has no questions")
	// ErrSessionClosed is returned for answer attempts after the session left in-progress.
	ErrSessionClosed = errors.New("session is no longer in progress")
	// ErrUnknownQuestion is returned for answers to questions not in the exam.
	ErrUnknownQuestion = errors.New("question is not part of this exam")
)

// Outcome is the result of a submission, handed to the completion callback
// exactly once per session.
type Outcome struct {
	Manual           bool
	TimedOut         bool
	TimeSpentSeconds int
	Score            float64
	MaxScore         float64
	Autograded       bool
	Status           model.SessionStatus
	Answers          map[int64]string
}

// SubmitFunc receives the outcome of a submission. It is invoked outside
// the session lock, after the idempotency guard has been set.
type SubmitFunc func(sessionID int64, out Outcome)

// Session drives one student's attempt at an exam. It owns the countdown
// as a plain value: Tick and Cancel are the only ways the countdown
// advances or stops, and a single scheduler loop is expected to call Tick
// once per second (see Proctor).
type Session struct {
	mu sync.Mutex

	id        int64
	exam      model.Exam
	studentID int64
	startedAt time.Time

	order     []int64
	answers   map[int64]string
	remaining int

	// submitted is the idempotency guard: set before any submission work
	// begins so duplicate submits and late ticks become no-ops.
	submitted bool
	cancelled bool
	outcome   *Outcome

	onSubmit SubmitFunc
}

// Start creates a session for the given exam and student and begins the
// countdown at duration*60 seconds. It fails if the exam has no questions.
// A non-positive duration is rejected at exam creation, not here.
func Start(sessionID int64, exam model.Exam, studentID int64, onSubmit SubmitFunc) (*Session, error) {
	if len(exam.Questions) == 0 {
		return nil, fmt.Errorf("start exam %d: %w", exam.ID, ErrNoQuestions)
	}

	order := make([]int64, len(exam.Questions))
	for i, q := range exam.Questions {
		order[i] = q.ID
	}
	if exam.RandomizeQuestions {
		// The shuffle is frozen here for the life of the session; it is
		// not reproducible across retakes.
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	return &Session{
		id:        sessionID,
		exam:      exam,
		studentID: studentID,
		startedAt: time.Now(),
		order:     order,
		answers:   make(map[int64]string),
		remaining: exam.DurationMinutes * 60,
		onSubmit:  onSubmit,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() int64 { return s.id }

// StudentID returns the taking student's identifier.
func (s *Session) StudentID() int64 { return s.studentID }

// StartedAt returns when the session was started.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Order returns the session-local question display order.
func (s *Session) Order() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.order))
	copy(out, s.order)
	return out
}

// Answer records or overwrites the answer for a question. It is allowed
// only while the session is in progress.
func (s *Session) Answer(questionID int64, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted || s.cancelled {
		return ErrSessionClosed
	}
	if !s.hasQuestion(questionID) {
		return fmt.Errorf("answer question %d: %w", questionID, ErrUnknownQuestion)
	}
	s.answers[questionID] = value
	return nil
}

func (s *Session) hasQuestion(questionID int64) bool {
	for _, q := range s.exam.Questions {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

// Remaining returns the seconds left on the countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Progress returns the number of answered questions and the total.
func (s *Session) Progress() (answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers), len(s.exam.Questions)
}

// Active reports whether the countdown should keep ticking.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.submitted && !s.cancelled
}

// Tick advances the countdown by one second. When it reaches zero the
// session is submitted automatically, exactly once. It returns false once
// the session no longer needs ticking.
func (s *Session) Tick() bool {
	s.mu.Lock()
	if s.submitted || s.cancelled {
		s.mu.Unlock()
		return false
	}
	s.remaining--
	if s.remaining > 0 {
		s.mu.Unlock()
		return true
	}
	s.remaining = 0
	out := s.finishLocked(false, true)
	s.mu.Unlock()

	s.notify(out)
	return false
}

// Submit submits the session. A second call while a submission is already
// underway is a no-op that returns the first outcome.
func (s *Session) Submit(manual bool) (Outcome, error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return Outcome{}, ErrSessionClosed
	}
	if s.submitted {
		out := *s.outcome
		s.mu.Unlock()
		return out, nil
	}
	out := s.finishLocked(manual, false)
	s.mu.Unlock()

	s.notify(out)
	return *out, nil
}

// finishLocked computes the submission outcome and sets the guard flags.
// The countdown is cancelled on this path unconditionally. Callers hold s.mu.
func (s *Session) finishLocked(manual, timedOut bool) *Outcome {
	s.submitted = true

	answers := make(map[int64]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	res := ScoreAnswers(s.exam.Questions, answers)

	status := model.StatusGraded
	if res.HasManualGrading {
		status = model.StatusSubmitted
	}

	s.outcome = &Outcome{
		Manual:           manual,
		TimedOut:         timedOut,
		TimeSpentSeconds: s.exam.DurationMinutes*60 - s.remaining,
		Score:            res.Score,
		MaxScore:         res.MaxScore,
		Autograded:       !res.HasManualGrading,
		Status:           status,
		Answers:          answers,
	}
	return s.outcome
}

func (s *Session) notify(out *Outcome) {
	if s.onSubmit != nil {
		s.onSubmit(s.id, *out)
	}
}

// Cancel stops the countdown without submitting. It has no persisted side
// effect and never forces a partial submission.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return
	}
	s.cancelled = true
}
