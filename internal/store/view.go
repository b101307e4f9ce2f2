package store

import (
	"fmt"

	"github.com/campuscore/campuscore/internal/model"
)

// GetSessionView builds a full view of a session with its exam, answers,
// and any instructor scores.
func (s *Store) GetSessionView(sessionID int64) (*model.SessionView, error) {
	sess, err := s.GetExamSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", sessionID, err)
	}
	exam, err := s.GetExam(sess.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam %d: %w", sess.ExamID, err)
	}
	scores, err := s.ListManualScores(sessionID)
	if err != nil {
		return nil, fmt.Errorf("list manual scores: %w", err)
	}

	return &model.SessionView{
		Session:      sess,
		Exam:         exam,
		ManualScores: scores,
	}, nil
}
