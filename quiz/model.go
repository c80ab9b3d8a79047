// Package quiz holds the quiz snapshot model shared by the cache, the stores and the
// scoring flow, together with the pure scoring function.
package quiz

import "time"

// Answer is one selectable option of a question.
type Answer struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question carries its own point values; IncorrectPoints is usually zero or negative.
type Question struct {
	ID              int64    `json:"id"`
	Text            string   `json:"text"`
	CorrectPoints   int      `json:"correct_points"`
	IncorrectPoints int      `json:"incorrect_points"`
	Answers         []Answer `json:"answers"`
}

// Snapshot is a detached copy of a quiz and its questions.
type Snapshot struct {
	ID           int64      `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	PasswordHash string     `json:"-"`
	Questions    []Question `json:"questions"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Protected reports whether taking the quiz requires a password.
func (s Snapshot) Protected() bool {
	return s.PasswordHash != ""
}

// Question returns the question with id, if present.
func (s Snapshot) Question(id int64) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy so cached snapshots never alias caller memory.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Questions != nil {
		out.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			out.Questions[i] = q
			if q.Answers != nil {
				out.Questions[i].Answers = append([]Answer(nil), q.Answers...)
			}
		}
	}
	return out
}

// Answer returns the answer with id, if present.
func (q Question) Answer(id int64) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// Attempt is one scored run of a user through a quiz. Immutable once persisted.
type Attempt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	QuizID    int64     `json:"quiz_id"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// AnsweredChoice records the answer chosen for one question within one attempt.
// (AttemptID, QuestionID) is unique.
type AnsweredChoice struct {
	AttemptID  string    `json:"attempt_id"`
	QuestionID int64     `json:"question_id"`
	AnswerID   int64     `json:"answer_id"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SubmittedAnswer is one entry of a quiz submission.
type SubmittedAnswer struct {
	QuestionID int64 `json:"question_id"`
	AnswerID   int64 `json:"answer_id"`
}

// Result is returned to the caller after a completed submission.
type Result struct {
	Attempt Attempt
	Choices []AnsweredChoice
}
