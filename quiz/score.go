package quiz

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is returned for malformed submissions: empty, cross-quiz, unknown
// answers, or a question answered more than once.
var ErrValidation = errors.New("validation failure")

// Score checks answers against s and returns the total. A correct answer earns the
// question's CorrectPoints, an incorrect one its IncorrectPoints, an unanswered question
// nothing. Negative totals are valid.
func Score(s Snapshot, answers []SubmittedAnswer) (int, error) {
	if len(s.Questions) == 0 {
		return 0, fmt.Errorf("%w: quiz %d has no questions", ErrValidation, s.ID)
	}
	if len(answers) == 0 {
		return 0, fmt.Errorf("%w: no answers submitted", ErrValidation)
	}

	seen := make(map[int64]struct{}, len(answers))
	total := 0
	for _, sub := range answers {
		q, ok := s.Question(sub.QuestionID)
		if !ok {
			return 0, fmt.Errorf("%w: question %d is not part of quiz %d", ErrValidation, sub.QuestionID, s.ID)
		}
		if _, dup := seen[sub.QuestionID]; dup {
			return 0, fmt.Errorf("%w: question %d answered more than once", ErrValidation, sub.QuestionID)
		}
		seen[sub.QuestionID] = struct{}{}

		a, ok := q.Answer(sub.AnswerID)
		if !ok {
			return 0, fmt.Errorf("%w: answer %d does not belong to question %d", ErrValidation, sub.AnswerID, sub.QuestionID)
		}
		if a.IsCorrect {
			total += q.CorrectPoints
		} else {
			total += q.IncorrectPoints
		}
	}
	return total, nil
}

// ValidateDraft checks a quiz before it is stored: it needs a title, and every question
// needs text and at least one correct answer.
func ValidateDraft(s Snapshot) error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: quiz title is empty", ErrValidation)
	}
	for i, q := range s.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrValidation, i+1)
		}
		correct := false
		for _, a := range q.Answers {
			if a.IsCorrect {
				correct = true
				break
			}
		}
		if !correct {
			return fmt.Errorf("%w: question %d has no correct answer", ErrValidation, i+1)
		}
	}
	return nil
}
