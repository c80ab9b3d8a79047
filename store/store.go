// Package store defines the durable quiz store the engine talks to.
//
// Implementations live in store/memory (process-local, used by tests and the demo) and
// store/postgres (database/sql over lib/pq). Both also serve users through
// [account.Provider].
package store

import (
	"context"
	"errors"
	"math"

	"github.com/MrEthical07/quizcore/quiz"
)

var (
	// ErrNotFound is returned when a quiz, user, or attempt does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
)

// Store persists quizzes and attempts.
//
// FindByOwner with an empty owner lists every quiz. Insert and Update return the
// snapshot as stored, with ids assigned to new questions and answers. Update merges
// questions and answers by id: entries with id 0 are inserted, missing ones deleted.
// Delete cascades to questions, answers and attempts.
type Store interface {
	FindByOwner(ctx context.Context, ownerID string, page, size int) ([]quiz.Snapshot, error)
	FindByID(ctx context.Context, id int64) (quiz.Snapshot, error)
	Insert(ctx context.Context, s quiz.Snapshot) (quiz.Snapshot, error)
	Update(ctx context.Context, s quiz.Snapshot) (quiz.Snapshot, error)
	Delete(ctx context.Context, id int64) error

	// Reattach returns the durable version of s; s itself when unchanged since UpdatedAt.
	Reattach(ctx context.Context, s quiz.Snapshot) (quiz.Snapshot, error)

	// SaveAttempt writes the attempt and its choices atomically. A second choice for the
	// same (attempt, question) is ErrConflict.
	SaveAttempt(ctx context.Context, a quiz.Attempt, choices []quiz.AnsweredChoice) error
	AttemptsByUser(ctx context.Context, userID string) ([]quiz.Attempt, error)
}

// Offset converts a 1-based page into a row offset. page < 1 is read as 1. An offset
// that would overflow saturates at math.MaxInt, which is past any real table.
func Offset(page, size int) int {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		return 0
	}
	if page-1 > math.MaxInt/size {
		return math.MaxInt
	}
	return (page - 1) * size
}
