// Package memory is a process-local store.Store and account.Provider.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/store"
)

// Store keeps everything in maps behind one RWMutex.
type Store struct {
	mu sync.RWMutex

	quizzes  map[int64]quiz.Snapshot
	attempts map[string]quiz.Attempt
	choices  map[string][]quiz.AnsweredChoice

	users        map[string]account.User
	byIdentifier map[string]string

	nextQuiz     int64
	nextQuestion int64
	nextAnswer   int64

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		quizzes:      make(map[int64]quiz.Snapshot),
		attempts:     make(map[string]quiz.Attempt),
		choices:      make(map[string][]quiz.AnsweredChoice),
		users:        make(map[string]account.User),
		byIdentifier: make(map[string]string),
		now:          time.Now,
	}
}

// PutUser creates or replaces a user. Identifiers are unique.
func (s *Store) PutUser(_ context.Context, u account.User) error {
	u.Identifier = strings.TrimSpace(u.Identifier)
	if u.ID == "" || u.Identifier == "" {
		return fmt.Errorf("id and identifier are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, taken := s.byIdentifier[u.Identifier]; taken && owner != u.ID {
		return store.ErrConflict
	}
	if old, ok := s.users[u.ID]; ok {
		delete(s.byIdentifier, old.Identifier)
	}
	s.users[u.ID] = u
	s.byIdentifier[u.Identifier] = u.ID
	return nil
}

// UserByIdentifier implements account.Provider.
func (s *Store) UserByIdentifier(_ context.Context, identifier string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byIdentifier[strings.TrimSpace(identifier)]
	if !ok {
		return account.User{}, account.ErrUserNotFound
	}
	return s.users[id], nil
}

// UserByID implements account.Provider.
func (s *Store) UserByID(_ context.Context, id string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return account.User{}, account.ErrUserNotFound
	}
	return u, nil
}

// FindByOwner returns one 1-based page of quizzes ordered by id. An empty owner lists
// every quiz.
func (s *Store) FindByOwner(_ context.Context, ownerID string, page, size int) ([]quiz.Snapshot, error) {
	s.mu.RLock()
	matched := make([]quiz.Snapshot, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		if ownerID == "" || q.OwnerID == ownerID {
			matched = append(matched, q.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	start, end := quiz.PageWindow(page, size, len(matched))
	if start == end {
		return []quiz.Snapshot{}, nil
	}
	return matched[start:end], nil
}

// FindByID returns a copy of one quiz.
func (s *Store) FindByID(_ context.Context, id int64) (quiz.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok {
		return quiz.Snapshot{}, store.ErrNotFound
	}
	return q.Clone(), nil
}

// Insert stores snap under fresh ids and returns the stored copy.
func (s *Store) Insert(_ context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuiz++
	out := snap.Clone()
	out.ID = s.nextQuiz
	out.UpdatedAt = s.now().UTC()
	for i := range out.Questions {
		s.assignIDs(&out.Questions[i], true)
	}
	s.quizzes[out.ID] = out
	return out.Clone(), nil
}

// assignIDs gives new ids to entries with id 0. fresh forces new ids on everything.
func (s *Store) assignIDs(q *quiz.Question, fresh bool) {
	if fresh || q.ID == 0 {
		s.nextQuestion++
		q.ID = s.nextQuestion
	}
	for j := range q.Answers {
		if fresh || q.Answers[j].ID == 0 {
			s.nextAnswer++
			q.Answers[j].ID = s.nextAnswer
		}
	}
}

// Update merges snap into the stored quiz. The owner never changes and UpdatedAt
// always moves forward.
func (s *Store) Update(_ context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.quizzes[snap.ID]
	if !ok {
		return quiz.Snapshot{}, store.ErrNotFound
	}

	out := snap.Clone()
	out.OwnerID = current.OwnerID
	for i := range out.Questions {
		q := &out.Questions[i]
		if q.ID != 0 {
			existing, found := current.Question(q.ID)
			if !found {
				return quiz.Snapshot{}, store.ErrNotFound
			}
			for _, a := range q.Answers {
				if _, found := existing.Answer(a.ID); a.ID != 0 && !found {
					return quiz.Snapshot{}, store.ErrNotFound
				}
			}
		}
		s.assignIDs(q, false)
	}
	out.UpdatedAt = s.now().UTC()
	if !out.UpdatedAt.After(current.UpdatedAt) {
		out.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	s.quizzes[out.ID] = out
	return out.Clone(), nil
}

// Delete removes a quiz together with its attempts and their choices.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.quizzes, id)
	for attemptID, a := range s.attempts {
		if a.QuizID == id {
			delete(s.attempts, attemptID)
			delete(s.choices, attemptID)
		}
	}
	return nil
}

// Reattach returns snap when it is as new as the stored quiz, and a fresh copy
// otherwise.
func (s *Store) Reattach(_ context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, ok := s.quizzes[snap.ID]
	if !ok {
		return quiz.Snapshot{}, store.ErrNotFound
	}
	if current.UpdatedAt.Equal(snap.UpdatedAt) {
		return snap, nil
	}
	return current.Clone(), nil
}

// SaveAttempt stores an attempt and its choices. A second choice for the same question
// is a conflict.
func (s *Store) SaveAttempt(_ context.Context, a quiz.Attempt, choices []quiz.AnsweredChoice) error {
	seen := make(map[int64]struct{}, len(choices))
	for _, c := range choices {
		if c.AttemptID != a.ID {
			return store.ErrConflict
		}
		if _, dup := seen[c.QuestionID]; dup {
			return store.ErrConflict
		}
		seen[c.QuestionID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[a.QuizID]; !ok {
		return store.ErrNotFound
	}
	if _, dup := s.attempts[a.ID]; dup {
		return store.ErrConflict
	}
	s.attempts[a.ID] = a
	s.choices[a.ID] = append([]quiz.AnsweredChoice(nil), choices...)
	return nil
}

// AttemptsByUser lists a user's attempts oldest first.
func (s *Store) AttemptsByUser(_ context.Context, userID string) ([]quiz.Attempt, error) {
	s.mu.RLock()
	out := make([]quiz.Attempt, 0)
	for _, a := range s.attempts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Choices returns the answered choices stored for an attempt.
func (s *Store) Choices(_ context.Context, attemptID string) ([]quiz.AnsweredChoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.choices[attemptID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]quiz.AnsweredChoice(nil), c...), nil
}

var (
	_ store.Store      = (*Store)(nil)
	_ account.Provider = (*Store)(nil)
)
