// Package postgres is the PostgreSQL store.Store and account.Provider.
//
// Queries use database/sql with the lib/pq driver; id lists are bound with pq.Array.
// Questions, answers, attempts and answered choices cascade from their quiz.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/quizcore/account"
	"github.com/MrEthical07/quizcore/permission"
	"github.com/MrEthical07/quizcore/quiz"
	"github.com/MrEthical07/quizcore/store"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const schema = `
CREATE TABLE IF NOT EXISTS quiz_users (
	id TEXT PRIMARY KEY,
	identifier TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	entitlements BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS quizzes (
	id BIGSERIAL PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS quizzes_owner_idx ON quizzes (owner_id, id);
CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	quiz_id BIGINT NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
	position INT NOT NULL,
	text TEXT NOT NULL,
	correct_points INT NOT NULL,
	incorrect_points INT NOT NULL
);
CREATE TABLE IF NOT EXISTS answers (
	id BIGSERIAL PRIMARY KEY,
	question_id BIGINT NOT NULL REFERENCES questions (id) ON DELETE CASCADE,
	text TEXT NOT NULL,
	is_correct BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	quiz_id BIGINT NOT NULL REFERENCES quizzes (id) ON DELETE CASCADE,
	score INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_user_idx ON attempts (user_id, created_at);
CREATE TABLE IF NOT EXISTS answered_choices (
	attempt_id TEXT NOT NULL REFERENCES attempts (id) ON DELETE CASCADE,
	question_id BIGINT NOT NULL,
	answer_id BIGINT NOT NULL,
	answered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (attempt_id, question_id)
)`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New ensures the schema exists and returns a Store.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &Store{db: db, now: time.Now}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure quiz schema: %w", err)
	}
	return s, nil
}

// Open connects to dsn with the postgres driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// timestamp truncates to the column precision so Reattach can compare exactly.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Constraint)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", store.ErrNotFound, pqErr.Constraint)
		}
	}
	return err
}

// PutUser inserts or replaces a user keyed by id.
func (s *Store) PutUser(ctx context.Context, u account.User) error {
	u.Identifier = strings.TrimSpace(u.Identifier)
	if u.ID == "" || u.Identifier == "" {
		return fmt.Errorf("id and identifier are required")
	}
	const q = `
INSERT INTO quiz_users (id, identifier, password_hash, entitlements)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET identifier = EXCLUDED.identifier,
	password_hash = EXCLUDED.password_hash,
	entitlements = EXCLUDED.entitlements`
	if _, err := s.db.ExecContext(ctx, q, u.ID, u.Identifier, u.PasswordHash, int64(u.Entitlements.Raw())); err != nil {
		return fmt.Errorf("upsert quiz user: %w", mapError(err))
	}
	return nil
}

// UserByIdentifier implements account.Provider.
func (s *Store) UserByIdentifier(ctx context.Context, identifier string) (account.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return account.User{}, account.ErrUserNotFound
	}
	const q = `SELECT id, identifier, password_hash, entitlements FROM quiz_users WHERE identifier = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, identifier))
}

// UserByID implements account.Provider.
func (s *Store) UserByID(ctx context.Context, id string) (account.User, error) {
	const q = `SELECT id, identifier, password_hash, entitlements FROM quiz_users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) scanUser(row *sql.Row) (account.User, error) {
	var (
		u    account.User
		bits int64
	)
	if err := row.Scan(&u.ID, &u.Identifier, &u.PasswordHash, &bits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.User{}, account.ErrUserNotFound
		}
		return account.User{}, fmt.Errorf("query quiz user: %w", err)
	}
	u.Entitlements = permission.Mask64(uint64(bits))
	return u, nil
}

const selectQuiz = `SELECT id, owner_id, title, description, password_hash, updated_at FROM quizzes`

func scanQuiz(scan func(dest ...any) error) (quiz.Snapshot, error) {
	var q quiz.Snapshot
	err := scan(&q.ID, &q.OwnerID, &q.Title, &q.Description, &q.PasswordHash, &q.UpdatedAt)
	q.UpdatedAt = q.UpdatedAt.UTC()
	return q, err
}

// maxPagePrealloc caps slice capacity reserved up front for one page.
const maxPagePrealloc = 128

// FindByOwner returns one 1-based page of quizzes ordered by id. An empty owner lists
// every quiz.
func (s *Store) FindByOwner(ctx context.Context, ownerID string, page, size int) ([]quiz.Snapshot, error) {
	if size < 1 {
		return []quiz.Snapshot{}, nil
	}
	const q = selectQuiz + ` WHERE ($1 = '' OR owner_id = $1) ORDER BY id LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, q, ownerID, size, store.Offset(page, size))
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]quiz.Snapshot, 0, min(size, maxPagePrealloc))
	ids := make([]int64, 0, min(size, maxPagePrealloc))
	for rows.Next() {
		snap, err := scanQuiz(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, snap)
		ids = append(ids, snap.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quizzes: %w", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	questions, err := loadQuestions(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Questions = questions[out[i].ID]
	}
	return out, nil
}

// FindByID loads one quiz with its questions and answers.
func (s *Store) FindByID(ctx context.Context, id int64) (quiz.Snapshot, error) {
	return findByID(ctx, s.db, id)
}

type rowQueryer interface {
	queryer
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findByID(ctx context.Context, db rowQueryer, id int64) (quiz.Snapshot, error) {
	snap, err := scanQuiz(db.QueryRowContext(ctx, selectQuiz+` WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Snapshot{}, store.ErrNotFound
		}
		return quiz.Snapshot{}, fmt.Errorf("query quiz: %w", err)
	}
	questions, err := loadQuestions(ctx, db, []int64{id})
	if err != nil {
		return quiz.Snapshot{}, err
	}
	snap.Questions = questions[id]
	return snap, nil
}

// loadQuestions returns the questions of quizIDs keyed by quiz id, answers attached.
func loadQuestions(ctx context.Context, db queryer, quizIDs []int64) (map[int64][]quiz.Question, error) {
	const qq = `
SELECT id, quiz_id, text, correct_points, incorrect_points
FROM questions WHERE quiz_id = ANY($1) ORDER BY quiz_id, position, id`
	rows, err := db.QueryContext(ctx, qq, pq.Array(quizIDs))
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	type ref struct {
		quizID int64
		index  int
	}
	out := make(map[int64][]quiz.Question, len(quizIDs))
	refs := make(map[int64]ref)
	var questionIDs []int64
	for rows.Next() {
		var (
			q      quiz.Question
			quizID int64
		)
		if err := rows.Scan(&q.ID, &quizID, &q.Text, &q.CorrectPoints, &q.IncorrectPoints); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		refs[q.ID] = ref{quizID: quizID, index: len(out[quizID])}
		out[quizID] = append(out[quizID], q)
		questionIDs = append(questionIDs, q.ID)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questionIDs) == 0 {
		return out, nil
	}

	const qa = `SELECT id, question_id, text, is_correct FROM answers WHERE question_id = ANY($1) ORDER BY id`
	rows, err = db.QueryContext(ctx, qa, pq.Array(questionIDs))
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a          quiz.Answer
			questionID int64
		)
		if err := rows.Scan(&a.ID, &questionID, &a.Text, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		r, ok := refs[questionID]
		if !ok {
			continue
		}
		q := &out[r.quizID][r.index]
		q.Answers = append(q.Answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

// Insert stores snap under fresh ids and returns the stored copy.
func (s *Store) Insert(ctx context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	out := snap.Clone()
	out.UpdatedAt = s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		const q = `
INSERT INTO quizzes (owner_id, title, description, password_hash, updated_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := tx.QueryRowContext(ctx, q, out.OwnerID, out.Title, out.Description, out.PasswordHash, out.UpdatedAt).Scan(&out.ID); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		for i := range out.Questions {
			if err := insertQuestion(ctx, tx, out.ID, i, &out.Questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return quiz.Snapshot{}, err
	}
	return out, nil
}

func insertQuestion(ctx context.Context, tx *sql.Tx, quizID int64, position int, q *quiz.Question) error {
	const stmt = `
INSERT INTO questions (quiz_id, position, text, correct_points, incorrect_points)
VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, quizID, position, q.Text, q.CorrectPoints, q.IncorrectPoints).Scan(&q.ID); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}
	for j := range q.Answers {
		if err := insertAnswer(ctx, tx, q.ID, &q.Answers[j]); err != nil {
			return err
		}
	}
	return nil
}

func insertAnswer(ctx context.Context, tx *sql.Tx, questionID int64, a *quiz.Answer) error {
	const stmt = `INSERT INTO answers (question_id, text, is_correct) VALUES ($1, $2, $3) RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, questionID, a.Text, a.IsCorrect).Scan(&a.ID); err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

// Update merges snap into the stored quiz. The owner never changes.
func (s *Store) Update(ctx context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	out := snap.Clone()
	out.UpdatedAt = s.timestamp()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		const q = `
UPDATE quizzes SET title = $2, description = $3, password_hash = $4, updated_at = $5
WHERE id = $1 RETURNING owner_id`
		if err := tx.QueryRowContext(ctx, q, out.ID, out.Title, out.Description, out.PasswordHash, out.UpdatedAt).Scan(&out.OwnerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("update quiz: %w", err)
		}

		keep := make([]int64, 0, len(out.Questions))
		for i := range out.Questions {
			if err := mergeQuestion(ctx, tx, out.ID, i, &out.Questions[i]); err != nil {
				return err
			}
			keep = append(keep, out.Questions[i].ID)
		}
		const prune = `DELETE FROM questions WHERE quiz_id = $1 AND NOT (id = ANY($2))`
		if _, err := tx.ExecContext(ctx, prune, out.ID, pq.Array(keep)); err != nil {
			return fmt.Errorf("prune questions: %w", err)
		}
		return nil
	})
	if err != nil {
		return quiz.Snapshot{}, err
	}
	return out, nil
}

func mergeQuestion(ctx context.Context, tx *sql.Tx, quizID int64, position int, q *quiz.Question) error {
	if q.ID == 0 {
		return insertQuestion(ctx, tx, quizID, position, q)
	}

	const stmt = `
UPDATE questions SET position = $3, text = $4, correct_points = $5, incorrect_points = $6
WHERE id = $1 AND quiz_id = $2`
	res, err := tx.ExecContext(ctx, stmt, q.ID, quizID, position, q.Text, q.CorrectPoints, q.IncorrectPoints)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	keep := make([]int64, 0, len(q.Answers))
	for j := range q.Answers {
		a := &q.Answers[j]
		if a.ID == 0 {
			if err := insertAnswer(ctx, tx, q.ID, a); err != nil {
				return err
			}
		} else {
			const upd = `UPDATE answers SET text = $3, is_correct = $4 WHERE id = $1 AND question_id = $2`
			res, err := tx.ExecContext(ctx, upd, a.ID, q.ID, a.Text, a.IsCorrect)
			if err != nil {
				return fmt.Errorf("update answer: %w", err)
			}
			if err := requireRow(res); err != nil {
				return err
			}
		}
		keep = append(keep, a.ID)
	}
	const prune = `DELETE FROM answers WHERE question_id = $1 AND NOT (id = ANY($2))`
	if _, err := tx.ExecContext(ctx, prune, q.ID, pq.Array(keep)); err != nil {
		return fmt.Errorf("prune answers: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes a quiz. Its questions, answers and attempts go with it through the
// schema's cascading foreign keys.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	return requireRow(res)
}

// Reattach returns snap when its updated_at still matches the row, and reloads the
// quiz otherwise.
func (s *Store) Reattach(ctx context.Context, snap quiz.Snapshot) (quiz.Snapshot, error) {
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM quizzes WHERE id = $1`, snap.ID).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Snapshot{}, store.ErrNotFound
		}
		return quiz.Snapshot{}, fmt.Errorf("query quiz version: %w", err)
	}
	if updatedAt.Equal(snap.UpdatedAt) {
		return snap, nil
	}
	return s.FindByID(ctx, snap.ID)
}

// SaveAttempt stores the attempt and its choices in one transaction. Choices share the
// attempt's CreatedAt as their answered_at.
func (s *Store) SaveAttempt(ctx context.Context, a quiz.Attempt, choices []quiz.AnsweredChoice) error {
	questionIDs := make([]int64, len(choices))
	answerIDs := make([]int64, len(choices))
	for i, c := range choices {
		if c.AttemptID != a.ID {
			return fmt.Errorf("%w: choice for attempt %q", store.ErrConflict, c.AttemptID)
		}
		questionIDs[i] = c.QuestionID
		answerIDs[i] = c.AnswerID
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		const ins = `INSERT INTO attempts (id, user_id, quiz_id, score, created_at) VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.ExecContext(ctx, ins, a.ID, a.UserID, a.QuizID, a.Score, a.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert attempt: %w", mapError(err))
		}
		if len(choices) == 0 {
			return nil
		}
		const batch = `
INSERT INTO answered_choices (attempt_id, question_id, answer_id, answered_at)
SELECT $1, t.question_id, t.answer_id, $4
FROM unnest($2::bigint[], $3::bigint[]) AS t (question_id, answer_id)`
		if _, err := tx.ExecContext(ctx, batch, a.ID, pq.Array(questionIDs), pq.Array(answerIDs), a.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("insert answered choices: %w", mapError(err))
		}
		return nil
	})
}

// AttemptsByUser lists a user's attempts oldest first.
func (s *Store) AttemptsByUser(ctx context.Context, userID string) ([]quiz.Attempt, error) {
	const q = `SELECT id, user_id, quiz_id, score, created_at FROM attempts WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := make([]quiz.Attempt, 0)
	for rows.Next() {
		var a quiz.Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuizID, &a.Score, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var (
	_ store.Store      = (*Store)(nil)
	_ account.Provider = (*Store)(nil)
)
