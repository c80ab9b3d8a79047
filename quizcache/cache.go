// Package quizcache keeps per-user quiz snapshots in memory.
//
// The cache is a two-level map: user id to a bucket, bucket to snapshots by quiz id.
// Buckets live in a sync.Map and carry their own RWMutex, so users never contend with
// each other. Stored snapshots are deep copies; every snapshot handed back is reattached
// through the configured [Reattacher] first, and a newer version it returns replaces the
// cached copy.
package quizcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/quizcore/quiz"
)

var (
	// ErrConflict is returned by Add when the quiz is already cached for the user.
	ErrConflict = errors.New("quiz already cached")
	// ErrNotFound is returned when the user or quiz is not cached.
	ErrNotFound = errors.New("quiz not cached")
)

// Reattacher refreshes a cached snapshot against the durable store before it is returned.
type Reattacher interface {
	Reattach(ctx context.Context, s quiz.Snapshot) (quiz.Snapshot, error)
}

type bucket struct {
	mu      sync.RWMutex
	quizzes map[int64]quiz.Snapshot
	dead    bool
}

// Cache is safe for concurrent use.
type Cache struct {
	buckets    sync.Map
	reattacher Reattacher
}

// New returns an empty cache. A nil reattacher returns cached copies as they are.
func New(r Reattacher) *Cache {
	return &Cache{reattacher: r}
}

// bucketFor returns the live bucket for userID with its write lock held. Clear can retire
// a bucket between the load and the lock, in which case a fresh one is installed.
func (c *Cache) bucketFor(userID string) *bucket {
	for {
		v, _ := c.buckets.LoadOrStore(userID, &bucket{quizzes: make(map[int64]quiz.Snapshot)})
		b := v.(*bucket)
		b.mu.Lock()
		if !b.dead {
			return b
		}
		b.mu.Unlock()
	}
}

func (c *Cache) load(userID string) (*bucket, bool) {
	v, ok := c.buckets.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*bucket), true
}

// Add caches q for userID.
func (c *Cache) Add(userID string, q quiz.Snapshot) error {
	b := c.bucketFor(userID)
	defer b.mu.Unlock()

	if _, exists := b.quizzes[q.ID]; exists {
		return ErrConflict
	}
	b.quizzes[q.ID] = q.Clone()
	return nil
}

// Has reports whether anything is cached for userID.
func (c *Cache) Has(userID string) bool {
	b, ok := c.load(userID)
	if !ok {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.dead && len(b.quizzes) > 0
}

// All returns every cached snapshot of userID sorted by id.
func (c *Cache) All(ctx context.Context, userID string) ([]quiz.Snapshot, error) {
	sorted := c.sorted(userID)
	if len(sorted) == 0 {
		return nil, ErrNotFound
	}
	return c.reattachAll(ctx, userID, sorted)
}

// Get returns one cached snapshot.
func (c *Cache) Get(ctx context.Context, userID string, quizID int64) (quiz.Snapshot, error) {
	b, ok := c.load(userID)
	if !ok {
		return quiz.Snapshot{}, ErrNotFound
	}
	b.mu.RLock()
	s, found := b.quizzes[quizID]
	if found {
		s = s.Clone()
	}
	b.mu.RUnlock()
	if !found {
		return quiz.Snapshot{}, ErrNotFound
	}
	return c.reattach(ctx, userID, s)
}

// Page returns page (1-based) of size snapshots ordered by id. An empty slice is returned
// when nothing is cached or the page is past the end; page < 1 is read as 1.
func (c *Cache) Page(ctx context.Context, userID string, page, size int) ([]quiz.Snapshot, error) {
	sorted := c.sorted(userID)
	start, end := quiz.PageWindow(page, size, len(sorted))
	if start == end {
		return []quiz.Snapshot{}, nil
	}
	return c.reattachAll(ctx, userID, sorted[start:end])
}

// Remove drops one quiz from the user's cache.
func (c *Cache) Remove(userID string, quizID int64) error {
	b, ok := c.load(userID)
	if !ok {
		return ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.quizzes[quizID]; b.dead || !exists {
		return ErrNotFound
	}
	delete(b.quizzes, quizID)
	return nil
}

// Replace overwrites a cached quiz with q, matched by q.ID.
func (c *Cache) Replace(userID string, q quiz.Snapshot) error {
	b, ok := c.load(userID)
	if !ok {
		return ErrNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.quizzes[q.ID]; b.dead || !exists {
		return ErrNotFound
	}
	b.quizzes[q.ID] = q.Clone()
	return nil
}

// Clear drops everything cached for userID.
func (c *Cache) Clear(userID string) error {
	v, ok := c.buckets.LoadAndDelete(userID)
	if !ok {
		return ErrNotFound
	}
	b := v.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dead = true
	if len(b.quizzes) == 0 {
		return ErrNotFound
	}
	b.quizzes = nil
	return nil
}

// Users returns how many users currently have a bucket.
func (c *Cache) Users() int {
	n := 0
	c.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) sorted(userID string) []quiz.Snapshot {
	b, ok := c.load(userID)
	if !ok {
		return nil
	}
	b.mu.RLock()
	out := make([]quiz.Snapshot, 0, len(b.quizzes))
	for _, s := range b.quizzes {
		out = append(out, s.Clone())
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// reattach refreshes s and, when the store returned a newer version, writes it back so
// later reads skip the reload. A concurrent Replace or Remove wins over the write-back.
func (c *Cache) reattach(ctx context.Context, userID string, s quiz.Snapshot) (quiz.Snapshot, error) {
	if c.reattacher == nil {
		return s, nil
	}
	fresh, err := c.reattacher.Reattach(ctx, s)
	if err != nil {
		return quiz.Snapshot{}, err
	}
	if fresh.ID == s.ID && !fresh.UpdatedAt.Equal(s.UpdatedAt) {
		c.storeFresh(userID, s.UpdatedAt, fresh)
	}
	return fresh, nil
}

func (c *Cache) storeFresh(userID string, seen time.Time, fresh quiz.Snapshot) {
	b, ok := c.load(userID)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	current, exists := b.quizzes[fresh.ID]
	if b.dead || !exists || !current.UpdatedAt.Equal(seen) {
		return
	}
	b.quizzes[fresh.ID] = fresh.Clone()
}

func (c *Cache) reattachAll(ctx context.Context, userID string, in []quiz.Snapshot) ([]quiz.Snapshot, error) {
	out := make([]quiz.Snapshot, 0, len(in))
	for _, s := range in {
		r, err := c.reattach(ctx, userID, s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
