package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/hanta/internal/domain/model"
	"github.com/okian/hanta/pkg/metrics"
)

// Treap-based, in-memory Store implementation with one tree per board.
//
// Ordering: score DESC, then name ASC (deterministic). "less" means ranks
// earlier, so in-order traversal yields the leaderboard from best to worst.
// Subtree sizes give the number of strictly higher scores in O(log n).

type row struct {
	id       string
	score    int64
	accuracy float64
	metadata map[string]any
	at       time.Time
}

type node struct {
	name  string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore int64, aName string, bScore int64, bName string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aName < bName
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, name string, score int64, prio uint64) *node {
	if n == nil {
		return &node{name: name, score: score, prio: prio, size: 1}
	}
	if less(score, name, n.score, n.name) {
		n.left = insert(n.left, name, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, name, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, name string, score int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && name == n.name:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, name, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, name, score)
		}
	case less(score, name, n.score, n.name):
		n.left = deleteNode(n.left, name, score)
	default:
		n.right = deleteNode(n.right, name, score)
	}
	fix(n)
	return n
}

// countAbove returns how many nodes hold a score strictly higher than score.
func countAbove(n *node, score int64) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit nodes in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

type board struct {
	root   *node
	byName map[string]row
}

// MemoryStore keeps every board in process memory. Rows are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[Board]*board
	total  int

	seed uint64
	rng  *rand.Rand
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		boards: make(map[Board]*board),
		seed:   rand.Uint64(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s
}

// UpsertBest implements Store.UpsertBest in O(log n) expected time.
func (s *MemoryStore) UpsertBest(_ context.Context, rec model.Record) (bool, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	if rec.Name == "" || !rec.Mode.Valid() || rec.Score < 0 {
		return false, fmt.Errorf("%w: name %q mode %q score %d", ErrInvalidRecord, rec.Name, rec.Mode, rec.Score)
	}
	key := BoardOf(rec)

	s.mu.Lock()
	b, ok := s.boards[key]
	if !ok {
		b = &board{byName: make(map[string]row)}
		s.boards[key] = b
	}
	if old, ok := b.byName[rec.Name]; ok {
		if rec.Score <= old.score {
			s.mu.Unlock()
			return false, nil
		}
		b.root = deleteNode(b.root, rec.Name, old.score)
	} else {
		s.total++
	}
	b.byName[rec.Name] = row{
		id:       rec.ID,
		score:    rec.Score,
		accuracy: rec.Accuracy,
		metadata: rec.Metadata.Map(),
		at:       rec.SubmittedAt,
	}
	b.root = insert(b.root, rec.Name, rec.Score, s.rng.Uint64())
	total := s.total
	s.mu.Unlock()

	metrics.UpdateRankingRecords(total)
	return true, nil
}

// TopN returns the top n entries of b.
func (s *MemoryStore) TopN(_ context.Context, b Board, n int) ([]model.RankedEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	bd, ok := s.boards[b]
	if !ok {
		return []model.RankedEntry{}, nil
	}

	nodes := make([]*node, 0, min(n, len(bd.byName)))
	collectTopN(bd.root, n, &nodes)

	out := make([]model.RankedEntry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.score == nodes[i-1].score {
			rank = out[i-1].Rank
		}
		out[i] = entryOf(rank, nd.name, bd.byName[nd.name])
	}
	return out, nil
}

// Rank returns the position of name on b.
func (s *MemoryStore) Rank(_ context.Context, b Board, name string) (model.RankedEntry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	bd, ok := s.boards[b]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RankedEntry{}, ErrNotFound
	}
	r, ok := bd.byName[name]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.RankedEntry{}, ErrNotFound
	}
	return entryOf(1+countAbove(bd.root, r.score), name, r), nil
}

// Count returns the number of rows across all boards.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Close is a no-op; the store holds no background work.
func (s *MemoryStore) Close() error { return nil }

func entryOf(rank int, name string, r row) model.RankedEntry {
	return model.RankedEntry{
		Rank:     rank,
		Name:     name,
		Score:    r.score,
		Accuracy: r.accuracy,
		Metadata: r.metadata,
		At:       r.at,
	}
}
