package guesswho

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

// DefaultCandidates is the default number of options per round,
// target included.
const DefaultCandidates = 4

// Selector picks a round's target and decoys from a pool snapshot.
// The random source is injectable so tests can assert exact selections;
// access to it is serialized, so one Selector serves all sessions.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector. A nil source falls back to a
// time-seeded one.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Selector{rng: rand.New(src)}
}

// SelectRound picks one target and k-1 decoys from the snapshot.
//
// The target is sampled uniformly from the qualified avatars not in the
// recent window; when that set is empty the window is widened by
// dropping its oldest entries until a target is available. Decoys may
// repeat across rounds, only targets are anti-repeated. Candidate order
// is randomized so the target's position is unpredictable.
func (s *Selector) SelectRound(snapshot []model.AvatarRecord, recent []string, k int, expiry time.Duration) (*model.Round, error) {
	if k <= 0 {
		k = DefaultCandidates
	}
	if len(snapshot) < k {
		return nil, ErrInsufficientPool
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := excludeRecent(snapshot, recent)
	for len(eligible) == 0 && len(recent) > 0 {
		recent = recent[1:] // oldest-first eviction
		eligible = excludeRecent(snapshot, recent)
	}
	if len(eligible) == 0 {
		return nil, ErrInsufficientPool
	}

	target := eligible[s.rng.Intn(len(eligible))]

	decoys := s.pickDecoys(snapshot, target, k-1)
	candidates := append(decoys, target.UserID)
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	now := time.Now()
	return &model.Round{
		ID:           uuid.NewString(),
		TargetUserID: target.UserID,
		CandidateIDs: candidates,
		CreatedAt:    now,
		ExpiresAt:    now.Add(expiry),
	}, nil
}

// pickDecoys samples n distinct user ids from the snapshot excluding the
// target, preferring names dissimilar to the target's to avoid trivially
// narrowed guesses. The preference is best-effort: similar names fill
// remaining slots when the pool is small.
func (s *Selector) pickDecoys(snapshot []model.AvatarRecord, target model.AvatarRecord, n int) []string {
	others := make([]model.AvatarRecord, 0, len(snapshot)-1)
	for _, rec := range snapshot {
		if rec.UserID != target.UserID {
			others = append(others, rec)
		}
	}

	s.rng.Shuffle(len(others), func(i, j int) {
		others[i], others[j] = others[j], others[i]
	})

	decoys := make([]string, 0, n)
	var similar []string
	for _, rec := range others {
		if len(decoys) == n {
			break
		}
		if namesSimilar(rec.DisplayName, target.DisplayName) {
			similar = append(similar, rec.UserID)
			continue
		}
		decoys = append(decoys, rec.UserID)
	}
	for _, id := range similar {
		if len(decoys) == n {
			break
		}
		decoys = append(decoys, id)
	}
	return decoys
}

// excludeRecent filters the snapshot down to records whose user id is not
// in the recent-target window, preserving snapshot order.
func excludeRecent(snapshot []model.AvatarRecord, recent []string) []model.AvatarRecord {
	blocked := make(map[string]bool, len(recent))
	for _, id := range recent {
		blocked[id] = true
	}

	eligible := make([]model.AvatarRecord, 0, len(snapshot))
	for _, rec := range snapshot {
		if !blocked[rec.UserID] {
			eligible = append(eligible, rec)
		}
	}
	return eligible
}

// namesSimilar reports whether two display names share a name token.
func namesSimilar(a, b string) bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(a)) {
		tokens[tok] = true
	}
	for _, tok := range strings.Fields(strings.ToLower(b)) {
		if tokens[tok] {
			return true
		}
	}
	return false
}
