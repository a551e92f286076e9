// Package avatarpool maintains the working set of qualified avatars.
// The pool is the only writer to an avatar's qualification status; game
// logic reads copy-on-read snapshots and never mutates records.
package avatarpool

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rs/zerolog/log"

	"github.com/ebdekock/StaffSlackBot/internal/model"
	"github.com/ebdekock/StaffSlackBot/internal/pkg/lock"
)

// DefaultDuplicateMaxDistance is the perceptual-hash Hamming distance at
// or below which two avatars count as the same image.
const DefaultDuplicateMaxDistance = 8

// Qualifier produces admission verdicts; satisfied by *qualifier.Qualifier.
type Qualifier interface {
	Qualify(imageBytes []byte) model.Verdict
}

// Config holds pool tuning.
type Config struct {
	DuplicateMaxDistance int
}

// record is the pool's internal view of one avatar: the public state plus
// the perceptual hash kept while the record is qualified.
type record struct {
	model.AvatarRecord
	hash *goimagehash.ImageHash
}

// Pool admits avatar candidates through qualification and duplicate
// detection. Admissions for the same user id are serialized; distinct
// ids proceed concurrently.
type Pool struct {
	qualifier   Qualifier
	maxDistance int
	locks       *lock.KeyedLock

	mu      sync.RWMutex
	records map[string]*record
}

// New creates an empty pool. Nil or zero config fields fall back to defaults.
func New(q Qualifier, cfg *Config) *Pool {
	maxDistance := DefaultDuplicateMaxDistance
	if cfg != nil && cfg.DuplicateMaxDistance > 0 {
		maxDistance = cfg.DuplicateMaxDistance
	}
	return &Pool{
		qualifier:   q,
		maxDistance: maxDistance,
		locks:       lock.NewKeyedLock(),
		records:     make(map[string]*record),
	}
}

// Admit runs one avatar candidate through the admission pipeline. If the
// image reference is unchanged and the record is already Qualified or
// terminally Rejected, the call only refreshes the display name; a changed
// reference or a retryable rejection triggers a fresh qualification pass.
func (p *Pool) Admit(userID, displayName, imageRef string, imageBytes []byte) model.QualificationStatus {
	p.locks.Lock(userID)
	defer p.locks.Unlock(userID)

	p.mu.RLock()
	existing := p.records[userID]
	p.mu.RUnlock()

	if existing != nil && existing.ImageRef == imageRef {
		settled := existing.Status == model.StatusQualified ||
			(existing.Status == model.StatusRejected && !existing.Reason.Retryable())
		if settled {
			if existing.DisplayName != displayName {
				p.mu.Lock()
				existing.DisplayName = displayName
				p.mu.Unlock()
			}
			return existing.Status
		}
	}

	verdict := p.qualifier.Qualify(imageBytes)

	var hash *goimagehash.ImageHash
	if verdict.Usable {
		hash = perceptualHash(imageBytes)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if verdict.Usable && hash != nil && p.duplicateOfLocked(userID, hash) {
		verdict = model.Verdict{Usable: false, Reason: model.ReasonDuplicateOfExisting, Confidence: verdict.Confidence}
		hash = nil
	}

	rec := &record{
		AvatarRecord: model.AvatarRecord{
			UserID:        userID,
			DisplayName:   displayName,
			ImageRef:      imageRef,
			Confidence:    verdict.Confidence,
			LastCheckedAt: time.Now(),
		},
		hash: hash,
	}
	if verdict.Usable {
		rec.Status = model.StatusQualified
	} else {
		rec.Status = model.StatusRejected
		rec.Reason = verdict.Reason
	}
	p.records[userID] = rec

	log.Debug().
		Str("user_id", userID).
		Str("status", rec.Status.String()).
		Str("reason", string(rec.Reason)).
		Float64("confidence", rec.Confidence).
		Msg("Avatar admission")

	return rec.Status
}

// Remove drops a user's record entirely, for users deleted upstream.
// Qualification itself never removes records.
func (p *Pool) Remove(userID string) {
	p.locks.Lock(userID)
	defer p.locks.Unlock(userID)

	p.mu.Lock()
	delete(p.records, userID)
	p.mu.Unlock()
}

// QualifiedSnapshot returns an immutable point-in-time copy of all
// qualified records, sorted by user id. Callers never observe a
// mid-admission partial update.
func (p *Pool) QualifiedSnapshot() []model.AvatarRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := make([]model.AvatarRecord, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Status == model.StatusQualified {
			snapshot = append(snapshot, rec.AvatarRecord)
		}
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].UserID < snapshot[j].UserID
	})
	return snapshot
}

// Get returns a copy of one record and whether it exists.
func (p *Pool) Get(userID string) (model.AvatarRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[userID]
	if !ok {
		return model.AvatarRecord{}, false
	}
	return rec.AvatarRecord, true
}

// Stats returns total and qualified record counts for logging.
func (p *Pool) Stats() (total, qualified int) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, rec := range p.records {
		if rec.Status == model.StatusQualified {
			qualified++
		}
	}
	return len(p.records), qualified
}

// duplicateOfLocked reports whether the hash is within the duplicate
// distance of any other user's qualified avatar. A shared placeholder
// image must never qualify for more than one user at a time. Caller
// holds p.mu.
func (p *Pool) duplicateOfLocked(userID string, hash *goimagehash.ImageHash) bool {
	for id, rec := range p.records {
		if id == userID || rec.Status != model.StatusQualified || rec.hash == nil {
			continue
		}
		distance, err := hash.Distance(rec.hash)
		if err != nil {
			continue
		}
		if distance <= p.maxDistance {
			return true
		}
	}
	return false
}

// perceptualHash computes a 64-bit difference hash of the image, or nil
// when the bytes cannot be decoded.
func perceptualHash(imageBytes []byte) *goimagehash.ImageHash {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return nil
	}
	return hash
}
