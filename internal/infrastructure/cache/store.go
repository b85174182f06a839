// Package cache is the content-addressed OCR result cache plus the
// append-only scan history, both capacity bounded.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/cardscan/internal/core/domain"
)

const (
	DefaultCapacity       = 100
	DefaultValidityWindow = 24 * time.Hour
	DefaultRetentionDays  = 30
)

// Statistics aggregates the scan history.
type Statistics struct {
	TotalProcessed          int            `json:"total_processed"`
	AverageConfidence       float64        `json:"average_confidence"`
	AverageProcessingTimeMs float64        `json:"average_processing_time_ms"`
	EngineUsage             map[string]int `json:"engine_usage"`
	LastUpdated             time.Time      `json:"last_updated"`
}

// Store keeps a FIFO-evicting lookup cache keyed by image content hash
// and a most-recent-first history list. All methods are safe for
// concurrent use; mutations are atomic with respect to each other.
type Store struct {
	mu sync.Mutex

	capacity int
	validity time.Duration
	clock    func() time.Time

	entries map[string]*domain.OCRResult
	order   []string // insertion order, oldest first

	history []*domain.OCRResult // most recent first
}

type Option func(*Store)

func WithCapacity(capacity int) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

func WithValidityWindow(window time.Duration) Option {
	return func(s *Store) {
		if window > 0 {
			s.validity = window
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func New(opts ...Option) *Store {
	s := &Store{
		capacity: DefaultCapacity,
		validity: DefaultValidityWindow,
		clock:    time.Now,
		entries:  make(map[string]*domain.OCRResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the hex SHA-256 of the image bytes: byte-identical images
// always share one cache entry regardless of filename or call count.
func (s *Store) Key(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}

func (s *Store) Get(key string) (*domain.OCRResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.entries[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrCacheMiss, "cache get", errors.New(key))
	}
	return result.Clone(), nil
}

// Put inserts under key, evicting the oldest-inserted entry first when
// at capacity. Re-putting an existing key replaces the value without
// disturbing its position.
func (s *Store) Put(key string, result *domain.OCRResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		s.entries[key] = result.Clone()
		return
	}

	for len(s.entries) >= s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.entries, oldest)
	}

	s.entries[key] = result.Clone()
	s.order = append(s.order, key)
}

// IsValid reports whether the result is still inside the validity
// window. The transition from valid to stale happens exactly once, at
// processedAt + window.
func (s *Store) IsValid(result *domain.OCRResult) bool {
	if result == nil {
		return false
	}
	return s.clock().Before(result.ProcessedAt.Add(s.validity))
}

// Save assigns an id when absent, prepends to the history and truncates
// it at capacity. The stored copy is returned.
func (s *Store) Save(result *domain.OCRResult) *domain.OCRResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := result.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.history = append([]*domain.OCRResult{stored}, s.history...)
	if len(s.history) > s.capacity {
		s.history = s.history[:s.capacity]
	}
	return stored.Clone()
}

// History returns up to limit most-recent results. With includeImages
// false the returned entries carry no image bytes.
func (s *Store) History(limit int, includeImages bool) []*domain.OCRResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]*domain.OCRResult, 0, limit)
	for _, r := range s.history[:limit] {
		if includeImages {
			out = append(out, r.Clone())
		} else {
			out = append(out, r.WithoutImage())
		}
	}
	return out
}

func (s *Store) GetByID(id string, includeImage bool) (*domain.OCRResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.history {
		if r.ID == id {
			if includeImage {
				return r.Clone(), nil
			}
			return r.WithoutImage(), nil
		}
	}
	return nil, domain.WrapError(domain.ErrScanNotFound, "cache get by id", errors.New(id))
}

// Delete removes the result from the history and any cache entries
// holding the same id. Reports whether anything was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	kept := s.history[:0]
	for _, r := range s.history {
		if r.ID == id {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	s.history = kept

	if s.removeEntriesByID(id) {
		removed = true
	}
	return removed
}

// CleanupOlderThan removes history entries processed more than the
// given number of days ago, independent of the validity window, plus
// any cache entries sharing their ids. Returns the removed count.
func (s *Store) CleanupOlderThan(days int) int {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := s.clock().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.history[:0]
	for _, r := range s.history {
		if r.ProcessedAt.Before(cutoff) {
			removed++
			s.removeEntriesByID(r.ID)
			continue
		}
		kept = append(kept, r)
	}
	s.history = kept
	return removed
}

func (s *Store) removeEntriesByID(id string) bool {
	removed := false
	for key, r := range s.entries {
		if r.ID != id {
			continue
		}
		delete(s.entries, key)
		removed = true
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return removed
}

// Statistics aggregates over the history; an empty history averages to
// zero.
func (s *Store) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		EngineUsage: make(map[string]int),
		LastUpdated: s.clock().UTC(),
	}
	if len(s.history) == 0 {
		return stats
	}

	var confidenceSum float64
	var timeSum float64
	timed := 0
	for _, r := range s.history {
		stats.TotalProcessed++
		confidenceSum += r.Confidence
		if r.ProcessingTimeMs >= 0 {
			timeSum += float64(r.ProcessingTimeMs)
			timed++
		}
		if r.OCREngine != "" {
			stats.EngineUsage[r.OCREngine]++
		}
	}
	stats.AverageConfidence = confidenceSum / float64(stats.TotalProcessed)
	if timed > 0 {
		stats.AverageProcessingTimeMs = timeSum / float64(timed)
	}
	return stats
}

// Len reports the number of cached lookup entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
